package errors

import (
	"os"
	"runtime"
	"strings"
)

// Color 终端颜色
type Color int

const (
	ColorReset Color = iota
	ColorRed
	ColorYellow
	ColorBlue
	ColorCyan
	ColorBoldRed
	ColorBoldYellow
	ColorBoldWhite
)

// ANSI 颜色代码
var ansiCodes = map[Color]string{
	ColorReset:      "\033[0m",
	ColorRed:        "\033[31m",
	ColorYellow:     "\033[33m",
	ColorBlue:       "\033[34m",
	ColorCyan:       "\033[36m",
	ColorBoldRed:    "\033[1;31m",
	ColorBoldYellow: "\033[1;33m",
	ColorBoldWhite:  "\033[1;37m",
}

// colorsEnabled 是否启用颜色
var colorsEnabled = detectColorSupport()

// detectColorSupport 检测终端是否支持颜色
func detectColorSupport() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	term := os.Getenv("TERM")
	if term == "dumb" {
		return false
	}
	if runtime.GOOS == "windows" {
		// Windows Terminal / ConEmu
		return term != "" || os.Getenv("WT_SESSION") != "" || os.Getenv("ConEmuANSI") == "ON"
	}
	if fi, err := os.Stderr.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
		return true
	}
	return os.Getenv("COLORTERM") != ""
}

// SetColorsEnabled 设置颜色状态
func SetColorsEnabled(enabled bool) {
	colorsEnabled = enabled
}

// ColorsEnabled 检查是否启用颜色
func ColorsEnabled() bool {
	return colorsEnabled
}

// Colorize 为字符串添加颜色
func Colorize(s string, color Color) string {
	if !colorsEnabled {
		return s
	}
	return ansiCodes[color] + s + ansiCodes[ColorReset]
}

// Strip 移除 ANSI 颜色代码
func Strip(s string) string {
	for _, code := range ansiCodes {
		s = strings.ReplaceAll(s, code, "")
	}
	return s
}

// levelColor 错误级别对应的颜色
func levelColor(l Level) Color {
	switch l {
	case LevelError:
		return ColorBoldRed
	case LevelWarning:
		return ColorBoldYellow
	}
	return ColorCyan
}

package arm64

import (
	"fmt"
	"strings"

	"golang.org/x/sys/cpu"
)

// Features 影响指令选择的 CPU 特性
type Features struct {
	Atomics bool // LSE：cas 系列指令
	ASIMD   bool // cnt/addv 实现 bitCount
}

// DetectFeatures 检测当前 CPU
func DetectFeatures() Features {
	return Features{Atomics: cpu.ARM64.HasATOMICS, ASIMD: cpu.ARM64.HasASIMD}
}

// ParseFeatures 解析配置中的特性列表
func ParseFeatures(names []string) (Features, error) {
	var f Features
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "atomics", "lse":
			f.Atomics = true
		case "asimd", "neon":
			f.ASIMD = true
		case "":
		default:
			return Features{}, fmt.Errorf("unknown arm64 feature %q", name)
		}
	}
	return f, nil
}

// Names 返回已启用特性的名称
func (f Features) Names() []string {
	var out []string
	if f.Atomics {
		out = append(out, "atomics")
	}
	if f.ASIMD {
		out = append(out, "asimd")
	}
	return out
}

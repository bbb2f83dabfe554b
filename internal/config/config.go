// Package config 宿主虚拟机配置
//
// 配置描述目标架构、对象布局、运行时桩地址与降级启发式参数，
// 以 TOML 文件保存，进程启动时加载一次。
package config

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// 常量定义
const (
	ConfigFileName = "novalir.toml" // 配置文件名
)

// Config 宿主虚拟机配置
type Config struct {
	Target TargetConfig `toml:"target"`
	Layout LayoutConfig `toml:"layout"`
	Stubs  StubConfig   `toml:"stubs"`
	Switch SwitchConfig `toml:"switch"`
	Frame  FrameConfig  `toml:"frame"`
	Log    LogConfig    `toml:"log"`
}

// TargetConfig 目标平台
type TargetConfig struct {
	// Arch 目标架构（amd64 / arm64），为空时使用当前平台
	Arch string `toml:"arch"`

	// OS 目标操作系统，决定本地调用约定（windows 与其他）
	OS string `toml:"os"`

	// Features 显式启用的 CPU 特性；为空且 DetectFeatures 为 true 时检测当前 CPU
	Features []string `toml:"features"`

	DetectFeatures bool `toml:"detect_features"`

	// MP 多处理器系统，决定是否需要发出内存屏障
	MP bool `toml:"mp"`
}

// LayoutConfig 对象与元数据布局
type LayoutConfig struct {
	ClassMirrorOffset          int64 `toml:"class_mirror_offset"`
	ArrayComponentMirrorOffset int64 `toml:"array_component_mirror_offset"`
	BasicLockSize              int   `toml:"basic_lock_size"`
	CompressedOops             bool  `toml:"compressed_oops"`
	WordSize                   int   `toml:"word_size"`
}

// StubConfig 运行时桩与处理例程地址
type StubConfig struct {
	MonitorEnter  uint64 `toml:"monitor_enter"`
	MonitorExit   uint64 `toml:"monitor_exit"`
	DeoptHandler  uint64 `toml:"deopt_handler"`
	UnwindHandler uint64 `toml:"unwind_handler"`
	SafepointPoll uint64 `toml:"safepoint_poll"`
}

// SwitchConfig 多路分支策略阈值
type SwitchConfig struct {
	MinTableKeys    int     `toml:"min_table_keys"`
	MinTableDensity float64 `toml:"min_table_density"`
	MaxTableSpan    int64   `toml:"max_table_span"`
	MaxRanges       int     `toml:"max_ranges"`
	MinKeysPerRange float64 `toml:"min_keys_per_range"`
}

// FrameConfig 栈帧限制
type FrameConfig struct {
	// MaxFrameSize 单帧最大字节数，0 表示不限制
	MaxFrameSize int `toml:"max_frame_size"`
}

// LogConfig 日志
type LogConfig struct {
	Level       string `toml:"level"`
	Development bool   `toml:"development"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Target: TargetConfig{
			Arch:           runtime.GOARCH,
			OS:             runtime.GOOS,
			DetectFeatures: true,
			MP:             true,
		},
		Layout: LayoutConfig{
			ClassMirrorOffset:          104,
			ArrayComponentMirrorOffset: 112,
			BasicLockSize:              8,
			CompressedOops:             true,
			WordSize:                   8,
		},
		Stubs: StubConfig{
			MonitorEnter:  0x1000,
			MonitorExit:   0x1040,
			DeoptHandler:  0x1080,
			UnwindHandler: 0x10c0,
			SafepointPoll: 0x2000,
		},
		Switch: SwitchConfig{
			MinTableKeys:    4,
			MinTableDensity: 0.5,
			MaxTableSpan:    1 << 16,
			MaxRanges:       8,
			MinKeysPerRange: 3,
		},
		Frame: FrameConfig{MaxFrameSize: 1 << 20},
		Log:   LogConfig{Level: "info"},
	}
}

// ============================================================================
// 加载与保存
// ============================================================================

// Load 从文件加载配置
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse 解析 TOML；未出现的字段保持默认值，未知字段报错
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var de *toml.DecodeError
		if stderrors.As(err, &de) {
			row, col := de.Position()
			return nil, fmt.Errorf("failed to parse config file at %d:%d: %w", row, col, err)
		}
		var sm *toml.StrictMissingError
		if stderrors.As(err, &sm) {
			return nil, fmt.Errorf("unknown config keys:\n%s", sm.String())
		}
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Marshal 编码为 TOML
func (c *Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}

// Save 保存配置到文件
func (c *Config) Save(path string) error {
	data, err := c.Marshal()
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ============================================================================
// 校验
// ============================================================================

// Validate 返回全部配置问题
func (c *Config) Validate() error {
	var err error
	switch c.Target.Arch {
	case "amd64", "arm64":
	default:
		err = multierr.Append(err, fmt.Errorf("target.arch: unsupported architecture %q", c.Target.Arch))
	}
	if c.Layout.WordSize != 8 {
		err = multierr.Append(err, fmt.Errorf("layout.word_size: only 64-bit targets are supported, got %d", c.Layout.WordSize))
	}
	if c.Layout.BasicLockSize <= 0 {
		err = multierr.Append(err, fmt.Errorf("layout.basic_lock_size must be positive"))
	}
	if c.Switch.MinTableKeys < 1 {
		err = multierr.Append(err, fmt.Errorf("switch.min_table_keys must be at least 1"))
	}
	if c.Switch.MinTableDensity <= 0 || c.Switch.MinTableDensity > 1 {
		err = multierr.Append(err, fmt.Errorf("switch.min_table_density must be in (0, 1]"))
	}
	if c.Switch.MaxTableSpan < 1 {
		err = multierr.Append(err, fmt.Errorf("switch.max_table_span must be positive"))
	}
	if c.Frame.MaxFrameSize < 0 {
		err = multierr.Append(err, fmt.Errorf("frame.max_frame_size must not be negative"))
	}
	if _, e := zapcore.ParseLevel(c.Log.Level); e != nil {
		err = multierr.Append(err, fmt.Errorf("log.level: %w", e))
	}
	return err
}

// ============================================================================
// 日志
// ============================================================================

// NewLogger 按配置创建日志
func (l LogConfig) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(l.Level))
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if l.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

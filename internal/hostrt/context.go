// Package hostrt 宿主虚拟机运行时集成
//
// Context 在进程启动时创建一次，之后只读，可以被任意多个并行编译共享；
// Integration 是单次编译的 lower.Host 实现，持有本次编译的尾声补丁列表。
package hostrt

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/tangzhangming/novalir/internal/arch/amd64"
	"github.com/tangzhangming/novalir/internal/arch/arm64"
	"github.com/tangzhangming/novalir/internal/config"
	"github.com/tangzhangming/novalir/internal/lir"
	"github.com/tangzhangming/novalir/internal/lower"
	"github.com/tangzhangming/novalir/internal/memaccess"
	"github.com/tangzhangming/novalir/internal/meta"
)

// BackendFactory 为一次编译创建新的后端实例
type BackendFactory func() lower.Backend

// Context 进程级运行时上下文（只读）
type Context struct {
	cfg      config.Config
	logger   *zap.Logger
	registry *Registry
	memory   *memaccess.Provider
	foreign  map[string]*lower.ForeignCallLinkage

	monitorEnter *lower.ForeignCallLinkage
	monitorExit  *lower.ForeignCallLinkage

	newBackend BackendFactory
	features   []string
}

// Option 上下文选项
type Option func(*Context)

// WithRegistry 使用给定的元数据注册表
func WithRegistry(r *Registry) Option {
	return func(c *Context) { c.registry = r }
}

// WithForeignCall 登记一个运行时外部函数
func WithForeignCall(linkage *lower.ForeignCallLinkage) Option {
	return func(c *Context) { c.foreign[linkage.Name] = linkage }
}

// WithBackendFactory 替换后端工厂（测试用）
func WithBackendFactory(f BackendFactory) Option {
	return func(c *Context) { c.newBackend = f }
}

// NewContext 创建运行时上下文；cfg 会被复制，之后修改不影响上下文
func NewContext(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Context, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Context{
		cfg:     *cfg,
		logger:  logger,
		foreign: make(map[string]*lower.ForeignCallLinkage),
	}
	c.cfg.Target.Features = append([]string(nil), cfg.Target.Features...)

	// 监视器桩：对象与锁槽地址按桩约定传入
	lockSig := meta.NewSignature(meta.Void, meta.Object, meta.Long)
	c.monitorEnter = &lower.ForeignCallLinkage{
		Name: "monitorenter", Address: cfg.Stubs.MonitorEnter, Signature: lockSig, Convention: lir.RuntimeStub,
	}
	c.monitorExit = &lower.ForeignCallLinkage{
		Name: "monitorexit", Address: cfg.Stubs.MonitorExit, Signature: lockSig, Convention: lir.RuntimeStub,
	}
	c.foreign[c.monitorEnter.Name] = c.monitorEnter
	c.foreign[c.monitorExit.Name] = c.monitorExit

	if err := c.initBackend(); err != nil {
		return nil, err
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.registry == nil {
		c.registry = NewRegistry()
	}
	c.memory = memaccess.NewProvider(c.registry)

	c.logger.Info("runtime context ready",
		zap.String("arch", c.cfg.Target.Arch),
		zap.String("os", c.cfg.Target.OS),
		zap.Strings("features", c.features),
		zap.Int("foreign_calls", len(c.foreign)))
	return c, nil
}

// initBackend 解析 CPU 特性并建立后端工厂
func (c *Context) initBackend() error {
	t := c.cfg.Target
	switch t.Arch {
	case "amd64":
		var f amd64.Features
		var err error
		switch {
		case len(t.Features) > 0:
			f, err = amd64.ParseFeatures(t.Features)
		case t.DetectFeatures:
			f = amd64.DetectFeatures()
		}
		if err != nil {
			return err
		}
		c.features = f.Names()
		goos := t.OS
		c.newBackend = func() lower.Backend { return amd64.New(goos, f) }
	case "arm64":
		var f arm64.Features
		var err error
		switch {
		case len(t.Features) > 0:
			f, err = arm64.ParseFeatures(t.Features)
		case t.DetectFeatures:
			f = arm64.DetectFeatures()
		}
		if err != nil {
			return err
		}
		c.features = f.Names()
		c.newBackend = func() lower.Backend { return arm64.New(f) }
	default:
		return fmt.Errorf("unsupported architecture %q", t.Arch)
	}
	return nil
}

// ============================================================================
// 访问器
// ============================================================================

// Config 返回配置副本
func (c *Context) Config() config.Config { return c.cfg }

// Logger 返回日志
func (c *Context) Logger() *zap.Logger { return c.logger }

// Registry 返回元数据注册表
func (c *Context) Registry() *Registry { return c.registry }

// MemoryAccess 返回常量折叠用的内存读取器，元数据读取经由注册表
func (c *Context) MemoryAccess() *memaccess.Provider { return c.memory }

// Features 返回启用的 CPU 特性名
func (c *Context) Features() []string { return append([]string(nil), c.features...) }

// NewBackend 为一次编译创建后端
func (c *Context) NewBackend() lower.Backend { return c.newBackend() }

// NewFrameMap 为一次编译创建帧映射
func (c *Context) NewFrameMap(backend lower.Backend) *lir.FrameMap {
	return lir.NewFrameMap(backend.WordSize(), backend.RegisterConfig().StackAlign, c.cfg.Frame.MaxFrameSize)
}

// LowerOptions 返回降级选项
func (c *Context) LowerOptions() lower.Options {
	s := c.cfg.Switch
	return lower.Options{
		Switch: lower.SwitchHeuristics{
			MinTableKeys:    s.MinTableKeys,
			MinTableDensity: s.MinTableDensity,
			MaxTableSpan:    s.MaxTableSpan,
			MaxRanges:       s.MaxRanges,
			MinKeysPerRange: s.MinKeysPerRange,
		},
		Logger:       c.logger,
		Uniprocessor: !c.cfg.Target.MP,
	}
}

// ForeignCall 按名称查找外部函数链接信息
func (c *Context) ForeignCall(name string) (*lower.ForeignCallLinkage, bool) {
	l, ok := c.foreign[name]
	return l, ok
}

package jit

import (
	"runtime"
	"strings"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/tangzhangming/novalir/internal/errors"
	"github.com/tangzhangming/novalir/internal/graph"
	"github.com/tangzhangming/novalir/internal/hostrt"
	"github.com/tangzhangming/novalir/internal/lir"
	"github.com/tangzhangming/novalir/internal/lower"
)

// ============================================================================
// 编译器
// ============================================================================

// Compiler 编译驱动
type Compiler struct {
	ctx      *hostrt.Context
	log      *zap.Logger
	reporter *errors.Reporter
	cache    sync.Map // map[*graph.Graph]*Result

	compiled     atomic.Int64
	failed       atomic.Int64
	instructions atomic.Int64
	cacheHits    atomic.Int64
	cacheMisses  atomic.Int64
	compileTime  atomic.Duration
}

// NewCompiler 创建编译器
func NewCompiler(ctx *hostrt.Context) *Compiler {
	cfg := ctx.Config()
	return &Compiler{
		ctx: ctx,
		log: ctx.Logger().Named("jit"),
		reporter: errors.NewReporter(map[string]string{
			"arch":     cfg.Target.Arch,
			"features": strings.Join(ctx.Features(), ","),
		}),
	}
}

// Context 返回运行时上下文
func (c *Compiler) Context() *hostrt.Context { return c.ctx }

// Reporter 返回累计的编译错误
func (c *Compiler) Reporter() *errors.Reporter { return c.reporter }

// ============================================================================
// 编译接口
// ============================================================================

// Compile 编译一个方法图；同一个图只编译一次
// 失败只放弃当前方法，错误同时记入 Reporter
func (c *Compiler) Compile(g *graph.Graph) (*Result, error) {
	if g == nil {
		return nil, errors.Internal("compile of nil graph")
	}
	if cached, ok := c.cache.Load(g); ok {
		c.cacheHits.Inc()
		return cached.(*Result), nil
	}
	c.cacheMisses.Inc()

	start := time.Now()
	res, err := c.compile(g)
	if err != nil {
		c.failed.Inc()
		c.reporter.Add(err)
		c.logFailure(g, err)
		return nil, err
	}
	res.CompileTime = time.Since(start)

	// 并发编译同一个图时以先发布者为准
	if prev, loaded := c.cache.LoadOrStore(g, res); loaded {
		return prev.(*Result), nil
	}
	c.compiled.Inc()
	c.instructions.Add(int64(res.Instructions))
	c.compileTime.Add(res.CompileTime)

	c.log.Debug("method compiled",
		zap.String("method", res.Method),
		zap.Int("blocks", len(res.LIR.Blocks())),
		zap.Int("instructions", res.Instructions),
		zap.Bool("full_frame", res.FullFrame),
		zap.String("fingerprint", res.Fingerprint),
		zap.Duration("elapsed", res.CompileTime))
	return res, nil
}

// compile 执行流水线的每个阶段
func (c *Compiler) compile(g *graph.Graph) (*Result, error) {
	if err := graph.Verify(g); err != nil {
		return nil, attachMethod(err, g.Name)
	}

	backend := c.ctx.NewBackend()
	integ := c.ctx.NewIntegration(backend)
	fm := c.ctx.NewFrameMap(backend)
	l, err := lower.NewGenerator(g, backend, integ, fm, c.ctx.LowerOptions()).Lower()
	if err != nil {
		return nil, attachMethod(err, g.Name)
	}
	if err := integ.BeforeRegisterAllocation(l); err != nil {
		return nil, attachMethod(err, g.Name)
	}
	if err := l.Verify(); err != nil {
		return nil, attachMethod(err, g.Name)
	}

	fp, err := lir.Fingerprint(l)
	if err != nil {
		return nil, errors.Internal("fingerprint of %s", g.Name).Wrap(err)
	}
	count := 0
	for _, b := range l.Blocks() {
		count += b.Len()
	}
	return &Result{
		Method:       g.Name,
		LIR:          l,
		FrameMap:     l.FrameMap(),
		FullFrame:    l.FullFrame,
		Fingerprint:  fp,
		Instructions: count,
	}, nil
}

// attachMethod 为组合错误中的每个 CompileError 补上方法名
func attachMethod(err error, method string) error {
	for _, e := range multierr.Errors(err) {
		if ce, ok := errors.As(e); ok {
			ce.WithMethod(method)
		}
	}
	return err
}

func (c *Compiler) logFailure(g *graph.Graph, err error) {
	fields := []zap.Field{zap.String("method", g.Name), zap.Error(err)}
	if ce, ok := errors.As(err); ok {
		fields = append(fields, zap.String("code", ce.Code), zap.Stringer("kind", ce.Kind))
		if ce.NodeID >= 0 {
			fields = append(fields, zap.Int("node", ce.NodeID), zap.String("op", ce.NodeOp))
		}
	}
	c.log.Warn("compilation failed", fields...)
}

// CompileAll 用 workers 个 goroutine 编译一批方法
// 结果与输入一一对应，失败的方法为 nil；返回值组合了本批的所有错误
func (c *Compiler) CompileAll(graphs []*graph.Graph, workers int) ([]*Result, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(graphs) {
		workers = len(graphs)
	}

	results := make([]*Result, len(graphs))
	errs := make([]error, len(graphs))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i], errs[i] = c.Compile(graphs[i])
			}
		}()
	}
	for i := range graphs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results, multierr.Combine(errs...)
}

// ============================================================================
// 缓存与统计
// ============================================================================

// IsCompiled 检查方法图是否已编译
func (c *Compiler) IsCompiled(g *graph.Graph) bool {
	_, ok := c.cache.Load(g)
	return ok
}

// GetCompiled 获取已发布的编译结果
func (c *Compiler) GetCompiled(g *graph.Graph) *Result {
	if cached, ok := c.cache.Load(g); ok {
		return cached.(*Result)
	}
	return nil
}

// Invalidate 丢弃一个方法的编译结果（例如去优化之后）
func (c *Compiler) Invalidate(g *graph.Graph) {
	c.cache.Delete(g)
}

// Stats 获取统计快照
func (c *Compiler) Stats() Stats {
	return Stats{
		Compiled:     c.compiled.Load(),
		Failed:       c.failed.Load(),
		Instructions: c.instructions.Load(),
		CacheHits:    c.cacheHits.Load(),
		CacheMisses:  c.cacheMisses.Load(),
		CompileTime:  c.compileTime.Load(),
	}
}

// Reset 清空缓存、统计与错误记录
func (c *Compiler) Reset() {
	c.cache.Range(func(k, _ any) bool {
		c.cache.Delete(k)
		return true
	})
	c.compiled.Store(0)
	c.failed.Store(0)
	c.instructions.Store(0)
	c.cacheHits.Store(0)
	c.cacheMisses.Store(0)
	c.compileTime.Store(0)
	c.reporter.Clear()
}

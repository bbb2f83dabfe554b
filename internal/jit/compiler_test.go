// compiler_test.go - 编译驱动测试

package jit

import (
	"sync"
	"testing"

	"go.uber.org/multierr"
	"go.uber.org/zap/zaptest"

	"github.com/tangzhangming/novalir/internal/config"
	"github.com/tangzhangming/novalir/internal/errors"
	"github.com/tangzhangming/novalir/internal/graph"
	"github.com/tangzhangming/novalir/internal/hostrt"
	"github.com/tangzhangming/novalir/internal/meta"
)

func newCompiler(t *testing.T, features ...string) *Compiler {
	t.Helper()
	cfg := config.Default()
	cfg.Target.Arch = "amd64"
	cfg.Target.OS = "linux"
	cfg.Target.DetectFeatures = false
	cfg.Target.Features = features
	ctx, err := hostrt.NewContext(cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	return NewCompiler(ctx)
}

func testMethod(name string, ret meta.Kind, params ...meta.Kind) *meta.Method {
	return &meta.Method{Holder: "T", Name: name, Signature: meta.NewSignature(ret, params...), VTableIndex: -1}
}

// maxGraph max(a, b)：分支、合并与 phi
func maxGraph() *graph.Graph {
	b := graph.NewBuilder("max", testMethod("max", meta.Int, meta.Int, meta.Int))
	x, y := b.Param(0, meta.Int), b.Param(1, meta.Int)
	left, right, join := b.NewBlock(), b.NewBlock(), b.NewBlock()
	b.If(b.Compare(meta.LT, x, y, false), left, right, 0.5)

	m := b.Merge(join, false)
	b.SetBlock(left)
	b.End(m)
	b.SetBlock(right)
	b.End(m)

	b.SetBlock(join)
	b.Return(b.Phi(m, meta.Int, y, x))
	return b.Build()
}

func bitCountGraph() *graph.Graph {
	b := graph.NewBuilder("bits", testMethod("bits", meta.Int, meta.Int))
	b.Return(b.Intrinsic(graph.BitCount, b.Param(0, meta.Int)))
	return b.Build()
}

// ============================================================================
// 单个方法
// ============================================================================

func TestCompile(t *testing.T) {
	c := newCompiler(t)
	g := maxGraph()

	res, err := c.Compile(g)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if res.Method != "max" || !res.FullFrame || res.Fingerprint == "" {
		t.Errorf("unexpected result %+v", res)
	}
	if res.FrameMap != res.LIR.FrameMap() {
		t.Error("result must publish the LIR's frame map")
	}
	count := 0
	for _, b := range res.LIR.Blocks() {
		count += b.Len()
	}
	if res.Instructions != count {
		t.Errorf("instructions %d, counted %d", res.Instructions, count)
	}
	if dump, err := res.Dump(); err != nil || len(dump) == 0 {
		t.Errorf("Dump: %v", err)
	}

	again, err := c.Compile(g)
	if err != nil || again != res {
		t.Error("second compile should return the cached result")
	}
	s := c.Stats()
	if s.Compiled != 1 || s.CacheHits != 1 || s.CacheMisses != 1 || s.Instructions != int64(count) {
		t.Errorf("stats %+v", s)
	}
	if !c.IsCompiled(g) || c.GetCompiled(g) != res {
		t.Error("result not published")
	}

	c.Invalidate(g)
	if c.IsCompiled(g) {
		t.Error("Invalidate should drop the result")
	}
}

func TestCompileFailures(t *testing.T) {
	malformed := func() *graph.Graph {
		b := graph.NewBuilder("early", testMethod("early", meta.Int, meta.Int))
		a := b.Param(0, meta.Int)
		add := b.Arith(graph.OpAdd, a, a)
		add.Inputs[1] = b.ConstInt(3)
		b.Return(add)
		return b.Build()
	}
	tests := []struct {
		name   string
		graph  *graph.Graph
		code   string
		target error
	}{
		{"missing cpu feature", bitCountGraph(), errors.L0101, errors.ErrUnsupported},
		{"use before definition", malformed(), errors.L0204, errors.ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCompiler(t)
			res, err := c.Compile(tt.graph)
			if res != nil || !errors.Is(err, tt.target) {
				t.Fatalf("expected %v, got %v", tt.target, err)
			}
			found := false
			for _, e := range multierr.Errors(err) {
				ce, ok := errors.As(e)
				if !ok || ce.Method != tt.graph.Name {
					t.Errorf("error without method context: %v", e)
					continue
				}
				found = found || ce.Code == tt.code
			}
			if !found {
				t.Errorf("expected %s among %v", tt.code, err)
			}
			if c.IsCompiled(tt.graph) {
				t.Error("failed methods must not be cached")
			}
			if s := c.Stats(); s.Failed != 1 || s.Compiled != 0 {
				t.Errorf("stats %+v", s)
			}
			if c.Reporter().ErrorCount() == 0 {
				t.Error("failure not reported")
			}
		})
	}
}

func TestCompileNil(t *testing.T) {
	if _, err := newCompiler(t).Compile(nil); !errors.Is(err, errors.ErrInternal) {
		t.Errorf("expected internal error, got %v", err)
	}
}

// ============================================================================
// 并行编译
// ============================================================================

// TestCompileAllDeterministic 并行编译相同形状的图得到相同的指纹
func TestCompileAllDeterministic(t *testing.T) {
	c := newCompiler(t)
	ref, err := c.Compile(maxGraph())
	if err != nil {
		t.Fatal(err)
	}

	graphs := make([]*graph.Graph, 32)
	for i := range graphs {
		graphs[i] = maxGraph()
	}
	results, err := c.CompileAll(graphs, 8)
	if err != nil {
		t.Fatalf("CompileAll: %v", err)
	}
	for i, r := range results {
		if r == nil || r.Fingerprint != ref.Fingerprint {
			t.Errorf("graph %d: fingerprint differs", i)
		}
	}
	if s := c.Stats(); s.Compiled != 33 || s.Failed != 0 {
		t.Errorf("stats %+v", s)
	}
}

func TestCompileAllPartialFailure(t *testing.T) {
	c := newCompiler(t)
	graphs := []*graph.Graph{maxGraph(), bitCountGraph(), maxGraph(), bitCountGraph()}
	results, err := c.CompileAll(graphs, 0)

	if n := len(multierr.Errors(err)); n != 2 {
		t.Fatalf("expected 2 errors, got %d: %v", n, err)
	}
	for i, r := range results {
		if (r == nil) != (i%2 == 1) {
			t.Errorf("result %d = %v", i, r)
		}
	}
	if c.Reporter().ErrorCount() != 2 {
		t.Errorf("reporter holds %d errors", c.Reporter().ErrorCount())
	}

	c.Reset()
	if s := c.Stats(); s != (Stats{}) || c.Reporter().HasErrors() || c.IsCompiled(graphs[0]) {
		t.Errorf("Reset left state behind: %+v", s)
	}
}

// TestConcurrentSameGraph 同一个图被并发编译时只发布一个结果
func TestConcurrentSameGraph(t *testing.T) {
	c := newCompiler(t)
	g := maxGraph()

	var wg sync.WaitGroup
	out := make([]*Result, 8)
	for i := range out {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out[i], _ = c.Compile(g)
		}(i)
	}
	wg.Wait()
	for i := range out {
		if out[i] == nil || out[i] != out[0] {
			t.Fatalf("goroutine %d saw a different result", i)
		}
	}
	if s := c.Stats(); s.Compiled != 1 {
		t.Errorf("published %d results", s.Compiled)
	}
}

// integration_test.go - 宿主集成测试（x86-64 后端）

package hostrt

import (
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/tangzhangming/novalir/internal/arch/amd64"
	"github.com/tangzhangming/novalir/internal/config"
	"github.com/tangzhangming/novalir/internal/errors"
	"github.com/tangzhangming/novalir/internal/graph"
	"github.com/tangzhangming/novalir/internal/lir"
	"github.com/tangzhangming/novalir/internal/lower"
	"github.com/tangzhangming/novalir/internal/meta"
)

func newTestContext(t *testing.T, opts ...Option) *Context {
	t.Helper()
	cfg := config.Default()
	cfg.Target.Arch = "amd64"
	cfg.Target.OS = "linux"
	cfg.Target.DetectFeatures = false
	cfg.Target.Features = []string{"popcnt"}
	ctx, err := NewContext(cfg, zaptest.NewLogger(t), opts...)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	return ctx
}

func testMethod(ret meta.Kind, params ...meta.Kind) *meta.Method {
	return &meta.Method{Holder: "T", Name: "m", Signature: meta.NewSignature(ret, params...), VTableIndex: -1}
}

// compile 降级并最终化，返回 LIR 与本次的宿主集成
func compile(t *testing.T, ctx *Context, g *graph.Graph) (*lir.LIR, *Integration) {
	t.Helper()
	backend := ctx.NewBackend()
	integ := ctx.NewIntegration(backend)
	gen := lower.NewGenerator(g, backend, integ, ctx.NewFrameMap(backend), ctx.LowerOptions())
	l, err := gen.Lower()
	if err != nil {
		t.Fatalf("lower %s: %v", g.Name, err)
	}
	if err := integ.BeforeRegisterAllocation(l); err != nil {
		t.Fatalf("finalize %s: %v", g.Name, err)
	}
	if err := l.Verify(); err != nil {
		t.Fatalf("verify %s: %v\n%s", g.Name, err, l)
	}
	return l, integ
}

func findOps(l *lir.LIR, name string) []lir.Instruction {
	var out []lir.Instruction
	for _, b := range l.Blocks() {
		for _, inst := range b.Instructions() {
			if inst.Opcode() == name {
				out = append(out, inst)
			}
		}
	}
	return out
}

func isReg(v lir.Value, r *lir.Register) bool {
	rv, ok := v.(*lir.RegisterValue)
	return ok && rv.Reg == r
}

func simpleState(m *meta.Method, locals ...*graph.Node) *graph.FrameState {
	return &graph.FrameState{Method: m, BCI: 1, Locals: locals}
}

// ============================================================================
// 序言与尾声
// ============================================================================

// TestPrologueAndEpilogue 无调试信息：帧指针保存到变量，溢出槽被释放
func TestPrologueAndEpilogue(t *testing.T) {
	ctx := newTestContext(t)
	m := testMethod(meta.Int, meta.Int, meta.Int)
	b := graph.NewBuilder("add", m)
	x, y := b.Param(0, meta.Int), b.Param(1, meta.Int)
	b.Return(b.Arith(graph.OpAdd, x, y))

	l, integ := compile(t, ctx, b.Build())

	entry := l.Block(0).Instructions()
	params, ok := entry[1].(*lir.ParametersOp)
	if !ok {
		t.Fatalf("second instruction should define parameters, got %s", entry[1])
	}
	defs := params.Params()
	if len(defs) != 3 || !isReg(defs[0], amd64.RSI) || !isReg(defs[1], amd64.RDX) || !isReg(defs[2], amd64.RBP) {
		t.Errorf("unexpected parameter locations %v", defs)
	}
	save, ok := entry[2].(*amd64.MoveOp)
	if !ok {
		t.Fatalf("placeholder should be replaced by a move, got %s", entry[2])
	}
	if !lir.IsVariable(save.Result()) || !isReg(save.Uses()[0].Value, amd64.RBP) {
		t.Errorf("frame pointer should be saved to a variable: %s", save)
	}

	rets := findOps(l, "RETURN")
	if len(rets) != 1 {
		t.Fatalf("expected one return, got %d", len(rets))
	}
	ret := rets[0].(*amd64.ReturnOp)
	if ret.SavedFramePointer() != save.Result() {
		t.Errorf("return restores %v, prologue saved %v", ret.SavedFramePointer(), save.Result())
	}
	if ret.Stub {
		t.Error("compiled method return must not be a stub return")
	}
	if l.DeoptRescueSlot != nil {
		t.Error("no rescue slot without debug info")
	}
	if l.HasArgInCallerFrame {
		t.Error("two register arguments must not use the caller frame")
	}
	if !l.FullFrame {
		t.Error("compiled methods need a full frame")
	}
	if integ.Pending() != 0 {
		t.Errorf("pending epilogues after finalize: %d", integ.Pending())
	}
}

// TestDebugInfoKeepsSlot 有调试信息时帧指针保存在固定栈槽，并分配去优化救援槽
func TestDebugInfoKeepsSlot(t *testing.T) {
	ctx := newTestContext(t)
	m := testMethod(meta.Long, meta.Long)
	b := graph.NewBuilder("poll", m)
	p := b.Param(0, meta.Long)
	b.Safepoint(simpleState(m, p))
	b.Return(p)

	l, _ := compile(t, ctx, b.Build())

	save, ok := l.Block(0).Instructions()[2].(*amd64.MoveOp)
	if !ok {
		t.Fatalf("placeholder should be replaced by a move, got %s", l.Block(0).Instructions()[2])
	}
	slot, ok := save.Result().(*lir.StackSlot)
	if !ok {
		t.Fatalf("frame pointer should be saved to a stack slot, got %s", save)
	}
	if l.DeoptRescueSlot == nil {
		t.Fatal("debug info requires a deopt rescue slot")
	}
	if l.DeoptRescueSlot.Offset == slot.Offset {
		t.Error("rescue slot must not alias the frame pointer slot")
	}
	ret := findOps(l, "RETURN")[0].(*amd64.ReturnOp)
	if ret.SavedFramePointer() != lir.Value(slot) {
		t.Errorf("return restores %v, want %v", ret.SavedFramePointer(), slot)
	}
	if len(findOps(l, "SAFEPOINT_POLL")) != 1 {
		t.Error("missing safepoint poll")
	}
}

// TestStubFrame 运行时桩使用桩约定和最小帧
func TestStubFrame(t *testing.T) {
	ctx := newTestContext(t)
	m := testMethod(meta.Long, meta.Long)
	m.Stub = true
	b := graph.NewBuilder("stub", m)
	b.Return(b.Param(0, meta.Long))

	l, _ := compile(t, ctx, b.Build())
	if l.FullFrame {
		t.Error("stubs use a minimal frame")
	}
	ret := findOps(l, "RETURN")[0].(*amd64.ReturnOp)
	if !ret.Stub {
		t.Error("stub return expected")
	}
	params := l.Block(0).Instructions()[1].(*lir.ParametersOp).Params()
	if !isReg(params[0], amd64.RSI) {
		t.Errorf("stub argument 0 in %s", params[0])
	}
}

// TestStackArguments 超出参数寄存器的入参位于调用者帧
func TestStackArguments(t *testing.T) {
	ctx := newTestContext(t)
	kinds := make([]meta.Kind, 8)
	for i := range kinds {
		kinds[i] = meta.Long
	}
	m := testMethod(meta.Long, kinds...)
	b := graph.NewBuilder("many", m)
	b.Return(b.Param(7, meta.Long))

	l, _ := compile(t, ctx, b.Build())
	if !l.HasArgInCallerFrame {
		t.Error("stack arguments must be recorded")
	}
	params := l.Block(0).Instructions()[1].(*lir.ParametersOp).Params()
	slot, ok := params[7].(*lir.StackSlot)
	if !ok || !slot.InCallerFrame() {
		t.Errorf("argument 7 should be in the caller frame, got %s", params[7])
	}
}

// TestUnwind 异常对象经 rax 传给展开例程
func TestUnwind(t *testing.T) {
	ctx := newTestContext(t)
	m := testMethod(meta.Void, meta.Object)
	b := graph.NewBuilder("throw", m)
	b.Unwind(b.Param(0, meta.Object))

	l, _ := compile(t, ctx, b.Build())
	unwinds := findOps(l, "UNWIND")
	if len(unwinds) != 1 {
		t.Fatalf("expected one unwind, got %d", len(unwinds))
	}
	u := unwinds[0].(*amd64.UnwindOp)
	if !isReg(u.Uses()[0].Value, amd64.RAX) {
		t.Errorf("exception should be in rax, got %s", u.Uses()[0].Value)
	}
	if u.Handler != ctx.Config().Stubs.UnwindHandler {
		t.Errorf("handler %#x", u.Handler)
	}
	if u.SavedFramePointer() == nil {
		t.Error("unwind was not patched")
	}
}

// TestFinalizeErrors 最终化只能进行一次，且必须有序言
func TestFinalizeErrors(t *testing.T) {
	ctx := newTestContext(t)
	m := testMethod(meta.Void)
	b := graph.NewBuilder("void", m)
	b.Return(nil)
	l, integ := compile(t, ctx, b.Build())

	err := integ.BeforeRegisterAllocation(l)
	ce, ok := errors.As(err)
	if !ok || ce.Code != errors.L0402 {
		t.Fatalf("second finalize should fail with L0402, got %v", err)
	}
	if !errors.Is(err, errors.ErrInternal) || !errors.IsFatal(err) {
		t.Errorf("finalize errors are fatal internal errors: %v", err)
	}

	backend := ctx.NewBackend()
	fresh := ctx.NewIntegration(backend)
	empty := lir.New("empty", 1, ctx.NewFrameMap(backend))
	if ce, ok := errors.As(fresh.BeforeRegisterAllocation(empty)); !ok || ce.Code != errors.L0402 {
		t.Errorf("finalize without prologue should fail with L0402")
	}
}

// ============================================================================
// 运行时调用
// ============================================================================

// TestMonitorStubs 对象与锁槽地址按桩约定放入 rsi/rdx
func TestMonitorStubs(t *testing.T) {
	ctx := newTestContext(t)
	m := testMethod(meta.Void, meta.Object)
	b := graph.NewBuilder("sync", m)
	obj := b.Param(0, meta.Object)
	b.MonitorEnter(obj, 0, simpleState(m, obj))
	b.MonitorExit(obj, 0, simpleState(m, obj))
	b.Return(nil)

	l, _ := compile(t, ctx, b.Build())
	calls := findOps(l, "FOREIGN_CALL")
	if len(calls) != 2 {
		t.Fatalf("expected two stub calls, got %d", len(calls))
	}
	for i, want := range []string{"monitorenter", "monitorexit"} {
		c := calls[i].(*amd64.ForeignCallOp)
		if c.Linkage.Name != want {
			t.Errorf("call %d targets %s, want %s", i, c.Linkage.Name, want)
		}
		uses := c.Uses()
		if len(uses) != 2 || !isReg(uses[0].Value, amd64.RSI) || !isReg(uses[1].Value, amd64.RDX) {
			t.Errorf("%s arguments %v", want, uses)
		}
		if c.State() == nil {
			t.Errorf("%s needs a frame state", want)
		}
	}
	if len(findOps(l, "LEA")) != 2 {
		t.Error("each monitor operation takes the lock slot address")
	}
}

// TestIndirectInvoke 被调用者身份在 rbx，目标地址在 r10
func TestIndirectInvoke(t *testing.T) {
	ctx := newTestContext(t)
	m := testMethod(meta.Int, meta.Long, meta.Long, meta.Int)
	callee := &meta.Method{Holder: "T", Name: "callee", Signature: meta.NewSignature(meta.Int, meta.Int), VTableIndex: -1}
	b := graph.NewBuilder("indirect", m)
	id, addr, arg := b.Param(0, meta.Long), b.Param(1, meta.Long), b.Param(2, meta.Int)
	res := b.IndirectInvoke(callee, simpleState(m, id, addr, arg), id, addr, arg)
	b.Return(res)

	l, _ := compile(t, ctx, b.Build())
	calls := findOps(l, "INDIRECT_CALL")
	if len(calls) != 1 {
		t.Fatalf("expected one indirect call, got %d", len(calls))
	}
	c := calls[0].(*amd64.CallOp)
	if c.Target.Kind != lower.CallIndirect {
		t.Errorf("call kind %v", c.Target.Kind)
	}
	if !isReg(c.Target.Identity, amd64.RBX) || !isReg(c.Target.TargetReg, amd64.R10) {
		t.Errorf("identity in %s, target in %s", c.Target.Identity, c.Target.TargetReg)
	}
	if !isReg(c.Result(), amd64.RAX) {
		t.Errorf("result in %s", c.Result())
	}
	for _, tmp := range c.Temps() {
		if isReg(tmp.Value, amd64.RAX) {
			t.Error("result register must not be a temp")
		}
	}
}

// TestVirtualInvoke 分派调用把方法元数据常量放入 rbx
func TestVirtualInvoke(t *testing.T) {
	ctx := newTestContext(t)
	m := testMethod(meta.Void, meta.Object)
	callee := &meta.Method{Holder: "T", Name: "run", Signature: meta.NewSignature(meta.Void, meta.Object),
		Handle: 0x55, VTableIndex: 3}
	b := graph.NewBuilder("virtual", m)
	recv := b.Param(0, meta.Object)
	b.Invoke(meta.InvokeVirtual, callee, simpleState(m, recv), recv)
	b.Return(nil)

	l, _ := compile(t, ctx, b.Build())
	calls := findOps(l, "DISPATCH_CALL")
	if len(calls) != 1 {
		t.Fatalf("expected one dispatch call, got %d", len(calls))
	}
	c := calls[0].(*amd64.CallOp)
	if c.Target.Method != 0x55 || c.Target.VTableIndex != 3 {
		t.Errorf("unexpected target %+v", c.Target)
	}

	found := false
	for _, inst := range findOps(l, "MOV_TO_REG") {
		if !isReg(inst.Defs()[0].Value, amd64.RBX) {
			continue
		}
		if cst, ok := lir.AsConstant(inst.Uses()[0].Value); ok && cst.Tag() == meta.TagMetadata && cst.Handle() == 0x55 {
			found = true
		}
	}
	if !found {
		t.Error("method metadata constant should be moved into rbx")
	}
}

// TestDeoptimize 动作与原因编码为 int 常量
func TestDeoptimize(t *testing.T) {
	ctx := newTestContext(t)
	m := testMethod(meta.Void, meta.Int)
	b := graph.NewBuilder("deopt", m)
	p := b.Param(0, meta.Int)
	b.Deoptimize(meta.ActionInvalidateRecompile, meta.ReasonUnreached, simpleState(m, p))

	l, _ := compile(t, ctx, b.Build())
	deopts := findOps(l, "DEOPT")
	if len(deopts) != 1 {
		t.Fatalf("expected one deopt, got %d", len(deopts))
	}
	d := deopts[0].(*amd64.DeoptimizeOp)
	c, ok := lir.AsConstant(d.Uses()[0].Value)
	if !ok || c.AsInt() != meta.EncodeDeopt(meta.ActionInvalidateRecompile, meta.ReasonUnreached) {
		t.Errorf("deopt code %s", d.Uses()[0].Value)
	}
	if d.Handler != ctx.Config().Stubs.DeoptHandler {
		t.Errorf("handler %#x", d.Handler)
	}
}

// TestForeignCallLinkage 已登记名称优先，未知名称必须带地址
func TestForeignCallLinkage(t *testing.T) {
	registered := &lower.ForeignCallLinkage{Name: "arraycopy", Address: 0x3000,
		Signature: meta.NewSignature(meta.Void, meta.Object, meta.Object), Convention: lir.RuntimeStub}
	ctx := newTestContext(t, WithForeignCall(registered))
	integ := ctx.NewIntegration(ctx.NewBackend())

	tests := []struct {
		name    string
		info    *graph.ForeignCallInfo
		want    *lower.ForeignCallLinkage
		wantErr bool
	}{
		{"registered", &graph.ForeignCallInfo{Name: "arraycopy"}, registered, false},
		{"monitor stub", &graph.ForeignCallInfo{Name: "monitorenter"}, ctx.monitorEnter, false},
		{"raw address", &graph.ForeignCallInfo{Name: "sin", Address: 0x4000}, nil, false},
		{"unknown", &graph.ForeignCallInfo{Name: "nope"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := integ.ForeignCallLinkage(tt.info)
			if tt.wantErr {
				if !errors.Is(err, errors.ErrUnsupported) {
					t.Fatalf("expected unsupported error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.want != nil && got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
			if tt.want == nil && (got.Address != tt.info.Address || got.Convention != lir.NativeCall) {
				t.Errorf("raw address linkage %+v", got)
			}
		})
	}
}

// TestRegisterClass 类镜像按布局偏移登记
func TestRegisterClass(t *testing.T) {
	ctx := newTestContext(t)
	mirror, component := new(int), new(string)
	ctx.RegisterClass(9, mirror, component)

	layout := ctx.Config().Layout
	c, ok := ctx.Registry().Field(9, layout.ClassMirrorOffset)
	if !ok || c.Object() != any(mirror) {
		t.Errorf("class mirror = %v, %v", c, ok)
	}
	c, ok = ctx.Registry().Field(9, layout.ArrayComponentMirrorOffset)
	if !ok || c.Object() != any(component) {
		t.Errorf("component mirror = %v, %v", c, ok)
	}
	if !ctx.Registry().Known(9) || ctx.Registry().Known(10) {
		t.Error("Known reports registered handles only")
	}
}

// TestMemoryAccessReadsRegistry 内存读取器通过注册表读取类镜像
func TestMemoryAccessReadsRegistry(t *testing.T) {
	ctx := newTestContext(t)
	mirror, component := new(int), new(string)
	ctx.RegisterClass(9, mirror, component)

	layout := ctx.Config().Layout
	mem := ctx.MemoryAccess()
	h := meta.ForMetadata(9, false)

	c, err := mem.ReadObject(h, layout.ClassMirrorOffset)
	if err != nil || c.Object() != any(mirror) {
		t.Errorf("class mirror = %v, %v", c, err)
	}
	c, err = mem.ReadObject(h, layout.ArrayComponentMirrorOffset)
	if err != nil || c.Object() != any(component) {
		t.Errorf("component mirror = %v, %v", c, err)
	}

	unknown := layout.ClassMirrorOffset + layout.ArrayComponentMirrorOffset + 8
	if _, err := mem.ReadObject(h, unknown); !errors.Is(err, errors.ErrUnavailable) {
		t.Errorf("unregistered offset should be unavailable, got %v", err)
	}
	if _, err := mem.ReadObject(meta.ForMetadata(10, false), layout.ClassMirrorOffset); !errors.Is(err, errors.ErrUnavailable) {
		t.Errorf("unknown class should be unavailable, got %v", err)
	}
}

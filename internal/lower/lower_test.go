// lower_test.go - 降级引擎测试（x86-64 后端 + 宿主集成）

package lower_test

import (
	"math"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/tangzhangming/novalir/internal/arch/amd64"
	"github.com/tangzhangming/novalir/internal/config"
	"github.com/tangzhangming/novalir/internal/errors"
	"github.com/tangzhangming/novalir/internal/graph"
	"github.com/tangzhangming/novalir/internal/hostrt"
	"github.com/tangzhangming/novalir/internal/lir"
	"github.com/tangzhangming/novalir/internal/lower"
	"github.com/tangzhangming/novalir/internal/meta"
)

// ============================================================================
// 测试工具
// ============================================================================

func newContext(t *testing.T, mp bool, features ...string) *hostrt.Context {
	t.Helper()
	cfg := config.Default()
	cfg.Target.Arch = "amd64"
	cfg.Target.OS = "linux"
	cfg.Target.DetectFeatures = false
	cfg.Target.Features = features
	cfg.Target.MP = mp
	ctx, err := hostrt.NewContext(cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	return ctx
}

func testMethod(ret meta.Kind, params ...meta.Kind) *meta.Method {
	return &meta.Method{Holder: "T", Name: "m", Signature: meta.NewSignature(ret, params...), VTableIndex: -1}
}

// lowerGraph 校验、降级、最终化并自检；wrap 可以替换宿主集成
func lowerGraph(ctx *hostrt.Context, g *graph.Graph, wrap func(*hostrt.Integration) lower.Host) (*lir.LIR, error) {
	if err := graph.Verify(g); err != nil {
		return nil, err
	}
	backend := ctx.NewBackend()
	integ := ctx.NewIntegration(backend)
	var host lower.Host = integ
	if wrap != nil {
		host = wrap(integ)
	}
	l, err := lower.NewGenerator(g, backend, host, ctx.NewFrameMap(backend), ctx.LowerOptions()).Lower()
	if err != nil {
		return nil, err
	}
	if err := host.BeforeRegisterAllocation(l); err != nil {
		return nil, err
	}
	return l, l.Verify()
}

func mustLower(t *testing.T, ctx *hostrt.Context, g *graph.Graph) *lir.LIR {
	t.Helper()
	l, err := lowerGraph(ctx, g, nil)
	if err != nil {
		t.Fatalf("lower %s: %v", g.Name, err)
	}
	return l
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

// buildSwitch keySuccs 最后一项是默认后继
func buildSwitch(keys []int64, keySuccs []int, succCount int, probs []float64) *graph.Graph {
	b := graph.NewBuilder("switch", testMethod(meta.Int, meta.Int))
	key := b.Param(0, meta.Int)
	succs := make([]*graph.Block, succCount)
	for i := range succs {
		succs[i] = b.NewBlock()
	}
	b.Switch(key, keys, succs, keySuccs, probs)
	for i, s := range succs {
		b.SetBlock(s)
		b.Return(b.ConstInt(int32(i)))
	}
	return b.Build()
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// ============================================================================
// 分派表
// ============================================================================

// TestDispatchCoversEveryOp 每个节点标签都有降级例程
func TestDispatchCoversEveryOp(t *testing.T) {
	if lower.Supports(graph.OpInvalid) {
		t.Error("OpInvalid must not be lowerable")
	}
	for op := graph.OpInvalid + 1; int(op) < graph.NumOps; op++ {
		if !lower.Supports(op) {
			t.Errorf("no lowering for %s", op)
		}
	}
}

// ============================================================================
// 多路分支
// ============================================================================

// TestSelectSwitchStrategy 策略只取决于键集合与阈值
func TestSelectSwitchStrategy(t *testing.T) {
	h := lower.DefaultSwitchHeuristics()
	tests := []struct {
		name string
		keys []int64
		want lower.SwitchStrategy
	}{
		{"no keys", nil, lower.SwitchDefaultOnly},
		{"dense", []int64{1, 2, 3, 4}, lower.SwitchTable},
		{"dense with holes", []int64{0, 1, 3, 4, 6, 7}, lower.SwitchTable},
		{"few keys in one run", []int64{5, 6, 7}, lower.SwitchRanges},
		{"clustered", []int64{1, 2, 3, 10, 11, 12, 20, 21, 22}, lower.SwitchRanges},
		{"sparse", []int64{0, 10, 20, 30}, lower.SwitchSequential},
		{"extreme keys", []int64{math.MinInt64, -1, 0, math.MaxInt64}, lower.SwitchSequential},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := lower.SelectSwitchStrategy(tt.keys, h); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}

	// 阈值可调
	strict := h
	strict.MinTableKeys = 10
	if got := lower.SelectSwitchStrategy([]int64{1, 2, 3, 4}, strict); got != lower.SwitchRanges {
		t.Errorf("raised table threshold should fall back to ranges, got %s", got)
	}
}

// TestSwitchLowering 每种策略生成对应的指令形状
func TestSwitchLowering(t *testing.T) {
	ctx := newContext(t, true)

	t.Run("default only", func(t *testing.T) {
		l := mustLower(t, ctx, buildSwitch(nil, []int{0}, 1, nil))
		entry := l.Block(0).Instructions()
		if _, ok := entry[len(entry)-1].(*lir.JumpOp); !ok {
			t.Errorf("switch without keys should jump to the default, got %s", entry[len(entry)-1])
		}
	})

	t.Run("table", func(t *testing.T) {
		l := mustLower(t, ctx, buildSwitch([]int64{1, 2, 4, 5}, identity(5), 5, nil))
		ops := findOps(l, "TABLE_SWITCH")
		if len(ops) != 1 {
			t.Fatalf("expected a table switch, got %d", len(ops))
		}
		ts := ops[0].(*amd64.TableSwitchOp)
		if ts.LowKey != 1 || len(ts.Table) != 5 {
			t.Errorf("low=%d entries=%d", ts.LowKey, len(ts.Table))
		}
		// 键 3 是空洞，落到默认分支
		if ts.Table[2] != ts.Default {
			t.Errorf("hole should map to the default target")
		}
	})

	t.Run("table with 64-bit keys", func(t *testing.T) {
		low := int64(1) << 40
		b := graph.NewBuilder("wide", testMethod(meta.Int, meta.Long))
		key := b.Param(0, meta.Long)
		succs := []*graph.Block{b.NewBlock(), b.NewBlock(), b.NewBlock()}
		b.Switch(key, []int64{low, low + 1, low + 2, low + 3}, succs, []int{0, 1, 0, 1, 2}, nil)
		for i, s := range succs {
			b.SetBlock(s)
			b.Return(b.ConstInt(int32(i)))
		}
		l := mustLower(t, ctx, b.Build())

		ops := findOps(l, "TABLE_SWITCH")
		if len(ops) != 1 {
			t.Fatalf("expected a table switch, got %d", len(ops))
		}
		ts := ops[0].(*amd64.TableSwitchOp)
		if ts.LowKey != low || !ts.WideLowKey || len(ts.Table) != 4 {
			t.Errorf("low=%d wide=%v entries=%d", ts.LowKey, ts.WideLowKey, len(ts.Table))
		}
		if len(ts.Temps()) != 2 {
			t.Errorf("wide low key is loaded through the scratch temp, temps %v", ts.Temps())
		}
	})

	t.Run("ranges", func(t *testing.T) {
		keys := []int64{1, 2, 3, 10, 11, 12, 20, 21, 22}
		succs := []int{0, 0, 0, 1, 1, 1, 2, 2, 2, 3}
		l := mustLower(t, ctx, buildSwitch(keys, succs, 4, nil))
		ops := findOps(l, "RANGE_SWITCH")
		if len(ops) != 1 {
			t.Fatalf("expected a range switch, got %d", len(ops))
		}
		ranges := ops[0].(*amd64.RangeSwitchOp).Ranges
		if len(ranges) != 3 || ranges[1].Low != 10 || ranges[1].High != 12 {
			t.Errorf("unexpected ranges %+v", ranges)
		}
	})

	t.Run("sequential by probability", func(t *testing.T) {
		keys := []int64{0, 10, 20, 30}
		l := mustLower(t, ctx, buildSwitch(keys, identity(5), 5, []float64{0.1, 0.2, 0.6, 0.1}))
		ops := findOps(l, "SEQ_SWITCH")
		if len(ops) != 1 {
			t.Fatalf("expected a sequential switch, got %d", len(ops))
		}
		got := ops[0].(*amd64.SequentialSwitchOp).Keys
		want := []int64{20, 10, 0, 30}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("comparison order %v, want %v", got, want)
			}
		}
	})
}

// ============================================================================
// 操作数形状
// ============================================================================

// TestImmediateOperands 可内联常量直接作为操作数，其余先装入变量
func TestImmediateOperands(t *testing.T) {
	ctx := newContext(t, true)

	tests := []struct {
		name      string
		kind      meta.Kind
		opcode    string
		build     func(b *graph.Builder, p *graph.Node) *graph.Node
		wantConst bool
	}{
		{"int immediate", meta.Int, "IADD", func(b *graph.Builder, p *graph.Node) *graph.Node {
			return b.Arith(graph.OpAdd, p, b.ConstInt(5))
		}, true},
		{"constant on the left", meta.Int, "IADD", func(b *graph.Builder, p *graph.Node) *graph.Node {
			return b.Arith(graph.OpAdd, b.ConstInt(5), p)
		}, true},
		{"long imm32", meta.Long, "LADD", func(b *graph.Builder, p *graph.Node) *graph.Node {
			return b.Arith(graph.OpAdd, p, b.ConstLong(-7))
		}, true},
		{"long beyond imm32", meta.Long, "LADD", func(b *graph.Builder, p *graph.Node) *graph.Node {
			return b.Arith(graph.OpAdd, p, b.ConstLong(1<<40))
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := graph.NewBuilder(tt.name, testMethod(tt.kind, tt.kind))
			p := b.Param(0, tt.kind)
			b.Return(tt.build(b, p))
			l := mustLower(t, ctx, b.Build())

			ops := findOps(l, tt.opcode)
			if len(ops) != 1 {
				t.Fatalf("expected one %s, got %d", tt.opcode, len(ops))
			}
			uses := ops[0].Uses()
			if !lir.IsVariable(uses[0].Value) {
				t.Errorf("left operand should be a variable, got %s", uses[0].Value)
			}
			if got := lir.IsConstant(uses[1].Value); got != tt.wantConst {
				t.Errorf("right operand %s: constant=%v, want %v", uses[1].Value, got, tt.wantConst)
			}
		})
	}
}

// TestArithmeticResultKind 每种类型的加减乘只定义一个同类型变量
func TestArithmeticResultKind(t *testing.T) {
	ctx := newContext(t, true)
	prefixes := map[meta.Kind]string{meta.Int: "I", meta.Long: "L", meta.Float: "F", meta.Double: "D"}

	for _, kind := range []meta.Kind{meta.Int, meta.Long, meta.Float, meta.Double} {
		for _, op := range []graph.Op{graph.OpAdd, graph.OpSub, graph.OpMul} {
			name := prefixes[kind] + map[graph.Op]string{graph.OpAdd: "ADD", graph.OpSub: "SUB", graph.OpMul: "MUL"}[op]
			t.Run(name, func(t *testing.T) {
				b := graph.NewBuilder(name, testMethod(kind, kind, kind))
				b.Return(b.Arith(op, b.Param(0, kind), b.Param(1, kind)))
				l := mustLower(t, ctx, b.Build())

				ops := findOps(l, name)
				if len(ops) != 1 {
					t.Fatalf("expected one %s, got %d", name, len(ops))
				}
				defs := ops[0].Defs()
				if len(defs) != 1 || !lir.IsVariable(defs[0].Value) || defs[0].Value.Kind() != kind {
					t.Fatalf("%s should define one %s variable, got %v", name, kind, defs)
				}
				definers := 0
				for _, blk := range l.Blocks() {
					for _, inst := range blk.Instructions() {
						for _, d := range inst.Defs() {
							if d.Value == defs[0].Value {
								definers++
							}
						}
					}
				}
				if definers != 1 {
					t.Errorf("result defined by %d instructions", definers)
				}
			})
		}
	}
}

// stackMoveHost 在序言后发出一次栈到栈移动
type stackMoveHost struct {
	*hostrt.Integration
	dst, src *lir.StackSlot
}

func (h *stackMoveHost) EmitPrologue(tool lower.Tool, m *meta.Method) ([]lir.Value, error) {
	params, err := h.Integration.EmitPrologue(tool, m)
	if err != nil {
		return nil, err
	}
	fm := tool.FrameMap()
	if h.dst, err = fm.AllocateSpillSlot(meta.Long); err != nil {
		return nil, err
	}
	if h.src, err = fm.AllocateSpillSlot(meta.Long); err != nil {
		return nil, err
	}
	tool.EmitMoveTo(h.dst, h.src)
	return params, nil
}

// TestStackToStackMove 两端都在栈上时经过中间变量
func TestStackToStackMove(t *testing.T) {
	ctx := newContext(t, true)
	b := graph.NewBuilder("spill", testMethod(meta.Void))
	b.Return(nil)

	var host *stackMoveHost
	l, err := lowerGraph(ctx, b.Build(), func(i *hostrt.Integration) lower.Host {
		host = &stackMoveHost{Integration: i}
		return host
	})
	if err != nil {
		t.Fatalf("lower: %v", err)
	}

	entry := l.Block(0).Instructions()
	for i, inst := range entry {
		if len(inst.Defs()) == 0 || inst.Defs()[0].Value != lir.Value(host.dst) {
			continue
		}
		tmp := inst.Uses()[0].Value
		if !lir.IsVariable(tmp) {
			t.Fatalf("store to %s reads %s directly", host.dst, tmp)
		}
		prev := entry[i-1]
		if prev.Defs()[0].Value != tmp || prev.Uses()[0].Value != lir.Value(host.src) {
			t.Errorf("temporary should be loaded from %s, got %s", host.src, prev)
		}
		return
	}
	t.Fatal("no move into the destination slot")
}

// TestOutgoingConstants 可存储的常量直接写入出参槽，其余先装入变量
func TestOutgoingConstants(t *testing.T) {
	ctx := newContext(t, true)
	params := make([]meta.Kind, 8)
	for i := range params {
		params[i] = meta.Long
	}
	callee := &meta.Method{Holder: "T", Name: "wide", Signature: meta.NewSignature(meta.Void, params...), VTableIndex: -1}

	m := testMethod(meta.Void, meta.Long)
	b := graph.NewBuilder("caller", m)
	p := b.Param(0, meta.Long)
	b.Invoke(meta.InvokeStatic, callee, &graph.FrameState{Method: m, BCI: 2}, p, p, p, p, p, p,
		b.ConstLong(7), b.ConstLong(1<<40))
	b.Return(nil)
	l := mustLower(t, ctx, b.Build())

	checked := 0
	for _, b := range l.Blocks() {
		for _, inst := range b.Instructions() {
			if len(inst.Defs()) == 0 {
				continue
			}
			slot, ok := inst.Defs()[0].Value.(*lir.StackSlot)
			if !ok || slot.Area != lir.AreaOutgoing {
				continue
			}
			src := inst.Uses()[0].Value
			switch slot.Offset {
			case 0:
				if c, ok := lir.AsConstant(src); !ok || c.AsLong() != 7 {
					t.Errorf("imm32 argument should be stored directly, got %s", src)
				}
			case 8:
				if !lir.IsVariable(src) {
					t.Errorf("wide constant should go through a variable, got %s", src)
				}
			}
			checked++
		}
	}
	if checked != 2 {
		t.Errorf("expected two outgoing stores, got %d", checked)
	}
	if l.FrameMap().OutgoingSize() < 16 {
		t.Errorf("outgoing area %d too small", l.FrameMap().OutgoingSize())
	}
}

// ============================================================================
// 逻辑节点与 Phi
// ============================================================================

// TestLogicMaterialization 只作条件的比较不产生值
func TestLogicMaterialization(t *testing.T) {
	ctx := newContext(t, true)

	b := graph.NewBuilder("value", testMethod(meta.Int, meta.Int, meta.Int))
	b.Return(b.Compare(meta.LT, b.Param(0, meta.Int), b.Param(1, meta.Int), false))
	l := mustLower(t, ctx, b.Build())
	if len(findOps(l, "CMOV")) != 1 || len(findOps(l, "CMP_BRANCH")) != 0 {
		t.Errorf("comparison used as a value should be materialized:\n%s", l)
	}

	l = mustLower(t, ctx, buildDiamond())
	if len(findOps(l, "CMOV")) != 0 || len(findOps(l, "CMP_BRANCH")) != 1 {
		t.Errorf("comparison used only by an if should become a branch:\n%s", l)
	}
}

// buildDiamond if (a < b) x = a else x = b; return x
func buildDiamond() *graph.Graph {
	b := graph.NewBuilder("diamond", testMethod(meta.Int, meta.Int, meta.Int))
	x, y := b.Param(0, meta.Int), b.Param(1, meta.Int)
	thenB, elseB, join := b.NewBlock(), b.NewBlock(), b.NewBlock()
	b.If(b.Compare(meta.LT, x, y, false), thenB, elseB, 0.5)

	merge := b.Merge(join, false)
	b.SetBlock(thenB)
	b.End(merge)
	b.SetBlock(elseB)
	b.End(merge)

	b.SetBlock(join)
	b.Return(b.Phi(merge, meta.Int, x, y))
	return b.Build()
}

// TestPhiMoves 每个前驱在跳转前把输入移入同一个 Phi 变量
func TestPhiMoves(t *testing.T) {
	l := mustLower(t, newContext(t, true), buildDiamond())

	var phiDefs []lir.Value
	for _, blk := range l.Blocks() {
		insts := blk.Instructions()
		last := insts[len(insts)-1]
		if _, ok := last.(*lir.JumpOp); !ok {
			continue
		}
		move := insts[len(insts)-2]
		if len(move.Defs()) != 1 {
			t.Fatalf("%s: expected a phi move before the jump, got %s", blk, move)
		}
		phiDefs = append(phiDefs, move.Defs()[0].Value)
	}
	if len(phiDefs) != 2 {
		t.Fatalf("expected two predecessors with phi moves, got %d", len(phiDefs))
	}
	if phiDefs[0] != phiDefs[1] || !lir.IsVariable(phiDefs[0]) {
		t.Errorf("both predecessors must write the same phi variable: %v", phiDefs)
	}
}

// ============================================================================
// 内存与异常
// ============================================================================

// TestMembarUniprocessor 单处理器配置下省略屏障
func TestMembarUniprocessor(t *testing.T) {
	build := func() *graph.Graph {
		b := graph.NewBuilder("fence", testMethod(meta.Void))
		b.Membar(meta.StoreLoad | meta.StoreStore)
		b.Return(nil)
		return b.Build()
	}
	if n := len(findOps(mustLower(t, newContext(t, true), build()), "MEMBAR")); n != 1 {
		t.Errorf("multiprocessor: %d barriers", n)
	}
	if n := len(findOps(mustLower(t, newContext(t, false), build()), "MEMBAR")); n != 0 {
		t.Errorf("uniprocessor: %d barriers", n)
	}
}

// TestImplicitExceptions 兼做空检查的访问与整数除法记录隐式异常点
func TestImplicitExceptions(t *testing.T) {
	m := testMethod(meta.Int, meta.Object, meta.Int)
	b := graph.NewBuilder("implicit", m)
	obj, d := b.Param(0, meta.Object), b.Param(1, meta.Int)
	state := &graph.FrameState{Method: m, BCI: 4, Locals: []*graph.Node{obj, d}}
	load := b.Load(meta.Int, obj, 12, true, state)
	b.Return(b.Div(graph.OpDiv, load, d, state))

	l := mustLower(t, newContext(t, true), b.Build())
	if len(l.ImplicitExceptions) != 2 {
		t.Fatalf("expected two implicit exception points, got %d", len(l.ImplicitExceptions))
	}
	for _, ie := range l.ImplicitExceptions {
		if ie.State == nil || ie.State.BCI != 4 {
			t.Errorf("%s: missing frame state", ie.Inst.Opcode())
		}
	}
}

// ============================================================================
// 错误
// ============================================================================

// TestUnsupportedIntrinsic 缺少硬件能力时报告出错节点
func TestUnsupportedIntrinsic(t *testing.T) {
	build := func() (*graph.Graph, *graph.Node) {
		b := graph.NewBuilder("bits", testMethod(meta.Int, meta.Int))
		n := b.Intrinsic(graph.BitCount, b.Param(0, meta.Int))
		b.Return(n)
		return b.Build(), n
	}

	g, n := build()
	_, err := lowerGraph(newContext(t, true), g, nil)
	ce, ok := errors.As(err)
	if !ok || ce.Code != errors.L0101 {
		t.Fatalf("expected L0101, got %v", err)
	}
	if ce.NodeID != n.ID || ce.NodeOp != "Intrinsic" || ce.Method != "bits" {
		t.Errorf("error context %+v", ce)
	}
	if !errors.Is(err, errors.ErrUnsupported) {
		t.Error("missing capability is an unsupported error")
	}

	g, _ = build()
	l := mustLower(t, newContext(t, true, "popcnt"), g)
	if len(findOps(l, "IPOPCNT")) != 1 {
		t.Errorf("popcnt should be used when available:\n%s", l)
	}
}

// TestMalformedParam 参数下标越界放弃编译
func TestMalformedParam(t *testing.T) {
	b := graph.NewBuilder("bad", testMethod(meta.Int, meta.Int))
	p := b.Param(3, meta.Int)
	b.Return(p)

	_, err := lowerGraph(newContext(t, true), b.Build(), nil)
	if !errors.Is(err, errors.ErrMalformed) {
		t.Fatalf("expected malformed error, got %v", err)
	}
	if ce, _ := errors.As(err); ce.NodeID != p.ID {
		t.Errorf("error should name node %d, got %d", p.ID, ce.NodeID)
	}
}

// TestDeterministicFingerprint 相同输入生成相同的 LIR
func TestDeterministicFingerprint(t *testing.T) {
	ctx := newContext(t, true)
	first, err := lir.Fingerprint(mustLower(t, ctx, buildDiamond()))
	if err != nil {
		t.Fatal(err)
	}
	second, err := lir.Fingerprint(mustLower(t, ctx, buildDiamond()))
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("fingerprints differ: %s vs %s", first, second)
	}

	other, err := lir.Fingerprint(mustLower(t, ctx, buildSwitch([]int64{1, 2, 3, 4}, identity(5), 5, nil)))
	if err != nil {
		t.Fatal(err)
	}
	if other == first {
		t.Error("different graphs should not share a fingerprint")
	}
}

// graph_test.go - 程序图构建与校验测试

package graph

import (
	"strings"
	"testing"

	"go.uber.org/multierr"

	"github.com/tangzhangming/novalir/internal/errors"
	"github.com/tangzhangming/novalir/internal/meta"
)

func testMethod(ret meta.Kind, params ...meta.Kind) *meta.Method {
	return &meta.Method{Holder: "T", Name: "m", Signature: meta.NewSignature(ret, params...), VTableIndex: -1}
}

// buildDiamond 构建 if (a < b) x = a else x = b; return x
func buildDiamond(t *testing.T) (*Graph, *Node) {
	t.Helper()
	b := NewBuilder("diamond", testMethod(meta.Int, meta.Int, meta.Int))
	a := b.Param(0, meta.Int)
	c := b.Param(1, meta.Int)
	thenB, elseB, join := b.NewBlock(), b.NewBlock(), b.NewBlock()
	cmp := b.Compare(meta.LT, a, c, false)
	b.If(cmp, thenB, elseB, 0.5)

	merge := b.Merge(join, false)
	b.SetBlock(thenB)
	b.End(merge)
	b.SetBlock(elseB)
	b.End(merge)

	b.SetBlock(join)
	phi := b.Phi(merge, meta.Int, a, c)
	b.Return(phi)
	return b.Build(), phi
}

// TestBlockOrder 测试块按支配顺序排列
func TestBlockOrder(t *testing.T) {
	g, phi := buildDiamond(t)

	blocks := g.Blocks()
	if len(blocks) != 4 {
		t.Fatalf("expected 4 blocks, got %d", len(blocks))
	}
	if g.Entry().Dominator != nil {
		t.Error("entry block must not have a dominator")
	}
	for _, blk := range blocks[1:] {
		if blk.Dominator == nil || blk.Dominator.ID >= blk.ID {
			t.Errorf("%s appears before its dominator %v", blk, blk.Dominator)
		}
	}
	join := phi.Block()
	if join.Dominator != g.Entry() {
		t.Errorf("join should be dominated by entry, got %s", join.Dominator)
	}
	if nodes := join.Nodes(); nodes[0].Op != OpMerge || nodes[1] != phi {
		t.Errorf("merge and phi must lead the join block: %v", nodes)
	}
	if err := Verify(g); err != nil {
		t.Fatalf("unexpected verification error: %v", err)
	}
}

// TestUsages 测试使用关系
func TestUsages(t *testing.T) {
	g, phi := buildDiamond(t)
	merge := phi.Input(0)
	if len(merge.Phis()) != 1 || merge.Phis()[0] != phi {
		t.Errorf("merge should report its phi")
	}
	for _, end := range merge.Inputs {
		if end.Merge() != merge {
			t.Errorf("%s should flow into %s", end, merge)
		}
		if len(end.Usages()) != 1 {
			t.Errorf("%s has %d usages", end, len(end.Usages()))
		}
	}
	if len(g.Params()) != 2 {
		t.Errorf("expected 2 params, got %d", len(g.Params()))
	}
}

// TestLoopHeader 测试循环头识别
func TestLoopHeader(t *testing.T) {
	b := NewBuilder("loop", testMethod(meta.Int, meta.Int))
	n := b.Param(0, meta.Int)
	zero := b.ConstInt(0)
	one := b.ConstInt(1)
	header, body, exit := b.NewBlock(), b.NewBlock(), b.NewBlock()

	merge := b.Merge(header, true)
	b.End(merge)

	b.SetBlock(header)
	i := b.Phi(merge, meta.Int, zero)
	b.If(b.Compare(meta.LT, i, n, false), body, exit, 0.9)

	b.SetBlock(body)
	next := b.Arith(OpAdd, i, one)
	b.AddPhiInput(i, next)
	b.LoopEnd(merge)

	b.SetBlock(exit)
	b.Return(i)

	g := b.Build()
	if err := Verify(g); err != nil {
		t.Fatalf("unexpected verification error: %v", err)
	}
	if !merge.Block().LoopHeader {
		t.Error("header block should be flagged as loop header")
	}
	if exit.LoopHeader || body.LoopHeader {
		t.Error("only the header is a loop header")
	}
}

// TestVerifyViolations 测试校验报告的违规
func TestVerifyViolations(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *Builder)
		code  string
	}{
		{
			name: "dangling end",
			build: func(b *Builder) {
				next := b.NewBlock()
				b.Jump(next)
				b.Node(OpEnd, VoidStamp)
				b.SetBlock(next)
				b.Return(nil)
			},
			code: errors.L0201,
		},
		{
			name: "switch arity",
			build: func(b *Builder) {
				key := b.Param(0, meta.Int)
				t1, t2 := b.NewBlock(), b.NewBlock()
				b.Switch(key, []int64{1, 2}, []*Block{t1, t2}, []int{0, 1}, []float64{0.5, 0.5})
				b.SetBlock(t1)
				b.Return(nil)
				b.SetBlock(t2)
				b.Return(nil)
			},
			code: errors.L0202,
		},
		{
			name: "unsorted switch keys",
			build: func(b *Builder) {
				key := b.Param(0, meta.Int)
				t1, t2 := b.NewBlock(), b.NewBlock()
				b.Switch(key, []int64{5, 2}, []*Block{t1, t2}, []int{0, 0, 1}, []float64{0.25, 0.25, 0.5})
				b.SetBlock(t1)
				b.Return(nil)
				b.SetBlock(t2)
				b.Return(nil)
			},
			code: errors.L0202,
		},
		{
			name: "arity",
			build: func(b *Builder) {
				a := b.Param(0, meta.Int)
				b.Return(b.Node(OpAdd, StampFor(meta.Int), a))
			},
			code: errors.L0200,
		},
		{
			name: "missing terminator",
			build: func(b *Builder) {
				t1, t2 := b.NewBlock(), b.NewBlock()
				b.Jump(t1)
				b.Jump(t2)
				b.SetBlock(t1)
				b.Return(nil)
				b.SetBlock(t2)
				b.Return(nil)
			},
			code: errors.L0203,
		},
		{
			name: "use before definition",
			build: func(b *Builder) {
				a := b.Param(0, meta.Int)
				add := b.Arith(OpAdd, a, a)
				add.Inputs[1] = b.ConstInt(3)
				b.Return(add)
			},
			code: errors.L0204,
		},
		{
			name: "phi kind",
			build: func(b *Builder) {
				l := b.Param(0, meta.Long)
				i := b.Param(1, meta.Int)
				t1, t2, join := b.NewBlock(), b.NewBlock(), b.NewBlock()
				b.If(b.Compare(meta.EQ, i, i, false), t1, t2, 0.5)
				merge := b.Merge(join, false)
				b.SetBlock(t1)
				b.End(merge)
				b.SetBlock(t2)
				b.End(merge)
				b.SetBlock(join)
				b.Return(b.Phi(merge, meta.Int, i, l))
			},
			code: errors.L0206,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder(tt.name, testMethod(meta.Void, meta.Long, meta.Int))
			tt.build(b)
			err := Verify(b.Build())
			if err == nil {
				t.Fatal("expected verification error")
			}
			if !errors.Is(err, errors.ErrMalformed) {
				t.Errorf("expected malformed error, got %v", err)
			}
			found := false
			for _, e := range multierr.Errors(err) {
				if ce, ok := errors.As(e); ok && ce.Code == tt.code {
					found = true
					if ce.NodeID < 0 && ce.Block < 0 {
						t.Errorf("error lacks node or block context: %v", ce)
					}
				}
			}
			if !found {
				t.Errorf("expected %s among %v", tt.code, err)
			}
		})
	}
}

// TestVerifyCollectsAll 测试所有违规被一次性收集
func TestVerifyCollectsAll(t *testing.T) {
	b := NewBuilder("many", testMethod(meta.Void))
	next := b.NewBlock()
	b.Jump(next)
	b.Node(OpEnd, VoidStamp)
	b.SetBlock(next)
	b.Node(OpUnwind, VoidStamp)

	err := Verify(b.Build())
	if n := len(multierr.Errors(err)); n < 2 {
		t.Fatalf("expected at least 2 violations, got %d: %v", n, err)
	}
	if !strings.Contains(err.Error(), errors.L0201) || !strings.Contains(err.Error(), errors.L0200) {
		t.Errorf("missing codes in %q", err.Error())
	}
}

// TestSwitchInfo 测试 switch 载荷辅助方法
func TestSwitchInfo(t *testing.T) {
	s := &SwitchInfo{
		Keys:             []int64{1, 2, 3},
		KeySuccessors:    []int{0, 1, 0, 2},
		KeyProbabilities: []float64{0.1, 0.2, 0.3, 0.4},
	}
	if s.DefaultSuccessorIndex() != 2 {
		t.Errorf("default successor: got %d", s.DefaultSuccessorIndex())
	}
	p := s.SuccessorProbabilities(3)
	want := []float64{0.4, 0.2, 0.4}
	for i := range want {
		if d := p[i] - want[i]; d > 1e-9 || d < -1e-9 {
			t.Errorf("probability[%d] = %v, want %v", i, p[i], want[i])
		}
	}
}

// TestCategories 测试类别表覆盖所有标签
func TestCategories(t *testing.T) {
	tests := []struct {
		op   Op
		want Category
	}{
		{OpAdd, Floating},
		{OpPhi, Floating},
		{OpLoad, Fixed},
		{OpReturn, Fixed},
		{OpIf, ControlSplit},
		{OpOverflowCheck, ControlSplit},
		{OpSwitch, Switch},
		{OpInvoke, Invoke},
		{OpMerge, Merge},
		{OpEnd, End},
		{OpLoopEnd, End},
	}
	for _, tt := range tests {
		if got := CategoryOf(tt.op); got != tt.want {
			t.Errorf("CategoryOf(%s) = %s, want %s", tt.op, got, tt.want)
		}
	}
	for op := Op(1); op < numOps; op++ {
		if strings.HasPrefix(op.String(), "Op(") {
			t.Errorf("op %d has no name", op)
		}
	}
}

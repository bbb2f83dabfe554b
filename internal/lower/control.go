package lower

import (
	"github.com/tangzhangming/novalir/internal/errors"
	"github.com/tangzhangming/novalir/internal/graph"
	"github.com/tangzhangming/novalir/internal/lir"
	"github.com/tangzhangming/novalir/internal/meta"
)

// ============================================================================
// 逻辑节点
// ============================================================================

// isLogic 比较类节点：只被分支/条件选择消费时不产生值
func isLogic(n *graph.Node) bool {
	switch n.Op {
	case graph.OpCompare, graph.OpIntegerTest, graph.OpIsNull:
		return true
	}
	return false
}

// onlyUsedAsCondition 所有使用者都把它当作条件
func onlyUsedAsCondition(n *graph.Node) bool {
	for _, u := range n.Usages() {
		switch {
		case u.Op == graph.OpIf:
		case u.Op == graph.OpConditional && u.Input(0) == n && u.Input(1) != n && u.Input(2) != n:
		default:
			return false
		}
	}
	return true
}

func lowerLogic(gen *Generator, n *graph.Node) error {
	if onlyUsedAsCondition(n) {
		return nil
	}
	v, err := gen.materialize(n)
	if err != nil {
		return err
	}
	gen.setResult(n, v)
	return nil
}

// materialize 把逻辑节点物化为 0/1 的 int 值
func (gen *Generator) materialize(n *graph.Node) (lir.Value, error) {
	one := lir.NewConstant(meta.ForInt(1))
	zero := lir.NewConstant(meta.ForInt(0))
	return gen.emitConditional(n, one, zero)
}

// emitConditional 按条件节点选择 trueValue 或 falseValue
func (gen *Generator) emitConditional(cond *graph.Node, trueValue, falseValue lir.Value) (lir.Value, error) {
	b := gen.backend
	switch cond.Op {
	case graph.OpCompare:
		x, y := cond.Input(0), cond.Input(1)
		return b.EmitConditionalMove(x.Kind().StackKind(), gen.operand(x), gen.operand(y),
			cond.Cond, cond.UnorderedIsTrue, trueValue, falseValue)
	case graph.OpIntegerTest:
		return b.EmitIntegerTestMove(gen.operand(cond.Input(0)), gen.operand(cond.Input(1)), trueValue, falseValue)
	case graph.OpIsNull:
		return b.EmitConditionalMove(meta.Object, gen.operand(cond.Input(0)), lir.NewConstant(meta.NullPointer),
			meta.EQ, false, trueValue, falseValue)
	}
	v := gen.operand(cond)
	return b.EmitConditionalMove(meta.Int, v, lir.NewConstant(meta.ForInt(0)), meta.NE, false, trueValue, falseValue)
}

// emitBranch 按条件节点发出条件分支
func (gen *Generator) emitBranch(cond *graph.Node, trueDest, falseDest *lir.Block, probability float64) error {
	b := gen.backend
	switch cond.Op {
	case graph.OpCompare:
		x, y := cond.Input(0), cond.Input(1)
		return b.EmitCompareBranch(x.Kind().StackKind(), gen.operand(x), gen.operand(y),
			cond.Cond, cond.UnorderedIsTrue, trueDest, falseDest, probability)
	case graph.OpIntegerTest:
		return b.EmitIntegerTestBranch(gen.operand(cond.Input(0)), gen.operand(cond.Input(1)),
			trueDest, falseDest, probability)
	case graph.OpIsNull:
		return b.EmitCompareBranch(meta.Object, gen.operand(cond.Input(0)), lir.NewConstant(meta.NullPointer),
			meta.EQ, false, trueDest, falseDest, probability)
	}
	v := gen.operand(cond)
	return b.EmitCompareBranch(meta.Int, v, lir.NewConstant(meta.ForInt(0)), meta.NE, false,
		trueDest, falseDest, probability)
}

// ============================================================================
// 控制节点
// ============================================================================

func lowerIf(gen *Generator, n *graph.Node) error {
	return gen.emitBranch(n.Input(0), gen.blockFor(n.Successors[0]), gen.blockFor(n.Successors[1]), n.Probability)
}

func lowerConditional(gen *Generator, n *graph.Node) error {
	t := gen.operand(n.Input(1))
	f := gen.operand(n.Input(2))
	v, err := gen.emitConditional(n.Input(0), t, f)
	if err != nil {
		return err
	}
	gen.setResult(n, v)
	return nil
}

func lowerOverflowCheck(gen *Generator, n *graph.Node) error {
	switch n.Arith {
	case graph.OpAdd, graph.OpSub, graph.OpMul:
	default:
		return errors.Unsupported(errors.L0100, "overflow check on %s", n.Arith)
	}
	v, err := gen.backend.EmitOverflowCheckBranch(n.Arith, gen.operand(n.Input(0)), gen.operand(n.Input(1)),
		gen.blockFor(n.Successors[0]), gen.blockFor(n.Successors[1]))
	if err != nil {
		return err
	}
	gen.setResult(n, v)
	return nil
}

// lowerMerge Phi 变量在第一次被引用时分配，这里无需发出指令
func lowerMerge(gen *Generator, n *graph.Node) error {
	for _, phi := range n.Phis() {
		gen.phiVariable(phi)
	}
	return nil
}

// lowerEnd 把 Phi 的输入移到 Phi 变量中，然后跳到 Merge 所在块
func lowerEnd(gen *Generator, n *graph.Node) error {
	merge := n.Merge()
	if merge == nil {
		return errors.Malformed(errors.L0201, "dangling end")
	}
	idx := merge.EndIndex(n)
	phis := merge.Phis()

	dsts := make([]lir.AllocatableValue, len(phis))
	srcs := make([]lir.Value, len(phis))
	for i, phi := range phis {
		if idx+1 >= len(phi.Inputs) {
			return errors.Malformed(errors.L0200, "phi %s has no input for end %d", phi, idx)
		}
		dsts[i] = gen.phiVariable(phi).(*lir.Variable)
		srcs[i] = gen.operand(phi.Inputs[idx+1])
	}

	// 源中出现目标变量时（循环中的交换），先全部复制到临时变量
	conflict := false
	for _, s := range srcs {
		for _, d := range dsts {
			if s == lir.Value(d) {
				conflict = true
			}
		}
	}
	if conflict {
		for i, s := range srcs {
			srcs[i] = gen.EmitMove(s)
		}
	}
	for i := range dsts {
		if srcs[i] == lir.Value(dsts[i]) {
			continue
		}
		gen.EmitMoveTo(dsts[i], srcs[i])
	}
	gen.backend.EmitJump(gen.blockFor(n.Successors[0]))
	return nil
}

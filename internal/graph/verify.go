// verify.go - 降级前的图不变量检查
//
// 检查项：
// 1. 每种标签的输入数量
// 2. End 节点至多一个使用者且必须流入 Merge
// 3. switch 数组长度、键有序且唯一、后继下标合法
// 4. 基本块以控制节点结束，或只有一个顺序后继
// 5. 支配顺序：输入在使用之前定义
// 6. Phi 输入的种类一致
//
// 所有违规一次性收集后用 multierr 合并返回。

package graph

import (
	"go.uber.org/multierr"

	"github.com/tangzhangming/novalir/internal/errors"
)

// fixedArity 输入数量固定的标签
var fixedArity = map[Op]int{
	OpParam:          0,
	OpConstant:       0,
	OpAdd:            2,
	OpSub:            2,
	OpMul:            2,
	OpAnd:            2,
	OpOr:             2,
	OpXor:            2,
	OpShl:            2,
	OpShr:            2,
	OpUShr:           2,
	OpNegate:         1,
	OpNot:            1,
	OpConvert:        1,
	OpCompare:        2,
	OpIntegerTest:    2,
	OpIsNull:         1,
	OpConditional:    3,
	OpPi:             1,
	OpIntrinsic:      1,
	OpDiv:            2,
	OpRem:            2,
	OpUDiv:           2,
	OpURem:           2,
	OpCompareAndSwap: 4,
	OpNullCheck:      1,
	OpMembar:         0,
	OpMonitorEnter:   1,
	OpMonitorExit:    1,
	OpSafepoint:      0,
	OpInfopoint:      0,
	OpDeoptimize:     0,
	OpUnwind:         1,
	OpIf:             1,
	OpOverflowCheck:  2,
	OpSwitch:         1,
	OpEnd:            0,
	OpLoopEnd:        0,
}

// Verify 检查图的结构不变量，返回合并后的全部违规
func Verify(g *Graph) error {
	v := &verifier{g: g, pos: make(map[*Node]int, len(g.nodes))}
	for _, b := range g.blocks {
		for i, n := range b.nodes {
			v.pos[n] = i
		}
	}
	for _, b := range g.blocks {
		v.checkBlock(b)
	}
	return v.err
}

type verifier struct {
	g   *Graph
	pos map[*Node]int
	err error
}

func (v *verifier) fail(e *errors.CompileError, n *Node) {
	e.WithMethod(v.g.Name)
	if n != nil {
		e.WithNode(n.ID, n.Op.String())
		if n.block != nil {
			e.WithBlock(n.block.ID)
		}
	}
	v.err = multierr.Append(v.err, e)
}

func (v *verifier) checkBlock(b *Block) {
	if b.Dominator != nil && b.Dominator.ID >= b.ID {
		v.fail(errors.Malformed(errors.L0205, "block %s appears before its dominator %s", b, b.Dominator).WithBlock(b.ID), nil)
	}

	for i, n := range b.nodes {
		if IsTerminator(n.Op) && i != len(b.nodes)-1 {
			v.fail(errors.Malformed(errors.L0203, "control node %s is not last in %s", n, b), n)
		}
		if n.Op == OpMerge && i != 0 {
			v.fail(errors.Malformed(errors.L0204, "merge %s is not first in %s", n, b), n)
		}
		v.checkArity(n)
		v.checkInputsScheduled(n)
		switch n.Op {
		case OpEnd, OpLoopEnd:
			v.checkEnd(n)
		case OpSwitch:
			v.checkSwitch(n)
		case OpPhi:
			v.checkPhi(n)
		}
	}

	last := b.Last()
	terminated := last != nil && IsTerminator(last.Op)
	if last != nil && last.Op == OpInvoke && len(last.Successors) > 0 {
		terminated = true
	}
	if !terminated && len(b.Succs) != 1 {
		v.fail(errors.Malformed(errors.L0203, "block %s has %d successors but no control node", b, len(b.Succs)).WithBlock(b.ID), nil)
	}
}

func (v *verifier) checkArity(n *Node) {
	want, ok := fixedArity[n.Op]
	switch {
	case ok:
	case n.Op == OpLoad:
		want = 1
		if n.Access != nil && n.Access.Indexed {
			want = 2
		}
	case n.Op == OpStore:
		want = 2
		if n.Access != nil && n.Access.Indexed {
			want = 3
		}
	case n.Op == OpReturn:
		if len(n.Inputs) > 1 {
			v.fail(errors.Malformed(errors.L0200, "return takes at most one input, got %d", len(n.Inputs)), n)
		}
		return
	case n.Op == OpInvoke:
		if n.Invoke == nil || n.Invoke.Target == nil {
			v.fail(errors.Malformed(errors.L0200, "invoke without target"), n)
			return
		}
		want = len(n.Invoke.Target.Signature.Params)
		if n.Invoke.Indirect {
			want += 2
		}
	case n.Op == OpForeignCall:
		if n.Foreign == nil {
			v.fail(errors.Malformed(errors.L0200, "foreign call without linkage"), n)
			return
		}
		want = len(n.Foreign.Signature.Params)
	case n.Op == OpPhi:
		if len(n.Inputs) == 0 || n.Inputs[0] == nil || n.Inputs[0].Op != OpMerge {
			v.fail(errors.Malformed(errors.L0200, "phi is not attached to a merge"), n)
			return
		}
		want = len(n.Inputs[0].Inputs) + 1
	case n.Op == OpMerge, n.Op == OpBreakpoint:
		return
	default:
		v.fail(errors.Unsupported(errors.L0100, "unknown node tag %s", n.Op), n)
		return
	}
	if len(n.Inputs) != want {
		v.fail(errors.Malformed(errors.L0200, "%s expects %d inputs, got %d", n.Op, want, len(n.Inputs)), n)
		return
	}
	for i, in := range n.Inputs {
		if in == nil {
			v.fail(errors.Malformed(errors.L0200, "input %d of %s is nil", i, n.Op), n)
		}
	}
	switch {
	case (n.Op == OpLoad || n.Op == OpStore || n.Op == OpCompareAndSwap) && n.Access == nil:
		v.fail(errors.Malformed(errors.L0200, "%s without access description", n.Op), n)
	case n.Op == OpSwitch && n.Switch == nil:
		v.fail(errors.Malformed(errors.L0202, "switch without key table"), n)
	case n.Op == OpDeoptimize && n.Deopt == nil:
		v.fail(errors.Malformed(errors.L0200, "deoptimize without action"), n)
	}
}

// checkInputsScheduled 浮动/固定输入必须在支配块中或同块中更早出现
func (v *verifier) checkInputsScheduled(n *Node) {
	if n.Op == OpPhi || n.Op == OpMerge {
		return
	}
	for _, in := range n.Inputs {
		if in == nil {
			continue
		}
		ib := in.block
		if _, ok := v.pos[in]; !ok || ib == nil {
			v.fail(errors.Malformed(errors.L0204, "input %s of %s is not scheduled", in, n), n)
			continue
		}
		if ib == n.block {
			if v.pos[in] >= v.pos[n] {
				v.fail(errors.Malformed(errors.L0204, "input %s is used before it is defined", in), n)
			}
			continue
		}
		if !ib.Dominates(n.block) {
			v.fail(errors.Malformed(errors.L0205, "input %s in %s does not dominate use in %s", in, ib, n.block), n)
		}
	}
}

func (v *verifier) checkEnd(n *Node) {
	switch {
	case len(n.usages) > 1:
		v.fail(errors.Malformed(errors.L0201, "end has %d usages", len(n.usages)), n)
	case len(n.usages) == 0 || n.Merge() == nil:
		v.fail(errors.Malformed(errors.L0201, "dangling end"), n)
	}
}

func (v *verifier) checkSwitch(n *Node) {
	s := n.Switch
	if s == nil {
		return
	}
	if len(s.KeySuccessors) != len(s.Keys)+1 || len(s.KeyProbabilities) != len(s.KeySuccessors) {
		v.fail(errors.Malformed(errors.L0202,
			"switch arity mismatch: %d keys, %d key successors, %d probabilities",
			len(s.Keys), len(s.KeySuccessors), len(s.KeyProbabilities)), n)
		return
	}
	for i := 1; i < len(s.Keys); i++ {
		if s.Keys[i] <= s.Keys[i-1] {
			v.fail(errors.Malformed(errors.L0202, "switch keys not strictly increasing at %d", i), n)
			break
		}
	}
	for i, succ := range s.KeySuccessors {
		if succ < 0 || succ >= len(n.Successors) {
			v.fail(errors.Malformed(errors.L0202, "key successor %d out of range: %d", i, succ), n)
		}
	}
}

func (v *verifier) checkPhi(n *Node) {
	if len(n.Inputs) == 0 || n.Inputs[0] == nil || n.Inputs[0].Op != OpMerge {
		return
	}
	want := n.Kind().StackKind()
	for _, in := range n.Inputs[1:] {
		if in == nil {
			continue
		}
		got := in.Kind().StackKind()
		if got != want {
			v.fail(errors.Malformed(errors.L0206, "phi of kind %s has input %s of kind %s", want, in, got), n)
		}
	}
}

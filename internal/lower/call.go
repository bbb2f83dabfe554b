package lower

import (
	"github.com/tangzhangming/novalir/internal/errors"
	"github.com/tangzhangming/novalir/internal/graph"
	"github.com/tangzhangming/novalir/internal/lir"
)

// ============================================================================
// 方法调用
// ============================================================================

// lowerInvoke 调用目标的解析交给宿主；带异常边时异常边记录在帧状态上
func lowerInvoke(gen *Generator, n *graph.Node) error {
	state := gen.state(n.State)
	if len(n.Successors) == 2 {
		if state == nil {
			return errors.Malformed(errors.L0200, "invoke with exception edge has no frame state")
		}
		state.ExceptionEdge = gen.blockFor(n.Successors[1])
	}
	args := gen.operands(n.Inputs)
	if gen.err != nil {
		return gen.err
	}

	res, err := gen.host.EmitInvoke(gen, n.Invoke, args, state)
	if err != nil {
		return err
	}
	if res != nil {
		gen.setResult(n, res)
	}
	if len(n.Successors) > 0 {
		gen.backend.EmitJump(gen.blockFor(n.Successors[0]))
	}
	return nil
}

// MoveArguments 把实参移动到调用约定给出的位置
func (gen *Generator) MoveArguments(cc *lir.CallingConvention, args []lir.Value) ([]lir.Value, error) {
	if len(args) != len(cc.Arguments) {
		return nil, errors.Malformed(errors.L0200, "call passes %d arguments, convention expects %d",
			len(args), len(cc.Arguments))
	}
	if cc.Type != lir.JavaCallee && cc.StackSize > 0 {
		if err := gen.frameMap.ReserveOutgoing(cc.StackSize); err != nil {
			return nil, err
		}
	}
	locs := make([]lir.Value, len(args))
	for i, a := range args {
		loc := cc.Arguments[i]
		gen.EmitMoveTo(loc, a)
		locs[i] = loc
	}
	return locs, gen.err
}

// ============================================================================
// 外部调用
// ============================================================================

// EmitForeignCall 发出运行时外部调用，结果复制到新变量
func (gen *Generator) EmitForeignCall(linkage *ForeignCallLinkage, state *lir.FrameState, args ...lir.Value) (lir.Value, error) {
	rc := gen.backend.RegisterConfig()
	cc, err := rc.CallingConvention(linkage.Convention, linkage.Signature, gen.frameMap)
	if err != nil {
		return nil, err
	}
	locs, err := gen.MoveArguments(cc, args)
	if err != nil {
		return nil, err
	}

	temps := linkage.Temps
	if temps == nil {
		temps = rc.CallerSavedValues()
	}
	var result lir.Value
	if cc.Return != nil {
		result = cc.Return
		temps = WithoutRegister(temps, cc.Return)
	}
	gen.backend.EmitForeignCall(linkage, result, locs, temps, state)
	if result == nil {
		return nil, gen.err
	}
	return gen.EmitMove(result), gen.err
}

// WithoutRegister 去掉与 v 同一物理寄存器的临时操作数，调用结果寄存器不能同时是临时操作数
func WithoutRegister(temps []lir.Value, v lir.Value) []lir.Value {
	rv, ok := v.(*lir.RegisterValue)
	if !ok {
		return temps
	}
	out := make([]lir.Value, 0, len(temps))
	for _, t := range temps {
		if tr, ok := t.(*lir.RegisterValue); ok && tr.Reg == rv.Reg {
			continue
		}
		out = append(out, t)
	}
	return out
}

func lowerForeignCall(gen *Generator, n *graph.Node) error {
	linkage, err := gen.host.ForeignCallLinkage(n.Foreign)
	if err != nil {
		return err
	}
	state := gen.state(n.State)
	args := gen.operands(n.Inputs)
	if gen.err != nil {
		return gen.err
	}
	res, err := gen.EmitForeignCall(linkage, state, args...)
	if err != nil {
		return err
	}
	if res != nil {
		gen.setResult(n, res)
	}
	return nil
}

package lower

import (
	"github.com/tangzhangming/novalir/internal/graph"
	"github.com/tangzhangming/novalir/internal/lir"
)

// ============================================================================
// 内存访问
// ============================================================================

// address 根据访问载荷生成地址操作数
func (gen *Generator) address(n *graph.Node) *lir.Address {
	a := n.Access
	base := gen.Load(gen.operand(n.Input(0)))
	var index lir.Value
	if a.Indexed {
		index = gen.Load(gen.operand(n.Input(1)))
	}
	return gen.backend.EmitAddress(a.Kind, base, index, a.Scale, a.Displacement)
}

// accessState 访问兼做空检查时才需要帧状态
func (gen *Generator) accessState(n *graph.Node) *lir.FrameState {
	if !n.Access.NullChecked {
		return nil
	}
	return gen.state(n.State)
}

func lowerLoad(gen *Generator, n *graph.Node) error {
	addr := gen.address(n)
	state := gen.accessState(n)
	res, inst, err := gen.backend.EmitLoad(n.Access.Kind, addr, state)
	if err != nil {
		return err
	}
	if state != nil && inst != nil {
		gen.lir.AddImplicitException(inst, state)
	}
	gen.setResult(n, res)
	return nil
}

func lowerStore(gen *Generator, n *graph.Node) error {
	addr := gen.address(n)
	value := gen.operand(n.Inputs[len(n.Inputs)-1])
	state := gen.accessState(n)
	inst, err := gen.backend.EmitStore(n.Access.Kind, addr, value, state)
	if err != nil {
		return err
	}
	if state != nil && inst != nil {
		gen.lir.AddImplicitException(inst, state)
	}
	return nil
}

// lowerCompareAndSwap 结果为内存中的旧值
func lowerCompareAndSwap(gen *Generator, n *graph.Node) error {
	base := gen.Load(gen.operand(n.Input(0)))
	offset := gen.Load(gen.operand(n.Input(1)))
	addr := gen.backend.EmitAddress(n.Access.Kind, base, offset, 1, 0)
	expected := gen.operand(n.Input(2))
	newValue := gen.Load(gen.operand(n.Input(3)))
	res, err := gen.backend.EmitCompareAndSwap(n.Access.Kind, addr, expected, newValue)
	if err != nil {
		return err
	}
	gen.setResult(n, res)
	return nil
}

func lowerNullCheck(gen *Generator, n *graph.Node) error {
	state := gen.state(n.State)
	inst := gen.backend.EmitNullCheck(gen.Load(gen.operand(n.Input(0))), state)
	if inst != nil && state != nil {
		gen.lir.AddImplicitException(inst, state)
	}
	return nil
}

func lowerMembar(gen *Generator, n *graph.Node) error {
	if gen.opts.Uniprocessor {
		return nil
	}
	gen.backend.EmitMembar(n.Barriers)
	return nil
}

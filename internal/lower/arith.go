package lower

import (
	"github.com/tangzhangming/novalir/internal/errors"
	"github.com/tangzhangming/novalir/internal/graph"
	"github.com/tangzhangming/novalir/internal/lir"
	"github.com/tangzhangming/novalir/internal/meta"
)

// ============================================================================
// 算术与逻辑
// ============================================================================

// canTrap 整数除法在除数为零时陷入
func canTrap(op graph.Op) bool {
	switch op {
	case graph.OpDiv, graph.OpRem, graph.OpUDiv, graph.OpURem:
		return true
	}
	return false
}

func lowerArithmetic(gen *Generator, n *graph.Node) error {
	x, y := gen.operand(n.Input(0)), gen.operand(n.Input(1))
	if gen.err != nil {
		return gen.err
	}
	switch x.Kind() {
	case meta.Int, meta.Long, meta.Float, meta.Double:
	default:
		return errors.Internal("%s on %s operands", n.Op, x.Kind())
	}

	var trap *lir.FrameState
	if canTrap(n.Op) && n.Kind().IsNumericInteger() {
		trap = gen.state(n.State)
	}
	res, inst, err := gen.backend.EmitArithmetic(n.Op, x, y, trap)
	if err != nil {
		return err
	}
	if inst != nil && trap != nil {
		gen.lir.AddImplicitException(inst, trap)
	}
	gen.setResult(n, res)
	return nil
}

func lowerNegate(gen *Generator, n *graph.Node) error {
	res, err := gen.backend.EmitNegate(gen.operand(n.Input(0)))
	if err != nil {
		return err
	}
	gen.setResult(n, res)
	return nil
}

func lowerNot(gen *Generator, n *graph.Node) error {
	x := gen.operand(n.Input(0))
	if !x.Kind().IsNumericInteger() {
		return errors.Unsupported(errors.L0102, "not on %s", x.Kind())
	}
	res, err := gen.backend.EmitNot(x)
	if err != nil {
		return err
	}
	gen.setResult(n, res)
	return nil
}

func lowerConvert(gen *Generator, n *graph.Node) error {
	res, err := gen.backend.EmitConvert(n.Convert, gen.operand(n.Input(0)))
	if err != nil {
		return err
	}
	gen.setResult(n, res)
	return nil
}

// lowerIntrinsic 后端不支持时报告缺失的硬件能力
func lowerIntrinsic(gen *Generator, n *graph.Node) error {
	res, err := gen.backend.EmitIntrinsic(n.Intrinsic, gen.operand(n.Input(0)))
	if err != nil {
		return err
	}
	gen.setResult(n, res)
	return nil
}

// lowerPi 类型收窄不产生指令，绑定到输入的值
func lowerPi(gen *Generator, n *graph.Node) error {
	gen.setResult(n, gen.operand(n.Input(0)))
	return nil
}

package lower

import (
	"github.com/tangzhangming/novalir/internal/errors"
	"github.com/tangzhangming/novalir/internal/graph"
)

// ============================================================================
// 值绑定
// ============================================================================

func lowerParam(gen *Generator, n *graph.Node) error {
	if n.Index < 0 || n.Index >= len(gen.params) {
		return errors.Malformed(errors.L0200, "parameter %d out of range (%d parameters)", n.Index, len(gen.params))
	}
	gen.setResult(n, gen.params[n.Index])
	return nil
}

// lowerConstant 常量在使用处按需生成
func lowerConstant(gen *Generator, n *graph.Node) error {
	return nil
}

func lowerPhi(gen *Generator, n *graph.Node) error {
	gen.phiVariable(n)
	return nil
}

// ============================================================================
// 运行时交互
// ============================================================================

func lowerSafepoint(gen *Generator, n *graph.Node) error {
	return gen.host.EmitSafepoint(gen, gen.state(n.State))
}

func lowerMonitorEnter(gen *Generator, n *graph.Node) error {
	return gen.host.EmitMonitorEnter(gen, gen.operand(n.Input(0)), n.Index, gen.state(n.State))
}

func lowerMonitorExit(gen *Generator, n *graph.Node) error {
	return gen.host.EmitMonitorExit(gen, gen.operand(n.Input(0)), n.Index, gen.state(n.State))
}

func lowerDeoptimize(gen *Generator, n *graph.Node) error {
	return gen.host.EmitDeoptimize(gen, n.Deopt.Action, n.Deopt.Reason, gen.state(n.State))
}

func lowerReturn(gen *Generator, n *graph.Node) error {
	if len(n.Inputs) == 0 {
		return gen.host.EmitReturn(gen, nil)
	}
	return gen.host.EmitReturn(gen, gen.operand(n.Input(0)))
}

func lowerUnwind(gen *Generator, n *graph.Node) error {
	return gen.host.EmitUnwind(gen, gen.operand(n.Input(0)))
}

func lowerBreakpoint(gen *Generator, n *graph.Node) error {
	gen.backend.EmitBreakpoint(gen.operands(n.Inputs), gen.state(n.State))
	return nil
}

func lowerInfopoint(gen *Generator, n *graph.Node) error {
	gen.backend.EmitInfopoint(gen.state(n.State))
	return nil
}

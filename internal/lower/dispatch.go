package lower

import (
	"github.com/tangzhangming/novalir/internal/graph"
)

// lowerFunc 单个节点标签的降级例程
type lowerFunc func(gen *Generator, n *graph.Node) error

// dispatch 以节点标签为键的降级表
var dispatch map[graph.Op]lowerFunc

func init() {
	dispatch = map[graph.Op]lowerFunc{
		// 浮动节点
		graph.OpParam:       lowerParam,
		graph.OpConstant:    lowerConstant,
		graph.OpAdd:         lowerArithmetic,
		graph.OpSub:         lowerArithmetic,
		graph.OpMul:         lowerArithmetic,
		graph.OpAnd:         lowerArithmetic,
		graph.OpOr:          lowerArithmetic,
		graph.OpXor:         lowerArithmetic,
		graph.OpShl:         lowerArithmetic,
		graph.OpShr:         lowerArithmetic,
		graph.OpUShr:        lowerArithmetic,
		graph.OpNegate:      lowerNegate,
		graph.OpNot:         lowerNot,
		graph.OpConvert:     lowerConvert,
		graph.OpCompare:     lowerLogic,
		graph.OpIntegerTest: lowerLogic,
		graph.OpIsNull:      lowerLogic,
		graph.OpConditional: lowerConditional,
		graph.OpPhi:         lowerPhi,
		graph.OpPi:          lowerPi,
		graph.OpIntrinsic:   lowerIntrinsic,

		// 固定节点
		graph.OpDiv:            lowerArithmetic,
		graph.OpRem:            lowerArithmetic,
		graph.OpUDiv:           lowerArithmetic,
		graph.OpURem:           lowerArithmetic,
		graph.OpLoad:           lowerLoad,
		graph.OpStore:          lowerStore,
		graph.OpCompareAndSwap: lowerCompareAndSwap,
		graph.OpNullCheck:      lowerNullCheck,
		graph.OpMembar:         lowerMembar,
		graph.OpMonitorEnter:   lowerMonitorEnter,
		graph.OpMonitorExit:    lowerMonitorExit,
		graph.OpSafepoint:      lowerSafepoint,
		graph.OpForeignCall:    lowerForeignCall,
		graph.OpBreakpoint:     lowerBreakpoint,
		graph.OpInfopoint:      lowerInfopoint,
		graph.OpDeoptimize:     lowerDeoptimize,
		graph.OpReturn:         lowerReturn,
		graph.OpUnwind:         lowerUnwind,

		// 控制
		graph.OpIf:            lowerIf,
		graph.OpOverflowCheck: lowerOverflowCheck,
		graph.OpSwitch:        lowerSwitch,
		graph.OpInvoke:        lowerInvoke,
		graph.OpMerge:         lowerMerge,
		graph.OpEnd:           lowerEnd,
		graph.OpLoopEnd:       lowerEnd,
	}
}

// Supports 判断标签是否有降级例程
func Supports(op graph.Op) bool {
	_, ok := dispatch[op]
	return ok
}

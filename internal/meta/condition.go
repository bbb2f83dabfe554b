package meta

// ============================================================================
// 比较条件
// ============================================================================

// Condition 比较条件
type Condition int

const (
	EQ Condition = iota // 相等
	NE                  // 不等
	LT                  // 有符号小于
	LE                  // 有符号小于等于
	GT                  // 有符号大于
	GE                  // 有符号大于等于
	BT                  // 无符号小于 (below)
	BE                  // 无符号小于等于
	AT                  // 无符号大于 (above)
	AE                  // 无符号大于等于
)

var conditionNames = [...]string{"==", "!=", "<", "<=", ">", ">=", "|<|", "|<=|", "|>|", "|>=|"}

// String 返回条件的运算符表示
func (c Condition) String() string {
	if c >= 0 && int(c) < len(conditionNames) {
		return conditionNames[c]
	}
	return "?"
}

// Negate 返回取反后的条件
func (c Condition) Negate() Condition {
	switch c {
	case EQ:
		return NE
	case NE:
		return EQ
	case LT:
		return GE
	case LE:
		return GT
	case GT:
		return LE
	case GE:
		return LT
	case BT:
		return AE
	case BE:
		return AT
	case AT:
		return BE
	case AE:
		return BT
	}
	panic("unknown condition")
}

// Mirror 返回交换操作数后等价的条件
func (c Condition) Mirror() Condition {
	switch c {
	case LT:
		return GT
	case LE:
		return GE
	case GT:
		return LT
	case GE:
		return LE
	case BT:
		return AT
	case BE:
		return AE
	case AT:
		return BT
	case AE:
		return BE
	default:
		return c
	}
}

// IsUnsigned 是否为无符号比较
func (c Condition) IsUnsigned() bool {
	return c >= BT
}

// ============================================================================
// 内存屏障
// ============================================================================

// Barrier 内存屏障位
type Barrier int

const (
	LoadLoad   Barrier = 1 << iota // 读-读
	LoadStore                      // 读-写
	StoreLoad                      // 写-读
	StoreStore                     // 写-写
)

// ============================================================================
// 去优化
// ============================================================================

// DeoptAction 去优化后运行时应采取的动作
type DeoptAction int

const (
	ActionNone DeoptAction = iota
	ActionRecompile
	ActionInvalidateReprofile
	ActionInvalidateRecompile
	ActionInvalidateStopCompiling
)

// DeoptReason 去优化原因
type DeoptReason int

const (
	ReasonNone DeoptReason = iota
	ReasonNullCheckException
	ReasonBoundsCheckException
	ReasonClassCastException
	ReasonArithmeticException
	ReasonUnreached
	ReasonTypeCheckedInliningViolated
	ReasonOptimizedTypeCheckViolated
	ReasonRuntimeConstraint
)

var reasonNames = [...]string{
	"None", "NullCheckException", "BoundsCheckException", "ClassCastException",
	"ArithmeticException", "Unreached", "TypeCheckedInliningViolated",
	"OptimizedTypeCheckViolated", "RuntimeConstraint",
}

// String 返回原因名称
func (r DeoptReason) String() string {
	if r >= 0 && int(r) < len(reasonNames) {
		return reasonNames[r]
	}
	return "Unknown"
}

// EncodeDeopt 把动作与原因编码为运行时使用的单个整数
func EncodeDeopt(action DeoptAction, reason DeoptReason) int32 {
	return int32(reason)<<8 | int32(action)
}

// Package graph 定义降级器消费的程序图读取契约
//
// 程序图由上游优化阶段产生，降级开始后只读。节点是带标签的变体：
// Op 决定节点的类别与载荷字段的含义，降级器通过以 Op 为键的分派表处理节点。
package graph

import (
	"fmt"

	"github.com/tangzhangming/novalir/internal/meta"
)

// ============================================================================
// 节点标签
// ============================================================================

// Op 节点标签
type Op int

const (
	OpInvalid Op = iota

	// 浮动节点
	OpParam
	OpConstant
	OpAdd
	OpSub
	OpMul
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr
	OpUShr
	OpNegate
	OpNot
	OpConvert
	OpCompare
	OpIntegerTest
	OpIsNull
	OpConditional
	OpPhi
	OpPi
	OpIntrinsic

	// 固定节点
	OpDiv
	OpRem
	OpUDiv
	OpURem
	OpLoad
	OpStore
	OpCompareAndSwap
	OpNullCheck
	OpMembar
	OpMonitorEnter
	OpMonitorExit
	OpSafepoint
	OpForeignCall
	OpBreakpoint
	OpInfopoint
	OpDeoptimize
	OpReturn
	OpUnwind

	// 控制分支
	OpIf
	OpOverflowCheck

	// 其它类别
	OpSwitch
	OpInvoke
	OpMerge
	OpEnd
	OpLoopEnd

	numOps
)

// NumOps 标签总数（不含 OpInvalid 之外的哨兵）
const NumOps = int(numOps)

var opNames = [...]string{
	OpInvalid:        "Invalid",
	OpParam:          "Param",
	OpConstant:       "Constant",
	OpAdd:            "Add",
	OpSub:            "Sub",
	OpMul:            "Mul",
	OpAnd:            "And",
	OpOr:             "Or",
	OpXor:            "Xor",
	OpShl:            "Shl",
	OpShr:            "Shr",
	OpUShr:           "UShr",
	OpNegate:         "Negate",
	OpNot:            "Not",
	OpConvert:        "Convert",
	OpCompare:        "Compare",
	OpIntegerTest:    "IntegerTest",
	OpIsNull:         "IsNull",
	OpConditional:    "Conditional",
	OpPhi:            "Phi",
	OpPi:             "Pi",
	OpIntrinsic:      "Intrinsic",
	OpDiv:            "Div",
	OpRem:            "Rem",
	OpUDiv:           "UDiv",
	OpURem:           "URem",
	OpLoad:           "Load",
	OpStore:          "Store",
	OpCompareAndSwap: "CompareAndSwap",
	OpNullCheck:      "NullCheck",
	OpMembar:         "Membar",
	OpMonitorEnter:   "MonitorEnter",
	OpMonitorExit:    "MonitorExit",
	OpSafepoint:      "Safepoint",
	OpForeignCall:    "ForeignCall",
	OpBreakpoint:     "Breakpoint",
	OpInfopoint:      "Infopoint",
	OpDeoptimize:     "Deoptimize",
	OpReturn:         "Return",
	OpUnwind:         "Unwind",
	OpIf:             "If",
	OpOverflowCheck:  "OverflowCheck",
	OpSwitch:         "Switch",
	OpInvoke:         "Invoke",
	OpMerge:          "Merge",
	OpEnd:            "End",
	OpLoopEnd:        "LoopEnd",
}

// String 返回标签名称
func (op Op) String() string {
	if op >= 0 && int(op) < len(opNames) && opNames[op] != "" {
		return opNames[op]
	}
	return fmt.Sprintf("Op(%d)", int(op))
}

// IsBinaryArithmetic 是否为二元算术/逻辑运算
func (op Op) IsBinaryArithmetic() bool {
	switch op {
	case OpAdd, OpSub, OpMul, OpAnd, OpOr, OpXor, OpShl, OpShr, OpUShr,
		OpDiv, OpRem, OpUDiv, OpURem:
		return true
	}
	return false
}

// ============================================================================
// 节点类别
// ============================================================================

// Category 节点类别
type Category int

const (
	Fixed Category = iota
	Floating
	ControlSplit
	Merge
	End
	Invoke
	Switch
)

var categoryNames = [...]string{"Fixed", "Floating", "ControlSplit", "Merge", "End", "Invoke", "Switch"}

// String 返回类别名称
func (c Category) String() string {
	if c >= 0 && int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return "Unknown"
}

// CategoryOf 返回标签对应的类别
func CategoryOf(op Op) Category {
	switch {
	case op >= OpParam && op <= OpIntrinsic:
		return Floating
	case op >= OpDiv && op <= OpUnwind:
		return Fixed
	case op == OpIf || op == OpOverflowCheck:
		return ControlSplit
	case op == OpSwitch:
		return Switch
	case op == OpInvoke:
		return Invoke
	case op == OpMerge:
		return Merge
	case op == OpEnd || op == OpLoopEnd:
		return End
	}
	return Fixed
}

// IsTerminator 该标签的节点是否必须位于基本块末尾
func IsTerminator(op Op) bool {
	switch op {
	case OpIf, OpOverflowCheck, OpSwitch, OpEnd, OpLoopEnd, OpReturn, OpUnwind, OpDeoptimize:
		return true
	}
	return false
}

// ============================================================================
// 节点载荷
// ============================================================================

// ConvertOp 类型转换操作
type ConvertOp int

const (
	I2L ConvertOp = iota
	L2I
	I2B
	I2S
	I2C
	I2F
	I2D
	L2F
	L2D
	F2I
	F2L
	D2I
	D2L
	F2D
	D2F
	MOV_I2F // 位模式重解释
	MOV_F2I
	MOV_L2D
	MOV_D2L
)

var convertNames = [...]string{
	"I2L", "L2I", "I2B", "I2S", "I2C", "I2F", "I2D", "L2F", "L2D",
	"F2I", "F2L", "D2I", "D2L", "F2D", "D2F", "MOV_I2F", "MOV_F2I", "MOV_L2D", "MOV_D2L",
}

// String 返回转换名称
func (c ConvertOp) String() string {
	if c >= 0 && int(c) < len(convertNames) {
		return convertNames[c]
	}
	return "?"
}

// ResultKind 返回转换结果的种类
func (c ConvertOp) ResultKind() meta.Kind {
	switch c {
	case I2L, F2L, D2L, MOV_D2L:
		return meta.Long
	case L2I, I2B, I2S, I2C, F2I, D2I, MOV_F2I:
		return meta.Int
	case I2F, L2F, D2F, MOV_I2F:
		return meta.Float
	case I2D, L2D, F2D, MOV_L2D:
		return meta.Double
	}
	return meta.Illegal
}

// InputKind 返回转换输入的种类
func (c ConvertOp) InputKind() meta.Kind {
	switch c {
	case I2L, I2B, I2S, I2C, I2F, I2D, MOV_I2F:
		return meta.Int
	case L2I, L2F, L2D, MOV_L2D:
		return meta.Long
	case F2I, F2L, F2D, MOV_F2I:
		return meta.Float
	case D2I, D2L, D2F, MOV_D2L:
		return meta.Double
	}
	return meta.Illegal
}

// IntrinsicOp 内建函数
type IntrinsicOp int

const (
	BitCount IntrinsicOp = iota
	BitScanForward
	BitScanReverse
	MathAbs
	MathSqrt
	MathLog
	MathLog10
	MathSin
	MathCos
	MathTan
	ByteSwap
)

var intrinsicNames = [...]string{
	"bitCount", "bitScanForward", "bitScanReverse", "abs", "sqrt", "log", "log10",
	"sin", "cos", "tan", "byteSwap",
}

// String 返回内建函数名
func (i IntrinsicOp) String() string {
	if i >= 0 && int(i) < len(intrinsicNames) {
		return intrinsicNames[i]
	}
	return "?"
}

// SwitchInfo switch 节点载荷
// Keys 严格递增；KeySuccessors/KeyProbabilities 比 Keys 多一项，最后一项是默认分支
type SwitchInfo struct {
	Keys             []int64
	KeySuccessors    []int
	KeyProbabilities []float64
}

// DefaultSuccessorIndex 返回默认（fall through）后继的下标
func (s *SwitchInfo) DefaultSuccessorIndex() int {
	return s.KeySuccessors[len(s.KeySuccessors)-1]
}

// KeyCount 返回键的数量
func (s *SwitchInfo) KeyCount() int {
	return len(s.Keys)
}

// SuccessorProbabilities 累加指向每个后继的键概率
func (s *SwitchInfo) SuccessorProbabilities(successorCount int) []float64 {
	p := make([]float64, successorCount)
	for i, succ := range s.KeySuccessors {
		p[succ] += s.KeyProbabilities[i]
	}
	return p
}

// InvokeInfo 调用点元数据
type InvokeInfo struct {
	Kind     meta.InvokeKind
	Target   *meta.Method
	Indirect bool // 间接调用：Inputs 末尾依次为被调用者身份与目标地址
}

// AccessInfo 内存访问载荷
// Load: Inputs = [base] 或 [base, index]；Store: Inputs = [base, value] 或 [base, index, value]
type AccessInfo struct {
	Kind         meta.Kind // 内存中的种类（可为子整型）
	Displacement int64
	Scale        int
	Indexed      bool
	NullChecked  bool // 访问本身充当隐式空检查
	Compressed   bool
}

// DeoptInfo 去优化载荷
type DeoptInfo struct {
	Action meta.DeoptAction
	Reason meta.DeoptReason
}

// ForeignCallInfo 外部调用载荷
type ForeignCallInfo struct {
	Name      string
	Address   uint64
	Signature meta.Signature
	Reexecute bool
}

// ============================================================================
// 节点
// ============================================================================

// Node 图节点
type Node struct {
	ID         int
	Op         Op
	Stamp      Stamp
	Inputs     []*Node
	Successors []*Block
	State      *FrameState // 去优化/安全点需要的帧状态

	// 载荷：仅对相应标签有意义
	Const           meta.Constant    // OpConstant
	Index           int              // OpParam 参数下标；OpMonitorEnter/Exit 锁深度
	Cond            meta.Condition   // OpCompare / OpConditional
	UnorderedIsTrue bool             // 浮点比较遇到 NaN 时的结果
	Arith           Op               // OpOverflowCheck 的算术运算
	Convert         ConvertOp        // OpConvert
	Intrinsic       IntrinsicOp      // OpIntrinsic
	Barriers        meta.Barrier     // OpMembar
	Probability     float64          // OpIf 取真分支的概率
	Loop            bool             // OpMerge 是否为循环头
	Switch          *SwitchInfo      // OpSwitch
	Invoke          *InvokeInfo      // OpInvoke
	Access          *AccessInfo      // OpLoad / OpStore / OpCompareAndSwap
	Deopt           *DeoptInfo       // OpDeoptimize
	Foreign         *ForeignCallInfo // OpForeignCall

	usages []*Node
	block  *Block
}

// Category 返回节点类别
func (n *Node) Category() Category {
	return CategoryOf(n.Op)
}

// Kind 返回节点结果的种类
func (n *Node) Kind() meta.Kind {
	return n.Stamp.Kind
}

// Input 返回第 i 个输入
func (n *Node) Input(i int) *Node {
	return n.Inputs[i]
}

// Usages 返回使用本节点的节点列表
func (n *Node) Usages() []*Node {
	return n.usages
}

// Block 返回节点被调度到的基本块
func (n *Node) Block() *Block {
	return n.block
}

// Merge 返回 End/LoopEnd 节点唯一的使用者（其 Merge）
func (n *Node) Merge() *Node {
	for _, u := range n.usages {
		if u.Op == OpMerge {
			return u
		}
	}
	return nil
}

// Phis 返回挂在 Merge 节点上的 Phi
func (n *Node) Phis() []*Node {
	var phis []*Node
	for _, u := range n.usages {
		if u.Op == OpPhi && len(u.Inputs) > 0 && u.Inputs[0] == n {
			phis = append(phis, u)
		}
	}
	return phis
}

// EndIndex 返回 end 在 Merge 输入中的位置
func (n *Node) EndIndex(end *Node) int {
	for i, in := range n.Inputs {
		if in == end {
			return i
		}
	}
	return -1
}

// String 返回节点简述
func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}
	return fmt.Sprintf("n%d|%s", n.ID, n.Op)
}

// Package lower 实现与架构无关的图到 LIR 降级引擎
//
// 引擎按支配顺序遍历基本块，每个块一遍，通过以 graph.Op 为键的分派表处理节点。
// 与架构相关的指令形状由 Backend 提供；宿主虚拟机的序言、尾声、安全点、
// 监视器与调用约定由 Host 提供。两者都以接口组合进引擎。
package lower

import (
	"go.uber.org/zap"

	"github.com/tangzhangming/novalir/internal/graph"
	"github.com/tangzhangming/novalir/internal/lir"
	"github.com/tangzhangming/novalir/internal/meta"
)

// ============================================================================
// 引擎对外能力
// ============================================================================

// Tool 引擎向后端与宿主集成层暴露的能力
type Tool interface {
	LIR() *lir.LIR
	FrameMap() *lir.FrameMap
	Backend() Backend
	Logger() *zap.Logger

	NewVariable(kind meta.Kind) *lir.Variable
	Append(inst lir.Instruction)
	CurrentBlock() *lir.Block

	// EmitMove 把值复制到新变量
	EmitMove(v lir.Value) *lir.Variable
	// EmitMoveTo 把 src 复制到已有位置，两端都在内存时经过中间变量
	EmitMoveTo(dst lir.AllocatableValue, src lir.Value)
	// Load 确保值在变量或寄存器中
	Load(v lir.Value) lir.Value
	// LoadNonConst 可内联的常量保持原样，其余同 Load
	LoadNonConst(v lir.Value) lir.Value

	// MoveArguments 把实参移动到调用约定给出的位置，返回这些位置
	MoveArguments(cc *lir.CallingConvention, args []lir.Value) ([]lir.Value, error)
	// EmitForeignCall 按链接信息发出外部调用，返回结果变量（void 时为 nil）
	EmitForeignCall(linkage *ForeignCallLinkage, state *lir.FrameState, args ...lir.Value) (lir.Value, error)
}

// ============================================================================
// 架构能力契约
// ============================================================================

// CallKind 调用目标的形式
type CallKind int

const (
	CallDirect   CallKind = iota // 直接地址调用
	CallDispatch                 // 通过虚表/接口表分派
	CallIndirect                 // 目标地址已在固定寄存器中
	CallForeign                  // 运行时外部函数或桩
)

// CallTarget 调用目标
type CallTarget struct {
	Kind        CallKind
	Name        string
	Address     uint64
	Method      meta.MetadataHandle
	VTableIndex int
	// Identity 被调用者身份（分派与间接调用时位于固定寄存器）
	Identity lir.Value
	// TargetReg 目标地址所在寄存器（仅间接调用）
	TargetReg lir.Value
}

// ForeignCallLinkage 外部调用的链接信息
type ForeignCallLinkage struct {
	Name       string
	Address    uint64
	Signature  meta.Signature
	Convention lir.ConventionType
	// Temps 调用会破坏的寄存器，nil 表示使用调用者保存寄存器
	Temps []lir.Value
	// Reexecute 去优化时是否重新执行该调用
	Reexecute bool
}

// SwitchRange 连续键区间 [Low, High] 跳往同一目标
type SwitchRange struct {
	Low, High int64
	Target    *lir.Block
}

// RuntimeRegisters 运行时约定的固定寄存器
type RuntimeRegisters struct {
	FramePointer   *lir.Register
	StackPointer   *lir.Register
	Thread         *lir.Register // 可为 nil
	IndirectMethod *lir.Register // 间接/分派调用的被调用者身份
	IndirectTarget *lir.Register // 间接调用的目标地址
	Exception      *lir.Register // 展开时的异常对象
	CASExpected    *lir.Register // 比较并交换的期望值/结果（不需要时为 nil）
}

// EpilogueOp 尾声形状指令：保存帧指针的位置在最终化时才确定
type EpilogueOp interface {
	lir.Instruction
	SetSavedFramePointer(v lir.Value)
	SavedFramePointer() lir.Value
}

// Backend 一种指令集的降级能力
// 一次编译一个实例，单线程使用，随编译结束丢弃
type Backend interface {
	Arch() string
	WordSize() int
	RegisterConfig() *lir.RegisterConfig
	RuntimeRegisters() RuntimeRegisters
	// Bind 把后端绑定到本次编译的引擎
	Bind(tool Tool)

	CanInlineConstant(c meta.Constant) bool
	CanStoreConstant(c meta.Constant) bool

	// 数据移动：按源/目标是寄存器还是内存选择形状
	NewMove(dst lir.AllocatableValue, src lir.Value) lir.Instruction
	EmitLea(slot *lir.StackSlot) lir.Value

	// 控制转移
	EmitJump(target *lir.Block)
	EmitCompareBranch(kind meta.Kind, left, right lir.Value, cond meta.Condition, unorderedIsTrue bool,
		trueDest, falseDest *lir.Block, trueProbability float64) error
	EmitIntegerTestBranch(left, right lir.Value, trueDest, falseDest *lir.Block, trueProbability float64) error
	EmitOverflowCheckBranch(op graph.Op, left, right lir.Value, overflow, normal *lir.Block) (lir.Value, error)
	EmitConditionalMove(kind meta.Kind, left, right lir.Value, cond meta.Condition, unorderedIsTrue bool,
		trueValue, falseValue lir.Value) (lir.Value, error)
	EmitIntegerTestMove(left, right lir.Value, trueValue, falseValue lir.Value) (lir.Value, error)

	// 多路分支
	EmitTableSwitch(lowKey int64, defaultTarget *lir.Block, targets []*lir.Block, key lir.Value) error
	EmitSwitchRanges(ranges []SwitchRange, defaultTarget *lir.Block, key lir.Value) error
	EmitSequentialSwitch(keys []int64, targets []*lir.Block, defaultTarget *lir.Block, key lir.Value) error

	// 算术与逻辑，trap 非空时除法指令携带去优化状态
	EmitArithmetic(op graph.Op, a, b lir.Value, trap *lir.FrameState) (lir.Value, lir.Instruction, error)
	EmitNegate(a lir.Value) (lir.Value, error)
	EmitNot(a lir.Value) (lir.Value, error)
	EmitConvert(op graph.ConvertOp, a lir.Value) (lir.Value, error)
	EmitIntrinsic(op graph.IntrinsicOp, a lir.Value) (lir.Value, error)

	// 内存访问
	EmitAddress(kind meta.Kind, base, index lir.Value, scale int, disp int64) *lir.Address
	EmitLoad(kind meta.Kind, addr *lir.Address, state *lir.FrameState) (lir.Value, lir.Instruction, error)
	EmitStore(kind meta.Kind, addr *lir.Address, value lir.Value, state *lir.FrameState) (lir.Instruction, error)
	EmitNullCheck(v lir.Value, state *lir.FrameState) lir.Instruction
	EmitCompareAndSwap(kind meta.Kind, addr *lir.Address, expected, newValue lir.Value) (lir.Value, error)
	EmitMembar(barriers meta.Barrier)

	// 调用：args 已在约定位置上
	EmitDirectCall(target CallTarget, result lir.Value, args []lir.Value, temps []lir.Value, state *lir.FrameState)
	EmitIndirectCall(target CallTarget, result lir.Value, args []lir.Value, temps []lir.Value, state *lir.FrameState)
	EmitForeignCall(linkage *ForeignCallLinkage, result lir.Value, args []lir.Value, temps []lir.Value, state *lir.FrameState)

	// 运行时形状
	NewReturn(value lir.Value, isStub bool) EpilogueOp
	NewUnwind(exception lir.Value, handler uint64) EpilogueOp
	EmitSafepointPoll(state *lir.FrameState, pollAddress uint64)
	EmitDeoptimize(actionAndReason lir.Value, handler uint64, state *lir.FrameState)
	EmitBreakpoint(args []lir.Value, state *lir.FrameState)
	EmitInfopoint(state *lir.FrameState)
}

// ============================================================================
// 宿主集成契约
// ============================================================================

// Host 宿主虚拟机的运行时约定
type Host interface {
	// EmitPrologue 绑定入参，返回按签名顺序排列的参数值
	EmitPrologue(tool Tool, method *meta.Method) ([]lir.Value, error)
	EmitReturn(tool Tool, value lir.Value) error
	EmitUnwind(tool Tool, exception lir.Value) error
	EmitSafepoint(tool Tool, state *lir.FrameState) error
	EmitMonitorEnter(tool Tool, object lir.Value, depth int, state *lir.FrameState) error
	EmitMonitorExit(tool Tool, object lir.Value, depth int, state *lir.FrameState) error
	EmitDeoptimize(tool Tool, action meta.DeoptAction, reason meta.DeoptReason, state *lir.FrameState) error
	// EmitInvoke 解析调用目标并发出调用，返回结果（void 时为 nil）
	EmitInvoke(tool Tool, info *graph.InvokeInfo, args []lir.Value, state *lir.FrameState) (lir.Value, error)
	// ForeignCallLinkage 查找外部函数的链接信息
	ForeignCallLinkage(info *graph.ForeignCallInfo) (*ForeignCallLinkage, error)
	// BeforeRegisterAllocation 唯一的最终化钩子：解决全部挂起的尾声补丁
	BeforeRegisterAllocation(l *lir.LIR) error
}

// ops.go - x86-64 指令形状
//
// 每条指令嵌入 lir.Op 获得操作数管理与自检，
// 附加字段描述编码所需但不参与寄存器分配的信息。

package amd64

import (
	"fmt"

	"github.com/tangzhangming/novalir/internal/lir"
	"github.com/tangzhangming/novalir/internal/lower"
	"github.com/tangzhangming/novalir/internal/meta"
)

// ============================================================================
// 数据移动
// ============================================================================

// MoveOp mov 指令
// FromReg 为 true 时源在寄存器（或为可存储的立即数），目标可以是寄存器或栈槽；
// 否则目标必须是寄存器，源可以来自栈槽或立即数
type MoveOp struct {
	*lir.Op
	FromReg bool
}

func newMoveFromReg(dst lir.AllocatableValue, src lir.Value) *MoveOp {
	return &MoveOp{Op: lir.NewOp("MOV_FROM_REG").Def(dst, lir.REG|lir.STACK).Use(src, lir.REG|lir.CONST), FromReg: true}
}

func newMoveToReg(dst lir.AllocatableValue, src lir.Value) *MoveOp {
	return &MoveOp{Op: lir.NewOp("MOV_TO_REG").Def(dst, lir.REG).Use(src, lir.REG|lir.STACK|lir.CONST)}
}

// ============================================================================
// 控制转移
// ============================================================================

// CompareBranchOp cmp + jcc
type CompareBranchOp struct {
	*lir.Op
	Kind            meta.Kind
	Cond            meta.Condition
	UnorderedIsTrue bool
	TrueProbability float64
}

// String 返回指令文本
func (b *CompareBranchOp) String() string {
	return fmt.Sprintf("%s [%s %s]", b.Op.String(), b.Kind, b.Cond)
}

// CondMoveOp cmp/test + cmov
type CondMoveOp struct {
	*lir.Op
	Cond            meta.Condition
	UnorderedIsTrue bool
}

// String 返回指令文本
func (c *CondMoveOp) String() string {
	return fmt.Sprintf("%s [%s]", c.Op.String(), c.Cond)
}

// TableSwitchOp 跳转表
type TableSwitchOp struct {
	*lir.Op
	LowKey     int64
	WideLowKey bool // LowKey 需经 scratch 装入
	Default    *lir.Block
	Table      []*lir.Block
}

// String 返回指令文本
func (t *TableSwitchOp) String() string {
	return fmt.Sprintf("%s [low=%d entries=%d default=%s]", t.Op.String(), t.LowKey, len(t.Table), t.Default)
}

// RangeSwitchOp 区间比较链
type RangeSwitchOp struct {
	*lir.Op
	Ranges  []lower.SwitchRange
	Default *lir.Block
}

// String 返回指令文本
func (r *RangeSwitchOp) String() string {
	s := r.Op.String() + " ["
	for i, rg := range r.Ranges {
		if i > 0 {
			s += " "
		}
		s += fmt.Sprintf("%d..%d:%s", rg.Low, rg.High, rg.Target)
	}
	return s + " default=" + r.Default.String() + "]"
}

// SequentialSwitchOp 逐个比较
type SequentialSwitchOp struct {
	*lir.Op
	Keys       []int64
	KeyTargets []*lir.Block
	Default    *lir.Block
}

// String 返回指令文本
func (s *SequentialSwitchOp) String() string {
	return fmt.Sprintf("%s %v [default=%s]", s.Op.String(), s.Keys, s.Default)
}

// uniqueBlocks 去重并保持顺序
func uniqueBlocks(blocks ...*lir.Block) []*lir.Block {
	seen := make(map[*lir.Block]bool, len(blocks))
	var out []*lir.Block
	for _, b := range blocks {
		if !seen[b] {
			seen[b] = true
			out = append(out, b)
		}
	}
	return out
}

// ============================================================================
// 调用
// ============================================================================

// CallOp 方法调用
type CallOp struct {
	*lir.Op
	Target lower.CallTarget
}

// String 返回指令文本
func (c *CallOp) String() string {
	return fmt.Sprintf("%s [%s %#x]", c.Op.String(), c.Target.Name, c.Target.Address)
}

// ForeignCallOp 运行时外部调用
type ForeignCallOp struct {
	*lir.Op
	Linkage *lower.ForeignCallLinkage
}

// String 返回指令文本
func (c *ForeignCallOp) String() string {
	return fmt.Sprintf("%s [%s %#x]", c.Op.String(), c.Linkage.Name, c.Linkage.Address)
}

// ============================================================================
// 运行时形状
// ============================================================================

// epilogue 返回与展开共用的帧指针恢复
type epilogue struct {
	saved lir.Value
}

// setSaved 记录保存帧指针的位置，并把它加入使用操作数
func (e *epilogue) setSaved(op *lir.Op, v lir.Value) {
	e.saved = v
	op.Use(v, lir.REG|lir.STACK)
}

// ReturnOp 恢复帧指针并返回
type ReturnOp struct {
	*lir.Op
	epilogue
	Stub bool
}

// SetSavedFramePointer 设置保存帧指针的位置
func (r *ReturnOp) SetSavedFramePointer(v lir.Value) { r.setSaved(r.Op, v) }

// SavedFramePointer 返回保存帧指针的位置，未设置时为 nil
func (r *ReturnOp) SavedFramePointer() lir.Value { return r.saved }

// UnwindOp 恢复帧指针并跳到展开处理例程
type UnwindOp struct {
	*lir.Op
	epilogue
	Handler uint64
}

// SetSavedFramePointer 设置保存帧指针的位置
func (u *UnwindOp) SetSavedFramePointer(v lir.Value) { u.setSaved(u.Op, v) }

// SavedFramePointer 返回保存帧指针的位置，未设置时为 nil
func (u *UnwindOp) SavedFramePointer() lir.Value { return u.saved }

// SafepointOp 轮询安全点页
type SafepointOp struct {
	*lir.Op
	PollAddress uint64
}

// DeoptimizeOp 跳到去优化处理例程
type DeoptimizeOp struct {
	*lir.Op
	Handler uint64
}

// MembarOp 内存屏障
type MembarOp struct {
	*lir.Op
	Barriers meta.Barrier
}

var (
	_ lower.EpilogueOp = (*ReturnOp)(nil)
	_ lower.EpilogueOp = (*UnwindOp)(nil)
)

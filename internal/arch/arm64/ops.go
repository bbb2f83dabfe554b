package arm64

import (
	"fmt"

	"github.com/tangzhangming/novalir/internal/lir"
	"github.com/tangzhangming/novalir/internal/lower"
	"github.com/tangzhangming/novalir/internal/meta"
)

// CompareBranchOp cmp/fcmp/tst + b.cond
type CompareBranchOp struct {
	*lir.Op
	Cond            meta.Condition
	UnorderedIsTrue bool
	TrueProbability float64
}

// String 返回指令文本
func (b *CompareBranchOp) String() string {
	return fmt.Sprintf("%s [%s]", b.Op.String(), b.Cond)
}

// SelectOp cmp + csel
type SelectOp struct {
	*lir.Op
	Cond            meta.Condition
	UnorderedIsTrue bool
}

// String 返回指令文本
func (s *SelectOp) String() string {
	return fmt.Sprintf("%s [%s]", s.Op.String(), s.Cond)
}

// SwitchOp 多路分支：Table 非空时为跳转表，否则按 Keys/Ranges 比较
type SwitchOp struct {
	*lir.Op
	LowKey     int64
	Table      []*lir.Block
	Ranges     []lower.SwitchRange
	Keys       []int64
	KeyTargets []*lir.Block
	Default    *lir.Block
}

// CallOp bl / blr
type CallOp struct {
	*lir.Op
	Target  lower.CallTarget
	Linkage *lower.ForeignCallLinkage
}

// EpilogueOp ret 与展开共用的尾声
type EpilogueOp struct {
	*lir.Op
	Stub    bool
	Handler uint64 // 展开处理例程，返回时为 0
	saved   lir.Value
}

// SetSavedFramePointer 设置保存帧指针的位置
func (e *EpilogueOp) SetSavedFramePointer(v lir.Value) {
	e.saved = v
	e.Op.Use(v, lir.REG|lir.STACK)
}

// SavedFramePointer 返回保存帧指针的位置
func (e *EpilogueOp) SavedFramePointer() lir.Value { return e.saved }

// RuntimeOp 安全点轮询、去优化与屏障
type RuntimeOp struct {
	*lir.Op
	Address  uint64
	Barriers meta.Barrier
}

var _ lower.EpilogueOp = (*EpilogueOp)(nil)

func distinct(blocks ...*lir.Block) []*lir.Block {
	seen := map[*lir.Block]bool{}
	out := blocks[:0:0]
	for _, b := range blocks {
		if !seen[b] {
			seen[b] = true
			out = append(out, b)
		}
	}
	return out
}

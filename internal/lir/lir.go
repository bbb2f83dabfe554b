package lir

import (
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"github.com/tangzhangming/novalir/internal/errors"
	"github.com/tangzhangming/novalir/internal/meta"
)

// ============================================================================
// 帧状态
// ============================================================================

// FrameState 指令处的帧状态快照，值已经替换为 LIR 操作数
type FrameState struct {
	Method        *meta.Method
	BCI           int
	Locals        []Value
	Stack         []Value
	Locks         []Value
	Outer         *FrameState
	Rethrow       bool
	ExceptionEdge *Block // 调用点的异常处理块，nil 表示没有
}

// Values 返回快照中所有活跃值（含外层帧）
func (s *FrameState) Values() []Value {
	var out []Value
	for f := s; f != nil; f = f.Outer {
		for _, group := range [][]Value{f.Locals, f.Stack, f.Locks} {
			for _, v := range group {
				if !IsIllegal(v) {
					out = append(out, v)
				}
			}
		}
	}
	return out
}

// ============================================================================
// 基本块
// ============================================================================

// Block LIR 基本块：首条指令为标签，末条为终结指令
type Block struct {
	ID          int
	Preds       []*Block
	Succs       []*Block
	LoopHeader  bool
	Probability float64

	instructions []Instruction
}

// String 返回块名
func (b *Block) String() string {
	return fmt.Sprintf("B%d", b.ID)
}

// Append 追加指令，返回其下标
func (b *Block) Append(inst Instruction) int {
	b.instructions = append(b.instructions, inst)
	return len(b.instructions) - 1
}

// Instructions 返回块内指令
func (b *Block) Instructions() []Instruction {
	return b.instructions
}

// Len 返回指令数量
func (b *Block) Len() int {
	return len(b.instructions)
}

// At 返回第 i 条指令
func (b *Block) At(i int) Instruction {
	return b.instructions[i]
}

// Terminated 块是否已经以终结指令结束
func (b *Block) Terminated() bool {
	n := len(b.instructions)
	return n > 0 && b.instructions[n-1].Terminates()
}

// ============================================================================
// LIR
// ============================================================================

// ImplicitException 由内存访问充当的隐式异常点
type ImplicitException struct {
	Inst  Instruction
	State *FrameState
}

// LIR 一次编译的完整产物
type LIR struct {
	Name string

	blocks    []*Block
	variables []*Variable
	frameMap  *FrameMap

	// HasArgInCallerFrame 入参是否使用了调用者帧中的槽（影响最终帧大小）
	HasArgInCallerFrame bool
	// FullFrame false 表示运行时桩代码的最小帧，只需要 oop map
	FullFrame bool
	// DeoptRescueSlot 去优化时保存返回地址的槽，仅在有调试信息时分配
	DeoptRescueSlot *StackSlot

	ImplicitExceptions []ImplicitException
}

// New 创建 LIR，blockCount 个块按编号预先建立
func New(name string, blockCount int, fm *FrameMap) *LIR {
	l := &LIR{Name: name, frameMap: fm, FullFrame: true}
	l.blocks = make([]*Block, blockCount)
	for i := range l.blocks {
		l.blocks[i] = &Block{ID: i, Probability: 1}
	}
	return l
}

// Blocks 返回所有块
func (l *LIR) Blocks() []*Block {
	return l.blocks
}

// Block 返回编号为 id 的块
func (l *LIR) Block(id int) *Block {
	return l.blocks[id]
}

// FrameMap 返回帧映射
func (l *LIR) FrameMap() *FrameMap {
	return l.frameMap
}

// NewVariable 分配新的虚拟变量
func (l *LIR) NewVariable(kind meta.Kind) *Variable {
	v := &Variable{ID: len(l.variables), kind: kind.StackKind()}
	l.variables = append(l.variables, v)
	return v
}

// VariableCount 返回变量数量
func (l *LIR) VariableCount() int {
	return len(l.variables)
}

// InstructionCount 返回指令总数
func (l *LIR) InstructionCount() int {
	n := 0
	for _, b := range l.blocks {
		n += len(b.instructions)
	}
	return n
}

// HasDebugInfo 是否有指令携带帧状态
func (l *LIR) HasDebugInfo() bool {
	for _, b := range l.blocks {
		for _, inst := range b.instructions {
			if inst.State() != nil {
				return true
			}
		}
	}
	return false
}

// AddImplicitException 记录隐式异常点
func (l *LIR) AddImplicitException(inst Instruction, state *FrameState) {
	l.ImplicitExceptions = append(l.ImplicitExceptions, ImplicitException{Inst: inst, State: state})
}

// Verify 检查块结构与每条指令的自检，返回合并后的全部问题
func (l *LIR) Verify() error {
	var err error
	for _, b := range l.blocks {
		if len(b.instructions) == 0 {
			err = multierr.Append(err, errors.Internal("%s is empty", b).WithBlock(b.ID))
			continue
		}
		if _, ok := b.instructions[0].(*LabelOp); !ok {
			err = multierr.Append(err, errors.Internal("%s does not start with a label", b).WithBlock(b.ID))
		}
		for i, inst := range b.instructions {
			if _, ok := inst.(*PlaceholderOp); ok {
				err = multierr.Append(err, errors.Internal("%s: unresolved placeholder at %d", b, i).WithBlock(b.ID))
			}
			if inst.Terminates() && i != len(b.instructions)-1 {
				err = multierr.Append(err, errors.Internal("%s: terminator %s is not last", b, inst.Opcode()).WithBlock(b.ID))
			}
			if e := inst.Verify(); e != nil {
				err = multierr.Append(err, e)
			}
		}
		if !b.Terminated() {
			err = multierr.Append(err, errors.Internal("%s has no terminator", b).WithBlock(b.ID))
		}
	}
	for _, v := range l.variables {
		if v.kind == meta.Illegal || v.kind == meta.Void {
			err = multierr.Append(err, errors.Internal("variable %s has no value kind", v))
		}
	}
	return err
}

// String 打印 LIR（调试用）
func (l *LIR) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "lir %s\n", l.Name)
	for _, b := range l.blocks {
		for _, inst := range b.instructions {
			if _, ok := inst.(*LabelOp); ok {
				fmt.Fprintf(&sb, "%s\n", inst)
				continue
			}
			fmt.Fprintf(&sb, "  %s\n", inst)
		}
	}
	return sb.String()
}

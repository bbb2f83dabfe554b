package lir

import (
	"fmt"
	"strings"

	"go.uber.org/multierr"

	"github.com/tangzhangming/novalir/internal/errors"
)

// ============================================================================
// 操作数标志
// ============================================================================

// OperandFlag 操作数允许的类别
type OperandFlag int

const (
	REG     OperandFlag = 1 << iota // 寄存器（变量或物理寄存器）
	STACK                           // 栈槽
	CONST                           // 立即数
	ADDR                            // 内存地址
	ILLEGAL                         // 允许为空
)

// String 返回标志集合
func (f OperandFlag) String() string {
	var parts []string
	for _, e := range []struct {
		flag OperandFlag
		name string
	}{{REG, "REG"}, {STACK, "STACK"}, {CONST, "CONST"}, {ADDR, "ADDR"}, {ILLEGAL, "ILLEGAL"}} {
		if f&e.flag != 0 {
			parts = append(parts, e.name)
		}
	}
	return strings.Join(parts, "|")
}

// Operand 带允许类别的操作数
type Operand struct {
	Value Value
	Flags OperandFlag
}

// Allows 判断值的类别是否被允许
// 变量在寄存器分配后可能落在寄存器或栈槽上，REG 或 STACK 任一即可
func (o Operand) Allows(v Value) bool {
	if IsIllegal(v) {
		return o.Flags&ILLEGAL != 0
	}
	if IsVariable(v) {
		return o.Flags&(REG|STACK) != 0
	}
	return o.Flags&v.class() != 0
}

// ============================================================================
// 指令契约
// ============================================================================

// Instruction LIR 指令
type Instruction interface {
	Opcode() string
	Uses() []Operand
	Defs() []Operand
	Temps() []Operand
	Alive() []Operand // 整条指令期间保持有效，不能与 defs/temps 共用位置
	State() *FrameState
	Targets() []*Block // 控制转移目标
	Terminates() bool  // 是否为块终结指令
	Verify() error
	String() string
}

// Op 通用指令实现，架构相关指令通过嵌入它获得操作数管理与自检
type Op struct {
	Name       string
	uses       []Operand
	defs       []Operand
	temps      []Operand
	alive      []Operand
	state      *FrameState
	targets    []*Block
	terminates bool
}

// NewOp 创建指令
func NewOp(name string) *Op {
	return &Op{Name: name}
}

// Use 追加使用操作数
func (o *Op) Use(v Value, flags OperandFlag) *Op {
	o.uses = append(o.uses, Operand{Value: v, Flags: flags})
	return o
}

// Def 追加定义操作数
func (o *Op) Def(v Value, flags OperandFlag) *Op {
	o.defs = append(o.defs, Operand{Value: v, Flags: flags})
	return o
}

// Temp 追加临时（被破坏的）操作数
func (o *Op) Temp(v Value, flags OperandFlag) *Op {
	o.temps = append(o.temps, Operand{Value: v, Flags: flags})
	return o
}

// KeepAlive 追加在整条指令执行期间都要保持有效的操作数
func (o *Op) KeepAlive(v Value, flags OperandFlag) *Op {
	o.alive = append(o.alive, Operand{Value: v, Flags: flags})
	return o
}

// WithState 附加帧状态
func (o *Op) WithState(s *FrameState) *Op {
	o.state = s
	return o
}

// Branch 标记为终结指令并记录目标
func (o *Op) Branch(targets ...*Block) *Op {
	o.targets = append(o.targets, targets...)
	o.terminates = true
	return o
}

// Terminate 标记为没有块内后继的终结指令（返回、展开等）
func (o *Op) Terminate() *Op {
	o.terminates = true
	return o
}

func (o *Op) Opcode() string { return o.Name }
func (o *Op) Uses() []Operand { return o.uses }
func (o *Op) Defs() []Operand { return o.defs }
func (o *Op) Temps() []Operand { return o.temps }
func (o *Op) Alive() []Operand { return o.alive }
func (o *Op) State() *FrameState { return o.state }
func (o *Op) Targets() []*Block { return o.targets }
func (o *Op) Terminates() bool { return o.terminates }

// Result 返回第一个定义的值，没有时返回 Illegal
func (o *Op) Result() Value {
	if len(o.defs) == 0 {
		return Illegal
	}
	return o.defs[0].Value
}

// Verify 检查每个操作数的类别都在允许范围内
func (o *Op) Verify() error {
	var err error
	check := func(mode string, ops []Operand) {
		for i, op := range ops {
			if !op.Allows(op.Value) {
				err = multierr.Append(err, errors.Internal("%s: %s operand %d %s not allowed as %s",
					o.Name, mode, i, op.Value, op.Flags))
				continue
			}
			if a, ok := op.Value.(*Address); ok {
				for _, c := range a.Components() {
					if IsConstant(c) || IsStackSlot(c) {
						err = multierr.Append(err, errors.Internal("%s: address component %s must be a register", o.Name, c))
					}
				}
			}
		}
	}
	check("use", o.uses)
	check("def", o.defs)
	check("temp", o.temps)
	check("alive", o.alive)
	for _, d := range o.defs {
		if IsConstant(d.Value) {
			err = multierr.Append(err, errors.Internal("%s: constant %s cannot be defined", o.Name, d.Value))
		}
	}
	for _, a := range o.alive {
		for _, c := range append(append([]Operand(nil), o.defs...), o.temps...) {
			if sameLocation(a.Value, c.Value) {
				err = multierr.Append(err, errors.Internal("%s: alive operand %s is clobbered by %s", o.Name, a.Value, c.Value))
			}
		}
	}
	return err
}

// sameLocation 两个操作数是否必然占用同一位置
func sameLocation(a, b Value) bool {
	if ra, ok := a.(*RegisterValue); ok {
		rb, ok := b.(*RegisterValue)
		return ok && ra.Reg == rb.Reg
	}
	if IsConstant(a) {
		return false
	}
	return a == b
}

// String 返回指令文本
func (o *Op) String() string {
	var sb strings.Builder
	for i, d := range o.defs {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(d.Value.String())
	}
	if len(o.defs) > 0 {
		sb.WriteString(" = ")
	}
	sb.WriteString(o.Name)
	for i, u := range o.uses {
		if i == 0 {
			sb.WriteString(" ")
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(u.Value.String())
	}
	if len(o.temps) > 0 {
		sb.WriteString(" temps[")
		for i, t := range o.temps {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(t.Value.String())
		}
		sb.WriteString("]")
	}
	if len(o.alive) > 0 {
		sb.WriteString(" alive[")
		for i, a := range o.alive {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(a.Value.String())
		}
		sb.WriteString("]")
	}
	for _, t := range o.targets {
		fmt.Fprintf(&sb, " ->%s", t)
	}
	if o.state != nil {
		fmt.Fprintf(&sb, " @bci=%d", o.state.BCI)
	}
	return sb.String()
}

// ============================================================================
// 标准指令
// ============================================================================

// LabelOp 块首标签
type LabelOp struct {
	*Op
	Block *Block
}

// NewLabel 创建块标签
func NewLabel(b *Block) *LabelOp {
	return &LabelOp{Op: NewOp("label"), Block: b}
}

// String 返回标签文本
func (l *LabelOp) String() string {
	return l.Block.String() + ":"
}

// JumpOp 无条件跳转
type JumpOp struct {
	*Op
}

// NewJump 创建跳转
func NewJump(target *Block) *JumpOp {
	return &JumpOp{Op: NewOp("jump").Branch(target)}
}

// ParametersOp 方法入口处定义所有入参位置
type ParametersOp struct {
	*Op
}

// NewParameters 创建入参定义指令
func NewParameters(params []AllocatableValue) *ParametersOp {
	op := NewOp("parameters")
	for _, p := range params {
		op.Def(p, REG|STACK)
	}
	return &ParametersOp{Op: op}
}

// Params 返回入参位置
func (p *ParametersOp) Params() []Value {
	out := make([]Value, len(p.defs))
	for i, d := range p.defs {
		out[i] = d.Value
	}
	return out
}

// PlaceholderOp 占位指令，在最终化阶段被替换为真实指令
type PlaceholderOp struct {
	*Op
	block *Block
	index int
}

// NewPlaceholder 在块中占位
func NewPlaceholder(b *Block) *PlaceholderOp {
	p := &PlaceholderOp{Op: NewOp("placeholder"), block: b}
	p.index = b.Append(p)
	return p
}

// Replace 用 inst 替换占位位置
func (p *PlaceholderOp) Replace(inst Instruction) error {
	if p.block.instructions[p.index] != p {
		return errors.Internal("placeholder in %s at %d already replaced", p.block, p.index)
	}
	p.block.instructions[p.index] = inst
	return nil
}

// Replaced 占位是否已被替换
func (p *PlaceholderOp) Replaced() bool {
	return p.block.instructions[p.index] != p
}

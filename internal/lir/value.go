// Package lir 定义降级产物：与架构相关的线性低级指令序列
//
// LIR 由降级器按块生成，交给寄存器分配器与汇编器消费。
// 值 (Value) 描述存储位置：虚拟变量、物理寄存器、栈槽，以及不可分配的常量与地址。
package lir

import (
	"fmt"
	"strings"

	"github.com/tangzhangming/novalir/internal/meta"
)

// ============================================================================
// 值
// ============================================================================

// Value LIR 操作数
type Value interface {
	Kind() meta.Kind
	String() string
	class() OperandFlag
}

// AllocatableValue 可作为寄存器分配对象的值（变量、寄存器、栈槽）
type AllocatableValue interface {
	Value
	allocatable()
}

// ----------------------------------------------------------------------------
// 变量
// ----------------------------------------------------------------------------

// Variable 虚拟寄存器，种类在整个生命周期内不变
type Variable struct {
	ID   int
	kind meta.Kind
}

func (v *Variable) Kind() meta.Kind { return v.kind }
func (v *Variable) String() string { return fmt.Sprintf("v%d|%s", v.ID, kindSuffix(v.kind)) }
func (v *Variable) class() OperandFlag { return REG }
func (v *Variable) allocatable() {}

// ----------------------------------------------------------------------------
// 物理寄存器
// ----------------------------------------------------------------------------

// RegisterClass 寄存器类别
type RegisterClass int

const (
	CPU RegisterClass = iota // 通用寄存器
	FPU                      // 浮点/向量寄存器
)

// Register 物理寄存器描述
type Register struct {
	Number int
	Name   string
	Class  RegisterClass
}

// String 返回寄存器名
func (r *Register) String() string {
	return r.Name
}

// AsValue 以指定种类把寄存器包装为操作数
func (r *Register) AsValue(kind meta.Kind) *RegisterValue {
	return &RegisterValue{Reg: r, kind: kind.StackKind()}
}

// RegisterValue 固定物理寄存器操作数
type RegisterValue struct {
	Reg  *Register
	kind meta.Kind
}

func (r *RegisterValue) Kind() meta.Kind { return r.kind }
func (r *RegisterValue) String() string { return r.Reg.Name + "|" + kindSuffix(r.kind) }
func (r *RegisterValue) class() OperandFlag { return REG }
func (r *RegisterValue) allocatable() {}

// ----------------------------------------------------------------------------
// 栈槽
// ----------------------------------------------------------------------------

// SlotArea 栈槽所在区域
type SlotArea int

const (
	AreaSpill    SlotArea = iota // 本帧溢出区（含锁槽）
	AreaIncoming                 // 调用者帧中的入参
	AreaOutgoing                 // 本帧的出参区
)

// StackSlot 栈槽
// Offset 相对帧基址：本帧槽为负，调用者帧中的入参为非负；出参相对栈顶
type StackSlot struct {
	Offset int
	Area   SlotArea
	kind   meta.Kind
}

// NewStackSlot 创建栈槽
func NewStackSlot(kind meta.Kind, offset int, area SlotArea) *StackSlot {
	return &StackSlot{Offset: offset, Area: area, kind: kind.StackKind()}
}

// InCallerFrame 槽是否位于调用者帧
func (s *StackSlot) InCallerFrame() bool {
	return s.Area == AreaIncoming
}

func (s *StackSlot) Kind() meta.Kind { return s.kind }
func (s *StackSlot) String() string {
	switch s.Area {
	case AreaIncoming:
		return fmt.Sprintf("in:%d|%s", s.Offset, kindSuffix(s.kind))
	case AreaOutgoing:
		return fmt.Sprintf("out:%d|%s", s.Offset, kindSuffix(s.kind))
	}
	return fmt.Sprintf("stack:%d|%s", s.Offset, kindSuffix(s.kind))
}
func (s *StackSlot) class() OperandFlag { return STACK }
func (s *StackSlot) allocatable() {}

// ----------------------------------------------------------------------------
// 常量与地址
// ----------------------------------------------------------------------------

// ConstantValue 立即数操作数
type ConstantValue struct {
	Const meta.Constant
}

// NewConstant 包装常量
func NewConstant(c meta.Constant) *ConstantValue {
	return &ConstantValue{Const: c}
}

func (c *ConstantValue) Kind() meta.Kind { return c.Const.Kind().StackKind() }
func (c *ConstantValue) String() string { return c.Const.String() }
func (c *ConstantValue) class() OperandFlag { return CONST }

// Address 内存地址操作数：[Base + Index*Scale + Displacement]
type Address struct {
	Base         Value // 可为 Illegal（绝对地址）
	Index        Value // 可为 Illegal
	Scale        int
	Displacement int64
	kind         meta.Kind
}

// NewAddress 创建地址操作数，kind 为访问的种类
func NewAddress(kind meta.Kind, base, index Value, scale int, disp int64) *Address {
	if base == nil {
		base = Illegal
	}
	if index == nil {
		index = Illegal
	}
	if scale == 0 {
		scale = 1
	}
	return &Address{Base: base, Index: index, Scale: scale, Displacement: disp, kind: kind}
}

func (a *Address) Kind() meta.Kind { return a.kind }
func (a *Address) String() string {
	var parts []string
	if !IsIllegal(a.Base) {
		parts = append(parts, a.Base.String())
	}
	if !IsIllegal(a.Index) {
		parts = append(parts, fmt.Sprintf("%s*%d", a.Index, a.Scale))
	}
	if a.Displacement != 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%d", a.Displacement))
	}
	return "[" + strings.Join(parts, " + ") + "]"
}
func (a *Address) class() OperandFlag { return ADDR }

// Components 返回地址中参与寄存器分配的值
func (a *Address) Components() []Value {
	var out []Value
	if !IsIllegal(a.Base) {
		out = append(out, a.Base)
	}
	if !IsIllegal(a.Index) {
		out = append(out, a.Index)
	}
	return out
}

type illegalValue struct{}

func (illegalValue) Kind() meta.Kind { return meta.Illegal }
func (illegalValue) String() string { return "-" }
func (illegalValue) class() OperandFlag { return ILLEGAL }

// Illegal 空操作数
var Illegal Value = illegalValue{}

// ============================================================================
// 辅助函数
// ============================================================================

// IsVariable 是否为虚拟变量
func IsVariable(v Value) bool {
	_, ok := v.(*Variable)
	return ok
}

// IsRegister 是否为物理寄存器
func IsRegister(v Value) bool {
	_, ok := v.(*RegisterValue)
	return ok
}

// IsStackSlot 是否为栈槽
func IsStackSlot(v Value) bool {
	_, ok := v.(*StackSlot)
	return ok
}

// IsConstant 是否为常量
func IsConstant(v Value) bool {
	_, ok := v.(*ConstantValue)
	return ok
}

// IsIllegal 是否为空操作数
func IsIllegal(v Value) bool {
	return v == nil || v == Illegal
}

// AsConstant 取出常量，非常量返回 false
func AsConstant(v Value) (meta.Constant, bool) {
	if c, ok := v.(*ConstantValue); ok {
		return c.Const, true
	}
	return meta.Constant{}, false
}

func kindSuffix(k meta.Kind) string {
	switch k {
	case meta.Int:
		return "i"
	case meta.Long:
		return "l"
	case meta.Float:
		return "f"
	case meta.Double:
		return "d"
	case meta.Object:
		return "a"
	case meta.Void:
		return "v"
	}
	return k.String()
}

// calling_convention.go - 调用约定
//
// RegisterConfig 描述一种架构/平台的寄存器使用规则，
// CallingConvention 是把某个方法签名套用到这些规则后得到的具体参数位置。
//
// 约定类型:
// - JavaCall:     调用托管方法时的出参位置（出参区）
// - JavaCallee:   被调用的托管方法看到的入参位置（调用者帧）
// - NativeCall:   调用本地 C 函数（System V / Windows x64）
// - RuntimeStub:  调用预编译的运行时桩代码，使用桩自己的寄存器

package lir

import (
	"github.com/tangzhangming/novalir/internal/errors"
	"github.com/tangzhangming/novalir/internal/meta"
)

// ConventionType 调用约定类型
type ConventionType int

const (
	JavaCall ConventionType = iota
	JavaCallee
	NativeCall
	RuntimeStub
)

var conventionNames = [...]string{"JavaCall", "JavaCallee", "NativeCall", "RuntimeStub"}

// String 返回约定名称
func (t ConventionType) String() string {
	if t >= 0 && int(t) < len(conventionNames) {
		return conventionNames[t]
	}
	return "Unknown"
}

// ArgRules 一组参数寄存器规则
type ArgRules struct {
	ArgRegs      []*Register // 整数/引用参数寄存器（按顺序）
	FloatArgRegs []*Register // 浮点参数寄存器
	ShadowSpace  int         // 阴影空间大小（字节）
	// SharedSlots 为 true 时整数与浮点参数共享位置编号（Windows x64）
	SharedSlots bool
}

// RegisterConfig 寄存器配置
type RegisterConfig struct {
	Name string

	Java   ArgRules
	Native ArgRules
	Stub   ArgRules

	RetReg      *Register
	FloatRetReg *Register

	CallerSaved  []*Register
	CalleeSaved  []*Register
	Allocatable  []*Register
	FramePointer *Register
	StackPointer *Register
	StackAlign   int
	WordSize     int
}

// CallingConvention 套用到具体签名后的参数位置
type CallingConvention struct {
	Type      ConventionType
	Arguments []AllocatableValue
	Return    AllocatableValue // void 时为 nil
	StackSize int              // 栈上参数占用的字节数（含阴影空间，已对齐）
}

// StackArgs 是否有参数通过栈传递
func (cc *CallingConvention) StackArgs() bool {
	for _, a := range cc.Arguments {
		if IsStackSlot(a) {
			return true
		}
	}
	return false
}

// CallingConvention 计算签名在指定约定下的参数位置
// JavaCallee 的栈参数位于调用者帧，其余约定的栈参数位于本帧出参区
func (rc *RegisterConfig) CallingConvention(t ConventionType, sig meta.Signature, fm *FrameMap) (*CallingConvention, error) {
	rules := rc.Java
	switch t {
	case NativeCall:
		rules = rc.Native
	case RuntimeStub:
		rules = rc.Stub
	}

	cc := &CallingConvention{Type: t, Arguments: make([]AllocatableValue, len(sig.Params))}
	nextGP, nextFP := 0, 0
	stackOffset := rules.ShadowSpace
	for i, k := range sig.Params {
		kind := k.StackKind()
		var reg *Register
		switch kind {
		case meta.Float, meta.Double:
			idx := nextFP
			if rules.SharedSlots {
				idx = i
			}
			if idx < len(rules.FloatArgRegs) {
				reg = rules.FloatArgRegs[idx]
				nextFP++
			}
		case meta.Int, meta.Long, meta.Object:
			idx := nextGP
			if rules.SharedSlots {
				idx = i
			}
			if idx < len(rules.ArgRegs) {
				reg = rules.ArgRegs[idx]
				nextGP++
			}
		default:
			return nil, errors.Unsupported(errors.L0102, "parameter %d has kind %s", i, k)
		}

		if reg != nil {
			cc.Arguments[i] = reg.AsValue(kind)
			continue
		}
		if t == JavaCallee && fm != nil {
			cc.Arguments[i] = fm.IncomingSlot(kind, stackOffset)
		} else {
			cc.Arguments[i] = NewStackSlot(kind, stackOffset, AreaOutgoing)
		}
		stackOffset += rc.WordSize
	}

	align := rc.StackAlign
	if align == 0 {
		align = 16
	}
	if stackOffset > 0 {
		cc.StackSize = (stackOffset + align - 1) &^ (align - 1)
	}

	switch sig.Return.StackKind() {
	case meta.Void:
	case meta.Float, meta.Double:
		cc.Return = rc.FloatRetReg.AsValue(sig.Return)
	default:
		cc.Return = rc.RetReg.AsValue(sig.Return)
	}
	return cc, nil
}

// ReturnRegister 返回某种类的返回值寄存器
func (rc *RegisterConfig) ReturnRegister(kind meta.Kind) *Register {
	switch kind.StackKind() {
	case meta.Float, meta.Double:
		return rc.FloatRetReg
	}
	return rc.RetReg
}

// IsCallerSaved 检查寄存器是否是调用者保存的
func (rc *RegisterConfig) IsCallerSaved(r *Register) bool {
	for _, x := range rc.CallerSaved {
		if x == r {
			return true
		}
	}
	return false
}

// IsCalleeSaved 检查寄存器是否是被调用者保存的
func (rc *RegisterConfig) IsCalleeSaved(r *Register) bool {
	for _, x := range rc.CalleeSaved {
		if x == r {
			return true
		}
	}
	return false
}

// CallerSavedValues 调用会破坏的寄存器，作为调用指令的临时操作数
func (rc *RegisterConfig) CallerSavedValues() []Value {
	out := make([]Value, 0, len(rc.CallerSaved))
	for _, r := range rc.CallerSaved {
		kind := meta.Long
		if r.Class == FPU {
			kind = meta.Double
		}
		out = append(out, r.AsValue(kind))
	}
	return out
}

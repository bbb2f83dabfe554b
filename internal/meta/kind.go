// Package meta 定义图、LIR 与后端共享的基础词汇：种类、常量、条件码、方法与签名
package meta

import "fmt"

// ============================================================================
// 值种类
// ============================================================================

// Kind 值种类
type Kind int

const (
	Illegal Kind = iota
	Boolean
	Byte
	Short
	Char
	Int
	Long
	Float
	Double
	Object
	Void
)

var kindNames = [...]string{
	Illegal: "illegal",
	Boolean: "boolean",
	Byte:    "byte",
	Short:   "short",
	Char:    "char",
	Int:     "int",
	Long:    "long",
	Float:   "float",
	Double:  "double",
	Object:  "object",
	Void:    "void",
}

// String 返回种类名称
func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ByteCount 返回该种类在内存中占用的字节数
func (k Kind) ByteCount() int {
	switch k {
	case Boolean, Byte:
		return 1
	case Short, Char:
		return 2
	case Int, Float:
		return 4
	case Long, Double, Object:
		return 8
	default:
		return 0
	}
}

// Bits 返回位宽
func (k Kind) Bits() int {
	return k.ByteCount() * 8
}

// StackKind 返回在寄存器/栈上计算时使用的种类
// 子整型 (boolean/byte/short/char) 统一提升为 int
func (k Kind) StackKind() Kind {
	switch k {
	case Boolean, Byte, Short, Char:
		return Int
	default:
		return k
	}
}

// IsNumericInteger 是否为整数种类（不含 boolean）
func (k Kind) IsNumericInteger() bool {
	switch k {
	case Byte, Short, Char, Int, Long:
		return true
	default:
		return false
	}
}

// IsNumericFloat 是否为浮点种类
func (k Kind) IsNumericFloat() bool {
	return k == Float || k == Double
}

// IsPrimitive 是否为基本类型
func (k Kind) IsPrimitive() bool {
	return k >= Boolean && k <= Double
}

// IsUnsigned char 是唯一的无符号子整型
func (k Kind) IsUnsigned() bool {
	return k == Char || k == Boolean
}

package meta

import (
	"fmt"
	"math"
)

// ============================================================================
// 常量
// ============================================================================

// Tag 常量标签，决定常量表示的是什么东西
type Tag int

const (
	TagPrimitive Tag = iota // 基本类型值
	TagObject               // 托管对象引用（含 null）
	TagMetadata             // 宿主元数据句柄（类型/方法元数据）
)

// MetadataHandle 宿主元数据句柄
type MetadataHandle uint64

// Constant 带标签的常量
// 基本类型值以位模式保存；对象引用保存 Go 指针（nil 表示 null）
type Constant struct {
	kind   Kind
	tag    Tag
	bits   uint64
	object any
	handle MetadataHandle
	narrow bool
}

// NullPointer 空引用常量
var NullPointer = Constant{kind: Object, tag: TagObject}

// ForInt 创建 int 常量
func ForInt(v int32) Constant {
	return Constant{kind: Int, bits: uint64(uint32(v))}
}

// ForLong 创建 long 常量
func ForLong(v int64) Constant {
	return Constant{kind: Long, bits: uint64(v)}
}

// ForFloat 创建 float 常量
func ForFloat(v float32) Constant {
	return Constant{kind: Float, bits: uint64(math.Float32bits(v))}
}

// ForDouble 创建 double 常量
func ForDouble(v float64) Constant {
	return Constant{kind: Double, bits: math.Float64bits(v)}
}

// ForBoolean 创建 boolean 常量
func ForBoolean(v bool) Constant {
	if v {
		return Constant{kind: Boolean, bits: 1}
	}
	return Constant{kind: Boolean}
}

// ForByte 创建 byte 常量
func ForByte(v int8) Constant {
	return Constant{kind: Byte, bits: uint64(uint8(v))}
}

// ForShort 创建 short 常量
func ForShort(v int16) Constant {
	return Constant{kind: Short, bits: uint64(uint16(v))}
}

// ForChar 创建 char 常量
func ForChar(v uint16) Constant {
	return Constant{kind: Char, bits: uint64(v)}
}

// ForObject 创建对象引用常量，obj 应为指针；nil 得到空引用
func ForObject(obj any) Constant {
	return Constant{kind: Object, tag: TagObject, object: obj}
}

// ForNarrowObject 创建压缩引用常量
func ForNarrowObject(obj any) Constant {
	c := ForObject(obj)
	c.narrow = true
	return c
}

// ForMetadata 创建元数据句柄常量，以字长整数形式参与运算
func ForMetadata(h MetadataHandle, compressed bool) Constant {
	kind := Long
	if compressed {
		kind = Int
	}
	return Constant{kind: kind, tag: TagMetadata, bits: uint64(h), handle: h, narrow: compressed}
}

// FromRawBits 按种类把原始位模式重新解释为常量
func FromRawBits(kind Kind, raw uint64) (Constant, error) {
	switch kind {
	case Boolean:
		return ForBoolean(raw != 0), nil
	case Byte:
		return ForByte(int8(raw)), nil
	case Char:
		return ForChar(uint16(raw)), nil
	case Short:
		return ForShort(int16(raw)), nil
	case Int:
		return ForInt(int32(raw)), nil
	case Long:
		return ForLong(int64(raw)), nil
	case Float:
		return ForFloat(math.Float32frombits(uint32(raw))), nil
	case Double:
		return ForDouble(math.Float64frombits(raw)), nil
	default:
		return Constant{}, fmt.Errorf("unsupported kind: %s", kind)
	}
}

// Kind 返回种类
func (c Constant) Kind() Kind { return c.kind }

// Tag 返回标签
func (c Constant) Tag() Tag { return c.tag }

// Bits 返回原始位模式
func (c Constant) Bits() uint64 { return c.bits }

// Object 返回托管对象引用
func (c Constant) Object() any { return c.object }

// Handle 返回元数据句柄
func (c Constant) Handle() MetadataHandle { return c.handle }

// IsCompressed 是否为压缩表示
func (c Constant) IsCompressed() bool { return c.narrow }

// IsNull 是否为空引用
func (c Constant) IsNull() bool {
	return c.tag == TagObject && c.object == nil
}

// IsDefault 是否为该种类的默认值（全零位模式或 null）
func (c Constant) IsDefault() bool {
	if c.tag == TagObject {
		return c.object == nil
	}
	return c.tag == TagPrimitive && c.bits == 0
}

// AsLong 以 int64 读取整数值（按种类符号扩展）
func (c Constant) AsLong() int64 {
	switch c.kind {
	case Boolean, Char:
		return int64(c.bits)
	case Byte:
		return int64(int8(c.bits))
	case Short:
		return int64(int16(c.bits))
	case Int:
		return int64(int32(c.bits))
	default:
		return int64(c.bits)
	}
}

// AsInt 以 int32 读取整数值
func (c Constant) AsInt() int32 {
	return int32(c.AsLong())
}

// AsFloat 读取 float 值
func (c Constant) AsFloat() float32 {
	return math.Float32frombits(uint32(c.bits))
}

// AsDouble 读取 double 值
func (c Constant) AsDouble() float64 {
	return math.Float64frombits(c.bits)
}

// Equal 按位比较两个常量；对象常量比较引用
func (c Constant) Equal(o Constant) bool {
	return c.kind == o.kind && c.tag == o.tag && c.bits == o.bits && c.object == o.object && c.narrow == o.narrow
}

// String 返回常量的文本表示
func (c Constant) String() string {
	switch c.tag {
	case TagObject:
		if c.object == nil {
			return "null"
		}
		return fmt.Sprintf("object(%p)", c.object)
	case TagMetadata:
		return fmt.Sprintf("meta(0x%x)", uint64(c.handle))
	}
	switch c.kind {
	case Float:
		return fmt.Sprintf("%gf", c.AsFloat())
	case Double:
		return fmt.Sprintf("%gd", c.AsDouble())
	case Boolean:
		return fmt.Sprintf("%t", c.bits != 0)
	case Long:
		return fmt.Sprintf("%dL", c.AsLong())
	default:
		return fmt.Sprintf("%d", c.AsLong())
	}
}

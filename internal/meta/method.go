package meta

import (
	"fmt"
	"strings"
)

// InvokeKind 调用种类
type InvokeKind int

const (
	InvokeStatic InvokeKind = iota
	InvokeSpecial
	InvokeVirtual
	InvokeInterface
)

var invokeKindNames = [...]string{"static", "special", "virtual", "interface"}

// String 返回调用种类名称
func (k InvokeKind) String() string {
	if k >= 0 && int(k) < len(invokeKindNames) {
		return invokeKindNames[k]
	}
	return "unknown"
}

// HasReceiver 是否带接收者参数
func (k InvokeKind) HasReceiver() bool {
	return k != InvokeStatic
}

// IsDirect 静态调用与 special 调用可直接绑定到目标地址
func (k InvokeKind) IsDirect() bool {
	return k == InvokeStatic || k == InvokeSpecial
}

// Signature 方法签名（参数种类已包含接收者）
type Signature struct {
	Params []Kind
	Return Kind
}

// NewSignature 创建签名
func NewSignature(ret Kind, params ...Kind) Signature {
	return Signature{Params: params, Return: ret}
}

// String 返回签名描述
func (s Signature) String() string {
	parts := make([]string, len(s.Params))
	for i, p := range s.Params {
		parts[i] = p.String()
	}
	return fmt.Sprintf("(%s)%s", strings.Join(parts, ","), s.Return)
}

// Method 宿主方法描述
type Method struct {
	Holder      string
	Name        string
	Signature   Signature
	Handle      MetadataHandle // 方法元数据句柄，即被调用者身份
	Entry       uint64         // 已编译入口地址
	VTableIndex int            // 虚表下标，-1 表示未知
	Stub        bool           // 是否为运行时桩代码
}

// String 返回方法全名
func (m *Method) String() string {
	if m == nil {
		return "<nil>"
	}
	return m.Holder + "." + m.Name + m.Signature.String()
}

// MetadataConstant 返回方法元数据常量
func (m *Method) MetadataConstant() Constant {
	return ForMetadata(m.Handle, false)
}

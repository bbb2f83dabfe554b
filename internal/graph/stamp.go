package graph

import (
	"fmt"
	"math"

	"github.com/tangzhangming/novalir/internal/meta"
)

// Stamp 节点的抽象值描述：种类 + 整数取值范围 + 非空标志
type Stamp struct {
	Kind    meta.Kind
	Lower   int64
	Upper   int64
	NonNull bool
}

// StampFor 返回种类的无约束 stamp
func StampFor(kind meta.Kind) Stamp {
	s := Stamp{Kind: kind}
	switch kind.StackKind() {
	case meta.Int:
		s.Lower, s.Upper = math.MinInt32, math.MaxInt32
	case meta.Long:
		s.Lower, s.Upper = math.MinInt64, math.MaxInt64
	}
	return s
}

// StampForConstant 返回常量的精确 stamp
func StampForConstant(c meta.Constant) Stamp {
	s := StampFor(c.Kind().StackKind())
	if c.Kind().IsNumericInteger() && c.Tag() == meta.TagPrimitive {
		s.Lower = c.AsLong()
		s.Upper = c.AsLong()
	}
	if c.Kind() == meta.Object && !c.IsNull() {
		s.NonNull = true
	}
	return s
}

// VoidStamp 无值节点的 stamp
var VoidStamp = Stamp{Kind: meta.Void}

// IsConstantRange 取值范围是否收窄到单一值
func (s Stamp) IsConstantRange() bool {
	return s.Kind.IsNumericInteger() && s.Lower == s.Upper
}

// String 返回 stamp 的文本表示
func (s Stamp) String() string {
	switch {
	case s.Kind == meta.Object && s.NonNull:
		return "object!"
	case s.Kind.StackKind() == meta.Int || s.Kind == meta.Long:
		return fmt.Sprintf("%s[%d..%d]", s.Kind, s.Lower, s.Upper)
	default:
		return s.Kind.String()
	}
}

package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ============================================================================
// 降级错误
// ============================================================================

// CompileError 降级过程中的错误，带有出错节点的上下文
type CompileError struct {
	Code    string   // 错误码 (L0100)
	Kind    Kind     // 错误种类
	Message string   // 主消息
	Method  string   // 正在编译的方法
	NodeID  int      // 出错节点编号，-1 表示无
	NodeOp  string   // 出错节点标签
	Block   int      // 出错基本块，-1 表示无
	Notes   []string // 附加说明
	Err     error    // 底层错误
}

// newError 按错误码创建错误
func newError(code string, format string, args ...any) *CompileError {
	info, ok := codeInfos[code]
	if !ok {
		info = ErrorInfo{Code: code, Kind: KindInternal}
	}
	return &CompileError{
		Code:    code,
		Kind:    info.Kind,
		Message: fmt.Sprintf(format, args...),
		NodeID:  -1,
		Block:   -1,
	}
}

// Unsupported 创建"不支持"错误
func Unsupported(code string, format string, args ...any) *CompileError {
	return newError(code, format, args...)
}

// Malformed 创建"输入图格式错误"
func Malformed(code string, format string, args ...any) *CompileError {
	return newError(code, format, args...)
}

// Exhausted 创建"资源耗尽"错误
func Exhausted(code string, format string, args ...any) *CompileError {
	return newError(code, format, args...)
}

// Unavailable 创建推测性读取不可用错误（非致命）
func Unavailable(format string, args ...any) *CompileError {
	return newError(L0500, format, args...)
}

// Internal 创建内部错误
func Internal(format string, args ...any) *CompileError {
	return newError(L0400, format, args...)
}

// InternalCode 创建带指定错误码的内部错误
func InternalCode(code string, format string, args ...any) *CompileError {
	e := newError(code, format, args...)
	e.Kind = KindInternal
	return e
}

// ShouldNotReachHere 不应到达的分支
func ShouldNotReachHere(what string) *CompileError {
	return newError(L0400, "should not reach here: %s", what)
}

// WithNode 附加节点上下文
func (e *CompileError) WithNode(id int, op string) *CompileError {
	if e.NodeID < 0 {
		e.NodeID = id
		e.NodeOp = op
	}
	return e
}

// WithBlock 附加基本块上下文
func (e *CompileError) WithBlock(id int) *CompileError {
	if e.Block < 0 {
		e.Block = id
	}
	return e
}

// WithMethod 附加方法名
func (e *CompileError) WithMethod(name string) *CompileError {
	if e.Method == "" {
		e.Method = name
	}
	return e
}

// Wrap 附加底层错误
func (e *CompileError) Wrap(err error) *CompileError {
	e.Err = err
	return e
}

// Note 追加说明
func (e *CompileError) Note(format string, args ...any) *CompileError {
	e.Notes = append(e.Notes, fmt.Sprintf(format, args...))
	return e
}

// Fatal 是否为致命错误
func (e *CompileError) Fatal() bool {
	return e.Kind.Fatal()
}

// Error 实现 error 接口
func (e *CompileError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Code)
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	var ctx []string
	if e.Method != "" {
		ctx = append(ctx, e.Method)
	}
	if e.Block >= 0 {
		ctx = append(ctx, fmt.Sprintf("B%d", e.Block))
	}
	if e.NodeID >= 0 {
		ctx = append(ctx, fmt.Sprintf("n%d %s", e.NodeID, e.NodeOp))
	}
	if len(ctx) > 0 {
		sb.WriteString(" (")
		sb.WriteString(strings.Join(ctx, ", "))
		sb.WriteString(")")
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Unwrap 返回底层错误
func (e *CompileError) Unwrap() error {
	return e.Err
}

// Is 按种类与哨兵错误匹配
func (e *CompileError) Is(target error) bool {
	if k, ok := target.(kindSentinel); ok {
		return e.Kind == Kind(k)
	}
	return false
}

// ============================================================================
// 哨兵错误
// ============================================================================

type kindSentinel Kind

func (k kindSentinel) Error() string { return Kind(k).String() }

var (
	// ErrUnsupported 匹配所有"不支持"错误
	ErrUnsupported error = kindSentinel(KindUnsupported)
	// ErrMalformed 匹配所有输入图格式错误
	ErrMalformed error = kindSentinel(KindMalformed)
	// ErrResourceExhausted 匹配所有资源耗尽错误
	ErrResourceExhausted error = kindSentinel(KindResourceExhausted)
	// ErrInternal 匹配所有内部错误
	ErrInternal error = kindSentinel(KindInternal)
	// ErrUnavailable 推测性读取不可用，调用方应把表达式视为非常量
	ErrUnavailable error = kindSentinel(KindUnavailable)
)

// As 从错误链中提取 CompileError
func As(err error) (*CompileError, bool) {
	var ce *CompileError
	if stderrors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// Is 透传标准库 errors.Is，方便调用方只导入本包
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// IsFatal 判断错误是否会放弃编译
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if ce, ok := As(err); ok {
		return ce.Fatal()
	}
	return !stderrors.Is(err, ErrUnavailable)
}

// ============================================================================
// 格式化
// ============================================================================

// Format 把错误格式化为多行报告
func Format(err error) string {
	ce, ok := As(err)
	if !ok {
		return "error: " + err.Error()
	}
	info, _ := GetErrorInfo(ce.Code)
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s[%s]: %s\n", info.Level, ce.Code, ce.Message)
	if ce.Method != "" {
		fmt.Fprintf(&sb, "  --> %s", ce.Method)
		if ce.Block >= 0 {
			fmt.Fprintf(&sb, " B%d", ce.Block)
		}
		if ce.NodeID >= 0 {
			fmt.Fprintf(&sb, " n%d (%s)", ce.NodeID, ce.NodeOp)
		}
		sb.WriteString("\n")
	}
	for _, n := range ce.Notes {
		fmt.Fprintf(&sb, "   = note: %s\n", n)
	}
	if ce.Err != nil {
		fmt.Fprintf(&sb, "   = caused by: %v\n", ce.Err)
	}
	return sb.String()
}

package errors

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/multierr"
)

// ============================================================================
// 错误报告器
// ============================================================================

// Reporter 收集一批编译的错误；并发安全
// 致命错误记为 error，推测性读取不可用等非致命错误记为 warning
type Reporter struct {
	mu       sync.Mutex
	context  map[string]string // 建议生成的公共上下文（arch、features）
	errors   []*CompileError
	warnings []*CompileError
}

// NewReporter 创建错误报告器，context 会被复制
func NewReporter(context map[string]string) *Reporter {
	r := &Reporter{context: make(map[string]string, len(context))}
	for k, v := range context {
		r.context[k] = v
	}
	return r
}

// ============================================================================
// 收集
// ============================================================================

// Add 记录 err；multierr 组合错误会被展开，其他错误包装为内部错误
func (r *Reporter) Add(err error) {
	if err == nil {
		return
	}
	for _, e := range multierr.Errors(err) {
		ce, ok := As(e)
		if !ok {
			ce = Internal("%v", e).Wrap(e)
		}
		r.addCompileError(ce)
	}
}

func (r *Reporter) addCompileError(ce *CompileError) {
	if len(ce.Notes) == 0 {
		ctx := make(map[string]string, len(r.context)+1)
		for k, v := range r.context {
			ctx[k] = v
		}
		if ce.NodeOp != "" {
			ctx["node_op"] = ce.NodeOp
		}
		ce.Notes = GetSuggestions(ce.Code, ctx)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if ce.Fatal() {
		r.errors = append(r.errors, ce)
	} else {
		r.warnings = append(r.warnings, ce)
	}
}

// ============================================================================
// 输出
// ============================================================================

// WriteTo 按记录顺序输出所有错误与警告，错误在前
func (r *Reporter) WriteTo(w io.Writer) (int64, error) {
	r.mu.Lock()
	all := append(append([]*CompileError(nil), r.errors...), r.warnings...)
	r.mu.Unlock()

	var total int64
	for _, ce := range all {
		n, err := io.WriteString(w, colorizeHeader(ce, Format(ce)))
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	if len(all) > 0 {
		n, err := fmt.Fprintf(w, "%d error(s), %d warning(s)\n", r.ErrorCount(), r.WarningCount())
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// colorizeHeader 给报告首行的 "level[code]" 上色
func colorizeHeader(ce *CompileError, report string) string {
	if !colorsEnabled {
		return report
	}
	info, _ := GetErrorInfo(ce.Code)
	header := fmt.Sprintf("%s[%s]", info.Level, ce.Code)
	return strings.Replace(report, header, Colorize(header, levelColor(info.Level)), 1)
}

// ============================================================================
// 状态查询
// ============================================================================

// HasErrors 是否有错误
func (r *Reporter) HasErrors() bool {
	return r.ErrorCount() > 0
}

// ErrorCount 错误数量
func (r *Reporter) ErrorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errors)
}

// WarningCount 警告数量
func (r *Reporter) WarningCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.warnings)
}

// Errors 获取所有错误
func (r *Reporter) Errors() []*CompileError {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*CompileError(nil), r.errors...)
}

// Warnings 获取所有警告
func (r *Reporter) Warnings() []*CompileError {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*CompileError(nil), r.warnings...)
}

// Err 把所有致命错误组合为一个 error；没有错误时为 nil
func (r *Reporter) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var err error
	for _, ce := range r.errors {
		err = multierr.Append(err, ce)
	}
	return err
}

// Clear 清空错误和警告
func (r *Reporter) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = nil
	r.warnings = nil
}

// Package errors 提供降级 (lowering) 过程的错误处理系统
package errors

// ============================================================================
// 错误级别
// ============================================================================

// Level 错误级别
type Level int

const (
	LevelError   Level = iota // 错误
	LevelWarning              // 警告
	LevelNote                 // 提示
)

func (l Level) String() string {
	switch l {
	case LevelError:
		return "error"
	case LevelWarning:
		return "warning"
	case LevelNote:
		return "note"
	default:
		return "unknown"
	}
}

// ============================================================================
// 错误种类
// ============================================================================

// Kind 错误种类
type Kind int

const (
	KindUnsupported       Kind = iota // 目标架构不支持的操作
	KindMalformed                     // 输入图违反不变量
	KindResourceExhausted             // 栈槽等资源耗尽
	KindInternal                      // 编译器内部错误
	KindUnavailable                   // 推测性读取无法完成（非致命）
)

func (k Kind) String() string {
	switch k {
	case KindUnsupported:
		return "unsupported"
	case KindMalformed:
		return "malformed"
	case KindResourceExhausted:
		return "resource-exhausted"
	case KindInternal:
		return "internal"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Fatal 致命错误会放弃整个编译单元
func (k Kind) Fatal() bool {
	return k != KindUnavailable
}

// ============================================================================
// 降级错误码 (L 开头)
// ============================================================================

const (
	// L0100-L0199: 不支持的操作
	L0100 = "L0100" // 节点没有对应的降级实现
	L0101 = "L0101" // 目标硬件缺少内建函数支持
	L0102 = "L0102" // 种类不受该操作支持

	// L0200-L0299: 输入图格式错误
	L0200 = "L0200" // 输入数量错误
	L0201 = "L0201" // End 节点悬空或有多个使用者
	L0202 = "L0202" // switch 数组长度不匹配
	L0203 = "L0203" // 基本块没有终结节点
	L0204 = "L0204" // 调度顺序错误（使用先于定义）
	L0205 = "L0205" // 支配顺序错误
	L0206 = "L0206" // 种类不一致

	// L0300-L0399: 资源耗尽
	L0300 = "L0300" // 栈帧过大
	L0301 = "L0301" // 调用参数过多

	// L0400-L0499: 内部错误
	L0400 = "L0400" // 不应到达的分支
	L0401 = "L0401" // 指令自检失败
	L0402 = "L0402" // 尾声补丁未完成

	// L0500-L0599: 非致命
	L0500 = "L0500" // 推测性内存读取不可用
)

// ErrorInfo 错误码信息
type ErrorInfo struct {
	Code     string // 错误码
	Level    Level  // 错误级别
	Kind     Kind   // 错误种类
	Category string // 错误分类
}

// codeInfos 错误码信息表
var codeInfos = map[string]ErrorInfo{
	L0100: {L0100, LevelError, KindUnsupported, "capability"},
	L0101: {L0101, LevelError, KindUnsupported, "capability"},
	L0102: {L0102, LevelError, KindUnsupported, "capability"},

	L0200: {L0200, LevelError, KindMalformed, "graph"},
	L0201: {L0201, LevelError, KindMalformed, "graph"},
	L0202: {L0202, LevelError, KindMalformed, "graph"},
	L0203: {L0203, LevelError, KindMalformed, "graph"},
	L0204: {L0204, LevelError, KindMalformed, "graph"},
	L0205: {L0205, LevelError, KindMalformed, "graph"},
	L0206: {L0206, LevelError, KindMalformed, "graph"},

	L0300: {L0300, LevelError, KindResourceExhausted, "frame"},
	L0301: {L0301, LevelError, KindResourceExhausted, "frame"},

	L0400: {L0400, LevelError, KindInternal, "internal"},
	L0401: {L0401, LevelError, KindInternal, "internal"},
	L0402: {L0402, LevelError, KindInternal, "internal"},

	L0500: {L0500, LevelNote, KindUnavailable, "constant"},
}

// GetErrorInfo 获取错误码信息
func GetErrorInfo(code string) (ErrorInfo, bool) {
	info, ok := codeInfos[code]
	return info, ok
}

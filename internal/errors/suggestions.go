package errors

import (
	"fmt"
	"strings"
)

// ============================================================================
// 修复建议生成器
// ============================================================================

// SuggestionGenerator 按错误码给出处理建议
type SuggestionGenerator struct{}

// NewSuggestionGenerator 创建修复建议生成器
func NewSuggestionGenerator() *SuggestionGenerator {
	return &SuggestionGenerator{}
}

// GetSuggestions 根据错误码和上下文获取建议
// 识别的上下文键：arch、features、node_op、frame_size
func (g *SuggestionGenerator) GetSuggestions(code string, context map[string]string) []string {
	switch code {
	case L0100, L0102:
		return g.unsupportedNodeSuggestions(context)
	case L0101:
		return g.missingFeatureSuggestions(context)

	case L0200, L0201, L0202, L0203, L0204, L0205, L0206:
		return g.malformedGraphSuggestions(code)

	case L0300:
		return g.frameTooLargeSuggestions(context)
	case L0301:
		return []string{"split the call or pass arguments through a heap-allocated buffer"}

	case L0401, L0402:
		return []string{"this is a compiler bug: dump the LIR with lir.Dump and report it"}

	case L0500:
		return []string{"treat the expression as non-constant"}
	}
	return nil
}

func (g *SuggestionGenerator) unsupportedNodeSuggestions(context map[string]string) []string {
	op := context["node_op"]
	if op == "" {
		op = "the node"
	}
	s := []string{fmt.Sprintf("%s has no lowering on %s; the method stays interpreted", op, orUnknown(context["arch"]))}
	return s
}

func (g *SuggestionGenerator) missingFeatureSuggestions(context map[string]string) []string {
	s := []string{"the intrinsic needs a CPU feature that is not enabled"}
	if f := context["features"]; f != "" {
		s = append(s, "enabled features: "+f)
	} else {
		s = append(s, "no CPU features are enabled")
	}
	s = append(s, "list the feature under [target] features, or set detect_features = true")
	return s
}

func (g *SuggestionGenerator) malformedGraphSuggestions(code string) []string {
	s := []string{"run graph.Verify before lowering to get every violation at once"}
	switch code {
	case L0201:
		s = append(s, "every End must be consumed by exactly one Merge")
	case L0202:
		s = append(s, "switch keys, probabilities and successor indices must have matching lengths")
	case L0204:
		s = append(s, "inputs must be scheduled before their users")
	}
	return s
}

func (g *SuggestionGenerator) frameTooLargeSuggestions(context map[string]string) []string {
	s := []string{"raise [frame] max_frame_size"}
	if size := context["frame_size"]; size != "" {
		s = append(s, "requested frame size: "+size)
	}
	return s
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "this target"
	}
	return s
}

// ============================================================================
// 便捷函数
// ============================================================================

var defaultGenerator = NewSuggestionGenerator()

// GetSuggestions 使用默认生成器获取建议
func GetSuggestions(code string, context map[string]string) []string {
	return defaultGenerator.GetSuggestions(code, context)
}

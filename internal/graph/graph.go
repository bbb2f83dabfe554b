package graph

import (
	"fmt"
	"strings"

	"github.com/tangzhangming/novalir/internal/meta"
)

// ============================================================================
// 帧状态
// ============================================================================

// FrameState 去优化所需的解释器帧快照
type FrameState struct {
	Method *meta.Method
	BCI    int
	Locals []*Node // nil 表示该槽位未定义
	Stack  []*Node
	Locks  []*Node
	Outer  *FrameState // 内联时的外层帧
	Rethrow bool
}

// Values 按 locals、stack、locks 顺序返回所有引用的节点（含外层帧）
func (fs *FrameState) Values() []*Node {
	var out []*Node
	for s := fs; s != nil; s = s.Outer {
		out = append(out, s.Locals...)
		out = append(out, s.Stack...)
		out = append(out, s.Locks...)
	}
	return out
}

// ============================================================================
// 基本块
// ============================================================================

// Block 图的基本块（调度后的最大直线区域）
type Block struct {
	ID          int
	Preds       []*Block
	Succs       []*Block
	Dominator   *Block
	LoopHeader  bool
	Probability float64

	nodes []*Node
}

// Nodes 按调度顺序返回块内节点
func (b *Block) Nodes() []*Node {
	return b.nodes
}

// Last 返回块内最后一个节点
func (b *Block) Last() *Node {
	if len(b.nodes) == 0 {
		return nil
	}
	return b.nodes[len(b.nodes)-1]
}

// Dominates 判断 b 是否支配 other
func (b *Block) Dominates(other *Block) bool {
	for x := other; x != nil; x = x.Dominator {
		if x == b {
			return true
		}
	}
	return false
}

// String 返回块名
func (b *Block) String() string {
	return fmt.Sprintf("B%d", b.ID)
}

// ============================================================================
// 图
// ============================================================================

// Graph 调度完成的程序图
type Graph struct {
	Name   string
	Method *meta.Method

	blocks []*Block
	nodes  []*Node
	sealed bool
}

// Blocks 按支配顺序返回基本块，入口块在前
func (g *Graph) Blocks() []*Block {
	return g.blocks
}

// Entry 返回入口块
func (g *Graph) Entry() *Block {
	if len(g.blocks) == 0 {
		return nil
	}
	return g.blocks[0]
}

// Nodes 返回所有节点（按编号）
func (g *Graph) Nodes() []*Node {
	return g.nodes
}

// NodeCount 返回节点数量，节点编号小于该值
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// Params 按下标返回参数节点
func (g *Graph) Params() []*Node {
	var params []*Node
	for _, n := range g.nodes {
		if n.Op == OpParam {
			params = append(params, n)
		}
	}
	return params
}

// String 打印图（调试用）
func (g *Graph) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "graph %s\n", g.Name)
	for _, b := range g.blocks {
		fmt.Fprintf(&sb, "%s:", b)
		for _, s := range b.Succs {
			fmt.Fprintf(&sb, " ->%s", s)
		}
		sb.WriteString("\n")
		for _, n := range b.nodes {
			fmt.Fprintf(&sb, "  %s %s", n, n.Stamp)
			for _, in := range n.Inputs {
				fmt.Fprintf(&sb, " %s", in)
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

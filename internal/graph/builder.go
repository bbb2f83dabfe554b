package graph

import (
	"github.com/tangzhangming/novalir/internal/meta"
)

// ============================================================================
// 图构建器
// ============================================================================

// Builder 程序图构建器
// 节点按创建顺序调度到当前块中；块在 Build 时按逆后序重排。
type Builder struct {
	g       *Graph
	blocks  []*Block
	current *Block
}

// NewBuilder 创建图构建器，并建立入口块
func NewBuilder(name string, method *meta.Method) *Builder {
	b := &Builder{g: &Graph{Name: name, Method: method}}
	b.current = b.NewBlock()
	return b
}

// NewBlock 创建新的基本块（不切换当前块）
func (b *Builder) NewBlock() *Block {
	blk := &Block{ID: len(b.blocks), Probability: 1}
	b.blocks = append(b.blocks, blk)
	return blk
}

// SetBlock 切换当前块
func (b *Builder) SetBlock(blk *Block) {
	b.current = blk
}

// Current 返回当前块
func (b *Builder) Current() *Block {
	return b.current
}

// Node 创建任意标签的节点并调度到当前块（测试畸形图时也使用）
func (b *Builder) Node(op Op, stamp Stamp, inputs ...*Node) *Node {
	n := &Node{ID: len(b.g.nodes), Op: op, Stamp: stamp, Inputs: inputs}
	b.g.nodes = append(b.g.nodes, n)
	n.block = b.current
	b.current.nodes = append(b.current.nodes, n)
	return n
}

func (b *Builder) edge(from, to *Block) {
	from.Succs = append(from.Succs, to)
	to.Preds = append(to.Preds, from)
}

// ============================================================================
// 浮动节点
// ============================================================================

// Param 参数节点
func (b *Builder) Param(index int, kind meta.Kind) *Node {
	n := b.Node(OpParam, StampFor(kind.StackKind()))
	n.Index = index
	return n
}

// Const 常量节点
func (b *Builder) Const(c meta.Constant) *Node {
	n := b.Node(OpConstant, StampForConstant(c))
	n.Const = c
	return n
}

// ConstInt int 常量
func (b *Builder) ConstInt(v int32) *Node {
	return b.Const(meta.ForInt(v))
}

// ConstLong long 常量
func (b *Builder) ConstLong(v int64) *Node {
	return b.Const(meta.ForLong(v))
}

// Arith 二元算术/逻辑运算，结果种类取自 x
func (b *Builder) Arith(op Op, x, y *Node) *Node {
	return b.Node(op, StampFor(x.Kind()), x, y)
}

// Div 可能陷入的除法/取余运算
func (b *Builder) Div(op Op, x, y *Node, state *FrameState) *Node {
	n := b.Node(op, StampFor(x.Kind()), x, y)
	n.State = state
	return n
}

// Negate 取负
func (b *Builder) Negate(x *Node) *Node {
	return b.Node(OpNegate, StampFor(x.Kind()), x)
}

// Not 按位取反
func (b *Builder) Not(x *Node) *Node {
	return b.Node(OpNot, StampFor(x.Kind()), x)
}

// ConvertTo 类型转换
func (b *Builder) ConvertTo(op ConvertOp, to meta.Kind, x *Node) *Node {
	n := b.Node(OpConvert, StampFor(to), x)
	n.Convert = op
	return n
}

// Compare 比较（逻辑节点）
func (b *Builder) Compare(cond meta.Condition, x, y *Node, unorderedIsTrue bool) *Node {
	n := b.Node(OpCompare, Stamp{Kind: meta.Boolean, Lower: 0, Upper: 1}, x, y)
	n.Cond = cond
	n.UnorderedIsTrue = unorderedIsTrue
	return n
}

// IntegerTest (x & y) == 0 测试（逻辑节点）
func (b *Builder) IntegerTest(x, y *Node) *Node {
	return b.Node(OpIntegerTest, Stamp{Kind: meta.Boolean, Lower: 0, Upper: 1}, x, y)
}

// IsNull 空引用测试（逻辑节点）
func (b *Builder) IsNull(x *Node) *Node {
	return b.Node(OpIsNull, Stamp{Kind: meta.Boolean, Lower: 0, Upper: 1}, x)
}

// Conditional 条件选择 cond ? t : f
func (b *Builder) Conditional(cond, t, f *Node) *Node {
	return b.Node(OpConditional, StampFor(t.Kind()), cond, t, f)
}

// Pi 收窄 stamp 的透传节点
func (b *Builder) Pi(x *Node, stamp Stamp) *Node {
	return b.Node(OpPi, stamp, x)
}

// Intrinsic 内建函数
func (b *Builder) Intrinsic(op IntrinsicOp, x *Node) *Node {
	kind := x.Kind()
	switch op {
	case BitCount, BitScanForward, BitScanReverse:
		kind = meta.Int
	}
	n := b.Node(OpIntrinsic, StampFor(kind), x)
	n.Intrinsic = op
	return n
}

// ============================================================================
// 固定节点
// ============================================================================

// Load 内存读取
func (b *Builder) Load(kind meta.Kind, base *Node, disp int64, nullChecked bool, state *FrameState) *Node {
	n := b.Node(OpLoad, StampFor(kind.StackKind()), base)
	n.Access = &AccessInfo{Kind: kind, Displacement: disp, Scale: 1, NullChecked: nullChecked}
	n.State = state
	return n
}

// LoadIndexed 带比例下标的内存读取
func (b *Builder) LoadIndexed(kind meta.Kind, base, index *Node, disp int64, scale int) *Node {
	n := b.Node(OpLoad, StampFor(kind.StackKind()), base, index)
	n.Access = &AccessInfo{Kind: kind, Displacement: disp, Scale: scale, Indexed: true}
	return n
}

// Store 内存写入
func (b *Builder) Store(kind meta.Kind, base *Node, disp int64, value *Node, nullChecked bool, state *FrameState) *Node {
	n := b.Node(OpStore, VoidStamp, base, value)
	n.Access = &AccessInfo{Kind: kind, Displacement: disp, Scale: 1, NullChecked: nullChecked}
	n.State = state
	return n
}

// StoreIndexed 带比例下标的内存写入
func (b *Builder) StoreIndexed(kind meta.Kind, base, index *Node, disp int64, scale int, value *Node) *Node {
	n := b.Node(OpStore, VoidStamp, base, index, value)
	n.Access = &AccessInfo{Kind: kind, Displacement: disp, Scale: scale, Indexed: true}
	return n
}

// CompareAndSwap 比较并交换 [base+offset]，结果为内存中的旧值
func (b *Builder) CompareAndSwap(kind meta.Kind, base, offset, expected, newValue *Node) *Node {
	n := b.Node(OpCompareAndSwap, StampFor(kind.StackKind()), base, offset, expected, newValue)
	n.Access = &AccessInfo{Kind: kind, Scale: 1}
	return n
}

// NullCheck 显式空检查
func (b *Builder) NullCheck(x *Node, state *FrameState) *Node {
	n := b.Node(OpNullCheck, VoidStamp, x)
	n.State = state
	return n
}

// Membar 内存屏障
func (b *Builder) Membar(barriers meta.Barrier) *Node {
	n := b.Node(OpMembar, VoidStamp)
	n.Barriers = barriers
	return n
}

// MonitorEnter 进入监视器
func (b *Builder) MonitorEnter(object *Node, depth int, state *FrameState) *Node {
	n := b.Node(OpMonitorEnter, VoidStamp, object)
	n.Index = depth
	n.State = state
	return n
}

// MonitorExit 退出监视器
func (b *Builder) MonitorExit(object *Node, depth int, state *FrameState) *Node {
	n := b.Node(OpMonitorExit, VoidStamp, object)
	n.Index = depth
	n.State = state
	return n
}

// Safepoint 安全点轮询
func (b *Builder) Safepoint(state *FrameState) *Node {
	n := b.Node(OpSafepoint, VoidStamp)
	n.State = state
	return n
}

// ForeignCall 调用运行时外部函数
func (b *Builder) ForeignCall(info *ForeignCallInfo, state *FrameState, args ...*Node) *Node {
	n := b.Node(OpForeignCall, StampFor(info.Signature.Return.StackKind()), args...)
	if info.Signature.Return == meta.Void {
		n.Stamp = VoidStamp
	}
	n.Foreign = info
	n.State = state
	return n
}

// Breakpoint 断点
func (b *Builder) Breakpoint(state *FrameState, args ...*Node) *Node {
	n := b.Node(OpBreakpoint, VoidStamp, args...)
	n.State = state
	return n
}

// Infopoint 调试信息点
func (b *Builder) Infopoint(state *FrameState) *Node {
	n := b.Node(OpInfopoint, VoidStamp)
	n.State = state
	return n
}

// Invoke 方法调用（不终结基本块）
func (b *Builder) Invoke(kind meta.InvokeKind, target *meta.Method, state *FrameState, args ...*Node) *Node {
	stamp := VoidStamp
	if target.Signature.Return != meta.Void {
		stamp = StampFor(target.Signature.Return.StackKind())
	}
	n := b.Node(OpInvoke, stamp, args...)
	n.Invoke = &InvokeInfo{Kind: kind, Target: target}
	n.State = state
	return n
}

// IndirectInvoke 间接调用：args 之后追加被调用者身份与目标地址
func (b *Builder) IndirectInvoke(target *meta.Method, state *FrameState, callee, address *Node, args ...*Node) *Node {
	inputs := append(append([]*Node{}, args...), callee, address)
	n := b.Invoke(meta.InvokeStatic, target, state, inputs...)
	n.Invoke.Indirect = true
	return n
}

// InvokeWithException 带异常边的调用，终结当前块
func (b *Builder) InvokeWithException(kind meta.InvokeKind, target *meta.Method, state *FrameState, next, handler *Block, args ...*Node) *Node {
	n := b.Invoke(kind, target, state, args...)
	n.Successors = []*Block{next, handler}
	b.edge(b.current, next)
	b.edge(b.current, handler)
	return n
}

// ============================================================================
// 控制节点
// ============================================================================

// If 条件分支
func (b *Builder) If(cond *Node, trueBlock, falseBlock *Block, probability float64) *Node {
	n := b.Node(OpIf, VoidStamp, cond)
	n.Successors = []*Block{trueBlock, falseBlock}
	n.Probability = probability
	b.edge(b.current, trueBlock)
	b.edge(b.current, falseBlock)
	return n
}

// OverflowCheck 带溢出检查的算术运算：溢出时转向 overflow 块
func (b *Builder) OverflowCheck(arith Op, x, y *Node, overflow, normal *Block) *Node {
	n := b.Node(OpOverflowCheck, StampFor(x.Kind()), x, y)
	n.Arith = arith
	n.Successors = []*Block{overflow, normal}
	b.edge(b.current, overflow)
	b.edge(b.current, normal)
	return n
}

// Switch 多路分支
// keyProbabilities 可以为 nil 或短于 keySuccessors，缺少的项平分剩余概率
func (b *Builder) Switch(key *Node, keys []int64, successors []*Block, keySuccessors []int, keyProbabilities []float64) *Node {
	keyProbabilities = fillProbabilities(keyProbabilities, len(keySuccessors))
	n := b.Node(OpSwitch, VoidStamp, key)
	n.Switch = &SwitchInfo{Keys: keys, KeySuccessors: keySuccessors, KeyProbabilities: keyProbabilities}
	n.Successors = successors
	for _, s := range successors {
		b.edge(b.current, s)
	}
	return n
}

func fillProbabilities(probs []float64, n int) []float64 {
	if len(probs) >= n {
		return probs
	}
	rest := 1.0
	for _, p := range probs {
		rest -= p
	}
	if rest < 0 {
		rest = 0
	}
	out := append(make([]float64, 0, n), probs...)
	share := rest / float64(n-len(probs))
	for len(out) < n {
		out = append(out, share)
	}
	return out
}

// Jump 无条件转移到 target（块只有一个后继时降级为跳转）
func (b *Builder) Jump(target *Block) {
	b.edge(b.current, target)
}

// Merge 在 blk 开头创建 Merge 节点
func (b *Builder) Merge(blk *Block, loop bool) *Node {
	saved := b.current
	b.current = blk
	n := b.Node(OpMerge, VoidStamp)
	b.current = saved
	n.Loop = loop
	// Merge 必须是块内第一个节点
	blk.nodes = append([]*Node{n}, blk.nodes[:len(blk.nodes)-1]...)
	return n
}

// End 结束当前块并流入 merge
func (b *Builder) End(merge *Node) *Node {
	return b.endTo(OpEnd, merge)
}

// LoopEnd 循环回边
func (b *Builder) LoopEnd(merge *Node) *Node {
	return b.endTo(OpLoopEnd, merge)
}

func (b *Builder) endTo(op Op, merge *Node) *Node {
	n := b.Node(op, VoidStamp)
	n.Successors = []*Block{merge.block}
	merge.Inputs = append(merge.Inputs, n)
	b.edge(b.current, merge.block)
	return n
}

// Phi 在 merge 所在块中创建 Phi，values 与 merge 的 End 输入一一对应
func (b *Builder) Phi(merge *Node, kind meta.Kind, values ...*Node) *Node {
	saved := b.current
	b.current = merge.block
	n := b.Node(OpPhi, StampFor(kind.StackKind()), append([]*Node{merge}, values...)...)
	b.current = saved
	// 紧跟在 Merge 与已有 Phi 之后
	nodes := merge.block.nodes
	pos := 1
	for pos < len(nodes)-1 && nodes[pos].Op == OpPhi {
		pos++
	}
	copy(nodes[pos+1:], nodes[pos:len(nodes)-1])
	nodes[pos] = n
	return n
}

// AddPhiInput 为循环 Phi 追加回边上的值
func (b *Builder) AddPhiInput(phi, value *Node) {
	phi.Inputs = append(phi.Inputs, value)
}

// Return 返回；v 为 nil 表示 void
func (b *Builder) Return(v *Node) *Node {
	if v == nil {
		return b.Node(OpReturn, VoidStamp)
	}
	return b.Node(OpReturn, VoidStamp, v)
}

// Unwind 抛出异常并展开当前帧
func (b *Builder) Unwind(exception *Node) *Node {
	return b.Node(OpUnwind, VoidStamp, exception)
}

// Deoptimize 无条件去优化
func (b *Builder) Deoptimize(action meta.DeoptAction, reason meta.DeoptReason, state *FrameState) *Node {
	n := b.Node(OpDeoptimize, VoidStamp)
	n.Deopt = &DeoptInfo{Action: action, Reason: reason}
	n.State = state
	return n
}

// ============================================================================
// 完成构建
// ============================================================================

// Build 计算使用关系、块顺序与支配树，返回只读的图
func (b *Builder) Build() *Graph {
	g := b.g
	for _, n := range g.nodes {
		n.usages = n.usages[:0]
	}
	for _, n := range g.nodes {
		for _, in := range n.Inputs {
			if in != nil {
				in.usages = append(in.usages, n)
			}
		}
	}

	order := computeBlockOrder(b.blocks[0])
	computeDominators(order)
	for i, blk := range order {
		blk.ID = i
	}
	for _, blk := range order {
		for _, p := range blk.Preds {
			if blk.Dominates(p) {
				blk.LoopHeader = true
			}
		}
	}
	g.blocks = order
	g.sealed = true
	return g
}

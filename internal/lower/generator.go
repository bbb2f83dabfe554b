package lower

import (
	"go.uber.org/zap"

	"github.com/tangzhangming/novalir/internal/errors"
	"github.com/tangzhangming/novalir/internal/graph"
	"github.com/tangzhangming/novalir/internal/lir"
	"github.com/tangzhangming/novalir/internal/meta"
)

// ============================================================================
// 降级器
// ============================================================================

// Options 降级选项
type Options struct {
	Switch SwitchHeuristics
	Logger *zap.Logger
	// Uniprocessor 单处理器系统上内存屏障全部省略
	Uniprocessor bool
}

// DefaultOptions 返回默认选项
func DefaultOptions() Options {
	return Options{Switch: DefaultSwitchHeuristics(), Logger: zap.NewNop()}
}

// Generator 一次编译的降级器
// 节点到值的绑定表、帧映射和生成的 LIR 只属于这一次编译
type Generator struct {
	graph   *graph.Graph
	backend Backend
	host    Host
	opts    Options
	log     *zap.Logger

	lir      *lir.LIR
	frameMap *lir.FrameMap
	values   []lir.Value // 以节点编号为下标的绑定表
	blocks   []*lir.Block
	current  *lir.Block
	params   []lir.Value

	err error // 第一个错误，之后的发射全部作废
}

// NewGenerator 创建降级器
func NewGenerator(g *graph.Graph, backend Backend, host Host, fm *lir.FrameMap, opts Options) *Generator {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Switch == (SwitchHeuristics{}) {
		opts.Switch = DefaultSwitchHeuristics()
	}
	return &Generator{
		graph:    g,
		backend:  backend,
		host:     host,
		opts:     opts,
		log:      opts.Logger.With(zap.String("method", g.Name)),
		frameMap: fm,
	}
}

// Lower 遍历图一次并生成 LIR；任何错误都会放弃整个编译
func (gen *Generator) Lower() (*lir.LIR, error) {
	if gen.lir != nil {
		return nil, errors.Internal("graph %s already lowered", gen.graph.Name)
	}
	if gen.graph.Method == nil {
		return nil, errors.Malformed(errors.L0200, "graph has no method").WithMethod(gen.graph.Name)
	}

	blocks := gen.graph.Blocks()
	gen.lir = lir.New(gen.graph.Name, len(blocks), gen.frameMap)
	gen.values = make([]lir.Value, gen.graph.NodeCount())
	gen.blocks = gen.lir.Blocks()
	for _, b := range blocks {
		lb := gen.blocks[b.ID]
		lb.LoopHeader = b.LoopHeader
		lb.Probability = b.Probability
		for _, p := range b.Preds {
			lb.Preds = append(lb.Preds, gen.blocks[p.ID])
		}
		for _, s := range b.Succs {
			lb.Succs = append(lb.Succs, gen.blocks[s.ID])
		}
	}
	gen.backend.Bind(gen)

	for i, b := range blocks {
		gen.current = gen.blocks[b.ID]
		gen.current.Append(lir.NewLabel(gen.current))
		if i == 0 {
			params, err := gen.host.EmitPrologue(gen, gen.graph.Method)
			if err != nil {
				return nil, gen.annotate(err, nil, b)
			}
			gen.params = params
		}
		for _, n := range b.Nodes() {
			if err := gen.lowerNode(n); err != nil {
				gen.log.Warn("lowering failed",
					zap.Int("node", n.ID), zap.Stringer("op", n.Op), zap.Error(err))
				return nil, gen.annotate(err, n, b)
			}
		}
		if !gen.current.Terminated() {
			if len(b.Succs) != 1 {
				return nil, gen.annotate(errors.Malformed(errors.L0203,
					"block %s ends without a control node and has %d successors", b, len(b.Succs)), nil, b)
			}
			gen.backend.EmitJump(gen.blocks[b.Succs[0].ID])
		}
		if gen.err != nil {
			return nil, gen.annotate(gen.err, nil, b)
		}
	}
	return gen.lir, nil
}

func (gen *Generator) lowerNode(n *graph.Node) error {
	fn, ok := dispatch[n.Op]
	if !ok {
		return errors.Unsupported(errors.L0100, "no lowering for %s", n.Op)
	}
	if err := fn(gen, n); err != nil {
		return err
	}
	return gen.err
}

// annotate 给错误附加方法、块、节点上下文
func (gen *Generator) annotate(err error, n *graph.Node, b *graph.Block) error {
	ce, ok := errors.As(err)
	if !ok {
		ce = errors.Internal("lowering failed").Wrap(err)
	}
	ce.WithMethod(gen.graph.Name)
	if n != nil {
		ce.WithNode(n.ID, n.Op.String())
	}
	if b != nil {
		ce.WithBlock(b.ID)
	}
	return ce
}

// fail 记录第一个错误
func (gen *Generator) fail(err error) {
	if gen.err == nil && err != nil {
		gen.err = err
	}
}

// ============================================================================
// 绑定表
// ============================================================================

func (gen *Generator) setResult(n *graph.Node, v lir.Value) {
	gen.values[n.ID] = v
}

// operand 返回节点绑定的值；常量按需生成，逻辑节点按需物化
func (gen *Generator) operand(n *graph.Node) lir.Value {
	if v := gen.values[n.ID]; v != nil {
		return v
	}
	switch {
	case n.Op == graph.OpConstant:
		return lir.NewConstant(n.Const)
	case n.Op == graph.OpPhi:
		return gen.phiVariable(n)
	case isLogic(n):
		v, err := gen.materialize(n)
		if err != nil {
			gen.fail(err)
			return lir.Illegal
		}
		gen.setResult(n, v)
		return v
	}
	gen.fail(errors.Malformed(errors.L0204, "%s is used before it is lowered", n).WithNode(n.ID, n.Op.String()))
	return lir.Illegal
}

func (gen *Generator) operands(nodes []*graph.Node) []lir.Value {
	out := make([]lir.Value, len(nodes))
	for i, n := range nodes {
		out[i] = gen.operand(n)
	}
	return out
}

func (gen *Generator) phiVariable(phi *graph.Node) lir.Value {
	if v := gen.values[phi.ID]; v != nil {
		return v
	}
	v := gen.NewVariable(phi.Kind())
	gen.setResult(phi, v)
	return v
}

func (gen *Generator) blockFor(b *graph.Block) *lir.Block {
	return gen.blocks[b.ID]
}

// state 把图的帧状态转换为 LIR 帧状态
func (gen *Generator) state(fs *graph.FrameState) *lir.FrameState {
	if fs == nil {
		return nil
	}
	conv := func(nodes []*graph.Node) []lir.Value {
		out := make([]lir.Value, len(nodes))
		for i, n := range nodes {
			if n == nil {
				out[i] = lir.Illegal
				continue
			}
			out[i] = gen.operand(n)
		}
		return out
	}
	return &lir.FrameState{
		Method:  fs.Method,
		BCI:     fs.BCI,
		Locals:  conv(fs.Locals),
		Stack:   conv(fs.Stack),
		Locks:   conv(fs.Locks),
		Outer:   gen.state(fs.Outer),
		Rethrow: fs.Rethrow,
	}
}

// ============================================================================
// Tool 实现
// ============================================================================

// LIR 返回正在生成的 LIR
func (gen *Generator) LIR() *lir.LIR { return gen.lir }

// FrameMap 返回帧映射
func (gen *Generator) FrameMap() *lir.FrameMap { return gen.frameMap }

// Backend 返回架构后端
func (gen *Generator) Backend() Backend { return gen.backend }

// Logger 返回日志
func (gen *Generator) Logger() *zap.Logger { return gen.log }

// CurrentBlock 返回当前块
func (gen *Generator) CurrentBlock() *lir.Block { return gen.current }

// NewVariable 分配新变量
func (gen *Generator) NewVariable(kind meta.Kind) *lir.Variable {
	return gen.lir.NewVariable(kind)
}

// Append 向当前块追加指令
func (gen *Generator) Append(inst lir.Instruction) {
	if gen.current.Terminated() {
		gen.fail(errors.Internal("%s appended after terminator in %s", inst.Opcode(), gen.current))
		return
	}
	gen.current.Append(inst)
}

// EmitMove 把值复制到新变量
func (gen *Generator) EmitMove(v lir.Value) *lir.Variable {
	res := gen.NewVariable(v.Kind())
	gen.EmitMoveTo(res, v)
	return res
}

// EmitMoveTo 把 src 复制到 dst
// 栈到栈、或不能直接存储的常量到栈，先经过一个中间变量
func (gen *Generator) EmitMoveTo(dst lir.AllocatableValue, src lir.Value) {
	if lir.IsStackSlot(dst) {
		needTemp := lir.IsStackSlot(src)
		if c, ok := lir.AsConstant(src); ok && !gen.backend.CanStoreConstant(c) {
			needTemp = true
		}
		if needTemp {
			tmp := gen.NewVariable(src.Kind())
			gen.Append(gen.backend.NewMove(tmp, src))
			src = tmp
		}
	}
	gen.Append(gen.backend.NewMove(dst, src))
}

// Load 确保值在变量或寄存器中
func (gen *Generator) Load(v lir.Value) lir.Value {
	if lir.IsVariable(v) || lir.IsRegister(v) {
		return v
	}
	return gen.EmitMove(v)
}

// LoadNonConst 可内联的常量保持原样
func (gen *Generator) LoadNonConst(v lir.Value) lir.Value {
	if c, ok := lir.AsConstant(v); ok && gen.backend.CanInlineConstant(c) {
		return v
	}
	return gen.Load(v)
}

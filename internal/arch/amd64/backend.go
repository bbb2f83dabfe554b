// Package amd64 x86-64 架构后端
//
// 后端只描述指令形状：哪些操作数可以是立即数、哪些可以直接访问内存、
// 哪些必须位于固定寄存器。寄存器分配与机器码编码由下游完成。
package amd64

import (
	"math"
	"strings"

	"github.com/tangzhangming/novalir/internal/errors"
	"github.com/tangzhangming/novalir/internal/graph"
	"github.com/tangzhangming/novalir/internal/lir"
	"github.com/tangzhangming/novalir/internal/lower"
	"github.com/tangzhangming/novalir/internal/meta"
)

// Backend x86-64 降级能力，一次编译一个实例
type Backend struct {
	rc       *lir.RegisterConfig
	features Features
	tool     lower.Tool
}

// New 创建后端；goos 为空时使用当前平台的本地调用约定
func New(goos string, features Features) *Backend {
	return &Backend{rc: ConfigFor(goos), features: features}
}

// Arch 返回架构名
func (b *Backend) Arch() string { return "amd64" }

// WordSize 返回字长
func (b *Backend) WordSize() int { return 8 }

// RegisterConfig 返回寄存器配置
func (b *Backend) RegisterConfig() *lir.RegisterConfig { return b.rc }

// RuntimeRegisters 返回运行时固定寄存器
func (b *Backend) RuntimeRegisters() lower.RuntimeRegisters { return runtimeRegisters() }

// Features 返回启用的 CPU 特性
func (b *Backend) Features() Features { return b.features }

// Bind 绑定到本次编译
func (b *Backend) Bind(tool lower.Tool) { b.tool = tool }

func (b *Backend) emit(inst lir.Instruction) { b.tool.Append(inst) }

// ============================================================================
// 立即数规则
// ============================================================================

func fitsInt32(v int64) bool {
	return v >= math.MinInt32 && v <= math.MaxInt32
}

// CanInlineConstant int 总是可以；long 仅限 32 位有符号范围；引用仅限 null
func (b *Backend) CanInlineConstant(c meta.Constant) bool {
	switch c.Tag() {
	case meta.TagObject:
		return c.IsNull()
	case meta.TagMetadata:
		return c.IsCompressed()
	}
	switch c.Kind().StackKind() {
	case meta.Int:
		return true
	case meta.Long:
		return fitsInt32(c.AsLong())
	}
	return false
}

// CanStoreConstant mov [mem], imm32 能表示的常量
func (b *Backend) CanStoreConstant(c meta.Constant) bool {
	switch c.Kind().StackKind() {
	case meta.Float:
		return true
	case meta.Double:
		return c.IsDefault()
	}
	return b.CanInlineConstant(c)
}

// ============================================================================
// 数据移动
// ============================================================================

// NewMove 源在寄存器或目标在栈上时用 MOV_FROM_REG，否则用 MOV_TO_REG
func (b *Backend) NewMove(dst lir.AllocatableValue, src lir.Value) lir.Instruction {
	if lir.IsRegister(src) || lir.IsVariable(src) || lir.IsStackSlot(dst) {
		return newMoveFromReg(dst, src)
	}
	return newMoveToReg(dst, src)
}

// EmitLea 取栈槽地址
func (b *Backend) EmitLea(slot *lir.StackSlot) lir.Value {
	res := b.tool.NewVariable(meta.Long)
	b.emit(lir.NewOp("LEA").Def(res, lir.REG).Use(slot, lir.STACK))
	return res
}

// ============================================================================
// 控制转移
// ============================================================================

// EmitJump 无条件跳转
func (b *Backend) EmitJump(target *lir.Block) {
	b.emit(lir.NewJump(target))
}

// compareOperands 整数比较左操作数必须在寄存器中，右操作数可以是立即数或内存
// 左边是常量时交换两边并镜像条件
func (b *Backend) compareOperands(kind meta.Kind, left, right lir.Value, cond meta.Condition) (lir.Value, lir.Value, meta.Condition, lir.OperandFlag, error) {
	switch kind {
	case meta.Int, meta.Long, meta.Object:
		if lir.IsConstant(left) && !lir.IsConstant(right) {
			left, right, cond = right, left, cond.Mirror()
		}
		return b.tool.Load(left), b.tool.LoadNonConst(right), cond, lir.REG | lir.STACK | lir.CONST, nil
	case meta.Float, meta.Double:
		if lir.IsConstant(left) && !lir.IsConstant(right) {
			left, right, cond = right, left, cond.Mirror()
		}
		return b.tool.Load(left), b.tool.Load(right), cond, lir.REG | lir.STACK, nil
	}
	return nil, nil, cond, 0, errors.Unsupported(errors.L0102, "compare on %s", kind)
}

// EmitCompareBranch cmp + jcc
func (b *Backend) EmitCompareBranch(kind meta.Kind, left, right lir.Value, cond meta.Condition, unorderedIsTrue bool,
	trueDest, falseDest *lir.Block, trueProbability float64) error {
	l, r, cond, rflags, err := b.compareOperands(kind, left, right, cond)
	if err != nil {
		return err
	}
	op := lir.NewOp("CMP_BRANCH").Use(l, lir.REG).Use(r, rflags).Branch(trueDest, falseDest)
	b.emit(&CompareBranchOp{Op: op, Kind: kind, Cond: cond, UnorderedIsTrue: unorderedIsTrue, TrueProbability: trueProbability})
	return nil
}

// EmitIntegerTestBranch test + je：(left & right) == 0 时转向 trueDest
func (b *Backend) EmitIntegerTestBranch(left, right lir.Value, trueDest, falseDest *lir.Block, trueProbability float64) error {
	if lir.IsConstant(left) {
		left, right = right, left
	}
	op := lir.NewOp("TEST_BRANCH").Use(b.tool.Load(left), lir.REG).Use(b.tool.LoadNonConst(right), lir.REG|lir.STACK|lir.CONST).
		Branch(trueDest, falseDest)
	b.emit(&CompareBranchOp{Op: op, Kind: left.Kind(), Cond: meta.EQ, TrueProbability: trueProbability})
	return nil
}

// EmitOverflowCheckBranch 运算后 jo 到 overflow
func (b *Backend) EmitOverflowCheckBranch(op graph.Op, left, right lir.Value, overflow, normal *lir.Block) (lir.Value, error) {
	kind := left.Kind()
	if kind != meta.Int && kind != meta.Long {
		return nil, errors.Unsupported(errors.L0102, "overflow check on %s", kind)
	}
	name, ok := map[graph.Op]string{graph.OpAdd: "ADD_JO", graph.OpSub: "SUB_JO", graph.OpMul: "MUL_JO"}[op]
	if !ok {
		return nil, errors.Unsupported(errors.L0100, "overflow check on %s", op)
	}
	res := b.tool.NewVariable(kind)
	b.emit(lir.NewOp(name).Def(res, lir.REG).Use(b.tool.Load(left), lir.REG).
		Use(b.tool.LoadNonConst(right), lir.REG|lir.STACK|lir.CONST).Branch(overflow, normal))
	return res, nil
}

// EmitConditionalMove 结果先取 falseValue，条件成立时 cmov 为 trueValue
func (b *Backend) EmitConditionalMove(kind meta.Kind, left, right lir.Value, cond meta.Condition, unorderedIsTrue bool,
	trueValue, falseValue lir.Value) (lir.Value, error) {
	l, r, cond, rflags, err := b.compareOperands(kind, left, right, cond)
	if err != nil {
		return nil, err
	}
	res := b.tool.NewVariable(trueValue.Kind())
	op := lir.NewOp("CMOV").Def(res, lir.REG).Use(l, lir.REG).Use(r, rflags).
		Use(b.tool.Load(trueValue), lir.REG|lir.STACK).Use(falseValue, lir.REG|lir.STACK|lir.CONST)
	b.emit(&CondMoveOp{Op: op, Cond: cond, UnorderedIsTrue: unorderedIsTrue})
	return res, nil
}

// EmitIntegerTestMove test + cmove
func (b *Backend) EmitIntegerTestMove(left, right lir.Value, trueValue, falseValue lir.Value) (lir.Value, error) {
	if lir.IsConstant(left) {
		left, right = right, left
	}
	res := b.tool.NewVariable(trueValue.Kind())
	op := lir.NewOp("TEST_CMOV").Def(res, lir.REG).Use(b.tool.Load(left), lir.REG).
		Use(b.tool.LoadNonConst(right), lir.REG|lir.STACK|lir.CONST).
		Use(b.tool.Load(trueValue), lir.REG|lir.STACK).Use(falseValue, lir.REG|lir.STACK|lir.CONST)
	b.emit(&CondMoveOp{Op: op, Cond: meta.EQ})
	return res, nil
}

// ============================================================================
// 多路分支
// ============================================================================

// EmitTableSwitch 减去最小键后按下标查表，越界转默认分支
// 最小键超出 imm32 时先经 scratch 装入 64 位立即数再相减，scratch 随后再装表地址
func (b *Backend) EmitTableSwitch(lowKey int64, defaultTarget *lir.Block, targets []*lir.Block, key lir.Value) error {
	scratch := b.tool.NewVariable(meta.Long)
	index := b.tool.NewVariable(key.Kind())
	op := lir.NewOp("TABLE_SWITCH").Use(key, lir.REG).Temp(scratch, lir.REG).Temp(index, lir.REG).
		Branch(uniqueBlocks(append([]*lir.Block{defaultTarget}, targets...)...)...)
	b.emit(&TableSwitchOp{Op: op, LowKey: lowKey, WideLowKey: !fitsInt32(lowKey), Default: defaultTarget, Table: targets})
	return nil
}

// EmitSwitchRanges 按区间比较
func (b *Backend) EmitSwitchRanges(ranges []lower.SwitchRange, defaultTarget *lir.Block, key lir.Value) error {
	op := lir.NewOp("RANGE_SWITCH").Use(key, lir.REG)
	if b.needsKeyScratch(key, rangeBounds(ranges)) {
		op.Temp(b.tool.NewVariable(meta.Long), lir.REG)
	}
	targets := []*lir.Block{defaultTarget}
	for _, r := range ranges {
		targets = append(targets, r.Target)
	}
	op.Branch(uniqueBlocks(targets...)...)
	b.emit(&RangeSwitchOp{Op: op, Ranges: ranges, Default: defaultTarget})
	return nil
}

// EmitSequentialSwitch 按给定顺序逐个比较
func (b *Backend) EmitSequentialSwitch(keys []int64, targets []*lir.Block, defaultTarget *lir.Block, key lir.Value) error {
	op := lir.NewOp("SEQ_SWITCH").Use(key, lir.REG)
	if b.needsKeyScratch(key, keys) {
		op.Temp(b.tool.NewVariable(meta.Long), lir.REG)
	}
	op.Branch(uniqueBlocks(append([]*lir.Block{defaultTarget}, targets...)...)...)
	b.emit(&SequentialSwitchOp{Op: op, Keys: keys, KeyTargets: targets, Default: defaultTarget})
	return nil
}

func rangeBounds(ranges []lower.SwitchRange) []int64 {
	out := make([]int64, 0, 2*len(ranges))
	for _, r := range ranges {
		out = append(out, r.Low, r.High)
	}
	return out
}

// needsKeyScratch long 键超出 imm32 时需要临时寄存器装载比较值
func (b *Backend) needsKeyScratch(key lir.Value, keys []int64) bool {
	if key.Kind() != meta.Long {
		return false
	}
	for _, k := range keys {
		if !fitsInt32(k) {
			return true
		}
	}
	return false
}

// ============================================================================
// 算术与逻辑
// ============================================================================

func kindPrefix(kind meta.Kind) string {
	switch kind {
	case meta.Int:
		return "I"
	case meta.Long:
		return "L"
	case meta.Float:
		return "F"
	case meta.Double:
		return "D"
	}
	return "?"
}

func isCommutative(op graph.Op) bool {
	switch op {
	case graph.OpAdd, graph.OpMul, graph.OpAnd, graph.OpOr, graph.OpXor:
		return true
	}
	return false
}

// EmitArithmetic 二地址形式：结果与左操作数同寄存器，右操作数可以是立即数或内存
func (b *Backend) EmitArithmetic(op graph.Op, x, y lir.Value, trap *lir.FrameState) (lir.Value, lir.Instruction, error) {
	kind := x.Kind()
	switch kind {
	case meta.Int, meta.Long:
		return b.emitIntegerArithmetic(op, kind, x, y, trap)
	case meta.Float, meta.Double:
		return b.emitFloatArithmetic(op, kind, x, y)
	}
	return nil, nil, errors.Internal("arithmetic %s on %s", op, kind)
}

func (b *Backend) emitIntegerArithmetic(op graph.Op, kind meta.Kind, x, y lir.Value, trap *lir.FrameState) (lir.Value, lir.Instruction, error) {
	name := kindPrefix(kind) + strings.ToUpper(op.String())
	switch op {
	case graph.OpAdd, graph.OpSub, graph.OpMul, graph.OpAnd, graph.OpOr, graph.OpXor:
		if isCommutative(op) && lir.IsConstant(x) && !lir.IsConstant(y) {
			x, y = y, x
		}
		res := b.tool.NewVariable(kind)
		inst := lir.NewOp(name).Def(res, lir.REG).Use(b.tool.Load(x), lir.REG).
			Use(b.tool.LoadNonConst(y), lir.REG|lir.STACK|lir.CONST)
		b.emit(inst)
		return res, inst, nil

	case graph.OpShl, graph.OpShr, graph.OpUShr:
		res := b.tool.NewVariable(kind)
		inst := lir.NewOp(name).Def(res, lir.REG).Use(b.tool.Load(x), lir.REG)
		if c, ok := lir.AsConstant(y); ok {
			mask := int64(kind.Bits() - 1)
			inst.Use(lir.NewConstant(meta.ForInt(int32(c.AsLong()&mask))), lir.CONST)
		} else {
			// 移位次数固定在 cl
			count := RCX.AsValue(meta.Int)
			b.tool.EmitMoveTo(count, y)
			inst.Use(count, lir.REG)
		}
		b.emit(inst)
		return res, inst, nil

	case graph.OpDiv, graph.OpRem, graph.OpUDiv, graph.OpURem:
		// 被除数与商在 rax，余数在 rdx；cdq/cqo 先写 rdx，除数必须避开它
		rax, rdx := RAX.AsValue(kind), RDX.AsValue(kind)
		b.tool.EmitMoveTo(rax, x)
		inst := lir.NewOp(name).Def(rax, lir.REG).Def(rdx, lir.REG).Use(rax, lir.REG).
			KeepAlive(b.tool.Load(y), lir.REG|lir.STACK)
		if trap != nil {
			inst.WithState(trap)
		}
		b.emit(inst)
		if op == graph.OpRem || op == graph.OpURem {
			return b.tool.EmitMove(rdx), inst, nil
		}
		return b.tool.EmitMove(rax), inst, nil
	}
	return nil, nil, errors.Unsupported(errors.L0100, "integer arithmetic %s", op)
}

func (b *Backend) emitFloatArithmetic(op graph.Op, kind meta.Kind, x, y lir.Value) (lir.Value, lir.Instruction, error) {
	name := kindPrefix(kind) + strings.ToUpper(op.String())
	res := b.tool.NewVariable(kind)
	switch op {
	case graph.OpAdd, graph.OpSub, graph.OpMul, graph.OpDiv:
		inst := lir.NewOp(name).Def(res, lir.REG).Use(b.tool.Load(x), lir.REG).Use(b.tool.Load(y), lir.REG|lir.STACK)
		b.emit(inst)
		return res, inst, nil
	case graph.OpRem:
		// x87 fprem 循环，fnstsw 占用 ax
		inst := lir.NewOp(name).Def(res, lir.REG).Use(b.tool.Load(x), lir.REG).Use(b.tool.Load(y), lir.REG).
			Temp(RAX.AsValue(meta.Int), lir.REG)
		b.emit(inst)
		return res, inst, nil
	}
	return nil, nil, errors.Internal("%s on %s", op, kind)
}

// EmitNegate 取负；浮点通过与符号位掩码异或实现
func (b *Backend) EmitNegate(a lir.Value) (lir.Value, error) {
	kind := a.Kind()
	switch kind {
	case meta.Int, meta.Long, meta.Float, meta.Double:
	default:
		return nil, errors.Internal("negate on %s", kind)
	}
	res := b.tool.NewVariable(kind)
	b.emit(lir.NewOp(kindPrefix(kind)+"NEG").Def(res, lir.REG).Use(b.tool.Load(a), lir.REG))
	return res, nil
}

// EmitNot 按位取反
func (b *Backend) EmitNot(a lir.Value) (lir.Value, error) {
	kind := a.Kind()
	if kind != meta.Int && kind != meta.Long {
		return nil, errors.Internal("not on %s", kind)
	}
	res := b.tool.NewVariable(kind)
	b.emit(lir.NewOp(kindPrefix(kind)+"NOT").Def(res, lir.REG).Use(b.tool.Load(a), lir.REG))
	return res, nil
}

// EmitConvert 类型转换；源可以来自内存
func (b *Backend) EmitConvert(op graph.ConvertOp, a lir.Value) (lir.Value, error) {
	to := op.ResultKind()
	if to == meta.Illegal {
		return nil, errors.Unsupported(errors.L0100, "conversion %s", op)
	}
	if from := op.InputKind(); a.Kind() != from {
		return nil, errors.Internal("conversion %s applied to %s", op, a.Kind())
	}
	res := b.tool.NewVariable(to)
	if lir.IsConstant(a) {
		a = b.tool.Load(a)
	}
	inst := lir.NewOp(op.String()).Def(res, lir.REG).Use(a, lir.REG|lir.STACK)
	switch op {
	case graph.F2I, graph.F2L, graph.D2I, graph.D2L:
		// cvtt 结果为不定值时需要修正 NaN 与溢出
		inst.Temp(b.tool.NewVariable(to), lir.REG)
	}
	b.emit(inst)
	return res, nil
}

// EmitIntrinsic 内建函数；bitCount 需要 POPCNT
func (b *Backend) EmitIntrinsic(op graph.IntrinsicOp, a lir.Value) (lir.Value, error) {
	kind := a.Kind()
	integer := kind == meta.Int || kind == meta.Long
	floating := kind == meta.Float || kind == meta.Double

	var name string
	resKind := kind
	x87 := false
	switch op {
	case graph.BitCount:
		if !b.features.POPCNT {
			return nil, errors.Unsupported(errors.L0101, "bitCount requires POPCNT")
		}
		name, resKind = "POPCNT", meta.Int
	case graph.BitScanForward:
		name, resKind = "BSF", meta.Int
		if b.features.BMI1 {
			name = "TZCNT"
		}
	case graph.BitScanReverse:
		name, resKind = "BSR", meta.Int
	case graph.ByteSwap:
		name = "BSWAP"
	case graph.MathAbs, graph.MathSqrt:
		name = strings.ToUpper(op.String())
		integer = false
	case graph.MathLog, graph.MathLog10, graph.MathSin, graph.MathCos, graph.MathTan:
		name, x87 = strings.ToUpper(op.String()), true
		floating = kind == meta.Double
		integer = false
	default:
		return nil, errors.Unsupported(errors.L0101, "intrinsic %s", op)
	}
	if !integer && !floating {
		return nil, errors.Unsupported(errors.L0102, "%s on %s", op, kind)
	}

	res := b.tool.NewVariable(resKind)
	inst := lir.NewOp(kindPrefix(kind)+name).Def(res, lir.REG).Use(b.tool.Load(a), lir.REG)
	if x87 {
		// x87 超越函数经栈槽中转
		inst.Temp(b.tool.NewVariable(meta.Double), lir.REG|lir.STACK)
	}
	b.emit(inst)
	return res, nil
}

// ============================================================================
// 内存访问
// ============================================================================

// EmitAddress 生成 [base + index*scale + disp]；位移超出 32 位或比例不合法时先计算
func (b *Backend) EmitAddress(kind meta.Kind, base, index lir.Value, scale int, disp int64) *lir.Address {
	if index != nil {
		switch scale {
		case 1, 2, 4, 8:
		default:
			scaled := b.tool.NewVariable(meta.Long)
			b.emit(lir.NewOp("LMUL").Def(scaled, lir.REG).Use(index, lir.REG).
				Use(lir.NewConstant(meta.ForLong(int64(scale))), lir.CONST))
			index, scale = scaled, 1
		}
	}
	if !fitsInt32(disp) {
		sum := b.tool.NewVariable(meta.Long)
		b.emit(lir.NewOp("LADD").Def(sum, lir.REG).Use(base, lir.REG).
			Use(b.tool.EmitMove(lir.NewConstant(meta.ForLong(disp))), lir.REG))
		base, disp = sum, 0
	}
	return lir.NewAddress(kind, base, index, scale, disp)
}

// EmitLoad 内存读取，子整型按符号或零扩展到 int
func (b *Backend) EmitLoad(kind meta.Kind, addr *lir.Address, state *lir.FrameState) (lir.Value, lir.Instruction, error) {
	if kind == meta.Void || kind == meta.Illegal {
		return nil, nil, errors.Unsupported(errors.L0102, "load of %s", kind)
	}
	res := b.tool.NewVariable(kind.StackKind())
	inst := lir.NewOp("LOAD_"+strings.ToUpper(kind.String())).Def(res, lir.REG).Use(addr, lir.ADDR)
	if state != nil {
		inst.WithState(state)
	}
	b.emit(inst)
	return res, inst, nil
}

// EmitStore 内存写入，可存储的常量直接编码为立即数
func (b *Backend) EmitStore(kind meta.Kind, addr *lir.Address, value lir.Value, state *lir.FrameState) (lir.Instruction, error) {
	if kind == meta.Void || kind == meta.Illegal {
		return nil, errors.Unsupported(errors.L0102, "store of %s", kind)
	}
	inst := lir.NewOp("STORE_"+strings.ToUpper(kind.String())).Use(addr, lir.ADDR)
	if c, ok := lir.AsConstant(value); ok && b.CanStoreConstant(c) {
		inst.Use(value, lir.CONST)
	} else {
		inst.Use(b.tool.Load(value), lir.REG)
	}
	if state != nil {
		inst.WithState(state)
	}
	b.emit(inst)
	return inst, nil
}

// EmitNullCheck 读取 [v] 触发隐式空检查
func (b *Backend) EmitNullCheck(v lir.Value, state *lir.FrameState) lir.Instruction {
	inst := lir.NewOp("NULL_CHECK").Use(v, lir.REG).WithState(state)
	b.emit(inst)
	return inst
}

// EmitCompareAndSwap lock cmpxchg：期望值与结果都在 rax
func (b *Backend) EmitCompareAndSwap(kind meta.Kind, addr *lir.Address, expected, newValue lir.Value) (lir.Value, error) {
	sk := kind.StackKind()
	if sk != meta.Int && sk != meta.Long && sk != meta.Object {
		return nil, errors.Unsupported(errors.L0102, "compare-and-swap on %s", kind)
	}
	rax := RAX.AsValue(sk)
	b.tool.EmitMoveTo(rax, expected)
	b.emit(lir.NewOp("CMPXCHG").Def(rax, lir.REG).Use(addr, lir.ADDR).Use(rax, lir.REG).Use(b.tool.Load(newValue), lir.REG))
	return b.tool.EmitMove(rax), nil
}

// EmitMembar x86 只需要为 StoreLoad 发出屏障
func (b *Backend) EmitMembar(barriers meta.Barrier) {
	if barriers&meta.StoreLoad == 0 {
		return
	}
	b.emit(&MembarOp{Op: lir.NewOp("MEMBAR"), Barriers: barriers})
}

// ============================================================================
// 调用
// ============================================================================

func (b *Backend) callOp(name string, result lir.Value, args, temps []lir.Value, state *lir.FrameState) *lir.Op {
	op := lir.NewOp(name)
	if result != nil {
		op.Def(result, lir.REG)
	}
	for _, a := range args {
		op.Use(a, lir.REG|lir.STACK)
	}
	for _, t := range temps {
		op.Temp(t, lir.REG)
	}
	if state != nil {
		op.WithState(state)
	}
	return op
}

// EmitDirectCall 直接调用或经分派表调用
func (b *Backend) EmitDirectCall(target lower.CallTarget, result lir.Value, args []lir.Value, temps []lir.Value, state *lir.FrameState) {
	name := "DIRECT_CALL"
	if target.Kind == lower.CallDispatch {
		name = "DISPATCH_CALL"
	}
	op := b.callOp(name, result, args, temps, state)
	if target.Identity != nil {
		op.Use(target.Identity, lir.REG)
	}
	b.emit(&CallOp{Op: op, Target: target})
}

// EmitIndirectCall 通过寄存器中的地址调用
func (b *Backend) EmitIndirectCall(target lower.CallTarget, result lir.Value, args []lir.Value, temps []lir.Value, state *lir.FrameState) {
	op := b.callOp("INDIRECT_CALL", result, args, temps, state)
	if target.Identity != nil {
		op.Use(target.Identity, lir.REG)
	}
	op.Use(target.TargetReg, lir.REG)
	b.emit(&CallOp{Op: op, Target: target})
}

// EmitForeignCall 运行时外部调用
func (b *Backend) EmitForeignCall(linkage *lower.ForeignCallLinkage, result lir.Value, args []lir.Value, temps []lir.Value, state *lir.FrameState) {
	b.emit(&ForeignCallOp{Op: b.callOp("FOREIGN_CALL", result, args, temps, state), Linkage: linkage})
}

// ============================================================================
// 运行时形状
// ============================================================================

// NewReturn 返回指令，保存帧指针的位置在最终化时补上
func (b *Backend) NewReturn(value lir.Value, isStub bool) lower.EpilogueOp {
	op := lir.NewOp("RETURN").Terminate()
	if value != nil {
		op.Use(value, lir.REG|lir.ILLEGAL)
	}
	return &ReturnOp{Op: op, Stub: isStub}
}

// NewUnwind 展开指令，异常对象在 rax
func (b *Backend) NewUnwind(exception lir.Value, handler uint64) lower.EpilogueOp {
	return &UnwindOp{Op: lir.NewOp("UNWIND").Use(exception, lir.REG).Terminate(), Handler: handler}
}

// EmitSafepointPoll 读取轮询页
func (b *Backend) EmitSafepointPoll(state *lir.FrameState, pollAddress uint64) {
	op := lir.NewOp("SAFEPOINT_POLL").Temp(b.tool.NewVariable(meta.Long), lir.REG).WithState(state)
	b.emit(&SafepointOp{Op: op, PollAddress: pollAddress})
}

// EmitDeoptimize 保存动作与原因后跳到去优化例程
func (b *Backend) EmitDeoptimize(actionAndReason lir.Value, handler uint64, state *lir.FrameState) {
	op := lir.NewOp("DEOPT").Use(actionAndReason, lir.REG|lir.CONST).WithState(state).Terminate()
	b.emit(&DeoptimizeOp{Op: op, Handler: handler})
}

// EmitBreakpoint int3，参数保持存活
func (b *Backend) EmitBreakpoint(args []lir.Value, state *lir.FrameState) {
	op := lir.NewOp("BREAKPOINT")
	for _, a := range args {
		op.Use(a, lir.REG|lir.STACK|lir.CONST)
	}
	if state != nil {
		op.WithState(state)
	}
	b.emit(op)
}

// EmitInfopoint 记录调试信息
func (b *Backend) EmitInfopoint(state *lir.FrameState) {
	b.emit(lir.NewOp("INFOPOINT").WithState(state))
}

var _ lower.Backend = (*Backend)(nil)

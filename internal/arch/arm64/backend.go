// Package arm64 ARM64 架构后端
//
// 与 amd64 不同，ARM64 是读写分离架构：算术与比较只接受寄存器，
// 立即数限于 12 位无符号数，内存只能通过 ldr/str 访问。
package arm64

import (
	"math/bits"
	"strings"

	"github.com/tangzhangming/novalir/internal/errors"
	"github.com/tangzhangming/novalir/internal/graph"
	"github.com/tangzhangming/novalir/internal/lir"
	"github.com/tangzhangming/novalir/internal/lower"
	"github.com/tangzhangming/novalir/internal/meta"
)

// Backend ARM64 降级能力，一次编译一个实例
type Backend struct {
	rc       *lir.RegisterConfig
	features Features
	tool     lower.Tool
}

// New 创建后端
func New(features Features) *Backend {
	return &Backend{rc: AAPCS64Config(), features: features}
}

func (b *Backend) Arch() string                             { return "arm64" }
func (b *Backend) WordSize() int                            { return 8 }
func (b *Backend) RegisterConfig() *lir.RegisterConfig      { return b.rc }
func (b *Backend) RuntimeRegisters() lower.RuntimeRegisters { return runtimeRegisters() }
func (b *Backend) Bind(tool lower.Tool)                     { b.tool = tool }

func (b *Backend) emit(inst lir.Instruction) { b.tool.Append(inst) }

// load 把值装入寄存器
func (b *Backend) load(v lir.Value) lir.Value { return b.tool.Load(v) }

// ============================================================================
// 立即数规则
// ============================================================================

// IsArithImmediate add/sub/cmp 的 12 位无符号立即数
func IsArithImmediate(v int64) bool {
	return v >= 0 && v < 1<<12
}

// CanInlineConstant 仅 12 位无符号整数与 null（零寄存器）
func (b *Backend) CanInlineConstant(c meta.Constant) bool {
	switch c.Tag() {
	case meta.TagObject:
		return c.IsNull()
	case meta.TagMetadata:
		return false
	}
	switch c.Kind().StackKind() {
	case meta.Int, meta.Long:
		return IsArithImmediate(c.AsLong())
	}
	return false
}

// CanStoreConstant 只有零可以通过 zr 直接存储
func (b *Backend) CanStoreConstant(c meta.Constant) bool {
	return c.IsDefault()
}

// ============================================================================
// 数据移动
// ============================================================================

// NewMove str 形状（源在寄存器或目标在栈上）或 ldr/mov 形状
func (b *Backend) NewMove(dst lir.AllocatableValue, src lir.Value) lir.Instruction {
	if lir.IsRegister(src) || lir.IsVariable(src) || lir.IsStackSlot(dst) {
		return lir.NewOp("STR_MOV").Def(dst, lir.REG|lir.STACK).Use(src, lir.REG|lir.CONST)
	}
	return lir.NewOp("LDR_MOV").Def(dst, lir.REG).Use(src, lir.REG|lir.STACK|lir.CONST)
}

// EmitLea add xd, sp, #offset
func (b *Backend) EmitLea(slot *lir.StackSlot) lir.Value {
	res := b.tool.NewVariable(meta.Long)
	b.emit(lir.NewOp("ADD_SP").Def(res, lir.REG).Use(slot, lir.STACK))
	return res
}

// ============================================================================
// 控制转移
// ============================================================================

func (b *Backend) EmitJump(target *lir.Block) {
	b.emit(lir.NewJump(target))
}

// compareOperands 左操作数在寄存器中，右操作数为寄存器或 12 位立即数
func (b *Backend) compareOperands(kind meta.Kind, left, right lir.Value, cond meta.Condition) (lir.Value, lir.Value, meta.Condition, string, error) {
	if lir.IsConstant(left) && !lir.IsConstant(right) {
		left, right, cond = right, left, cond.Mirror()
	}
	switch kind {
	case meta.Int, meta.Long, meta.Object:
		return b.load(left), b.tool.LoadNonConst(right), cond, "CMP", nil
	case meta.Float, meta.Double:
		return b.load(left), b.load(right), cond, "FCMP", nil
	}
	return nil, nil, cond, "", errors.Unsupported(errors.L0102, "compare on %s", kind)
}

func (b *Backend) EmitCompareBranch(kind meta.Kind, left, right lir.Value, cond meta.Condition, unorderedIsTrue bool,
	trueDest, falseDest *lir.Block, trueProbability float64) error {
	l, r, cond, name, err := b.compareOperands(kind, left, right, cond)
	if err != nil {
		return err
	}
	op := lir.NewOp(name+"_BRANCH").Use(l, lir.REG).Use(r, lir.REG|lir.CONST).Branch(trueDest, falseDest)
	b.emit(&CompareBranchOp{Op: op, Cond: cond, UnorderedIsTrue: unorderedIsTrue, TrueProbability: trueProbability})
	return nil
}

// EmitIntegerTestBranch tst 只接受寄存器（不使用逻辑立即数编码）
func (b *Backend) EmitIntegerTestBranch(left, right lir.Value, trueDest, falseDest *lir.Block, trueProbability float64) error {
	op := lir.NewOp("TST_BRANCH").Use(b.load(left), lir.REG).Use(b.load(right), lir.REG).Branch(trueDest, falseDest)
	b.emit(&CompareBranchOp{Op: op, Cond: meta.EQ, TrueProbability: trueProbability})
	return nil
}

// EmitOverflowCheckBranch adds/subs + b.vs；乘法比较高位
func (b *Backend) EmitOverflowCheckBranch(op graph.Op, left, right lir.Value, overflow, normal *lir.Block) (lir.Value, error) {
	kind := left.Kind()
	if kind != meta.Int && kind != meta.Long {
		return nil, errors.Unsupported(errors.L0102, "overflow check on %s", kind)
	}
	res := b.tool.NewVariable(kind)
	var inst *lir.Op
	switch op {
	case graph.OpAdd:
		inst = lir.NewOp("ADDS_BVS").Def(res, lir.REG).Use(b.load(left), lir.REG).Use(b.tool.LoadNonConst(right), lir.REG|lir.CONST)
	case graph.OpSub:
		inst = lir.NewOp("SUBS_BVS").Def(res, lir.REG).Use(b.load(left), lir.REG).Use(b.tool.LoadNonConst(right), lir.REG|lir.CONST)
	case graph.OpMul:
		inst = lir.NewOp("MUL_BVS").Def(res, lir.REG).Use(b.load(left), lir.REG).Use(b.load(right), lir.REG).
			Temp(b.tool.NewVariable(meta.Long), lir.REG)
	default:
		return nil, errors.Unsupported(errors.L0100, "overflow check on %s", op)
	}
	b.emit(inst.Branch(overflow, normal))
	return res, nil
}

// EmitConditionalMove cmp + csel，两个候选值都在寄存器中
func (b *Backend) EmitConditionalMove(kind meta.Kind, left, right lir.Value, cond meta.Condition, unorderedIsTrue bool,
	trueValue, falseValue lir.Value) (lir.Value, error) {
	l, r, cond, name, err := b.compareOperands(kind, left, right, cond)
	if err != nil {
		return nil, err
	}
	res := b.tool.NewVariable(trueValue.Kind())
	op := lir.NewOp(name+"_CSEL").Def(res, lir.REG).Use(l, lir.REG).Use(r, lir.REG|lir.CONST).
		Use(b.load(trueValue), lir.REG).Use(b.load(falseValue), lir.REG)
	b.emit(&SelectOp{Op: op, Cond: cond, UnorderedIsTrue: unorderedIsTrue})
	return res, nil
}

func (b *Backend) EmitIntegerTestMove(left, right lir.Value, trueValue, falseValue lir.Value) (lir.Value, error) {
	res := b.tool.NewVariable(trueValue.Kind())
	op := lir.NewOp("TST_CSEL").Def(res, lir.REG).Use(b.load(left), lir.REG).Use(b.load(right), lir.REG).
		Use(b.load(trueValue), lir.REG).Use(b.load(falseValue), lir.REG)
	b.emit(&SelectOp{Op: op, Cond: meta.EQ})
	return res, nil
}

// ============================================================================
// 多路分支
// ============================================================================

// EmitTableSwitch adr + ldr + br，需要两个临时寄存器
func (b *Backend) EmitTableSwitch(lowKey int64, defaultTarget *lir.Block, targets []*lir.Block, key lir.Value) error {
	op := lir.NewOp("TABLE_SWITCH").Use(key, lir.REG).
		Temp(b.tool.NewVariable(meta.Long), lir.REG).Temp(b.tool.NewVariable(meta.Long), lir.REG).
		Branch(distinct(append([]*lir.Block{defaultTarget}, targets...)...)...)
	b.emit(&SwitchOp{Op: op, LowKey: lowKey, Table: targets, Default: defaultTarget})
	return nil
}

// EmitSwitchRanges 超出立即数范围的边界经临时寄存器比较
func (b *Backend) EmitSwitchRanges(ranges []lower.SwitchRange, defaultTarget *lir.Block, key lir.Value) error {
	targets := []*lir.Block{defaultTarget}
	for _, r := range ranges {
		targets = append(targets, r.Target)
	}
	op := lir.NewOp("RANGE_SWITCH").Use(key, lir.REG).Temp(b.tool.NewVariable(key.Kind()), lir.REG).
		Branch(distinct(targets...)...)
	b.emit(&SwitchOp{Op: op, Ranges: ranges, Default: defaultTarget})
	return nil
}

func (b *Backend) EmitSequentialSwitch(keys []int64, targets []*lir.Block, defaultTarget *lir.Block, key lir.Value) error {
	op := lir.NewOp("SEQ_SWITCH").Use(key, lir.REG).Temp(b.tool.NewVariable(key.Kind()), lir.REG).
		Branch(distinct(append([]*lir.Block{defaultTarget}, targets...)...)...)
	b.emit(&SwitchOp{Op: op, Keys: keys, KeyTargets: targets, Default: defaultTarget})
	return nil
}

// ============================================================================
// 算术与逻辑
// ============================================================================

var kindPrefix = map[meta.Kind]string{meta.Int: "W", meta.Long: "X", meta.Float: "S", meta.Double: "D"}

// EmitArithmetic 三地址形式，只有 add/sub 接受立即数
func (b *Backend) EmitArithmetic(op graph.Op, x, y lir.Value, trap *lir.FrameState) (lir.Value, lir.Instruction, error) {
	kind := x.Kind()
	prefix, ok := kindPrefix[kind]
	if !ok {
		return nil, nil, errors.Internal("arithmetic %s on %s", op, kind)
	}
	name := prefix + strings.ToUpper(op.String())
	res := b.tool.NewVariable(kind)
	floating := kind == meta.Float || kind == meta.Double

	var inst *lir.Op
	switch {
	case floating:
		switch op {
		case graph.OpAdd, graph.OpSub, graph.OpMul, graph.OpDiv:
			inst = lir.NewOp(name).Def(res, lir.REG).Use(b.load(x), lir.REG).Use(b.load(y), lir.REG)
		case graph.OpRem:
			return nil, nil, errors.Unsupported(errors.L0101, "floating-point remainder has no arm64 instruction")
		default:
			return nil, nil, errors.Internal("%s on %s", op, kind)
		}

	case op == graph.OpAdd || op == graph.OpSub:
		if op == graph.OpAdd && lir.IsConstant(x) && !lir.IsConstant(y) {
			x, y = y, x
		}
		inst = lir.NewOp(name).Def(res, lir.REG).Use(b.load(x), lir.REG).Use(b.tool.LoadNonConst(y), lir.REG|lir.CONST)

	case op == graph.OpMul || op == graph.OpAnd || op == graph.OpOr || op == graph.OpXor:
		inst = lir.NewOp(name).Def(res, lir.REG).Use(b.load(x), lir.REG).Use(b.load(y), lir.REG)

	case op == graph.OpShl || op == graph.OpShr || op == graph.OpUShr:
		inst = lir.NewOp(name).Def(res, lir.REG).Use(b.load(x), lir.REG)
		if c, ok := lir.AsConstant(y); ok {
			inst.Use(lir.NewConstant(meta.ForInt(int32(c.AsLong()&int64(kind.Bits()-1)))), lir.CONST)
		} else {
			inst.Use(b.load(y), lir.REG)
		}

	case op == graph.OpDiv || op == graph.OpRem || op == graph.OpUDiv || op == graph.OpURem:
		divisor := b.load(y)
		var check lir.Instruction
		if trap != nil {
			// sdiv 除零不陷入，需要显式检查
			zc := lir.NewOp("DIV_ZERO_CHECK").Use(divisor, lir.REG).WithState(trap)
			b.emit(zc)
			check = zc
		}
		inst = lir.NewOp(name).Def(res, lir.REG).Use(b.load(x), lir.REG).Use(divisor, lir.REG)
		if op == graph.OpRem || op == graph.OpURem {
			// sdiv + msub
			inst.Temp(b.tool.NewVariable(kind), lir.REG)
		}
		b.emit(inst)
		if check != nil {
			return res, check, nil
		}
		return res, inst, nil

	default:
		return nil, nil, errors.Unsupported(errors.L0100, "integer arithmetic %s", op)
	}
	b.emit(inst)
	return res, inst, nil
}

func (b *Backend) EmitNegate(a lir.Value) (lir.Value, error) {
	prefix, ok := kindPrefix[a.Kind()]
	if !ok {
		return nil, errors.Internal("negate on %s", a.Kind())
	}
	res := b.tool.NewVariable(a.Kind())
	b.emit(lir.NewOp(prefix+"NEG").Def(res, lir.REG).Use(b.load(a), lir.REG))
	return res, nil
}

func (b *Backend) EmitNot(a lir.Value) (lir.Value, error) {
	if a.Kind() != meta.Int && a.Kind() != meta.Long {
		return nil, errors.Internal("not on %s", a.Kind())
	}
	res := b.tool.NewVariable(a.Kind())
	b.emit(lir.NewOp(kindPrefix[a.Kind()]+"MVN").Def(res, lir.REG).Use(b.load(a), lir.REG))
	return res, nil
}

// EmitConvert fcvt*/scvtf/sxtw/fmov
func (b *Backend) EmitConvert(op graph.ConvertOp, a lir.Value) (lir.Value, error) {
	to := op.ResultKind()
	if to == meta.Illegal {
		return nil, errors.Unsupported(errors.L0100, "conversion %s", op)
	}
	if a.Kind() != op.InputKind() {
		return nil, errors.Internal("conversion %s applied to %s", op, a.Kind())
	}
	res := b.tool.NewVariable(to)
	b.emit(lir.NewOp(op.String()).Def(res, lir.REG).Use(b.load(a), lir.REG))
	return res, nil
}

// EmitIntrinsic bitCount 需要 ASIMD；没有超越函数指令
func (b *Backend) EmitIntrinsic(op graph.IntrinsicOp, a lir.Value) (lir.Value, error) {
	kind := a.Kind()
	integer := kind == meta.Int || kind == meta.Long
	floating := kind == meta.Float || kind == meta.Double

	var name string
	resKind := kind
	var temps int
	switch {
	case op == graph.BitCount && integer:
		if !b.features.ASIMD {
			return nil, errors.Unsupported(errors.L0101, "bitCount requires ASIMD")
		}
		name, resKind, temps = "CNT", meta.Int, 1
	case op == graph.BitScanForward && integer:
		name, resKind = "RBIT_CLZ", meta.Int
	case op == graph.BitScanReverse && integer:
		name, resKind = "CLZ", meta.Int
	case op == graph.ByteSwap && integer:
		name = "REV"
	case op == graph.MathAbs && floating:
		name = "FABS"
	case op == graph.MathSqrt && floating:
		name = "FSQRT"
	case op == graph.MathLog, op == graph.MathLog10, op == graph.MathSin, op == graph.MathCos, op == graph.MathTan:
		return nil, errors.Unsupported(errors.L0101, "%s has no arm64 instruction", op)
	default:
		return nil, errors.Unsupported(errors.L0102, "%s on %s", op, kind)
	}
	res := b.tool.NewVariable(resKind)
	inst := lir.NewOp(kindPrefix[kind]+name).Def(res, lir.REG).Use(b.load(a), lir.REG)
	for i := 0; i < temps; i++ {
		inst.Temp(b.tool.NewVariable(meta.Double), lir.REG)
	}
	b.emit(inst)
	return res, nil
}

// ============================================================================
// 内存访问
// ============================================================================

// offsetEncodable [base, #imm]：按访问大小缩放的 12 位无符号偏移或 9 位有符号未缩放偏移
func offsetEncodable(disp int64, size int) bool {
	if disp >= -256 && disp <= 255 {
		return true
	}
	return disp >= 0 && disp%int64(size) == 0 && disp/int64(size) < 1<<12
}

// addImmediate base + disp 计算到新变量
func (b *Backend) addImmediate(base lir.Value, disp int64) lir.Value {
	sum := b.tool.NewVariable(meta.Long)
	op := lir.NewOp("XADD").Def(sum, lir.REG).Use(base, lir.REG)
	if IsArithImmediate(disp) {
		op.Use(lir.NewConstant(meta.ForLong(disp)), lir.CONST)
	} else {
		op.Use(b.tool.EmitMove(lir.NewConstant(meta.ForLong(disp))), lir.REG)
	}
	b.emit(op)
	return sum
}

// EmitAddress 只生成 [base, #imm] 或 [base, index, lsl #log2(size)]
func (b *Backend) EmitAddress(kind meta.Kind, base, index lir.Value, scale int, disp int64) *lir.Address {
	size := kind.ByteCount()
	if size == 0 {
		size = 8
	}
	if index == nil {
		if offsetEncodable(disp, size) {
			return lir.NewAddress(kind, base, nil, 1, disp)
		}
		return lir.NewAddress(kind, base, b.tool.EmitMove(lir.NewConstant(meta.ForLong(disp))), 1, 0)
	}
	if scale != 1 && scale != size {
		scaled := b.tool.NewVariable(meta.Long)
		op := lir.NewOp("XMUL").Def(scaled, lir.REG).Use(index, lir.REG)
		if scale > 0 && scale&(scale-1) == 0 {
			op.Name = "XLSL"
			op.Use(lir.NewConstant(meta.ForInt(int32(bits.TrailingZeros(uint(scale))))), lir.CONST)
		} else {
			op.Use(b.tool.EmitMove(lir.NewConstant(meta.ForLong(int64(scale)))), lir.REG)
		}
		b.emit(op)
		index, scale = scaled, 1
	}
	if disp != 0 {
		base = b.addImmediate(base, disp)
	}
	return lir.NewAddress(kind, base, index, scale, 0)
}

// EmitLoad ldr/ldrs*
func (b *Backend) EmitLoad(kind meta.Kind, addr *lir.Address, state *lir.FrameState) (lir.Value, lir.Instruction, error) {
	if kind.ByteCount() == 0 {
		return nil, nil, errors.Unsupported(errors.L0102, "load of %s", kind)
	}
	res := b.tool.NewVariable(kind.StackKind())
	inst := lir.NewOp("LDR_"+strings.ToUpper(kind.String())).Def(res, lir.REG).Use(addr, lir.ADDR)
	if state != nil {
		inst.WithState(state)
	}
	b.emit(inst)
	return res, inst, nil
}

// EmitStore str；零值通过 zr 存储
func (b *Backend) EmitStore(kind meta.Kind, addr *lir.Address, value lir.Value, state *lir.FrameState) (lir.Instruction, error) {
	if kind.ByteCount() == 0 {
		return nil, errors.Unsupported(errors.L0102, "store of %s", kind)
	}
	inst := lir.NewOp("STR_"+strings.ToUpper(kind.String())).Use(addr, lir.ADDR)
	if c, ok := lir.AsConstant(value); ok && b.CanStoreConstant(c) {
		inst.Use(value, lir.CONST)
	} else {
		inst.Use(b.load(value), lir.REG)
	}
	if state != nil {
		inst.WithState(state)
	}
	b.emit(inst)
	return inst, nil
}

func (b *Backend) EmitNullCheck(v lir.Value, state *lir.FrameState) lir.Instruction {
	inst := lir.NewOp("NULL_CHECK").Use(v, lir.REG).WithState(state)
	b.emit(inst)
	return inst
}

// EmitCompareAndSwap 原子指令只接受 [base] 形式的地址
func (b *Backend) EmitCompareAndSwap(kind meta.Kind, addr *lir.Address, expected, newValue lir.Value) (lir.Value, error) {
	sk := kind.StackKind()
	if sk != meta.Int && sk != meta.Long && sk != meta.Object {
		return nil, errors.Unsupported(errors.L0102, "compare-and-swap on %s", kind)
	}
	if addr.Index != nil || addr.Displacement != 0 {
		eff := b.tool.NewVariable(meta.Long)
		b.emit(lir.NewOp("ADDR_ADD").Def(eff, lir.REG).Use(addr, lir.ADDR))
		addr = lir.NewAddress(kind, eff, nil, 1, 0)
	}
	res := b.tool.NewVariable(sk)
	var op *lir.Op
	if b.features.Atomics {
		op = lir.NewOp("CASAL")
	} else {
		op = lir.NewOp("CAS_LLSC").Temp(b.tool.NewVariable(meta.Int), lir.REG)
	}
	op.Def(res, lir.REG).Use(addr, lir.ADDR).Use(b.load(expected), lir.REG).Use(b.load(newValue), lir.REG)
	b.emit(op)
	return res, nil
}

// EmitMembar 弱内存模型：任何屏障都需要 dmb
func (b *Backend) EmitMembar(barriers meta.Barrier) {
	if barriers == 0 {
		return
	}
	name := "DMB_ISH"
	if barriers&(meta.StoreLoad|meta.StoreStore) == 0 {
		name = "DMB_ISHLD"
	}
	b.emit(&RuntimeOp{Op: lir.NewOp(name), Barriers: barriers})
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

func (b *Backend) EmitIndirectCall(target lower.CallTarget, result lir.Value, args []lir.Value, temps []lir.Value, state *lir.FrameState) {
	op := b.callOp("INDIRECT_CALL", result, args, temps, state)
	if target.Identity != nil {
		op.Use(target.Identity, lir.REG)
	}
	op.Use(target.TargetReg, lir.REG)
	b.emit(&CallOp{Op: op, Target: target})
}

func (b *Backend) EmitForeignCall(linkage *lower.ForeignCallLinkage, result lir.Value, args []lir.Value, temps []lir.Value, state *lir.FrameState) {
	op := b.callOp("FOREIGN_CALL", result, args, temps, state)
	b.emit(&CallOp{Op: op, Linkage: linkage, Target: lower.CallTarget{Kind: lower.CallForeign, Name: linkage.Name, Address: linkage.Address}})
}

// ============================================================================
// 运行时形状
// ============================================================================

func (b *Backend) NewReturn(value lir.Value, isStub bool) lower.EpilogueOp {
	op := lir.NewOp("RETURN").Terminate()
	if value != nil {
		op.Use(value, lir.REG|lir.ILLEGAL)
	}
	return &EpilogueOp{Op: op, Stub: isStub}
}

func (b *Backend) NewUnwind(exception lir.Value, handler uint64) lower.EpilogueOp {
	return &EpilogueOp{Op: lir.NewOp("UNWIND").Use(exception, lir.REG).Terminate(), Handler: handler}
}

// EmitSafepointPoll ldr wzr, [poll]
func (b *Backend) EmitSafepointPoll(state *lir.FrameState, pollAddress uint64) {
	op := lir.NewOp("SAFEPOINT_POLL").Temp(b.tool.NewVariable(meta.Long), lir.REG).WithState(state)
	b.emit(&RuntimeOp{Op: op, Address: pollAddress})
}

// EmitDeoptimize 动作与原因先装入寄存器
func (b *Backend) EmitDeoptimize(actionAndReason lir.Value, handler uint64, state *lir.FrameState) {
	op := lir.NewOp("DEOPT").Use(b.load(actionAndReason), lir.REG).WithState(state).Terminate()
	b.emit(&RuntimeOp{Op: op, Address: handler})
}

func (b *Backend) EmitBreakpoint(args []lir.Value, state *lir.FrameState) {
	op := lir.NewOp("BRK")
	for _, a := range args {
		op.Use(b.load(a), lir.REG)
	}
	if state != nil {
		op.WithState(state)
	}
	b.emit(op)
}

func (b *Backend) EmitInfopoint(state *lir.FrameState) {
	b.emit(lir.NewOp("INFOPOINT").WithState(state))
}

var _ lower.Backend = (*Backend)(nil)

// integration.go - 单次编译的宿主集成
//
// 帧指针的保存位置要等整个方法降级完才能确定：有调试信息时必须保存在
// 固定栈槽中以便栈遍历，否则交给寄存器分配器。序言先放一个占位指令，
// 尾声指令记入挂起列表，在 BeforeRegisterAllocation 中一次性补齐。

package hostrt

import (
	"go.uber.org/zap"

	"github.com/tangzhangming/novalir/internal/errors"
	"github.com/tangzhangming/novalir/internal/graph"
	"github.com/tangzhangming/novalir/internal/lir"
	"github.com/tangzhangming/novalir/internal/lower"
	"github.com/tangzhangming/novalir/internal/meta"
)

// Integration lower.Host 的实现，一次编译一个实例
type Integration struct {
	ctx     *Context
	backend lower.Backend
	log     *zap.Logger

	stub        bool
	fpSlot      *lir.StackSlot
	placeholder *lir.PlaceholderOp
	pending     []lower.EpilogueOp
	finalized   bool
}

// NewIntegration 为一次编译创建宿主集成
func (c *Context) NewIntegration(backend lower.Backend) *Integration {
	return &Integration{ctx: c, backend: backend, log: c.logger}
}

// Pending 返回尚未补齐的尾声数量
func (i *Integration) Pending() int {
	if i.finalized {
		return 0
	}
	return len(i.pending)
}

// ============================================================================
// 序言与尾声
// ============================================================================

// EmitPrologue 定义入参位置，预留帧指针保存槽，并把入参复制到变量
func (i *Integration) EmitPrologue(tool lower.Tool, method *meta.Method) ([]lir.Value, error) {
	if i.placeholder != nil {
		return nil, errors.Internal("prologue emitted twice for %s", method)
	}
	i.stub = method.Stub
	l := tool.LIR()
	l.FullFrame = !method.Stub
	i.log = tool.Logger()

	convention := lir.JavaCallee
	if method.Stub {
		convention = lir.RuntimeStub
	}
	rc := i.backend.RegisterConfig()
	cc, err := rc.CallingConvention(convention, method.Signature, tool.FrameMap())
	if err != nil {
		return nil, err
	}

	defs := make([]lir.AllocatableValue, 0, len(cc.Arguments)+1)
	defs = append(defs, cc.Arguments...)
	defs = append(defs, i.backend.RuntimeRegisters().FramePointer.AsValue(meta.Long))
	tool.Append(lir.NewParameters(defs))

	// 第一个溢出槽留给帧指针
	slot, err := tool.FrameMap().AllocateSpillSlot(meta.Long)
	if err != nil {
		return nil, err
	}
	i.fpSlot = slot
	i.placeholder = lir.NewPlaceholder(tool.CurrentBlock())

	if convention == lir.JavaCallee && cc.StackArgs() {
		l.HasArgInCallerFrame = true
	}

	params := make([]lir.Value, len(cc.Arguments))
	for k, a := range cc.Arguments {
		params[k] = tool.EmitMove(a)
	}
	return params, nil
}

// EmitReturn 返回值放入返回寄存器，尾声指令等待补齐
func (i *Integration) EmitReturn(tool lower.Tool, value lir.Value) error {
	var ret lir.Value
	if value != nil {
		kind := value.Kind()
		reg := i.backend.RegisterConfig().ReturnRegister(kind).AsValue(kind)
		tool.EmitMoveTo(reg, value)
		ret = reg
	}
	op := i.backend.NewReturn(ret, i.stub)
	tool.Append(op)
	i.pending = append(i.pending, op)
	return nil
}

// EmitUnwind 异常对象放入约定寄存器后展开
func (i *Integration) EmitUnwind(tool lower.Tool, exception lir.Value) error {
	reg := i.backend.RuntimeRegisters().Exception.AsValue(meta.Object)
	tool.EmitMoveTo(reg, exception)
	op := i.backend.NewUnwind(reg, i.ctx.cfg.Stubs.UnwindHandler)
	tool.Append(op)
	i.pending = append(i.pending, op)
	return nil
}

// BeforeRegisterAllocation 唯一的最终化钩子
func (i *Integration) BeforeRegisterAllocation(l *lir.LIR) error {
	if i.finalized {
		return errors.InternalCode(errors.L0402, "%s finalized twice", l.Name)
	}
	i.finalized = true
	if i.placeholder == nil {
		return errors.InternalCode(errors.L0402, "%s has no prologue", l.Name)
	}

	fm := l.FrameMap()
	var saved lir.AllocatableValue
	debugInfo := l.HasDebugInfo()
	if debugInfo {
		saved = i.fpSlot
		rescue, err := fm.AllocateSpillSlot(meta.Long)
		if err != nil {
			return err
		}
		l.DeoptRescueSlot = rescue
	} else {
		saved = l.NewVariable(meta.Long)
		if err := fm.FreeSpillSlot(i.fpSlot); err != nil {
			return err
		}
	}

	fp := i.backend.RuntimeRegisters().FramePointer.AsValue(meta.Long)
	if err := i.placeholder.Replace(i.backend.NewMove(saved, fp)); err != nil {
		return err
	}
	for _, op := range i.pending {
		op.SetSavedFramePointer(saved)
	}
	for _, op := range i.pending {
		if op.SavedFramePointer() == nil {
			return errors.InternalCode(errors.L0402, "%s: epilogue %s was not patched", l.Name, op.Opcode())
		}
	}

	i.log.Debug("frame pointer save resolved",
		zap.Bool("debug_info", debugInfo),
		zap.Stringer("location", saved),
		zap.Int("epilogues", len(i.pending)))
	return nil
}

// ============================================================================
// 安全点、监视器与去优化
// ============================================================================

// EmitSafepoint 安全点轮询
func (i *Integration) EmitSafepoint(tool lower.Tool, state *lir.FrameState) error {
	if state == nil {
		return errors.Malformed(errors.L0200, "safepoint without frame state")
	}
	i.backend.EmitSafepointPoll(state, i.ctx.cfg.Stubs.SafepointPoll)
	return nil
}

// lockAddress 取深度为 depth 的锁槽地址
func (i *Integration) lockAddress(tool lower.Tool, depth int) (lir.Value, error) {
	fm := tool.FrameMap()
	if err := fm.ReserveLockSlots(depth+1, i.ctx.cfg.Layout.BasicLockSize); err != nil {
		return nil, err
	}
	slot, err := fm.LockSlot(depth)
	if err != nil {
		return nil, err
	}
	return i.backend.EmitLea(slot), nil
}

// EmitMonitorEnter 调用监视器进入桩
func (i *Integration) EmitMonitorEnter(tool lower.Tool, object lir.Value, depth int, state *lir.FrameState) error {
	lock, err := i.lockAddress(tool, depth)
	if err != nil {
		return err
	}
	_, err = tool.EmitForeignCall(i.ctx.monitorEnter, state, object, lock)
	return err
}

// EmitMonitorExit 调用监视器退出桩
func (i *Integration) EmitMonitorExit(tool lower.Tool, object lir.Value, depth int, state *lir.FrameState) error {
	lock, err := i.lockAddress(tool, depth)
	if err != nil {
		return err
	}
	_, err = tool.EmitForeignCall(i.ctx.monitorExit, state, object, lock)
	return err
}

// EmitDeoptimize 动作与原因编码为一个 int 常量
func (i *Integration) EmitDeoptimize(tool lower.Tool, action meta.DeoptAction, reason meta.DeoptReason, state *lir.FrameState) error {
	if state == nil {
		return errors.Malformed(errors.L0200, "deoptimize without frame state")
	}
	code := lir.NewConstant(meta.ForInt(meta.EncodeDeopt(action, reason)))
	i.backend.EmitDeoptimize(code, i.ctx.cfg.Stubs.DeoptHandler, state)
	return nil
}

// ============================================================================
// 调用
// ============================================================================

// EmitInvoke 解析调用目标
//
//	static/special     直接调用被调用者入口
//	virtual/interface  经分派表调用，方法元数据常量放入固定寄存器
//	indirect           被调用者身份与目标地址预先放入固定寄存器
func (i *Integration) EmitInvoke(tool lower.Tool, info *graph.InvokeInfo, args []lir.Value, state *lir.FrameState) (lir.Value, error) {
	target := info.Target
	if target == nil {
		return nil, errors.Malformed(errors.L0200, "invoke without target")
	}
	rc := i.backend.RegisterConfig()
	rr := i.backend.RuntimeRegisters()

	callArgs := args
	var identity, address lir.Value
	if info.Indirect {
		if len(args) < 2 {
			return nil, errors.Malformed(errors.L0200, "indirect invoke needs callee and address inputs")
		}
		identity, address = args[len(args)-2], args[len(args)-1]
		callArgs = args[:len(args)-2]
	}

	cc, err := rc.CallingConvention(lir.JavaCall, target.Signature, tool.FrameMap())
	if err != nil {
		return nil, err
	}
	locs, err := tool.MoveArguments(cc, callArgs)
	if err != nil {
		return nil, err
	}

	temps := rc.CallerSavedValues()
	var result lir.Value
	if cc.Return != nil {
		result = cc.Return
		temps = lower.WithoutRegister(temps, result)
	}

	ct := lower.CallTarget{
		Name:        target.String(),
		Address:     target.Entry,
		Method:      target.Handle,
		VTableIndex: target.VTableIndex,
	}
	switch {
	case info.Indirect:
		idReg := rr.IndirectMethod.AsValue(meta.Long)
		tool.EmitMoveTo(idReg, identity)
		targetReg := rr.IndirectTarget.AsValue(meta.Long)
		tool.EmitMoveTo(targetReg, address)
		ct.Kind, ct.Identity, ct.TargetReg = lower.CallIndirect, idReg, targetReg
		i.backend.EmitIndirectCall(ct, result, locs, temps, state)

	case info.Kind.IsDirect():
		ct.Kind = lower.CallDirect
		i.backend.EmitDirectCall(ct, result, locs, temps, state)

	default:
		idReg := rr.IndirectMethod.AsValue(meta.Long)
		tool.EmitMoveTo(idReg, lir.NewConstant(target.MetadataConstant()))
		ct.Kind, ct.Identity = lower.CallDispatch, idReg
		i.backend.EmitDirectCall(ct, result, locs, temps, state)
	}

	if result == nil {
		return nil, nil
	}
	return tool.EmitMove(result), nil
}

// ForeignCallLinkage 已登记的名称优先；否则按本地调用约定直接调用给定地址
func (i *Integration) ForeignCallLinkage(info *graph.ForeignCallInfo) (*lower.ForeignCallLinkage, error) {
	if l, ok := i.ctx.foreign[info.Name]; ok {
		return l, nil
	}
	if info.Address == 0 {
		return nil, errors.Unsupported(errors.L0100, "unknown foreign call %q", info.Name)
	}
	return &lower.ForeignCallLinkage{
		Name:       info.Name,
		Address:    info.Address,
		Signature:  info.Signature,
		Convention: lir.NativeCall,
		Reexecute:  info.Reexecute,
	}, nil
}

var _ lower.Host = (*Integration)(nil)

// registers.go - x86-64 寄存器与调用约定
//
// Java 调用约定沿用宿主虚拟机的参数寄存器顺序；
// 本地调用约定支持 Windows x64 和 System V AMD64 两种。

package amd64

import (
	"runtime"

	"github.com/tangzhangming/novalir/internal/lir"
	"github.com/tangzhangming/novalir/internal/lower"
)

// ============================================================================
// 寄存器
// ============================================================================

func cpuReg(n int, name string) *lir.Register {
	return &lir.Register{Number: n, Name: name, Class: lir.CPU}
}

func xmmReg(n int, name string) *lir.Register {
	return &lir.Register{Number: n, Name: name, Class: lir.FPU}
}

// 通用寄存器（编号与指令编码一致）
var (
	RAX = cpuReg(0, "rax")
	RCX = cpuReg(1, "rcx")
	RDX = cpuReg(2, "rdx")
	RBX = cpuReg(3, "rbx")
	RSP = cpuReg(4, "rsp")
	RBP = cpuReg(5, "rbp")
	RSI = cpuReg(6, "rsi")
	RDI = cpuReg(7, "rdi")
	R8  = cpuReg(8, "r8")
	R9  = cpuReg(9, "r9")
	R10 = cpuReg(10, "r10")
	R11 = cpuReg(11, "r11")
	R12 = cpuReg(12, "r12")
	R13 = cpuReg(13, "r13")
	R14 = cpuReg(14, "r14")
	R15 = cpuReg(15, "r15")
)

// 浮点寄存器
var (
	XMM0  = xmmReg(16, "xmm0")
	XMM1  = xmmReg(17, "xmm1")
	XMM2  = xmmReg(18, "xmm2")
	XMM3  = xmmReg(19, "xmm3")
	XMM4  = xmmReg(20, "xmm4")
	XMM5  = xmmReg(21, "xmm5")
	XMM6  = xmmReg(22, "xmm6")
	XMM7  = xmmReg(23, "xmm7")
	XMM8  = xmmReg(24, "xmm8")
	XMM9  = xmmReg(25, "xmm9")
	XMM10 = xmmReg(26, "xmm10")
	XMM11 = xmmReg(27, "xmm11")
	XMM12 = xmmReg(28, "xmm12")
	XMM13 = xmmReg(29, "xmm13")
	XMM14 = xmmReg(30, "xmm14")
	XMM15 = xmmReg(31, "xmm15")
)

var allXMM = []*lir.Register{XMM0, XMM1, XMM2, XMM3, XMM4, XMM5, XMM6, XMM7,
	XMM8, XMM9, XMM10, XMM11, XMM12, XMM13, XMM14, XMM15}

// 宿主约定的固定寄存器
var (
	ThreadRegister         = R15 // 当前线程
	IndirectMethodRegister = RBX // 间接/分派调用的被调用者身份
	IndirectTargetRegister = R10 // 间接调用的目标地址
)

// ============================================================================
// 寄存器配置
// ============================================================================

// javaArgs 宿主虚拟机编译代码之间的调用约定
var javaArgs = lir.ArgRules{
	ArgRegs:      []*lir.Register{RSI, RDX, RCX, R8, R9, RDI},
	FloatArgRegs: allXMM[:8],
}

// stubArgs 运行时桩的调用约定：监视器桩依次接收对象与锁地址
var stubArgs = lir.ArgRules{
	ArgRegs: []*lir.Register{RSI, RDX, RCX},
}

// SystemVConfig System V AMD64 寄存器配置 (Linux/macOS)
func SystemVConfig() *lir.RegisterConfig {
	return &lir.RegisterConfig{
		Name: "amd64-sysv",
		Java: javaArgs,
		Native: lir.ArgRules{
			ArgRegs:      []*lir.Register{RDI, RSI, RDX, RCX, R8, R9},
			FloatArgRegs: allXMM[:8],
		},
		Stub:         stubArgs,
		RetReg:       RAX,
		FloatRetReg:  XMM0,
		CallerSaved:  append([]*lir.Register{RAX, RCX, RDX, RSI, RDI, R8, R9, R10, R11}, allXMM...),
		CalleeSaved:  []*lir.Register{RBX, R12, R13, R14, R15},
		Allocatable:  allocatable(),
		FramePointer: RBP,
		StackPointer: RSP,
		StackAlign:   16,
		WordSize:     8,
	}
}

// WindowsConfig Windows x64 寄存器配置
func WindowsConfig() *lir.RegisterConfig {
	return &lir.RegisterConfig{
		Name: "amd64-win64",
		Java: javaArgs,
		Native: lir.ArgRules{
			ArgRegs:      []*lir.Register{RCX, RDX, R8, R9},
			FloatArgRegs: allXMM[:4],
			ShadowSpace:  32,
			SharedSlots:  true,
		},
		Stub:         stubArgs,
		RetReg:       RAX,
		FloatRetReg:  XMM0,
		CallerSaved:  append([]*lir.Register{RAX, RCX, RDX, R8, R9, R10, R11}, allXMM[:6]...),
		CalleeSaved:  append([]*lir.Register{RBX, RSI, RDI, R12, R13, R14, R15}, allXMM[6:]...),
		Allocatable:  allocatable(),
		FramePointer: RBP,
		StackPointer: RSP,
		StackAlign:   16,
		WordSize:     8,
	}
}

// ConfigFor 按操作系统选择寄存器配置，空字符串表示当前平台
func ConfigFor(goos string) *lir.RegisterConfig {
	if goos == "" {
		goos = runtime.GOOS
	}
	if goos == "windows" {
		return WindowsConfig()
	}
	return SystemVConfig()
}

// allocatable 除栈指针、帧指针与线程寄存器外的所有寄存器
func allocatable() []*lir.Register {
	regs := []*lir.Register{RAX, RBX, RCX, RDX, RSI, RDI, R8, R9, R10, R11, R12, R13, R14}
	return append(regs, allXMM...)
}

func runtimeRegisters() lower.RuntimeRegisters {
	return lower.RuntimeRegisters{
		FramePointer:   RBP,
		StackPointer:   RSP,
		Thread:         ThreadRegister,
		IndirectMethod: IndirectMethodRegister,
		IndirectTarget: IndirectTargetRegister,
		Exception:      RAX,
		CASExpected:    RAX,
	}
}

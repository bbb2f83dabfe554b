// registers.go - ARM64 寄存器与调用约定

package arm64

import (
	"fmt"

	"github.com/tangzhangming/novalir/internal/lir"
	"github.com/tangzhangming/novalir/internal/lower"
)

// ============================================================================
// 寄存器
// ============================================================================

// X 通用寄存器 x0-x30，SP 编号 31
var X [31]*lir.Register

// V 浮点/SIMD 寄存器 v0-v31，编号从 32 开始
var V [32]*lir.Register

// SP 栈指针
var SP = &lir.Register{Number: 31, Name: "sp", Class: lir.CPU}

func init() {
	for i := range X {
		X[i] = &lir.Register{Number: i, Name: fmt.Sprintf("x%d", i), Class: lir.CPU}
	}
	for i := range V {
		V[i] = &lir.Register{Number: 32 + i, Name: fmt.Sprintf("v%d", i), Class: lir.FPU}
	}
}

// 特殊用途寄存器
const (
	scratch1     = 8  // rscratch1
	methodReg    = 12 // 被调用者身份
	scratch2     = 9  // 间接调用目标
	platformReg  = 18 // 平台保留
	heapBaseReg  = 27 // 压缩指针基址
	threadReg    = 28 // 当前线程
	framePointer = 29
	linkRegister = 30
)

// ============================================================================
// 寄存器配置
// ============================================================================

func regs(numbers ...int) []*lir.Register {
	out := make([]*lir.Register, len(numbers))
	for i, n := range numbers {
		out[i] = X[n]
	}
	return out
}

// AAPCS64Config ARM64 寄存器配置
// 本地调用约定为 AAPCS64；Java 调用约定的参数从 x1 开始，x0 排在最后
func AAPCS64Config() *lir.RegisterConfig {
	var allocatable []*lir.Register
	for i := 0; i < 31; i++ {
		switch i {
		case scratch1, scratch2, platformReg, heapBaseReg, threadReg, framePointer, linkRegister:
			continue
		}
		allocatable = append(allocatable, X[i])
	}
	allocatable = append(allocatable, V[:]...)

	callerSaved := regs(0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17)
	callerSaved = append(callerSaved, V[0:8]...)
	callerSaved = append(callerSaved, V[16:32]...)

	return &lir.RegisterConfig{
		Name: "arm64-aapcs64",
		Java: lir.ArgRules{
			ArgRegs:      regs(1, 2, 3, 4, 5, 6, 7, 0),
			FloatArgRegs: V[0:8],
		},
		Native: lir.ArgRules{
			ArgRegs:      regs(0, 1, 2, 3, 4, 5, 6, 7),
			FloatArgRegs: V[0:8],
		},
		Stub: lir.ArgRules{
			ArgRegs: regs(1, 2, 3),
		},
		RetReg:       X[0],
		FloatRetReg:  V[0],
		CallerSaved:  callerSaved,
		CalleeSaved:  append(regs(19, 20, 21, 22, 23, 24, 25, 26, 27, 28), V[8:16]...),
		Allocatable:  allocatable,
		FramePointer: X[framePointer],
		StackPointer: SP,
		StackAlign:   16,
		WordSize:     8,
	}
}

func runtimeRegisters() lower.RuntimeRegisters {
	return lower.RuntimeRegisters{
		FramePointer:   X[framePointer],
		StackPointer:   SP,
		Thread:         X[threadReg],
		IndirectMethod: X[methodReg],
		IndirectTarget: X[scratch2],
		Exception:      X[0],
	}
}

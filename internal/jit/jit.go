// Package jit 方法级编译驱动
//
// 一次编译的流水线：
//
//	graph.Verify → lower.Generator.Lower → Host.BeforeRegisterAllocation → LIR.Verify → Result
//
// Compiler 可以被多个 goroutine 同时使用；编译之间只共享只读的 hostrt.Context
// 与原子统计计数。寄存器分配与机器码发射不在本包范围内。
package jit

import (
	"time"

	"github.com/tangzhangming/novalir/internal/lir"
)

// Result 一次成功编译的产物，发布后只读
type Result struct {
	Method       string
	LIR          *lir.LIR
	FrameMap     *lir.FrameMap
	FullFrame    bool   // false 表示运行时桩的最小帧
	Fingerprint  string // LIR 的确定性摘要
	Instructions int
	CompileTime  time.Duration
}

// Dump 以 JSON 导出 LIR（调试用）
func (r *Result) Dump() ([]byte, error) {
	return lir.Dump(r.LIR)
}

// Stats 编译器统计
type Stats struct {
	Compiled     int64         // 成功编译数
	Failed       int64         // 失败编译数
	Instructions int64         // 产出的 LIR 指令总数
	CacheHits    int64         // 缓存命中
	CacheMisses  int64         // 缓存未命中
	CompileTime  time.Duration // 成功编译的累计耗时
}

package amd64

import (
	"fmt"
	"strings"

	"golang.org/x/sys/cpu"
)

// Features 影响指令选择的 CPU 特性
type Features struct {
	POPCNT bool // bitCount
	BMI1   bool // tzcnt
	LZCNT  bool // lzcnt（x/sys/cpu 不单独报告，随 BMI1 推断）
	AVX    bool // 三操作数浮点形式
}

// DetectFeatures 检测当前 CPU
func DetectFeatures() Features {
	return Features{
		POPCNT: cpu.X86.HasPOPCNT,
		BMI1:   cpu.X86.HasBMI1,
		LZCNT:  cpu.X86.HasBMI1,
		AVX:    cpu.X86.HasAVX,
	}
}

// ParseFeatures 解析配置中的特性列表，覆盖检测结果
func ParseFeatures(names []string) (Features, error) {
	var f Features
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "popcnt":
			f.POPCNT = true
		case "bmi1":
			f.BMI1 = true
		case "lzcnt":
			f.LZCNT = true
		case "avx":
			f.AVX = true
		case "":
		default:
			return Features{}, fmt.Errorf("unknown amd64 feature %q", name)
		}
	}
	return f, nil
}

// Names 返回已启用特性的名称
func (f Features) Names() []string {
	var names []string
	if f.POPCNT {
		names = append(names, "popcnt")
	}
	if f.BMI1 {
		names = append(names, "bmi1")
	}
	if f.LZCNT {
		names = append(names, "lzcnt")
	}
	if f.AVX {
		names = append(names, "avx")
	}
	return names
}

// region.go - 堆外原始内存区域
//
// 区域不受 GC 管理，地址在释放前保持不变，可以作为原始地址常量的读取目标。

package memaccess

import (
	"fmt"
	"unsafe"
)

// Region 一段堆外内存
type Region struct {
	mem []byte
}

// NewRegion 分配至少 size 字节的区域（按页对齐）
func NewRegion(size int) (*Region, error) {
	if size <= 0 {
		return nil, fmt.Errorf("region size must be positive, got %d", size)
	}
	mem, err := allocRegion(size)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate region: %w", err)
	}
	return &Region{mem: mem}, nil
}

// Base 返回区域起始地址
func (r *Region) Base() uint64 {
	if len(r.mem) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(&r.mem[0])))
}

// Size 返回区域字节数
func (r *Region) Size() int {
	return len(r.mem)
}

// Bytes 返回区域内容（写入用于准备测试数据）
func (r *Region) Bytes() []byte {
	return r.mem
}

// contains [addr, addr+n) 是否完全落在区域内
func (r *Region) contains(addr uint64, n int) bool {
	base := r.Base()
	return n > 0 && n <= len(r.mem) && addr >= base && addr-base <= uint64(len(r.mem)-n)
}

// Close 释放区域
func (r *Region) Close() error {
	if len(r.mem) == 0 {
		return nil
	}
	err := freeRegion(r.mem)
	r.mem = nil
	return err
}

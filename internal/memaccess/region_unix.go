//go:build !windows

package memaccess

import (
	"golang.org/x/sys/unix"
)

// allocRegion mmap 匿名私有映射（读写）
func allocRegion(size int) ([]byte, error) {
	pageSize := unix.Getpagesize()
	aligned := (size + pageSize - 1) &^ (pageSize - 1)
	return unix.Mmap(-1, 0, aligned, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
}

func freeRegion(mem []byte) error {
	return unix.Munmap(mem)
}

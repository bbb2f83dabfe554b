//go:build windows

package memaccess

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

const pageSize = 4096

// allocRegion VirtualAlloc 提交读写页
func allocRegion(size int) ([]byte, error) {
	aligned := (size + pageSize - 1) &^ (pageSize - 1)
	addr, err := windows.VirtualAlloc(0, uintptr(aligned), windows.MEM_COMMIT|windows.MEM_RESERVE, windows.PAGE_READWRITE)
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), aligned), nil
}

func freeRegion(mem []byte) error {
	return windows.VirtualFree(uintptr(unsafe.Pointer(&mem[0])), 0, windows.MEM_RELEASE)
}

// framemap.go - 栈帧映射
//
// 帧布局（相对帧基址，向下增长）:
//
//	+N      调用者帧中的入参
//	 0      ---- 帧基址 ----
//	-8      返回地址
//	-16     第一个溢出槽（通常保存帧指针）
//	...     溢出槽 / 锁槽
//	        出参区（相对栈顶）
//
// 溢出槽只有在显式释放后才会被重用。

package lir

import (
	"sort"

	"github.com/tangzhangming/novalir/internal/errors"
	"github.com/tangzhangming/novalir/internal/meta"
)

// FrameMap 一次编译的栈槽分配记录
type FrameMap struct {
	WordSize     int
	StackAlign   int
	MaxFrameSize int

	spillSize    int          // 溢出区已使用的字节数（不含返回地址）
	free         []int        // 已释放、可重用的槽偏移
	live         map[int]bool // 正在使用的槽偏移
	lockSlots    []*StackSlot
	outgoingSize int
	incomingSize int
}

// NewFrameMap 创建帧映射
func NewFrameMap(wordSize, stackAlign, maxFrameSize int) *FrameMap {
	if stackAlign == 0 {
		stackAlign = 16
	}
	return &FrameMap{
		WordSize:     wordSize,
		StackAlign:   stackAlign,
		MaxFrameSize: maxFrameSize,
		live:         make(map[int]bool),
	}
}

// AllocateSpillSlot 分配一个字长溢出槽
func (f *FrameMap) AllocateSpillSlot(kind meta.Kind) (*StackSlot, error) {
	if len(f.free) > 0 {
		sort.Sort(sort.Reverse(sort.IntSlice(f.free)))
		off := f.free[0]
		f.free = f.free[1:]
		f.live[off] = true
		return NewStackSlot(kind, off, AreaSpill), nil
	}
	off, err := f.grow(f.WordSize)
	if err != nil {
		return nil, err
	}
	f.live[off] = true
	return NewStackSlot(kind, off, AreaSpill), nil
}

// grow 在溢出区末尾扩展 bytes 字节，返回新区域最低地址的偏移
func (f *FrameMap) grow(bytes int) (int, error) {
	if f.MaxFrameSize > 0 && f.frameSizeWith(f.spillSize+bytes, f.outgoingSize) > f.MaxFrameSize {
		return 0, errors.Exhausted(errors.L0300, "stack slot would exceed maximum frame size %d", f.MaxFrameSize)
	}
	f.spillSize += bytes
	return -(f.WordSize + f.spillSize), nil
}

// FreeSpillSlot 释放溢出槽，之后才可被重用
func (f *FrameMap) FreeSpillSlot(slot *StackSlot) error {
	if slot.Area != AreaSpill || !f.live[slot.Offset] {
		return errors.Internal("freeing slot %s that is not live", slot)
	}
	delete(f.live, slot.Offset)
	f.free = append(f.free, slot.Offset)
	return nil
}

// IsLive 槽是否正在使用
func (f *FrameMap) IsLive(slot *StackSlot) bool {
	return slot.Area == AreaSpill && f.live[slot.Offset]
}

// ReserveLockSlots 为 count 个监视器预留锁槽（每个锁 lockSize 字节，按字长对齐）
func (f *FrameMap) ReserveLockSlots(count, lockSize int) error {
	size := (lockSize + f.WordSize - 1) / f.WordSize * f.WordSize
	for len(f.lockSlots) < count {
		off, err := f.grow(size)
		if err != nil {
			return err
		}
		f.live[off] = true
		f.lockSlots = append(f.lockSlots, NewStackSlot(meta.Long, off, AreaSpill))
	}
	return nil
}

// LockSlot 返回嵌套深度为 depth 的锁槽
func (f *FrameMap) LockSlot(depth int) (*StackSlot, error) {
	if depth < 0 || depth >= len(f.lockSlots) {
		return nil, errors.Internal("lock depth %d out of range (%d reserved)", depth, len(f.lockSlots))
	}
	return f.lockSlots[depth], nil
}

// ReserveOutgoing 为调用的出参预留空间（取最大值）
func (f *FrameMap) ReserveOutgoing(bytes int) error {
	if bytes <= f.outgoingSize {
		return nil
	}
	if f.MaxFrameSize > 0 && f.frameSizeWith(f.spillSize, bytes) > f.MaxFrameSize {
		return errors.Exhausted(errors.L0301, "outgoing area of %d bytes exceeds maximum frame size %d", bytes, f.MaxFrameSize)
	}
	f.outgoingSize = bytes
	return nil
}

// OutgoingSize 返回出参区大小
func (f *FrameMap) OutgoingSize() int {
	return f.outgoingSize
}

// IncomingSlot 返回调用者帧中偏移为 offset 的入参槽
func (f *FrameMap) IncomingSlot(kind meta.Kind, offset int) *StackSlot {
	if end := offset + f.WordSize; end > f.incomingSize {
		f.incomingSize = end
	}
	return NewStackSlot(kind, offset, AreaIncoming)
}

// IncomingSize 返回调用者帧中入参占用的字节数
func (f *FrameMap) IncomingSize() int {
	return f.incomingSize
}

// SpillSize 返回溢出区字节数
func (f *FrameMap) SpillSize() int {
	return f.spillSize
}

// FrameSize 返回对齐后的帧大小（不含返回地址）
func (f *FrameMap) FrameSize() int {
	return f.frameSizeWith(f.spillSize, f.outgoingSize)
}

func (f *FrameMap) frameSizeWith(spill, outgoing int) int {
	total := spill + outgoing + f.WordSize
	total = (total + f.StackAlign - 1) &^ (f.StackAlign - 1)
	return total - f.WordSize
}

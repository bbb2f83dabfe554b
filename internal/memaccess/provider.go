// Package memaccess 常量折叠使用的推测性内存读取
//
// 读取的基址是带标签的常量，标签决定读取方式：
//
//	托管对象   通过反射按字段偏移读取，GC 安全
//	原始地址   整数常量，只允许读取已登记的堆外区域
//	元数据句柄 查询注册表，只有登记过的偏移可读
//
// 任何无法完成的读取都返回 errors.ErrUnavailable，调用方应把表达式视为非常量。
package memaccess

import (
	"encoding/binary"
	"math"
	"reflect"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/tangzhangming/novalir/internal/errors"
	"github.com/tangzhangming/novalir/internal/meta"
)

// MetadataSource 元数据已知字段的来源
type MetadataSource interface {
	Field(h meta.MetadataHandle, disp int64) (meta.Constant, bool)
}

// Provider 内存读取器，可被多个编译线程并发使用
type Provider struct {
	metadata MetadataSource

	mu      sync.RWMutex
	regions []*Region
}

// NewProvider 创建读取器；metadata 为 nil 时元数据读取全部不可用
func NewProvider(metadata MetadataSource) *Provider {
	return &Provider{metadata: metadata}
}

// AddRegion 登记可以按原始地址读取的区域
func (p *Provider) AddRegion(r *Region) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.regions = append(p.regions, r)
}

// RemoveRegion 撤销登记，应在释放区域之前调用
func (p *Provider) RemoveRegion(r *Region) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, x := range p.regions {
		if x == r {
			p.regions = append(p.regions[:i], p.regions[i+1:]...)
			return
		}
	}
}

// ============================================================================
// 读取接口
// ============================================================================

// ReadPrimitive 读取 bits 位原始值并按 kind 重新解释
func (p *Provider) ReadPrimitive(kind meta.Kind, base meta.Constant, disp int64, bits int) (meta.Constant, error) {
	if !kind.IsPrimitive() {
		return meta.Constant{}, errors.Unavailable("%s is not a primitive kind", kind)
	}
	switch bits {
	case 8, 16, 32, 64:
	default:
		return meta.Constant{}, errors.Unavailable("unsupported read width %d", bits)
	}

	var raw uint64
	var err error
	switch base.Tag() {
	case meta.TagObject:
		raw, err = readObjectField(base.Object(), disp, bits)
	case meta.TagPrimitive:
		raw, err = p.readRaw(base, disp, bits)
	case meta.TagMetadata:
		raw, err = p.readMetadataBits(base, disp, bits)
	}
	if err != nil {
		return meta.Constant{}, err
	}
	c, convErr := meta.FromRawBits(kind, raw)
	if convErr != nil {
		return meta.Constant{}, errors.Unavailable("%v", convErr)
	}
	return c, nil
}

// ReadObject 读取引用字段
func (p *Provider) ReadObject(base meta.Constant, disp int64) (meta.Constant, error) {
	switch base.Tag() {
	case meta.TagObject:
		return readObjectRef(base.Object(), disp)
	case meta.TagMetadata:
		c, err := p.readMetadata(base, disp)
		if err != nil {
			return meta.Constant{}, err
		}
		if c.Kind() != meta.Object {
			return meta.Constant{}, errors.Unavailable("metadata %#x at %d is %s, not a reference", uint64(base.Handle()), disp, c.Kind())
		}
		return c, nil
	}
	// 原始内存中没有可以安全还原的托管引用
	return meta.Constant{}, errors.Unavailable("reference read from raw address %s", base)
}

// ReadUnsafe 按 kind 的自然宽度读取，不做字段类型检查之外的校验
func (p *Provider) ReadUnsafe(kind meta.Kind, base meta.Constant, disp int64) (meta.Constant, error) {
	if kind == meta.Object {
		return p.ReadObject(base, disp)
	}
	if !kind.IsPrimitive() {
		return meta.Constant{}, errors.Unavailable("cannot read %s", kind)
	}
	return p.ReadPrimitive(kind, base, disp, kind.Bits())
}

// ============================================================================
// 元数据
// ============================================================================

func (p *Provider) readMetadata(base meta.Constant, disp int64) (meta.Constant, error) {
	if p.metadata == nil {
		return meta.Constant{}, errors.Unavailable("no metadata source")
	}
	c, ok := p.metadata.Field(base.Handle(), disp)
	if !ok {
		return meta.Constant{}, errors.Unavailable("metadata %#x has no known value at %d", uint64(base.Handle()), disp)
	}
	return c, nil
}

// readMetadataBits 取登记值的低 bits 位（本机小端序下即同一偏移处的字节），带符号扩展
func (p *Provider) readMetadataBits(base meta.Constant, disp int64, bits int) (uint64, error) {
	c, err := p.readMetadata(base, disp)
	if err != nil {
		return 0, err
	}
	if !c.Kind().IsPrimitive() {
		return 0, errors.Unavailable("metadata %#x at %d is %s, not primitive", uint64(base.Handle()), disp, c.Kind())
	}
	if width := c.Kind().Bits(); bits > width {
		return 0, errors.Unavailable("metadata %#x at %d is %d bits wide, read of %d", uint64(base.Handle()), disp, width, bits)
	}
	return signExtend(c.Bits(), bits), nil
}

// ============================================================================
// 原始地址
// ============================================================================

func (p *Provider) readRaw(base meta.Constant, disp int64, bits int) (uint64, error) {
	if !base.Kind().IsNumericInteger() {
		return 0, errors.Unavailable("%s is not a raw address", base)
	}
	addr := uint64(base.AsLong()) + uint64(disp)
	n := bits / 8

	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, r := range p.regions {
		if r.contains(addr, n) {
			return loadRaw(r.mem[addr-r.Base():], bits), nil
		}
	}
	return 0, errors.Unavailable("address %#x is outside every registered region", addr)
}

// signExtend 把低 bits 位按有符号数扩展到 64 位
func signExtend(raw uint64, bits int) uint64 {
	if bits >= 64 {
		return raw
	}
	shift := 64 - bits
	return uint64(int64(raw<<shift) >> shift)
}

// loadRaw 本机字节序读取，窄读取带符号扩展；对齐的 32/64 位读取使用原子加载
func loadRaw(b []byte, bits int) uint64 {
	ptr := unsafe.Pointer(&b[0])
	switch bits {
	case 8:
		return uint64(int64(int8(b[0])))
	case 16:
		return uint64(int64(int16(binary.NativeEndian.Uint16(b))))
	case 32:
		if uintptr(ptr)%4 == 0 {
			return uint64(int64(int32(atomic.LoadUint32((*uint32)(ptr)))))
		}
		return uint64(int64(int32(binary.NativeEndian.Uint32(b))))
	default:
		if uintptr(ptr)%8 == 0 {
			return atomic.LoadUint64((*uint64)(ptr))
		}
		return binary.NativeEndian.Uint64(b)
	}
}

// ============================================================================
// 托管对象
// ============================================================================

// locate 找到对象中偏移为 disp 的字段或数组元素
func locate(obj any, disp int64) (reflect.Value, error) {
	if obj == nil {
		return reflect.Value{}, errors.Unavailable("read through null")
	}
	v := reflect.ValueOf(obj)
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Value{}, errors.Unavailable("read through nil pointer")
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < t.NumField(); i++ {
			if int64(t.Field(i).Offset) == disp {
				return v.Field(i), nil
			}
		}
	case reflect.Slice, reflect.Array:
		size := int64(v.Type().Elem().Size())
		if size > 0 && disp >= 0 && disp%size == 0 && disp/size < int64(v.Len()) {
			return v.Index(int(disp / size)), nil
		}
	}
	return reflect.Value{}, errors.Unavailable("no field of %s at displacement %d", v.Type(), disp)
}

func readObjectField(obj any, disp int64, bits int) (uint64, error) {
	f, err := locate(obj, disp)
	if err != nil {
		return 0, err
	}
	if int(f.Type().Size())*8 != bits {
		return 0, errors.Unavailable("field of type %s is not %d bits wide", f.Type(), bits)
	}
	switch f.Kind() {
	case reflect.Bool:
		if f.Bool() {
			return 1, nil
		}
		return 0, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return uint64(f.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return f.Uint(), nil
	case reflect.Float32:
		return uint64(math.Float32bits(float32(f.Float()))), nil
	case reflect.Float64:
		return math.Float64bits(f.Float()), nil
	}
	return 0, errors.Unavailable("field of type %s is not primitive", f.Type())
}

func readObjectRef(obj any, disp int64) (meta.Constant, error) {
	f, err := locate(obj, disp)
	if err != nil {
		return meta.Constant{}, err
	}
	switch f.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
	default:
		return meta.Constant{}, errors.Unavailable("field of type %s is not a reference", f.Type())
	}
	if f.IsNil() {
		return meta.NullPointer, nil
	}
	if !f.CanInterface() {
		return meta.Constant{}, errors.Unavailable("unexported reference field of type %s", f.Type())
	}
	return meta.ForObject(f.Interface()), nil
}

package hostrt

import (
	"sync"

	"github.com/tangzhangming/novalir/internal/meta"
)

// Registry 元数据注册表
// 类加载时登记，编译线程并发读取
type Registry struct {
	mu      sync.RWMutex
	methods map[meta.MetadataHandle]*meta.Method
	fields  map[meta.MetadataHandle]map[int64]meta.Constant
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{
		methods: make(map[meta.MetadataHandle]*meta.Method),
		fields:  make(map[meta.MetadataHandle]map[int64]meta.Constant),
	}
}

// AddMethod 登记方法元数据
func (r *Registry) AddMethod(m *meta.Method) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.methods[m.Handle] = m
}

// Method 按句柄查找方法
func (r *Registry) Method(h meta.MetadataHandle) (*meta.Method, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.methods[h]
	return m, ok
}

// SetField 登记元数据在 disp 处的已知值
func (r *Registry) SetField(h meta.MetadataHandle, disp int64, c meta.Constant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fs := r.fields[h]
	if fs == nil {
		fs = make(map[int64]meta.Constant)
		r.fields[h] = fs
	}
	fs[disp] = c
}

// Field 读取元数据在 disp 处的值；未登记的位置不可读
func (r *Registry) Field(h meta.MetadataHandle, disp int64) (meta.Constant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.fields[h][disp]
	return c, ok
}

// Known 句柄是否已登记
func (r *Registry) Known(h meta.MetadataHandle) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, m := r.methods[h]
	_, f := r.fields[h]
	return m || f
}

// RegisterClass 按对象布局登记类镜像与数组元素类型镜像
func (c *Context) RegisterClass(h meta.MetadataHandle, mirror, componentMirror any) {
	c.registry.SetField(h, c.cfg.Layout.ClassMirrorOffset, meta.ForObject(mirror))
	if componentMirror != nil {
		c.registry.SetField(h, c.cfg.Layout.ArrayComponentMirrorOffset, meta.ForObject(componentMirror))
	}
}

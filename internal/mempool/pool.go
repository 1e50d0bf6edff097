// Package mempool recycles the float32 tensor buffers handed to the mark
// model. Every mark cell produces an input tensor of the same shape, so
// buffers are bucketed by size class and reused across classification calls.
package mempool

import (
	"sync"
	"sync/atomic"
)

const classStep = 4096

var (
	pools  sync.Map // size class -> *sync.Pool
	gets   atomic.Int64
	allocs atomic.Int64
)

func sizeClass(n int) int {
	if n <= classStep {
		return classStep
	}
	return (n + classStep - 1) / classStep * classStep
}

func poolFor(cls int) *sync.Pool {
	if p, ok := pools.Load(cls); ok {
		return p.(*sync.Pool)
	}
	p, _ := pools.LoadOrStore(cls, &sync.Pool{New: func() any {
		allocs.Add(1)
		return make([]float32, cls)
	}})
	return p.(*sync.Pool)
}

// GetFloat32 returns a buffer of length n. Contents are not zeroed.
func GetFloat32(n int) []float32 {
	gets.Add(1)
	cls := sizeClass(n)
	buf, _ := poolFor(cls).Get().([]float32)
	if cap(buf) < cls {
		buf = make([]float32, cls)
	}
	return buf[:n]
}

// PutFloat32 returns a buffer obtained from GetFloat32. Nil is ignored.
func PutFloat32(buf []float32) {
	if buf == nil {
		return
	}
	cls := sizeClass(cap(buf))
	if cls != cap(buf) {
		// foreign slice with an odd capacity; let the GC have it
		return
	}
	poolFor(cls).Put(buf[:cls]) //nolint:staticcheck // slices are small headers
}

// Stats reports how many buffers were requested and how many had to be allocated.
func Stats() (requested, allocated int64) {
	return gets.Load(), allocs.Load()
}

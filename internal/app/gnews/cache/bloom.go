package cache

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// SourceFilter 挡在 resolutions 表前面：按 source_url 记录"库里已有解析结果"。
// MightContain 为 false 时这条源链接一定没解析过，查库可以省掉；为 true 时仍可能误判。
type SourceFilter struct {
	mu       sync.RWMutex
	bits     *bloom.BloomFilter
	capacity uint
}

// NewSourceFilter 按预期源链接数量和误判率估算位图大小。
func NewSourceFilter(capacity uint, fpRate float64) *SourceFilter {
	return &SourceFilter{
		bits:     bloom.NewWithEstimates(capacity, fpRate),
		capacity: capacity,
	}
}

func (f *SourceFilter) Add(sourceURL string) {
	f.mu.Lock()
	f.bits.AddString(sourceURL)
	f.mu.Unlock()
}

func (f *SourceFilter) MightContain(sourceURL string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.bits.TestString(sourceURL)
}

// Len 是已写入源链接数的估算值。
func (f *SourceFilter) Len() uint32 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.bits.ApproximatedSize()
}

// Saturated 写入量超过预期容量后误判率会明显升高，需要调大容量重启。
func (f *SourceFilter) Saturated() bool {
	return uint(f.Len()) >= f.capacity
}

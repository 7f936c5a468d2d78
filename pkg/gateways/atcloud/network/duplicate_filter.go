package network

import (
	"sync"

	bloomFilter "github.com/bits-and-blooms/bloom/v3"
)

const (
	FilterCapacity             uint    = 100000
	DuplicationProbability     float64 = 0.01
	ResetFilterUsagePercentage float32 = 75
)

// DuplicateFilter remembers recently seen message ids. The filter is
// cleared once the approximated number of ids passes maximumUsage percent
// of the capacity it was sized for.
type DuplicateFilter struct {
	mu           sync.Mutex
	filter       *bloomFilter.BloomFilter
	capacity     uint
	maximumUsage float32
}

func NewDuplicateFilter(capacity uint, probability float64, maximumUsage float32) *DuplicateFilter {
	return &DuplicateFilter{
		filter:       bloomFilter.NewWithEstimates(capacity, probability),
		capacity:     capacity,
		maximumUsage: maximumUsage,
	}
}

// Seen records id and reports whether it was (probably) recorded before.
func (f *DuplicateFilter) Seen(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetWhenFull()
	key := []byte(id)
	if f.filter.Test(key) {
		return true
	}
	f.filter.Add(key)
	return false
}

func (f *DuplicateFilter) resetWhenFull() {
	approximatedFilterSize := f.filter.ApproximatedSize()
	currentPercentageFilterUsage := (float32(approximatedFilterSize) / float32(f.capacity)) * 100
	if currentPercentageFilterUsage >= f.maximumUsage {
		f.filter.ClearAll()
	}
}

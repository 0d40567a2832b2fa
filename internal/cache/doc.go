// Package cache provides a small generic LRU cache for device resources.
//
// Entries are evicted strictly least-recently-used once the capacity is
// exceeded. An optional eviction callback receives every value that leaves
// the cache, whether by eviction, Delete or Clear, so that
// owners can release GPU objects deterministically:
//
//	kernels := cache.New[size, *kernel](2, func(_ size, k *kernel) {
//	    k.destroy()
//	})
//	k, err := kernels.GetOrCreate(sz, func() (*kernel, error) {
//	    return compile(sz)
//	})
//
// Cache is safe for concurrent use and must not be copied after creation.
package cache

package jvmti

import (
	"strconv"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"
)

// classInfo bundles the three per-class results golang-lru caches together,
// since they are always resolved together (see CachingHandle.resolveClass).
type classInfo struct {
	signature string
	generic   string
	sourceFile string
	hasSource bool
}

// CachingHandle wraps a VmHandle with a per-class-id cache: a class's
// signature, generic signature, and source file never change once the class
// is loaded, so repeated CompiledMethodLoad events for methods of the same
// class do not need to re-enter the VM. Concurrent first-lookups for the
// same class id are coalesced with singleflight so a burst of inlined
// frames from one newly-compiled method — all referencing the same
// just-seen class — makes exactly one round trip instead of one per frame.
//
// CachingHandle changes nothing observable: §5 still treats VmHandle as
// logically shared and read-only after attach; this only removes redundant
// blocking VM calls.
type CachingHandle struct {
	VmHandle
	cache *lru.Cache
	group singleflight.Group
}

// NewCachingHandle wraps handle with an LRU cache of the given size.
func NewCachingHandle(handle VmHandle, size int) (*CachingHandle, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &CachingHandle{VmHandle: handle, cache: c}, nil
}

// GetClassSignature overrides the embedded VmHandle to serve from cache.
func (h *CachingHandle) GetClassSignature(id ClassID) (string, string, error) {
	info, err := h.resolveClass(id)
	if err != nil {
		return "", "", err
	}
	return info.signature, info.generic, nil
}

// GetSourceFileName overrides the embedded VmHandle to serve from cache.
func (h *CachingHandle) GetSourceFileName(id ClassID) (string, bool, error) {
	info, err := h.resolveClass(id)
	if err != nil {
		return "", false, err
	}
	return info.sourceFile, info.hasSource, nil
}

func (h *CachingHandle) resolveClass(id ClassID) (classInfo, error) {
	if v, ok := h.cache.Get(id); ok {
		return v.(classInfo), nil
	}

	v, err, _ := h.group.Do(keyFor(id), func() (interface{}, error) {
		if v, ok := h.cache.Get(id); ok {
			return v.(classInfo), nil
		}
		sig, generic, err := h.VmHandle.GetClassSignature(id)
		if err != nil {
			return classInfo{}, err
		}
		src, ok, err := h.VmHandle.GetSourceFileName(id)
		if err != nil {
			return classInfo{}, err
		}
		info := classInfo{signature: sig, generic: generic, sourceFile: src, hasSource: ok}
		h.cache.Add(id, info)
		return info, nil
	})
	if err != nil {
		return classInfo{}, err
	}
	return v.(classInfo), nil
}

func keyFor(id ClassID) string {
	return strconv.FormatUint(uint64(id), 16)
}

package demangle

import (
	"github.com/VictoriaMetrics/fastcache"
)

// Cache memoizes the combined display name WriterTask derives from a
// (class signature, method name, method signature) triple. Hot methods are
// reported repeatedly across CompiledMethodLoad events (OSR recompiles,
// deopt/recompile cycles); re-parsing the same descriptor pair on every event
// is wasted work. fastcache is a byte-in/byte-out cache with no per-entry
// Go-heap object, so it does not add GC pressure on the writer's hot path.
type Cache struct {
	c *fastcache.Cache
}

// NewCache creates a Cache with the given approximate maximum byte size.
func NewCache(maxBytes int) *Cache {
	return &Cache{c: fastcache.New(maxBytes)}
}

// CombinedName returns the rendered "<return> <class>.<method>(<params>)"
// form for the given descriptors, falling back to the raw concatenation
// "<classSig>.<methodName><methodSig>" when either descriptor fails to
// parse (§4.1 DemangleFailed recovery). Results are memoized by the
// concatenation of the three raw descriptor strings.
func (c *Cache) CombinedName(classSig, methodName, methodSig string) string {
	name, _ := c.CombinedNameStatus(classSig, methodName, methodSig)
	return name
}

// CombinedNameStatus is CombinedName plus whether the descriptors actually
// demangled (demangled == false means the raw-concatenation fallback was
// used). Callers that want to log a DemangleFailed fallback once per
// descriptor shape, rather than once per event, use this to learn the
// status without re-parsing on every cache hit.
func (c *Cache) CombinedNameStatus(classSig, methodName, methodSig string) (name string, demangled bool) {
	key := make([]byte, 0, len(classSig)+len(methodName)+len(methodSig)+2)
	key = append(key, classSig...)
	key = append(key, 0)
	key = append(key, methodName...)
	key = append(key, 0)
	key = append(key, methodSig...)

	if v, ok := c.c.HasGet(nil, key); ok && len(v) > 0 {
		return string(v[1:]), v[0] == 1
	}

	rendered, ok := render(classSig, methodName, methodSig)
	stored := make([]byte, 0, len(rendered)+1)
	if ok {
		stored = append(stored, 1)
	} else {
		stored = append(stored, 0)
	}
	stored = append(stored, rendered...)
	c.c.Set(key, stored)
	return rendered, ok
}

func render(classSig, methodName, methodSig string) (string, bool) {
	class, err1 := ParseClassType(classSig)
	mt, err2 := ParseMethodType(methodSig)
	if err1 != nil || err2 != nil {
		return classSig + "." + methodName + methodSig, false
	}
	return MethodSignature(class, methodName, mt), true
}

package writer

import (
	"crypto/sha256"

	bloom "github.com/holiman/bloomfilter/v2"

	"github.com/jitprobe/rvmti-agent/internal/log"
)

// demangleFailureLog remembers which raw (class signature, method
// signature) pairs have already produced a DemangleFailed fallback, so a
// method descriptor shape the demangler can't parse logs a warning once per
// process instead of once per CompiledMethodLoad event for that method.
//
// Approximate membership is fine here: a false positive only means one
// fewer warning is printed for some shape, never a missed drop of the
// underlying event (the event is still written with the raw-concatenation
// fallback name regardless of whether the warning fires).
type demangleFailureLog struct {
	filter *bloom.Filter
}

// expectedShapes sizes the filter for a generous number of distinct
// unparseable descriptor shapes seen over a long-running process; false
// positive rate trades off against memory, not correctness.
const expectedShapes = 4096

func newDemangleFailureLog() *demangleFailureLog {
	filter, err := bloom.NewOptimal(expectedShapes, 0.01)
	if err != nil {
		logger.Warn("failed constructing demangle-failure bloom filter, warnings will not be deduplicated", "err", err)
		return &demangleFailureLog{}
	}
	return &demangleFailureLog{filter: filter}
}

func (d *demangleFailureLog) warnOnce(classSig, methodName, methodSig string) {
	if d.filter == nil {
		logger.Warn("demangle failed, using raw descriptor concatenation", "class", classSig, "method", methodSig)
		return
	}
	sum := sha256.Sum256([]byte(classSig + "\x00" + methodSig))
	var h bloom.Hash
	copy(h[:], sum[:])
	if d.filter.Contains(h) {
		return
	}
	d.filter.Add(h)
	logger.Warn("demangle failed, using raw descriptor concatenation (logged once per descriptor shape)",
		"class", classSig, "method", methodName, "signature", methodSig)
}

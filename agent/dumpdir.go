package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// jitRootDir is the perf-recognized convention (spec.md §6.6): relative to
// the current working directory, not configurable.
const jitRootDir = ".debug/jit"

// maxSuffixAttempts bounds the EEXIST retry loop (spec.md §4.6: "up to 2^31
// attempts"). In practice a collision on an 8-char alphanumeric suffix is
// astronomically unlikely; this is a backstop against a pathological PRNG,
// not an expected code path.
const maxSuffixAttempts = 1 << 31

// createDumpDir creates jitRootDir (mode 0755, recursive) and, inside it, a
// fresh directory named "java-jit-YYYYMMDD.<8-char-suffix>" (mode 0700),
// re-rolling the suffix on EEXIST. now is passed in rather than read with
// time.Now() at every call site so tests can pin the date component.
func createDumpDir(now time.Time) (string, error) {
	if err := os.MkdirAll(jitRootDir, 0755); err != nil {
		return "", fmt.Errorf("agent: creating %s: %w", jitRootDir, err)
	}

	datePrefix := now.Format("20060102")
	for attempt := 0; attempt < maxSuffixAttempts; attempt++ {
		dir := filepath.Join(jitRootDir, fmt.Sprintf("java-jit-%s.%s", datePrefix, randomSuffix()))
		err := os.Mkdir(dir, 0700)
		if err == nil {
			return dir, nil
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("agent: creating dump directory: %w", err)
		}
	}
	return "", fmt.Errorf("%w: exhausted dump-directory suffix attempts", ErrResourceExhausted)
}

// randomSuffix derives an 8-character alphanumeric suffix from a random
// UUID's hex digits.
func randomSuffix() string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	return id[:8]
}

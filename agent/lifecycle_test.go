package agent

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jitprobe/rvmti-agent/jvmti"
)

// withTempCwd chdirs into a fresh temp directory for the duration of the
// test, since createDumpDir always creates ".debug/jit" relative to the
// current working directory (spec.md §6.6).
func withTempCwd(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	orig, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(orig) })
	return dir
}

func newLifecycleUnderTest() *Lifecycle {
	return &Lifecycle{}
}

func TestAttachCreatesDumpFileAndDetachClosesIt(t *testing.T) {
	cwd := withTempCwd(t)
	l := newLifecycleUnderTest()
	fake := jvmti.NewFake()

	require.NoError(t, l.Attach(fake))
	require.NotNil(t, l.st)

	matches, err := filepath.Glob(filepath.Join(cwd, jitRootDir, "java-jit-*", "jit-*.dump"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	require.NoError(t, l.Detach())
	require.Nil(t, l.st)

	info, err := os.Stat(matches[0])
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}

func TestAttachIsIdempotent(t *testing.T) {
	withTempCwd(t)
	l := newLifecycleUnderTest()
	fake := jvmti.NewFake()

	require.NoError(t, l.Attach(fake))
	first := l.st
	require.NoError(t, l.Attach(fake))
	require.Same(t, first, l.st)

	require.NoError(t, l.Detach())
}

func TestDetachWithoutAttachIsNoop(t *testing.T) {
	l := newLifecycleUnderTest()
	require.NoError(t, l.Detach())
}

func TestEventsFlowThroughToDumpFile(t *testing.T) {
	cwd := withTempCwd(t)
	l := newLifecycleUnderTest()
	fake := jvmti.NewFake()

	require.NoError(t, l.Attach(fake))
	fake.FireDynamicCodeGenerated("stub_A", 0x1000, 8)
	require.NoError(t, l.Detach())

	matches, err := filepath.Glob(filepath.Join(cwd, jitRootDir, "java-jit-*", "jit-*.dump"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	info, err := os.Stat(matches[0])
	require.NoError(t, err)
	// header(40) + record prefix(16) + fixed body(40) + name "stub_A\0"(7) + code(8) + close(16).
	require.EqualValues(t, 40+16+40+7+8+16, info.Size())
}

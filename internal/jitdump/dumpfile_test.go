package jitdump

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDumpFileEmptyDumpLength(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jit-1.dump")

	df, err := Create(path, 1)
	require.NoError(t, err)

	require.NoError(t, df.Write(CodeClose{}.Encode(0)))
	require.NoError(t, df.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.EqualValues(t, 40+16, info.Size())
}

func TestDumpFileSingleCodeLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jit-2.dump")

	df, err := Create(path, 1)
	require.NoError(t, err)

	cl := CodeLoad{Pid: 1, Tid: 1, VMA: 0x1000, CodeAddr: 0x1000, CodeSize: 4, CodeIndex: 0, Name: "abcde", Code: make([]byte, 4)}
	require.NoError(t, df.Write(cl.Encode(0)))
	require.NoError(t, df.Close())

	info, err := os.Stat(path)
	require.NoError(t, err)
	// header(40) + record prefix(16) + fixed body(40) + name "abcde\0"(6) + code(4) = 106.
	require.EqualValues(t, 106, info.Size())
}

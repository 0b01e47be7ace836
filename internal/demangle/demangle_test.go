package demangle

import (
	"testing"

	"github.com/google/gofuzz"
	"github.com/stretchr/testify/require"
)

func TestParseBinaryName(t *testing.T) {
	cases := []struct {
		in      string
		wantErr bool
		pkgs    []string
		class   string
	}{
		{in: "", wantErr: false, pkgs: nil, class: ""},
		{in: "Thread", wantErr: false, pkgs: nil, class: "Thread"},
		{in: "java/lang/Thread", wantErr: false, pkgs: []string{"java", "lang"}, class: "Thread"},
		{in: "/java/lang/Thread", wantErr: true},
		{in: "java/lang/Thread/", wantErr: true},
		{in: "java//Thread", wantErr: true},
	}
	for _, c := range cases {
		bn, err := ParseBinaryName(c.in)
		if c.wantErr {
			require.Error(t, err)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, c.class, bn.Class)
		require.Equal(t, c.pkgs, bn.Packages)
	}
}

func TestBinaryNameRoundTrip(t *testing.T) {
	f := fuzz.New().NilChance(0).NumElements(0, 4)
	f.Funcs(func(s *string, c fuzz.Continue) {
		const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_$"
		n := 1 + c.Intn(7) // BinaryName segments are never empty
		b := make([]byte, n)
		for i := range b {
			b[i] = alphabet[c.Intn(len(alphabet))]
		}
		*s = string(b)
	})

	for i := 0; i < 200; i++ {
		var segs []string
		f.Fuzz(&segs)
		var class string
		f.Fuzz(&class)
		if class == "" {
			class = "X"
		}
		bn := BinaryName{Packages: segs, Class: class}
		rendered := bn.Render()

		parsed, err := ParseBinaryName(rendered)
		require.NoError(t, err, "rendered form must always re-parse: %q", rendered)
		require.Equal(t, bn, parsed)
	}
}

func TestClassTypeRejectsEmptyName(t *testing.T) {
	_, err := ParseClassType("L;")
	require.ErrorIs(t, err, ErrDemangle)
}

func TestFieldTypeSource(t *testing.T) {
	ft, err := ParseFieldType("[[Ljava/lang/String;")
	require.NoError(t, err)
	require.Equal(t, 2, ft.Dims)
	require.Equal(t, KindClass, ft.Kind)
	require.Equal(t, "java.lang.String[][]", ft.Source())

	ft2, err := ParseFieldType("[I")
	require.NoError(t, err)
	require.Equal(t, "int[]", ft2.Source())
}

func TestFieldTypeInvalid(t *testing.T) {
	for _, in := range []string{"[", "[[", "M", "Ljava/lang/Object", "LObject;x"} {
		_, err := ParseFieldType(in)
		require.Errorf(t, err, "expected parse failure for %q", in)
	}
}

func TestMethodTypeVoidNoArgs(t *testing.T) {
	mt, err := ParseMethodType("()V")
	require.NoError(t, err)
	require.Empty(t, mt.Params)
	require.Nil(t, mt.Return)
}

func TestMethodTypeRejectsVoidParam(t *testing.T) {
	_, err := ParseMethodType("(V)Ljava/lang/Object;")
	require.Error(t, err)
}

func TestMethodSignatureRendering(t *testing.T) {
	class, err := ParseClassType("Ljava/lang/Thread;")
	require.NoError(t, err)
	mt, err := ParseMethodType("()V")
	require.NoError(t, err)
	require.Equal(t, "void java.lang.Thread.run()", MethodSignature(class, "run", mt))
}

func TestMethodSignatureWithParams(t *testing.T) {
	class, err := ParseClassType("Ljava/lang/System;")
	require.NoError(t, err)
	mt, err := ParseMethodType("([BII)V")
	require.NoError(t, err)
	require.Equal(t, "void java.lang.System.arraycopy(byte[] p0, int p1, int p2)", MethodSignature(class, "arraycopy", mt))
}

func TestCacheFallsBackOnDemangleFailure(t *testing.T) {
	c := NewCache(1024)
	name := c.CombinedName("not-a-descriptor", "foo", "()V")
	require.Equal(t, "not-a-descriptor.foo()V", name)

	name2 := c.CombinedName("Ljava/lang/Thread;", "run", "()V")
	require.Equal(t, "void java.lang.Thread.run()", name2)
	// Second call exercises the cache hit path.
	require.Equal(t, name2, c.CombinedName("Ljava/lang/Thread;", "run", "()V"))
}

func TestCombinedNameStatusReportsFallback(t *testing.T) {
	c := NewCache(1024)

	name, ok := c.CombinedNameStatus("not-a-descriptor", "foo", "()V")
	require.False(t, ok)
	require.Equal(t, "not-a-descriptor.foo()V", name)
	// Cache-hit path must report the same status as the first call.
	name, ok = c.CombinedNameStatus("not-a-descriptor", "foo", "()V")
	require.False(t, ok)
	require.Equal(t, "not-a-descriptor.foo()V", name)

	name, ok = c.CombinedNameStatus("Ljava/lang/Thread;", "run", "()V")
	require.True(t, ok)
	require.Equal(t, "void java.lang.Thread.run()", name)
}

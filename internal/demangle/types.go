// Package demangle parses the VM's internal descriptor grammar (binary names,
// field descriptors, method descriptors) into structured values and renders
// them back as human-readable source-language signatures.
package demangle

import (
	"errors"
	"strings"
)

// ErrDemangle is the single tagged failure every parser in this package
// returns; callers fall back to a raw concatenation of the original
// descriptors rather than trying to recover partial structure.
var ErrDemangle = errors.New("demangle: malformed descriptor")

// BinaryName is a `/`-separated internal class name, e.g. "java/lang/Thread".
type BinaryName struct {
	Packages []string
	Class    string
}

// ParseBinaryName parses the BinaryName grammar: segments separated by `/`;
// empty segments and leading/trailing `/` are invalid; the last segment is
// the class name. The empty string is valid (no packages, empty class name).
func ParseBinaryName(s string) (BinaryName, error) {
	if s == "" {
		return BinaryName{}, nil
	}
	if strings.HasPrefix(s, "/") || strings.HasSuffix(s, "/") {
		return BinaryName{}, ErrDemangle
	}
	parts := strings.Split(s, "/")
	for _, p := range parts {
		if p == "" {
			return BinaryName{}, ErrDemangle
		}
	}
	return BinaryName{Packages: parts[:len(parts)-1], Class: parts[len(parts)-1]}, nil
}

// Render renders the BinaryName with `/` package separators unchanged, i.e.
// the inverse of ParseBinaryName (used by the round-trip property test).
func (b BinaryName) Render() string {
	if len(b.Packages) == 0 {
		return b.Class
	}
	return strings.Join(b.Packages, "/") + "/" + b.Class
}

// Source renders the BinaryName as a dot-joined source-language name, e.g.
// "java.lang.Thread".
func (b BinaryName) Source() string {
	if len(b.Packages) == 0 {
		return b.Class
	}
	return strings.Join(b.Packages, ".") + "." + b.Class
}

// Path joins the package segments with `/` and appends fileName, with no
// prefix when there are no packages. Used to build the source-file path
// embedded in CODE_DEBUG_INFO records.
func (b BinaryName) Path(fileName string) string {
	if len(b.Packages) == 0 {
		return fileName
	}
	return strings.Join(b.Packages, "/") + "/" + fileName
}

// ClassType is `L` BinaryName `;`.
type ClassType struct {
	Name BinaryName
}

// ParseClassType parses `L<binary-name>;`. A bare "L;" is rejected: the
// stateful reference parser this grammar is modeled on requires the class
// name buffer to be non-empty before accepting the terminating `;`.
func ParseClassType(s string) (ClassType, error) {
	if len(s) < 3 || s[0] != 'L' || s[len(s)-1] != ';' {
		return ClassType{}, ErrDemangle
	}
	inner := s[1 : len(s)-1]
	if inner == "" {
		return ClassType{}, ErrDemangle
	}
	bn, err := ParseBinaryName(inner)
	if err != nil {
		return ClassType{}, ErrDemangle
	}
	return ClassType{Name: bn}, nil
}

// Render returns the original descriptor form, `L<binary-name>;`.
func (c ClassType) Render() string { return "L" + c.Name.Render() + ";" }

// Source returns the dotted source-language class name.
func (c ClassType) Source() string { return c.Name.Source() }

// FieldTypeKind tags which alternative of the FieldType grammar a value is.
type FieldTypeKind int

const (
	KindByte FieldTypeKind = iota
	KindChar
	KindDouble
	KindFloat
	KindInt
	KindLong
	KindShort
	KindBoolean
	KindClass
)

var primitiveSourceNames = map[FieldTypeKind]string{
	KindByte:    "byte",
	KindChar:    "char",
	KindDouble:  "double",
	KindFloat:   "float",
	KindInt:     "int",
	KindLong:    "long",
	KindShort:   "short",
	KindBoolean: "boolean",
}

var primitiveTags = map[byte]FieldTypeKind{
	'B': KindByte,
	'C': KindChar,
	'D': KindDouble,
	'F': KindFloat,
	'I': KindInt,
	'J': KindLong,
	'S': KindShort,
	'Z': KindBoolean,
}

var primitiveTagBytes = map[FieldTypeKind]byte{
	KindByte:    'B',
	KindChar:    'C',
	KindDouble:  'D',
	KindFloat:   'F',
	KindInt:     'I',
	KindLong:    'J',
	KindShort:   'S',
	KindBoolean: 'Z',
}

// FieldType is zero-or-more array dimensions followed by a scalar: either a
// primitive tag or an `L<binary-name>;` class reference.
type FieldType struct {
	Dims  int
	Kind  FieldTypeKind
	Class ClassType // valid only when Kind == KindClass
}

// ParseFieldType parses the FieldType grammar. Trailing bytes after the
// scalar (primitive tag, or the class type's closing `;`) are rejected.
func ParseFieldType(s string) (FieldType, error) {
	dims := 0
	for dims < len(s) && s[dims] == '[' {
		dims++
	}
	rest := s[dims:]
	if rest == "" {
		return FieldType{}, ErrDemangle
	}
	if rest[0] == 'L' {
		ct, err := ParseClassType(rest)
		if err != nil {
			return FieldType{}, ErrDemangle
		}
		return FieldType{Dims: dims, Kind: KindClass, Class: ct}, nil
	}
	if len(rest) != 1 {
		return FieldType{}, ErrDemangle
	}
	kind, ok := primitiveTags[rest[0]]
	if !ok {
		return FieldType{}, ErrDemangle
	}
	return FieldType{Dims: dims, Kind: kind}, nil
}

// Render returns the original descriptor form.
func (f FieldType) Render() string {
	var b strings.Builder
	for i := 0; i < f.Dims; i++ {
		b.WriteByte('[')
	}
	if f.Kind == KindClass {
		b.WriteString(f.Class.Render())
	} else {
		b.WriteByte(primitiveTagBytes[f.Kind])
	}
	return b.String()
}

// Source renders the scalar name (primitive name or dotted class name)
// followed by "[]" repeated Dims times.
func (f FieldType) Source() string {
	var scalar string
	if f.Kind == KindClass {
		scalar = f.Class.Source()
	} else {
		scalar = primitiveSourceNames[f.Kind]
	}
	return scalar + strings.Repeat("[]", f.Dims)
}

// MethodType is `(` zero-or-more parameter FieldType `)` return, where return
// is either "V" (void, Return == nil) or a FieldType.
type MethodType struct {
	Params []FieldType
	Return *FieldType // nil means void
}

// ParseMethodType parses "(<params>)<return>". "V" is only permitted as the
// return type, never inside the parameter list and never with an array
// prefix.
func ParseMethodType(s string) (MethodType, error) {
	if len(s) < 2 || s[0] != '(' {
		return MethodType{}, ErrDemangle
	}
	closeParen := strings.IndexByte(s, ')')
	if closeParen < 0 {
		return MethodType{}, ErrDemangle
	}
	paramStr := s[1:closeParen]
	retStr := s[closeParen+1:]

	var params []FieldType
	i := 0
	for i < len(paramStr) {
		start := i
		for i < len(paramStr) && paramStr[i] == '[' {
			i++
		}
		if i >= len(paramStr) {
			return MethodType{}, ErrDemangle
		}
		if paramStr[i] == 'V' {
			return MethodType{}, ErrDemangle
		}
		if paramStr[i] == 'L' {
			semi := strings.IndexByte(paramStr[i:], ';')
			if semi < 0 {
				return MethodType{}, ErrDemangle
			}
			end := i + semi + 1
			ft, err := ParseFieldType(paramStr[start:end])
			if err != nil {
				return MethodType{}, ErrDemangle
			}
			params = append(params, ft)
			i = end
			continue
		}
		ft, err := ParseFieldType(paramStr[start : i+1])
		if err != nil {
			return MethodType{}, ErrDemangle
		}
		params = append(params, ft)
		i++
	}

	if retStr == "V" {
		return MethodType{Params: params, Return: nil}, nil
	}
	ft, err := ParseFieldType(retStr)
	if err != nil {
		return MethodType{}, ErrDemangle
	}
	return MethodType{Params: params, Return: &ft}, nil
}

// Render returns the original descriptor form.
func (m MethodType) Render() string {
	var b strings.Builder
	b.WriteByte('(')
	for _, p := range m.Params {
		b.WriteString(p.Render())
	}
	b.WriteByte(')')
	if m.Return == nil {
		b.WriteByte('V')
	} else {
		b.WriteString(m.Return.Render())
	}
	return b.String()
}

// ReturnSource renders the return type's source-language name, "void" when
// Return is nil.
func (m MethodType) ReturnSource() string {
	if m.Return == nil {
		return "void"
	}
	return m.Return.Source()
}

package demangle

import (
	"strconv"
	"strings"
)

// MethodSignature renders the full method-definition form:
//
//	<return> <class>.<method>(<param0> p0, <param1> p1, …)
//
// with "void" when the method has no return type.
func MethodSignature(class ClassType, methodName string, mt MethodType) string {
	var b strings.Builder
	b.WriteString(mt.ReturnSource())
	b.WriteByte(' ')
	b.WriteString(class.Source())
	b.WriteByte('.')
	b.WriteString(methodName)
	b.WriteByte('(')
	for i, p := range mt.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Source())
		b.WriteString(" p")
		b.WriteString(strconv.Itoa(i))
	}
	b.WriteByte(')')
	return b.String()
}

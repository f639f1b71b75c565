// Package names implements the binary-name and descriptor surgery the
// instrumentation engine needs: picking a handler field name from an
// accessor method, synthesizing a dispatch wrapper's descriptor from the
// method it wraps, and converting between a class's dotted source name and
// its internal (slash-separated) form.
package names

import (
	"strings"

	"github.com/dhamidi/handlerforge/classfile"
)

// InternalToSourceName re-exports classfile's conversion so callers that
// only deal in names never need to import classfile themselves.
func InternalToSourceName(name string) string { return classfile.InternalToSourceName(name) }

// SourceToInternalName re-exports classfile's conversion, the inverse of
// InternalToSourceName.
func SourceToInternalName(name string) string { return classfile.SourceToInternalName(name) }

// Simple returns the last '.'- or '$'-separated segment of a dotted or
// internal class name: "com.example.Outer$Inner" and
// "com/example/Outer$Inner" both yield "Inner".
func Simple(name string) string {
	if i := strings.LastIndexAny(name, "./$"); i >= 0 {
		return name[i+1:]
	}
	return name
}

// LowerFirst lowercases the first rune of s, leaving the rest untouched;
// used to turn a handler interface's simple name into the camelCase field
// name that holds an instance of it.
func LowerFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = toLowerRune(r[0])
	return string(r)
}

func toLowerRune(r rune) rune {
	if r >= 'A' && r <= 'Z' {
		return r + ('a' - 'A')
	}
	return r
}

// ObjectDescriptor turns an internal class name into its field/method
// descriptor form: "java/lang/String" becomes "Ljava/lang/String;".
func ObjectDescriptor(internalName string) string {
	return "L" + internalName + ";"
}

// PrependArg inserts argDesc as the new first parameter of a method
// descriptor: PrependArg("(I)V", "Ljava/lang/Object;") returns
// "(Ljava/lang/Object;I)V". Used when a dispatch wrapper needs to pass the
// handler instance as an extra leading argument to the body method it
// calls.
func PrependArg(desc, argDesc string) string {
	if len(desc) == 0 || desc[0] != '(' {
		return desc
	}
	return "(" + argDesc + desc[1:]
}

// DropFirstArg removes the first parameter from a method descriptor:
// DropFirstArg("(Ljava/lang/Object;I)V") returns "(I)V". Used when a
// spawner or handler-facing method signature must be derived from the
// original method's descriptor minus the receiver-like argument the
// engine adds or removes.
func DropFirstArg(desc string) string {
	if len(desc) < 2 || desc[0] != '(' {
		return desc
	}
	width := argWidth(desc, 1)
	if width == 0 {
		return desc
	}
	return "(" + desc[1+width:]
}

// argWidth returns the number of descriptor characters occupied by the
// single parameter starting at desc[start], or 0 if start is not the
// beginning of a valid field descriptor.
func argWidth(desc string, start int) int {
	i := start
	for i < len(desc) && desc[i] == '[' {
		i++
	}
	if i >= len(desc) {
		return 0
	}
	switch desc[i] {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
		return i - start + 1
	case 'L':
		semi := strings.IndexByte(desc[i:], ';')
		if semi == -1 {
			return 0
		}
		return i - start + semi + 1
	default:
		return 0
	}
}

var accessorPrefixes = []string{"get", "set", "is"}

// FieldNameFromAccessor derives a handler field's name from an accessor
// method name, stripping a get/set/is prefix and lowercasing the first
// letter of what remains: "getValue" and "setValue" both yield "value".
// If name carries none of those prefixes, it falls back to the
// lower-camel form of the handler interface's own simple name, so every
// handlee still gets a deterministic, collision-resistant field name.
func FieldNameFromAccessor(name, simpleIfaceName string) string {
	for _, prefix := range accessorPrefixes {
		if strings.HasPrefix(name, prefix) && len(name) > len(prefix) {
			rest := name[len(prefix):]
			if rest[0] >= 'A' && rest[0] <= 'Z' {
				return LowerFirst(rest)
			}
		}
	}
	return LowerFirst(Simple(simpleIfaceName))
}

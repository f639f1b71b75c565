// Package handlerspec derives a Handler Spec from a handler interface's
// compiled form: which methods intercept a handlee call, which are the
// slot's accessor/mutator, and the null-guard and spawner configuration
// that governs how dispatch methods behave when no handler is installed.
package handlerspec

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/dhamidi/handlerforge/classfile"
	"github.com/dhamidi/handlerforge/names"
)

// NullGuardPolicy selects how a dispatch method avoids dereferencing a nil
// handler slot.
type NullGuardPolicy int

const (
	// CheckBeforeCall tests the slot for nil on every call, replacing nil
	// with the spawner's result (or this). It is the default: robust
	// under inheritance at the cost of one branch per call.
	CheckBeforeCall NullGuardPolicy = iota
	// AssignBeforeSuper writes the slot before the super-constructor call
	// runs, fast but unsafe if initialization verification forbids it.
	AssignBeforeSuper
	// AssignAfterSuper writes the slot right after the super-constructor
	// call, verifier-clean but wrong if the superclass itself invokes an
	// intercepted method during construction.
	AssignAfterSuper
)

func (p NullGuardPolicy) String() string {
	switch p {
	case AssignBeforeSuper:
		return "AssignBeforeSuper"
	case AssignAfterSuper:
		return "AssignAfterSuper"
	default:
		return "CheckBeforeCall"
	}
}

// SpawnerRef names a static method supplying a non-null default handler:
// exact descriptor (handlerType) -> handlerType.
type SpawnerRef struct {
	Owner      string // internal name
	Name       string
	Descriptor string
}

// Spec is the derived contract of a handler interface.
type Spec struct {
	HandlerType           string // internal name of the interface itself
	HandlerDescriptor     string // object descriptor, "L" + HandlerType + ";"
	InterceptedSignatures []string
	Accessors             []string
	Mutators              []string
	NullGuard             NullGuardPolicy
	Spawner               *SpawnerRef
	NativePrefix          string
}

// Equal reports whether s and other describe the same contract, used to
// test that re-analyzing the same interface bytes is idempotent.
func (s *Spec) Equal(other *Spec) bool {
	if s == nil || other == nil {
		return s == other
	}
	if s.HandlerType != other.HandlerType ||
		s.HandlerDescriptor != other.HandlerDescriptor ||
		s.NullGuard != other.NullGuard ||
		s.NativePrefix != other.NativePrefix {
		return false
	}
	if !equalStringSlices(s.InterceptedSignatures, other.InterceptedSignatures) ||
		!equalStringSlices(s.Accessors, other.Accessors) ||
		!equalStringSlices(s.Mutators, other.Mutators) {
		return false
	}
	return reflect.DeepEqual(s.Spawner, other.Spawner)
}

func equalStringSlices(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Options carries the pieces of a Spec that come from outside the
// interface's own method set: the spawner and native-prefix configured by
// the agent (or defaulted from the interface's own SpawnsWith annotation),
// and the null-guard policy, which this repository's agent configuration
// grammar never exposes and which therefore always defaults to
// CheckBeforeCall unless a caller overrides it directly.
type Options struct {
	Spawner              *SpawnerRef
	NullGuard            *NullGuardPolicy
	NativePrefix         string
	AgentCapableBaseline uint16
}

// Analyze derives a Spec from a handler interface's class tree.
func Analyze(cf *classfile.ClassFile, opts Options) (*Spec, []string, error) {
	handlerType := cf.ClassName()
	handlerDesc := names.ObjectDescriptor(handlerType)
	simple := names.Simple(handlerType)
	camel := names.LowerFirst(simple)

	spec := &Spec{
		HandlerType:       handlerType,
		HandlerDescriptor: handlerDesc,
	}
	if opts.NullGuard != nil {
		spec.NullGuard = *opts.NullGuard
	} else {
		spec.NullGuard = CheckBeforeCall
	}

	for i := range cf.Methods {
		m := &cf.Methods[i]
		name := m.Name(cf.ConstantPool)
		desc := m.Descriptor(cf.ConstantPool)
		md := classfile.ParseMethodDescriptor(desc)
		if md == nil {
			continue
		}

		if isAccessorDescriptor(md, handlerType) && isOneOf(name, "get"+simple, simple, camel) {
			spec.Accessors = append(spec.Accessors, name)
			continue
		}
		if isMutatorDescriptor(md, handlerType) && isOneOf(name, "set"+simple, simple, camel) {
			spec.Mutators = append(spec.Mutators, name)
			continue
		}
		if len(md.Parameters) > 0 && md.Parameters[0].IsReference() && md.Parameters[0].ClassName == handlerType {
			spec.InterceptedSignatures = append(spec.InterceptedSignatures, name+"("+names.DropFirstArg(desc)[1:])
		}
	}

	if opts.Spawner != nil {
		if err := validateSpawner(opts.Spawner, handlerDesc); err != nil {
			return nil, nil, err
		}
		spec.Spawner = opts.Spawner
	} else if ann := findSpawnsWith(cf); ann != nil {
		if err := validateSpawner(ann, handlerDesc); err != nil {
			return nil, nil, err
		}
		spec.Spawner = ann
	}

	if opts.NativePrefix != "" && cf.MajorVersion >= opts.AgentCapableBaseline {
		spec.NativePrefix = opts.NativePrefix
	}

	return spec, findInstruments(cf), nil
}

func isOneOf(name string, candidates ...string) bool {
	for _, c := range candidates {
		if name == c {
			return true
		}
	}
	return false
}

func isAccessorDescriptor(md *classfile.MethodDescriptor, handlerType string) bool {
	return len(md.Parameters) == 0 && md.ReturnType != nil && md.ReturnType.ClassName == handlerType
}

func isMutatorDescriptor(md *classfile.MethodDescriptor, handlerType string) bool {
	return len(md.Parameters) == 1 && md.Parameters[0].ClassName == handlerType && md.ReturnType == nil
}

func validateSpawner(ref *SpawnerRef, handlerDesc string) error {
	want := classfile.SpawnerDescriptor(handlerDesc)
	if ref.Descriptor != want {
		return fmt.Errorf("handlerspec: spawner %s.%s has descriptor %s, want %s", ref.Owner, ref.Name, ref.Descriptor, want)
	}
	return nil
}

// findSpawnsWith reads the class-level SpawnsWith(qualifiedMethod)
// annotation, if present, encoded as a single string-valued "value"
// element holding a dotted "owner.method" reference; the owner's
// descriptor is taken to be the handler type itself, since SpawnsWith only
// ever configures that interface's own default spawner.
func findSpawnsWith(cf *classfile.ClassFile) *SpawnerRef {
	qualified := findAnnotationStringValue(cf, "SpawnsWith")
	if qualified == "" {
		return nil
	}
	idx := strings.LastIndex(qualified, ".")
	if idx < 0 {
		return nil
	}
	owner := names.SourceToInternalName(qualified[:idx])
	method := qualified[idx+1:]
	handlerDesc := names.ObjectDescriptor(cf.ClassName())
	return &SpawnerRef{Owner: owner, Name: method, Descriptor: classfile.SpawnerDescriptor(handlerDesc)}
}

// findInstruments reads the class-level Instruments(types…) annotation, if
// present, encoded as an array-valued "value" element of class entries,
// returning the listed handlee binary names in dotted form.
func findInstruments(cf *classfile.ClassFile) []string {
	for _, annotated := range annotationsOf(cf) {
		if simpleAnnotationName(cf, annotated) != "Instruments" {
			continue
		}
		for _, pair := range annotated.ElementValuePairs {
			if cf.ConstantPool.GetUtf8(pair.ElementNameIndex) != "value" {
				continue
			}
			arr, ok := pair.Value.Value.(classfile.ArrayValue)
			if !ok {
				continue
			}
			var out []string
			for _, ev := range arr.Values {
				if ev.Tag != 'c' {
					continue
				}
				idx, ok := ev.Value.(uint16)
				if !ok {
					continue
				}
				out = append(out, names.InternalToSourceName(strings.TrimSuffix(strings.TrimPrefix(cf.ConstantPool.GetUtf8(idx), "L"), ";")))
			}
			return out
		}
	}
	return nil
}

func findAnnotationStringValue(cf *classfile.ClassFile, annotationSimpleName string) string {
	for _, annotated := range annotationsOf(cf) {
		if simpleAnnotationName(cf, annotated) != annotationSimpleName {
			continue
		}
		for _, pair := range annotated.ElementValuePairs {
			if cf.ConstantPool.GetUtf8(pair.ElementNameIndex) != "value" {
				continue
			}
			if pair.Value.Tag != 's' {
				continue
			}
			idx, ok := pair.Value.Value.(uint16)
			if !ok {
				continue
			}
			return cf.ConstantPool.GetUtf8(idx)
		}
	}
	return ""
}

func annotationsOf(cf *classfile.ClassFile) []classfile.Annotation {
	var out []classfile.Annotation
	if a := cf.GetAttribute("RuntimeVisibleAnnotations"); a != nil {
		if rva := a.AsRuntimeVisibleAnnotations(); rva != nil {
			out = append(out, rva.Annotations...)
		}
	}
	if a := cf.GetAttribute("RuntimeInvisibleAnnotations"); a != nil {
		if ria := a.AsRuntimeInvisibleAnnotations(); ria != nil {
			out = append(out, ria.Annotations...)
		}
	}
	return out
}

func simpleAnnotationName(cf *classfile.ClassFile, ann classfile.Annotation) string {
	desc := cf.ConstantPool.GetUtf8(ann.TypeIndex)
	desc = strings.TrimSuffix(strings.TrimPrefix(desc, "L"), ";")
	return names.Simple(desc)
}

// Package instrument implements the Handler Pattern's instrumentation
// engine: given a handlee's class tree and the Spec derived from its
// handler interface, it installs the interface, synthesizes the handler
// slot and its accessors/mutators, rewrites every intercepted method into
// a re-signatured body plus a dispatch wrapper, and patches constructors
// when the null-guard policy calls for it.
//
// Instrument mutates cf in place and is not idempotent: calling it twice
// on the same class tree re-rewrites the dispatch methods it already
// produced. Every intercepted signature is checked against cf's method
// set up front, so a configuration or shape problem is reported as an
// *InstrumentationError before cf is touched at all; a failure later in
// the mutation pass leaves the steps already applied to cf in place.
package instrument

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dhamidi/handlerforge/classfile"
	"github.com/dhamidi/handlerforge/handlerspec"
)

// Failure is one rewrite that could not be completed, naming the class and
// the operation (an intercepted signature, or a step name) it failed at.
type Failure struct {
	Class     string
	Operation string
	Err       error
}

// InstrumentationError aggregates every Failure found while instrumenting
// a class tree. Configuration and shape problems (an unmatched signature,
// a static or abstract intercepted method) are batched and reported
// together; a codec or runtime-host failure during the mutation pass is
// reported as a single-element InstrumentationError instead, since by
// that point earlier methods have already been rewritten in place.
type InstrumentationError struct {
	Failures []Failure
}

func (e *InstrumentationError) Error() string {
	lines := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		lines[i] = fmt.Sprintf("%s: %s: %v", f.Class, f.Operation, f.Err)
	}
	return strings.Join(lines, "\n")
}

// plan is the set of intercepted methods Instrument will rewrite, split by
// whether they are native, computed before any mutation happens.
type plan struct {
	nonNative []int
	native    []int
}

// Instrument rewrites cf in place to implement spec's handler contract.
func Instrument(cf *classfile.ClassFile, spec *handlerspec.Spec) error {
	p, err := planRewrites(cf, spec)
	if err != nil {
		return err
	}

	installInterface(cf, spec.HandlerType)
	fieldName := deriveFieldName(cf, spec)
	ensureField(cf, spec, fieldName)

	if err := ensureAccessorsAndMutators(cf, spec, fieldName); err != nil {
		return wrapErr(cf, "synthesize accessor/mutator", err)
	}
	for _, idx := range p.native {
		if err := wrapNative(cf, idx, spec.NativePrefix); err != nil {
			return wrapErr(cf, "wrap native method", err)
		}
	}
	for _, idx := range p.nonNative {
		if err := rewriteMethod(cf, idx, spec, fieldName); err != nil {
			return wrapErr(cf, "rewrite method", err)
		}
	}
	if err := patchConstructors(cf, spec, fieldName); err != nil {
		return wrapErr(cf, "patch constructor", err)
	}
	return nil
}

// planRewrites matches every spec.InterceptedSignatures entry against
// cf's declared methods, classifying each match as native or not, and
// collects one Failure per unmatched signature and per matched method
// whose shape this engine cannot rewrite (abstract, static, or native
// without a configured prefix). It never mutates cf.
func planRewrites(cf *classfile.ClassFile, spec *handlerspec.Spec) (*plan, error) {
	cp := cf.ConstantPool
	matched := make(map[string]bool, len(spec.InterceptedSignatures))
	wanted := make(map[string]bool, len(spec.InterceptedSignatures))
	for _, sig := range spec.InterceptedSignatures {
		wanted[sig] = true
	}

	p := &plan{}
	var failures []Failure

	for idx := range cf.Methods {
		m := &cf.Methods[idx]
		sig := m.Signature(cp)
		if !wanted[sig] {
			continue
		}
		matched[sig] = true

		switch {
		case m.IsAbstract():
			failures = append(failures, Failure{Class: cf.ClassName(), Operation: sig, Err: errors.New("intercepted method is abstract")})
		case m.IsStatic():
			failures = append(failures, Failure{Class: cf.ClassName(), Operation: sig, Err: errors.New("intercepted method is static")})
		case m.IsNative() && spec.NativePrefix == "":
			failures = append(failures, Failure{Class: cf.ClassName(), Operation: sig, Err: errors.New("intercepted method is native and no native-prefix is configured")})
		case m.IsNative():
			p.native = append(p.native, idx)
		default:
			p.nonNative = append(p.nonNative, idx)
		}
	}

	for _, sig := range spec.InterceptedSignatures {
		if !matched[sig] {
			failures = append(failures, Failure{Class: cf.ClassName(), Operation: sig, Err: errors.New("unmatched intercepted signature")})
		}
	}

	if len(failures) > 0 {
		return nil, &InstrumentationError{Failures: failures}
	}
	return p, nil
}

func wrapErr(cf *classfile.ClassFile, op string, err error) *InstrumentationError {
	var ie *InstrumentationError
	if errors.As(err, &ie) {
		return ie
	}
	return &InstrumentationError{Failures: []Failure{{Class: cf.ClassName(), Operation: op, Err: err}}}
}

// Package agent implements the Handler Pattern's Agent Frontend: parsing
// a configuration string (or an equivalent handlerforge.toml manifest)
// into an Instrumentation Plan, and transforming classes at load time
// against that plan.
package agent

import (
	"fmt"
	"strings"

	"github.com/dhamidi/handlerforge/handlerspec"
	"github.com/dhamidi/handlerforge/names"
)

// Setup is one ';'-separated clause of an agent configuration string: a
// handler interface, its optional spawner, and the handlees it governs.
// Handler and Handlees are dotted binary names, the form users write on
// the command line or in a manifest rather than the slash-form internal
// names the JVM uses.
type Setup struct {
	Handler string

	// Spawner names a static spawner method if the setup configured one.
	// Owner is already converted to internal (slash) form; Descriptor is
	// left empty here since it depends on the handler type, which is not
	// known until the handler interface's bytes are analyzed — the plan
	// builder fills it in.
	Spawner *handlerspec.SpawnerRef

	// Handlees is nil when the setup clause carried no '=', and may
	// contain a single "" entry when it carried '=' followed by nothing;
	// both cases mean "no explicit handlees, rely on the interface's own
	// Instruments(...) annotation" and must not be treated as an error.
	Handlees []string
}

// ParseConfig parses a configuration string of the grammar
//
//	args  := setup (';' setup)*
//	setup := handler (':' spawner)? ('=' handlee (',' handlee)*)?
//
// Delimiters are ';', ':', '=', ','; whitespace anywhere in s is a syntax
// error.
func ParseConfig(s string) ([]Setup, error) {
	if s == "" {
		return nil, fmt.Errorf("agent: empty configuration string")
	}
	if strings.ContainsAny(s, " \t\n\r") {
		return nil, fmt.Errorf("agent: configuration string must not contain whitespace")
	}

	clauses := strings.Split(s, ";")
	setups := make([]Setup, 0, len(clauses))
	for _, clause := range clauses {
		setup, err := parseSetup(clause)
		if err != nil {
			return nil, err
		}
		setups = append(setups, setup)
	}
	return setups, nil
}

func parseSetup(clause string) (Setup, error) {
	if clause == "" {
		return Setup{}, fmt.Errorf("agent: empty setup clause")
	}

	rest := clause
	var handleesPart string
	hasHandlees := false
	if idx := strings.IndexByte(rest, '='); idx >= 0 {
		handleesPart = rest[idx+1:]
		rest = rest[:idx]
		hasHandlees = true
	}

	var spawnerPart string
	hasSpawner := false
	if idx := strings.IndexByte(rest, ':'); idx >= 0 {
		spawnerPart = rest[idx+1:]
		rest = rest[:idx]
		hasSpawner = true
	}

	if rest == "" {
		return Setup{}, fmt.Errorf("agent: setup clause %q names no handler", clause)
	}
	setup := Setup{Handler: rest}

	if hasSpawner {
		ref, err := parseSpawner(spawnerPart)
		if err != nil {
			return Setup{}, fmt.Errorf("agent: setup clause %q: %w", clause, err)
		}
		setup.Spawner = ref
	}

	if hasHandlees {
		for _, h := range strings.Split(handleesPart, ",") {
			setup.Handlees = append(setup.Handlees, h)
		}
	}

	return setup, nil
}

// parseSpawner splits a dotted "owner.method" reference into an internal
// owner name and a bare method name.
func parseSpawner(s string) (*handlerspec.SpawnerRef, error) {
	idx := strings.LastIndex(s, ".")
	if idx <= 0 || idx == len(s)-1 {
		return nil, fmt.Errorf("spawner %q must be a dotted owner.method reference", s)
	}
	return &handlerspec.SpawnerRef{
		Owner: names.SourceToInternalName(s[:idx]),
		Name:  s[idx+1:],
	}, nil
}

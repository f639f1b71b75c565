package agent

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/dhamidi/handlerforge/classfile"
	"github.com/dhamidi/handlerforge/deptree"
	"github.com/dhamidi/handlerforge/handlerspec"
	"github.com/dhamidi/handlerforge/instrument"
	"github.com/dhamidi/handlerforge/loader"
	"github.com/dhamidi/handlerforge/names"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

// Agent builds an Instrumentation Plan from a set of Setups and
// transforms classes at load time against that plan.
//
// Plan construction is lazy (deferred to the first Transform, Plan, or
// Tree call) and single-shot, guarded by the sync.Once below so
// concurrent Transform/Plan/Tree callers never race on building it.
// After construction the plan is read-only, so Transform's lookups are
// lock-free.
type Agent struct {
	source loader.AmbientSource
	setups []Setup

	once    sync.Once
	initErr error
	plan    map[string]*handlerspec.Spec
	tree    *deptree.Tree
}

// New returns an Agent that will fetch handler interface bytes from
// source and build its plan from setups.
func New(source loader.AmbientSource, setups []Setup) *Agent {
	return &Agent{
		source: source,
		setups: setups,
		tree:   deptree.New(),
	}
}

// NewFromConfig parses config with ParseConfig and returns an Agent for it.
func NewFromConfig(source loader.AmbientSource, config string) (*Agent, error) {
	setups, err := ParseConfig(config)
	if err != nil {
		return nil, err
	}
	return New(source, setups), nil
}

// NewFromManifest builds an Agent from a Manifest's structured setups.
func NewFromManifest(source loader.AmbientSource, manifest *Manifest) (*Agent, error) {
	setups, err := manifest.Setups()
	if err != nil {
		return nil, err
	}
	return New(source, setups), nil
}

func (a *Agent) ensurePlan() error {
	a.once.Do(func() {
		a.plan, a.initErr = a.buildPlan()
	})
	return a.initErr
}

// buildPlan resolves every setup's handler interface, derives its Handler
// Spec, and maps each of its handlees (explicit or declared via
// Instruments(...)) to that Spec. Every problem found - an unresolvable
// handler, a misformed spawner, a handlee claimed by two handlers - is a
// configuration error and is batched into one InstrumentationError
// rather than failing on the first.
func (a *Agent) buildPlan() (map[string]*handlerspec.Spec, error) {
	plan := make(map[string]*handlerspec.Spec)
	var failures []instrument.Failure

	for _, setup := range a.setups {
		spec, defaultHandlees, err := a.analyzeHandler(setup)
		if err != nil {
			failures = append(failures, instrument.Failure{Class: setup.Handler, Operation: "resolve handler interface", Err: err})
			continue
		}

		internalHandler := names.SourceToInternalName(setup.Handler)
		a.tree.Declare(internalHandler)

		handlees := append([]string{}, setup.Handlees...)
		handlees = append(handlees, defaultHandlees...)

		for _, h := range handlees {
			if h == "" {
				continue
			}
			internal := names.SourceToInternalName(h)
			a.tree.Declare(internal)
			a.tree.AddDependsOn(internal, internalHandler)

			if existing, ok := plan[h]; ok {
				failures = append(failures, instrument.Failure{
					Class:     h,
					Operation: "plan construction",
					Err:       fmt.Errorf("duplicate instrumentation: already configured under handler %s", existing.HandlerType),
				})
				continue
			}
			plan[h] = spec
		}
		commonlog.NewInfoMessage(0, fmt.Sprintf("handlerforge.agent: built handler spec for %s (%d handlees)", setup.Handler, len(handlees)))
	}

	if len(failures) > 0 {
		return nil, &instrument.InstrumentationError{Failures: failures}
	}
	return plan, nil
}

// analyzeHandler fetches setup.Handler's bytes from the ambient source and
// derives its Handler Spec, filling in the spawner's descriptor now that
// the handler type (and thus its expected spawner descriptor) is known.
func (a *Agent) analyzeHandler(setup Setup) (*handlerspec.Spec, []string, error) {
	internalHandler := names.SourceToInternalName(setup.Handler)
	raw, ok := a.source.Bytes(setup.Handler)
	if !ok {
		raw, ok = a.source.Bytes(internalHandler)
	}
	if !ok {
		return nil, nil, fmt.Errorf("no bytes available for handler interface %s", setup.Handler)
	}

	cf, err := classfile.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, nil, fmt.Errorf("parse handler interface %s: %w", setup.Handler, err)
	}

	opts := handlerspec.Options{}
	if setup.Spawner != nil {
		handlerDesc := names.ObjectDescriptor(cf.ClassName())
		opts.Spawner = &handlerspec.SpawnerRef{
			Owner:      setup.Spawner.Owner,
			Name:       setup.Spawner.Name,
			Descriptor: classfile.SpawnerDescriptor(handlerDesc),
		}
	}

	spec, defaultHandlees, err := handlerspec.Analyze(cf, opts)
	if err != nil {
		return nil, nil, err
	}
	return spec, defaultHandlees, nil
}

// Transform applies the Instrumentation Plan's entry for binaryName, if
// any, to classBytes. If binaryName is not in the plan, classBytes is
// returned unchanged and transformed is false.
func (a *Agent) Transform(binaryName string, classBytes []byte) (rewritten []byte, transformed bool, err error) {
	if err := a.ensurePlan(); err != nil {
		return nil, false, err
	}
	spec, ok := a.plan[binaryName]
	if !ok {
		return classBytes, false, nil
	}

	cf, err := classfile.Parse(bytes.NewReader(classBytes))
	if err != nil {
		return nil, false, fmt.Errorf("agent: parse %s: %w", binaryName, err)
	}
	if err := instrument.Instrument(cf, spec); err != nil {
		commonlog.NewInfoMessage(0, fmt.Sprintf("handlerforge.agent: instrumentation failed for %s: %s", binaryName, err))
		return nil, false, err
	}
	out, err := classfile.Encode(cf)
	if err != nil {
		return nil, false, fmt.Errorf("agent: encode %s: %w", binaryName, err)
	}
	commonlog.NewInfoMessage(0, fmt.Sprintf("handlerforge.agent: instrumented class %s", binaryName))
	return out, true, nil
}

// Plan returns the built Instrumentation Plan: dotted handlee binary name
// to the Handler Spec governing it.
func (a *Agent) Plan() (map[string]*handlerspec.Spec, error) {
	if err := a.ensurePlan(); err != nil {
		return nil, err
	}
	return a.plan, nil
}

// Tree returns the Dependency Tree accumulated while building the plan:
// every handler interface declared before the handlees that depend on it,
// so a handler that is itself instrumented as someone else's handlee
// still loads after its own dependencies are in place.
func (a *Agent) Tree() (*deptree.Tree, error) {
	if err := a.ensurePlan(); err != nil {
		return nil, err
	}
	return a.tree, nil
}

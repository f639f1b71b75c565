// Package loader holds rewritten class bytes and defines them into a
// target class-loading domain in dependency order, falling back to an
// ambient resource store for classes the Loader never rewrote itself.
package loader

import (
	"fmt"
	"strings"

	"github.com/dhamidi/handlerforge/deptree"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

// AmbientSource supplies bytes for binary names the Loader was never
// told to Install: the VM's regular classpath or module lookup.
type AmbientSource interface {
	Bytes(binaryName string) ([]byte, bool)
}

// Domain is a target class-loading domain: it can report whether a name
// is already defined in it, and accept new bytes for a name.
type Domain interface {
	Defined(binaryName string) bool
	Define(binaryName string, classBytes []byte) error
}

// Options configures a Loader.
type Options struct {
	// Reload, when set, turns a redefinition of an already-defined name
	// into a shadow rather than a fatal error, but only for names the
	// Loader itself installed; pure ambient dependencies are left alone.
	Reload bool
	// SystemPrefix names the runtime's reserved prefix (e.g. "java/").
	// Classes under it are never instrumented and always resolved via
	// the ambient source, so DefineAll skips them entirely.
	SystemPrefix string
}

// Loader holds rewritten class bytes and defines them into a domain in
// dependency order.
type Loader struct {
	tree  *deptree.Tree
	bytes map[string][]byte
	opts  Options
}

// New returns a Loader that consults tree for load order.
func New(tree *deptree.Tree, opts Options) *Loader {
	return &Loader{
		tree:  tree,
		bytes: make(map[string][]byte),
		opts:  opts,
	}
}

// Install records classBytes as the rewritten form of binaryName and
// declares the name in the dependency tree.
func (l *Loader) Install(binaryName string, classBytes []byte) {
	l.tree.Declare(binaryName)
	l.bytes[binaryName] = classBytes
	commonlog.NewInfoMessage(0, fmt.Sprintf("handlerforge.loader: installed rewritten class %s (%d bytes)", binaryName, len(classBytes)))
}

// DefineAll defines every not-yet-loaded class among names (or every
// declared name, when names is empty) into domain, in dependency order,
// reading bytes for names the Loader never Installed from ambient.
func (l *Loader) DefineAll(domain Domain, ambient AmbientSource, names []string) error {
	order, err := l.tree.Load(names)
	if err != nil {
		return err
	}
	commonlog.NewInfoMessage(0, fmt.Sprintf("handlerforge.loader: defining %d classes", len(order)))
	for _, name := range order {
		if l.isSystem(name) {
			continue
		}
		own, hasOwn := l.bytes[name]
		if domain.Defined(name) {
			if !l.opts.Reload {
				return fmt.Errorf("loader: %s is already defined in the target domain", name)
			}
			if !hasOwn {
				continue
			}
			if err := domain.Define(name, own); err != nil {
				return fmt.Errorf("loader: redefining %s: %w", name, err)
			}
			commonlog.NewInfoMessage(0, fmt.Sprintf("handlerforge.loader: redefined class %s", name))
			continue
		}

		b := own
		if !hasOwn {
			var ok bool
			b, ok = ambient.Bytes(name)
			if !ok {
				return fmt.Errorf("loader: no bytes available for %s", name)
			}
		}
		if err := domain.Define(name, b); err != nil {
			return fmt.Errorf("loader: defining %s: %w", name, err)
		}
		commonlog.NewInfoMessage(0, fmt.Sprintf("handlerforge.loader: defined class %s (rewritten=%t)", name, hasOwn))
	}
	return nil
}

func (l *Loader) isSystem(name string) bool {
	return l.opts.SystemPrefix != "" && strings.HasPrefix(name, l.opts.SystemPrefix)
}

// MemoryDomain is an in-process Domain, useful for tests and for small
// embedded VMs that don't have their own class-loading bookkeeping.
type MemoryDomain struct {
	defined map[string][]byte
}

// NewMemoryDomain returns an empty MemoryDomain.
func NewMemoryDomain() *MemoryDomain {
	return &MemoryDomain{defined: make(map[string][]byte)}
}

func (d *MemoryDomain) Defined(binaryName string) bool {
	_, ok := d.defined[binaryName]
	return ok
}

func (d *MemoryDomain) Define(binaryName string, classBytes []byte) error {
	d.defined[binaryName] = classBytes
	return nil
}

// Bytes returns the bytes defined under binaryName, if any.
func (d *MemoryDomain) Bytes(binaryName string) ([]byte, bool) {
	b, ok := d.defined[binaryName]
	return b, ok
}

// MapAmbientSource is an AmbientSource backed by a plain map.
type MapAmbientSource map[string][]byte

func (m MapAmbientSource) Bytes(binaryName string) ([]byte, bool) {
	b, ok := m[binaryName]
	return b, ok
}

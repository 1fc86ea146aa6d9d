package ocr

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/cardshield/cardshield/observability"
)

// EnvBackendMode names the environment variable that overrides the backend
// mode when no explicit mode is supplied.
const EnvBackendMode = "CARDSHIELD_OCR_BACKEND"

// ModeAuto selects the full registered chain in registration order.
const ModeAuto = "auto"

// Factory builds one engine. Construction may load native resources and is
// paid once per process through the registry's cache.
type Factory func() (Engine, error)

// Registry is an explicit, statically built table of engine factories. It is
// passed by reference into the packs; there is no process-global registry.
type Registry struct {
	order     []string
	factories map[string]Factory
	cache     *EngineCache
}

// NewRegistry builds an empty registry backed by cache. A nil cache gets a
// private one.
func NewRegistry(cache *EngineCache) *Registry {
	if cache == nil {
		cache = NewEngineCache()
	}
	return &Registry{factories: make(map[string]Factory), cache: cache}
}

// Register adds a factory under name. Registration order defines the auto
// chain order; re-registering a name replaces the factory in place.
func (r *Registry) Register(name string, f Factory) {
	if _, ok := r.factories[name]; !ok {
		r.order = append(r.order, name)
	}
	r.factories[name] = f
}

// Names returns the registered engine names in chain order.
func (r *Registry) Names() []string { return append([]string(nil), r.order...) }

// ResolveMode normalizes a requested backend mode, falling back to the
// environment and then to auto. Unknown modes degrade to auto rather than
// failing the run.
func (r *Registry) ResolveMode(requested string) string {
	mode := strings.ToLower(strings.TrimSpace(requested))
	if mode == "" {
		mode = strings.ToLower(strings.TrimSpace(os.Getenv(EnvBackendMode)))
	}
	if mode == "" || mode == ModeAuto {
		return ModeAuto
	}
	if _, ok := r.factories[mode]; !ok {
		return ModeAuto
	}
	return mode
}

// ChainForMode builds the ordered chain for mode: the single named engine,
// or every registered engine for auto. An engine whose factory fails is kept
// in the chain as a placeholder that reports ErrUnavailable per call, so the
// failure shows up in the attempt log instead of vanishing.
func (r *Registry) ChainForMode(mode string, log observability.Logger) *Chain {
	names := r.order
	if mode != ModeAuto {
		names = []string{mode}
	}
	engines := make([]Engine, 0, len(names))
	for _, name := range names {
		factory, ok := r.factories[name]
		if !ok {
			continue
		}
		engine, err := r.cache.Get(name, factory)
		if err != nil {
			engines = append(engines, unavailableEngine{name: name, err: err})
			continue
		}
		engines = append(engines, engine)
	}
	return NewChain(log, engines...)
}

// unavailableEngine stands in for an engine that could not be constructed.
type unavailableEngine struct {
	name string
	err  error
}

func (u unavailableEngine) Name() string { return u.name }

func (u unavailableEngine) Recognize(context.Context, Input) (Result, error) {
	return Result{}, fmt.Errorf("%w: %s: %v", ErrUnavailable, u.name, u.err)
}

// Package packs hosts the scan pipelines. A pack is one end-to-end pipeline
// from an input file to a finalized report: extraction, detection, decision,
// redaction and verification wired for a specific document class.
package packs

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cardshield/cardshield/observability"
	"github.com/cardshield/cardshield/ocr"
	"github.com/cardshield/cardshield/policy"
	"github.com/cardshield/cardshield/render"
	"github.com/cardshield/cardshield/report"
	"github.com/cardshield/cardshield/vision"
)

// Env carries the shared collaborators a pack runs against. Everything is
// injected; packs hold no process-global state.
type Env struct {
	OCR      *ocr.Registry
	Renderer render.Renderer
	// Detector is the optional region detector; nil degrades every region
	// to the built-in heuristics.
	Detector vision.Detector
	Log      observability.Logger
	Tracer   observability.Tracer
	// Now supplies the clock; nil means time.Now.
	Now func() time.Time
}

func (e Env) logger() observability.Logger {
	if e.Log == nil {
		return observability.NopLogger{}
	}
	return e.Log
}

func (e Env) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

// Request is one scan invocation.
type Request struct {
	// Input is the document path: a raster page or a token file.
	Input string
	// OutputDir receives the report and any artifacts.
	OutputDir string
	// Config is the policy tuning for this run.
	Config policy.Config
	// BackendMode selects the OCR backend; empty defers to the environment
	// and then to auto.
	BackendMode string
	// ForceRedact is the operator override that applies suggested visual
	// redactions. The decision stays REVIEW regardless.
	ForceRedact bool
}

// Pack is one registered scan pipeline.
type Pack interface {
	ID() string
	Scan(ctx context.Context, req Request) (report.Report, error)
}

// Registry is the explicit pack table handed to the CLI and the server.
type Registry struct {
	packs map[string]Pack
}

func NewRegistry(packs ...Pack) *Registry {
	r := &Registry{packs: make(map[string]Pack, len(packs))}
	for _, p := range packs {
		r.packs[p.ID()] = p
	}
	return r
}

// Register adds or replaces a pack under its own ID.
func (r *Registry) Register(p Pack) { r.packs[p.ID()] = p }

// Get returns the pack registered under id.
func (r *Registry) Get(id string) (Pack, error) {
	p, ok := r.packs[id]
	if !ok {
		return nil, fmt.Errorf("unknown pack %q (have %v)", id, r.IDs())
	}
	return p, nil
}

// IDs returns the registered pack IDs, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.packs))
	for id := range r.packs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

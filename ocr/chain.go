package ocr

import (
	"context"
	"errors"
	"time"

	"github.com/cardshield/cardshield/observability"
)

// ErrUnavailable marks an engine whose backing library, binary or model is
// not present. The chain records it as a failed attempt and moves on.
var ErrUnavailable = errors.New("ocr engine unavailable")

// Attempt is the diagnostic record of one backend invocation.
type Attempt struct {
	Engine      string        `json:"engine"`
	Success     bool          `json:"success"`
	Confidence  float64       `json:"confidence,omitempty"`
	Elapsed     time.Duration `json:"elapsed"`
	TextPreview string        `json:"text_preview,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// Chain runs an ordered sequence of engines over the same input. Later
// engines are a deliberate cost/quality fallback, never raced in parallel.
type Chain struct {
	engines []Engine
	log     observability.Logger
}

// NewChain builds a chain over the given engines in invocation order.
func NewChain(log observability.Logger, engines ...Engine) *Chain {
	if log == nil {
		log = observability.NopLogger{}
	}
	return &Chain{engines: engines, log: log}
}

// Engines returns the chain's engines in invocation order.
func (c *Chain) Engines() []Engine { return c.engines }

// Run invokes every engine sequentially. A failing engine becomes a recorded
// attempt and never aborts the chain; when all engines fail, one synthetic
// empty result is returned so downstream selection always has a candidate.
func (c *Chain) Run(ctx context.Context, in Input) ([]Result, []Attempt) {
	var results []Result
	attempts := make([]Attempt, 0, len(c.engines))
	for _, engine := range c.engines {
		start := time.Now()
		res, err := engine.Recognize(ctx, in)
		elapsed := time.Since(start)
		if err != nil {
			attempts = append(attempts, Attempt{
				Engine:  engine.Name(),
				Success: false,
				Elapsed: elapsed,
				Error:   err.Error(),
			})
			c.log.Warn("ocr backend failed",
				observability.String("engine", engine.Name()),
				observability.Error("err", err))
			continue
		}
		res.Engine = engine.Name()
		attempts = append(attempts, Attempt{
			Engine:      engine.Name(),
			Success:     true,
			Confidence:  res.AvgConfidence,
			Elapsed:     elapsed,
			TextPreview: preview(res.Text, 40),
		})
		results = append(results, res)
	}
	if len(results) == 0 {
		results = append(results, Result{InputID: in.ID, Engine: "none"})
	}
	return results, attempts
}

// SelectBest picks one result deterministically. With preferDigits set (PAN
// regions) results rank by digit count, then average confidence, then text
// length; otherwise by confidence then length. Ties keep chain order.
func SelectBest(results []Result, preferDigits bool) Result {
	if len(results) == 0 {
		return Result{Engine: "none"}
	}
	best := results[0]
	bestKey := selectKey(best, preferDigits)
	for _, cand := range results[1:] {
		key := selectKey(cand, preferDigits)
		if keyGreater(key, bestKey) {
			best = cand
			bestKey = key
		}
	}
	return best
}

func selectKey(r Result, preferDigits bool) [3]float64 {
	digits := 0
	if preferDigits {
		for _, c := range r.Text {
			if c >= '0' && c <= '9' {
				digits++
			}
		}
	}
	return [3]float64{float64(digits), r.AvgConfidence, float64(len(r.Text))}
}

func keyGreater(a, b [3]float64) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] > b[i]
		}
	}
	return false
}

func preview(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// Package report assembles and serializes scan reports. A Report is built
// incrementally through a Builder and becomes immutable once finalized;
// everything downstream (CLI output, HTTP responses, audit files) reads the
// same frozen value.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/cardshield/cardshield/coords"
	"github.com/cardshield/cardshield/detect"
	"github.com/cardshield/cardshield/extract"
	"github.com/cardshield/cardshield/ocr"
	"github.com/cardshield/cardshield/policy"
)

// Artifact keys. Keys are stable identifiers; values are file paths.
const (
	ArtifactHighlight = "highlight"
	ArtifactRedacted  = "redacted"
	ArtifactReport    = "report"
	ArtifactOCRText   = "ocr_text"
	ArtifactOCRTokens = "ocr_tokens"
)

// Finding is the report form of one detection. Raw digits never appear here.
type Finding struct {
	FieldID    string     `json:"field_id"`
	Category   string     `json:"category"`
	Masked     string     `json:"masked"`
	BBox       [4]float64 `json:"bbox"`
	Page       int        `json:"page"`
	Source     string     `json:"source"`
	Validators []string   `json:"validators"`
	Severity   string     `json:"severity"`
}

// SuggestedBox is a redaction candidate that was not applied automatically.
type SuggestedBox struct {
	Page  int        `json:"page"`
	BBox  [4]float64 `json:"bbox"`
	Label string     `json:"label"`
}

// Report is one finished scan. Decision, reasons and artifacts are final;
// the struct is never mutated after Builder.Finalize returns it.
type Report struct {
	RunID       string          `json:"run_id"`
	PackID      string          `json:"pack_id"`
	Input       string          `json:"input"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at"`
	Decision    policy.Decision `json:"decision"`
	Reasons     []policy.Reason `json:"reasons"`
	Findings    []Finding       `json:"findings"`
	Extraction  extract.Stats   `json:"extraction"`
	CharCount   int             `json:"char_count"`
	OCRAttempts []ocr.Attempt   `json:"ocr_attempts,omitempty"`
	// Action marks a non-standard disposition, e.g. an operator-forced
	// redaction that still requires review.
	Action string `json:"action,omitempty"`
	// Artifacts maps artifact keys to output paths; Fingerprints carries
	// the BLAKE2b digest of each artifact file at finalization time.
	Artifacts    map[string]string `json:"artifacts"`
	Fingerprints map[string]string `json:"fingerprints,omitempty"`
	Suggested    []SuggestedBox    `json:"suggested_redactions,omitempty"`
	Trace        map[string]any    `json:"trace,omitempty"`
}

// Builder accumulates a scan's output. It is not safe for concurrent use and
// panics on mutation after Finalize, which would indicate a pipeline bug
// rather than a recoverable condition.
type Builder struct {
	rep       Report
	finalized bool
}

// NewBuilder starts a report for one input with a fresh run id.
func NewBuilder(packID, input string) *Builder {
	return &Builder{rep: Report{
		RunID:     uuid.NewString(),
		PackID:    packID,
		Input:     input,
		StartedAt: time.Now().UTC(),
		Artifacts: map[string]string{},
	}}
}

func (b *Builder) mutable() {
	if b.finalized {
		panic("report: mutation after finalize")
	}
}

// RunID returns the run identifier assigned at construction.
func (b *Builder) RunID() string { return b.rep.RunID }

// SetExtraction records the extraction stats and character volume.
func (b *Builder) SetExtraction(stats extract.Stats, charCount int) *Builder {
	b.mutable()
	b.rep.Extraction = stats
	b.rep.CharCount = charCount
	return b
}

// AddDetections appends findings in their masked report form.
func (b *Builder) AddDetections(dets []detect.Detection) *Builder {
	b.mutable()
	for _, d := range dets {
		b.rep.Findings = append(b.rep.Findings, Finding{
			FieldID:    d.FieldID,
			Category:   d.Category,
			Masked:     d.Masked,
			BBox:       [4]float64{d.Box.X0, d.Box.Y0, d.Box.X1, d.Box.Y1},
			Page:       d.Page,
			Source:     string(d.Source),
			Validators: append([]string(nil), d.Validators...),
			Severity:   string(d.Severity),
		})
	}
	return b
}

// AddOCRAttempts appends a backend attempt log to the trace.
func (b *Builder) AddOCRAttempts(attempts []ocr.Attempt) *Builder {
	b.mutable()
	b.rep.OCRAttempts = append(b.rep.OCRAttempts, attempts...)
	return b
}

// AddArtifact registers an output file under a stable key.
func (b *Builder) AddArtifact(key, path string) *Builder {
	b.mutable()
	b.rep.Artifacts[key] = path
	return b
}

// RemoveArtifact drops an artifact reference, used when verification voids a
// redacted output.
func (b *Builder) RemoveArtifact(key string) *Builder {
	b.mutable()
	delete(b.rep.Artifacts, key)
	return b
}

// AddSuggested records a redaction candidate for operator action.
func (b *Builder) AddSuggested(page int, box coords.Rect, label string) *Builder {
	b.mutable()
	b.rep.Suggested = append(b.rep.Suggested, SuggestedBox{
		Page:  page,
		BBox:  [4]float64{box.X0, box.Y0, box.X1, box.Y1},
		Label: label,
	})
	return b
}

// SetAction marks a non-standard disposition.
func (b *Builder) SetAction(action string) *Builder {
	b.mutable()
	b.rep.Action = action
	return b
}

// SetTrace attaches a named debug trace object.
func (b *Builder) SetTrace(key string, value any) *Builder {
	b.mutable()
	if b.rep.Trace == nil {
		b.rep.Trace = map[string]any{}
	}
	b.rep.Trace[key] = value
	return b
}

// SetOutcome records the decision and its reasons.
func (b *Builder) SetOutcome(out policy.Outcome) *Builder {
	b.mutable()
	b.rep.Decision = out.Decision
	b.rep.Reasons = append([]policy.Reason(nil), out.Reasons...)
	return b
}

// Finalize stamps the finish time, fingerprints the registered artifacts and
// freezes the report. Further mutation panics.
func (b *Builder) Finalize() Report {
	b.mutable()
	b.finalized = true
	b.rep.FinishedAt = time.Now().UTC()
	for key, path := range b.rep.Artifacts {
		sum, err := FingerprintFile(path)
		if err != nil {
			continue
		}
		if b.rep.Fingerprints == nil {
			b.rep.Fingerprints = map[string]string{}
		}
		b.rep.Fingerprints[key] = sum
	}
	return b.rep
}

// Write serializes the report as indented JSON to path and registers the
// file's own fingerprint alongside.
func Write(rep Report, path string) error {
	if rep.Artifacts != nil {
		rep.Artifacts[ArtifactReport] = path
	}
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

package packs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cardshield/cardshield/detect"
	"github.com/cardshield/cardshield/policy"
	"github.com/cardshield/cardshield/render"
)

// artifactPath joins the output directory, run id and artifact name, creating
// the directory on first use.
func artifactPath(outputDir, runID, name string) (string, error) {
	dir := filepath.Join(outputDir, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	return filepath.Join(dir, name), nil
}

// writeTextArtifact persists recognized text for the audit trail. Raw PAN
// digits must not appear here; the caller masks before writing.
func writeTextArtifact(path, text string) error {
	return os.WriteFile(path, []byte(text), 0o644)
}

// maskDigitRuns replaces every digit run of six or more with its masked form
// so OCR text artifacts cannot leak a card number.
func maskDigitRuns(text string) string {
	var out strings.Builder
	var run strings.Builder
	flush := func() {
		digits := run.String()
		run.Reset()
		if len(digits) >= 6 {
			out.WriteString(detect.Mask(digits))
			return
		}
		out.WriteString(digits)
	}
	for _, r := range text {
		if r >= '0' && r <= '9' {
			run.WriteRune(r)
			continue
		}
		flush()
		out.WriteRune(r)
	}
	flush()
	return out.String()
}

// redactionBoxes returns the render boxes for hit detections.
func redactionBoxes(dets []detect.Detection) []render.Box {
	var boxes []render.Box
	for _, d := range dets {
		if d.Severity != detect.SeverityHit {
			continue
		}
		boxes = append(boxes, render.Box{
			Page:  d.Page,
			Rect:  d.Box,
			Label: d.FieldID,
			Color: render.ColorHit,
		})
	}
	return boxes
}

// highlightBoxes returns review annotations for every detection.
func highlightBoxes(dets []detect.Detection) []render.Box {
	var boxes []render.Box
	for _, d := range dets {
		c := render.ColorSuspicion
		switch {
		case d.Source == detect.SourceVisual:
			c = render.ColorVisual
		case d.Severity == detect.SeverityHit:
			c = render.ColorHit
		}
		boxes = append(boxes, render.Box{
			Page:  d.Page,
			Rect:  d.Box,
			Label: d.FieldID,
			Color: c,
		})
	}
	return boxes
}

// applyRule runs the optional operator rule from cfg over the outcome. Rule
// failures keep the engine's outcome; an operator expression must not be able
// to break a scan.
func applyRule(out policy.Outcome, cfg policy.Config, charCount int, dets []detect.Detection) policy.Outcome {
	if cfg.Rule == "" {
		return out
	}
	rule, err := policy.CompileRule(cfg.Rule)
	if err != nil {
		return out
	}
	hits, suspicions := detect.CountBySeverity(dets)
	codes := make([]string, 0, len(out.Reasons))
	for _, r := range out.Reasons {
		codes = append(codes, r.Code)
	}
	applied, err := rule.Apply(out, policy.RuleInput{
		Decision:   string(out.Decision),
		Hits:       hits,
		Suspicions: suspicions,
		CharCount:  charCount,
		Reasons:    codes,
	})
	if err != nil {
		return out
	}
	return applied
}

// mergePANs combines detection sets, keeping one detection per (page, digits)
// pair and preferring hits over suspicions. Insertion order is preserved.
type panKey struct {
	page   int
	digits string
}

func mergePANs(sets ...[]detect.Detection) []detect.Detection {
	var out []detect.Detection
	index := map[panKey]int{}
	for _, set := range sets {
		for _, d := range set {
			if d.Category != detect.CategoryPAN || d.Raw == "" {
				out = append(out, d)
				continue
			}
			key := panKey{page: d.Page, digits: d.Raw}
			at, seen := index[key]
			if !seen {
				index[key] = len(out)
				out = append(out, d)
				continue
			}
			if out[at].Severity != detect.SeverityHit && d.Severity == detect.SeverityHit {
				out[at] = d
			}
		}
	}
	return out
}

// Package verify re-checks redacted artifacts before a CONFIRMED decision is
// released. Verification never repairs: a failed pass downgrades the run and
// voids the artifact, it does not retry the destructive edit.
package verify

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cardshield/cardshield/detect"
	"github.com/cardshield/cardshield/extract"
	"github.com/cardshield/cardshield/ocr"
	"github.com/cardshield/cardshield/observability"
	"github.com/cardshield/cardshield/render"
)

// Outcome is the result of one verification pass.
type Outcome struct {
	Clean bool `json:"clean"`
	// Remaining lists detections still present in the redacted artifact.
	Remaining []detect.Detection `json:"-"`
	// BoxesChecked counts the targeted re-OCR probes on image inputs.
	BoxesChecked int `json:"boxes_checked"`
}

// Verifier re-detects over a redacted artifact. Implementations must be
// idempotent: verifying the same artifact twice yields the same outcome.
type Verifier struct {
	extractor *extract.DocumentExtractor
	chain     *ocr.Chain
	log       observability.Logger
}

func New(extractor *extract.DocumentExtractor, chain *ocr.Chain, log observability.Logger) *Verifier {
	if log == nil {
		log = observability.NopLogger{}
	}
	return &Verifier{extractor: extractor, chain: chain, log: log}
}

// Document runs the full extract+detect pipeline over the redacted artifact.
// Any PAN detection, hit or suspicion, fails the pass: a redacted output must
// contain no recoverable card data at all.
func (v *Verifier) Document(ctx context.Context, redactedPath string, cfg detect.PANConfig) (Outcome, error) {
	tokens, _, err := v.extractor.Extract(ctx, redactedPath)
	if err != nil {
		return Outcome{}, fmt.Errorf("verify %s: %w", filepath.Base(redactedPath), err)
	}
	remaining := detect.FindPANs(tokens, cfg, nil)
	v.log.Info("document verification",
		observability.String("artifact", filepath.Base(redactedPath)),
		observability.Int("remaining", len(remaining)))
	return Outcome{Clean: len(remaining) == 0, Remaining: remaining}, nil
}

// Boxes re-OCRs each redacted box region of an image artifact with the
// digit-tuned profile. A box passes when the recognizer finds no digit
// sequence of eight or more in it; fully opaque fill yields empty text.
func (v *Verifier) Boxes(ctx context.Context, redactedPath string, boxes []render.Box) (Outcome, error) {
	img, err := extract.LoadImage(redactedPath)
	if err != nil {
		return Outcome{}, err
	}
	data, err := extract.EncodePNG(img)
	if err != nil {
		return Outcome{}, fmt.Errorf("verify %s: %w", filepath.Base(redactedPath), err)
	}

	out := Outcome{Clean: true}
	for i, box := range boxes {
		region := box.Rect
		in := ocr.Apply(ocr.Input{
			ID:     fmt.Sprintf("%s#box%d", filepath.Base(redactedPath), i),
			Image:  data,
			Format: ocr.ImageFormatPNG,
			Region: &region,
		}, ocr.PANDigitsOptions()...)
		results, _ := v.chain.Run(ctx, in)
		best := ocr.SelectBest(results, true)
		out.BoxesChecked++

		if !digitsRemain(best.Text) {
			continue
		}
		dets := detect.FindPANsInROIText(best.Text, roiStats(best), region, box.Page)
		if len(dets) == 0 {
			// Digit residue without a full candidate still fails the
			// box: the fill did not cover the content.
			dets = []detect.Detection{{
				FieldID:    detect.FieldCardPAN,
				Category:   detect.CategoryPAN,
				Masked:     detect.Mask(digitRun(best.Text)),
				Box:        region,
				Page:       box.Page,
				Source:     detect.SourceROIOCR,
				Validators: []string{"residual_digits"},
				Severity:   detect.SeveritySuspicion,
			}}
		}
		out.Clean = false
		out.Remaining = append(out.Remaining, dets...)
		v.log.Warn("digits survive redaction box",
			observability.String("artifact", filepath.Base(redactedPath)),
			observability.Int("box", i))
	}
	return out, nil
}

// IDBoxes re-reads each redacted identity box with its field-tuned profile
// and re-runs the matching structural check. Boxes with other labels (face,
// date of birth) have no re-detectable structure and are skipped.
func (v *Verifier) IDBoxes(ctx context.Context, redactedPath string, boxes []render.Box) (Outcome, error) {
	img, err := extract.LoadImage(redactedPath)
	if err != nil {
		return Outcome{}, err
	}
	data, err := extract.EncodePNG(img)
	if err != nil {
		return Outcome{}, fmt.Errorf("verify %s: %w", filepath.Base(redactedPath), err)
	}

	out := Outcome{Clean: true}
	for i, box := range boxes {
		var opts []ocr.InputOption
		switch box.Label {
		case detect.FieldMRZ:
			opts = ocr.MRZOptions()
		case detect.FieldIDNumber:
			opts = ocr.IDAlnumOptions()
		default:
			continue
		}
		region := box.Rect
		in := ocr.Apply(ocr.Input{
			ID:     fmt.Sprintf("%s#box%d", filepath.Base(redactedPath), i),
			Image:  data,
			Format: ocr.ImageFormatPNG,
			Region: &region,
		}, opts...)
		results, _ := v.chain.Run(ctx, in)
		best := ocr.SelectBest(results, false)
		out.BoxesChecked++

		var remaining []detect.Detection
		if box.Label == detect.FieldMRZ {
			if mrz, ok := detect.DetectMRZ(best.Text); ok {
				remaining = append(remaining, detect.BuildMRZDetection(mrz, region, box.Page))
			}
		} else if id, ok := detect.DetectIDNumber(best.Text); ok {
			remaining = append(remaining, detect.BuildIDDetection(id, region, box.Page))
		}
		if len(remaining) == 0 {
			continue
		}
		out.Clean = false
		out.Remaining = append(out.Remaining, remaining...)
		v.log.Warn("identity data survives redaction box",
			observability.String("artifact", filepath.Base(redactedPath)),
			observability.String("field", box.Label),
			observability.Int("box", i))
	}
	return out, nil
}

func roiStats(res ocr.Result) detect.ROIStats {
	return detect.ROIStats{
		AvgConfidence: res.AvgConfidence,
		MinConfidence: res.MinConfidence(),
	}
}

// digitsRemain reports whether text contains a run of 8+ digits, allowing
// space and dash separators inside the run.
func digitsRemain(text string) bool {
	return len(digitRun(text)) >= 8
}

// digitRun returns the longest digit sequence in text after dropping
// separator characters.
func digitRun(text string) string {
	best, cur := "", strings.Builder{}
	flush := func() {
		if cur.Len() > len(best) {
			best = cur.String()
		}
		cur.Reset()
	}
	for _, r := range text {
		switch {
		case r >= '0' && r <= '9':
			cur.WriteRune(r)
		case r == ' ' || r == '-':
			// separator inside a run; keep accumulating
		default:
			flush()
		}
	}
	flush()
	return best
}

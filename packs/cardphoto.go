package packs

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/cardshield/cardshield/detect"
	"github.com/cardshield/cardshield/extract"
	"github.com/cardshield/cardshield/observability"
	"github.com/cardshield/cardshield/ocr"
	"github.com/cardshield/cardshield/policy"
	"github.com/cardshield/cardshield/render"
	"github.com/cardshield/cardshield/report"
	"github.com/cardshield/cardshield/verify"
	"github.com/cardshield/cardshield/vision"
)

// CardPhotoID identifies the image pack.
const CardPhotoID = "global.card_photo.v1"

// ActionForcedRedact marks an operator-forced visual redaction. The run
// stays in REVIEW: the forced band was never structurally confirmed.
const ActionForcedRedact = "FORCED_REDACT_REVIEW"

// CardPhoto is the image-first pack for card and ID photos: locate the
// subject, OCR the working region and the PAN/expiry bands, weigh visual and
// capture-quality signals, then redact and verify.
type CardPhoto struct {
	env Env
}

func NewCardPhoto(env Env) *CardPhoto { return &CardPhoto{env: env} }

func (p *CardPhoto) ID() string { return CardPhotoID }

func (p *CardPhoto) Scan(ctx context.Context, req Request) (report.Report, error) {
	log := p.env.logger()
	b := report.NewBuilder(p.ID(), req.Input)

	img, err := extract.LoadImage(req.Input)
	if err != nil {
		return report.Report{}, err
	}

	var regionBoxes []vision.Box
	if p.env.Detector != nil {
		if found, derr := p.env.Detector.Detect(ctx, img); derr == nil {
			regionBoxes = found
		} else {
			log.Warn("region detector failed, falling back to heuristics",
				observability.Error("err", derr))
		}
	}
	region, regionSource := vision.ResolveCardRegion(img, regionBoxes)
	pre := vision.Preprocess(img, region)
	b.SetTrace("region", map[string]any{"source": regionSource, "roi": pre.ROI})
	b.SetTrace("quality", pre.Quality)

	working, err := extract.EncodePNG(pre.Image)
	if err != nil {
		return report.Report{}, err
	}
	mode := p.env.OCR.ResolveMode(req.BackendMode)
	chain := p.env.OCR.ChainForMode(mode, log)

	tokens, text := p.workingOCR(ctx, chain, b, req.Input, working, pre)
	charCount := extract.CharCount(tokens)
	b.SetExtraction(extract.Stats{
		UsedOCR:       true,
		TokenCount:    len(tokens),
		OCRTokenCount: len(tokens),
	}, charCount)

	var trace detect.PANTrace
	dets := detect.FindPANs(tokens, req.Config.PAN, &trace)
	roiDets := p.panBandOCR(ctx, chain, b, working, pre, regionBoxes)
	dets = mergePANs(dets, roiDets)
	dets = append(dets, p.expiryBandOCR(ctx, chain, working, pre, regionBoxes)...)
	b.SetTrace("pan", trace)

	var visual *vision.VisualPAN
	if vp, ok := vision.DetectVisualPAN(img); ok {
		visual = &vp
		b.SetTrace("visual", vp)
		dets = append(dets, detect.Detection{
			FieldID:    detect.FieldCardPAN,
			Category:   detect.CategoryPAN,
			Box:        vp.Box,
			Source:     detect.SourceVisual,
			Validators: []string{"visual"},
			Severity:   detect.SeveritySuspicion,
		})
	}
	b.AddDetections(dets)

	if text != "" {
		if txtPath, aerr := artifactPath(req.OutputDir, b.RunID(), "ocr_text.txt"); aerr == nil {
			if werr := writeTextArtifact(txtPath, maskDigitRuns(text)); werr == nil {
				b.AddArtifact(report.ArtifactOCRText, txtPath)
			}
		}
	}

	sig := policy.Signals{
		CharCount:          charCount,
		CardRegionRequired: true,
		CardRegionFound:    regionSource != vision.RegionSourceFallback,
		BlurChecked:        req.Config.BlurMin > 0,
		BlurScore:          pre.Blur,
		OcclusionSuspected: pre.Quality.OcclusionSuspected,
	}
	out := policy.Evaluate(dets, sig, req.Config)
	out = applyRule(out, req.Config, charCount, dets)

	if len(dets) > 0 {
		if hlPath, aerr := artifactPath(req.OutputDir, b.RunID(), "highlight.png"); aerr == nil {
			if _, herr := p.env.Renderer.Highlight(ctx, req.Input, highlightBoxes(dets), hlPath); herr == nil {
				b.AddArtifact(report.ArtifactHighlight, hlPath)
			}
		}
	}

	switch {
	case out.NeedsRedaction:
		out, err = p.redactAndVerify(ctx, req, b, chain, redactionBoxes(dets), out)
		if err != nil {
			return report.Report{}, err
		}
	case out.SuggestRedaction && visual != nil:
		b.AddSuggested(0, visual.Box, detect.FieldCardPAN)
		if req.ForceRedact {
			forced := []render.Box{{Rect: visual.Box, Label: detect.FieldCardPAN, Color: render.ColorVisual}}
			out, err = p.redactAndVerify(ctx, req, b, chain, forced, out)
			if err != nil {
				return report.Report{}, err
			}
			// Forced redactions never upgrade the decision.
			out.Decision = policy.Review
			b.SetAction(ActionForcedRedact)
		}
	}

	b.SetOutcome(out)
	rep := b.Finalize()
	path, err := artifactPath(req.OutputDir, rep.RunID, "report.json")
	if err != nil {
		return report.Report{}, err
	}
	if err := report.Write(rep, path); err != nil {
		return report.Report{}, err
	}
	log.Info("scan finished",
		observability.String("pack", p.ID()),
		observability.String("run", rep.RunID),
		observability.String("decision", string(rep.Decision)))
	return rep, nil
}

// workingOCR recognizes the full working region and maps word boxes back to
// page coordinates.
func (p *CardPhoto) workingOCR(ctx context.Context, chain *ocr.Chain, b *report.Builder, input string, working []byte, pre vision.Output) ([]detect.Token, string) {
	in := ocr.Apply(ocr.Input{
		ID:     filepath.Base(input),
		Image:  working,
		Format: ocr.ImageFormatPNG,
	}, ocr.WithLanguages("eng"))
	results, attempts := chain.Run(ctx, in)
	b.AddOCRAttempts(attempts)
	best := ocr.SelectBest(results, false)

	tokens := make([]detect.Token, 0, len(best.Words))
	for _, w := range best.Words {
		if strings.TrimSpace(w.Text) == "" {
			continue
		}
		tokens = append(tokens, detect.Token{
			Text:       w.Text,
			Box:        pre.MapToPage(w.Box),
			Source:     detect.SourceOCR,
			Confidence: w.Confidence,
		})
	}
	return tokens, best.Text
}

// panBandOCR runs the digit-tuned read over the PAN band of the working
// image.
func (p *CardPhoto) panBandOCR(ctx context.Context, chain *ocr.Chain, b *report.Builder, working []byte, pre vision.Output, regionBoxes []vision.Box) []detect.Detection {
	wb := pre.Image.Bounds()
	band := vision.ResolvePANBand(mapBoxes(regionBoxes, pre), wb.Dx(), wb.Dy())
	in := ocr.Apply(ocr.Input{
		ID:     "pan_band",
		Image:  working,
		Format: ocr.ImageFormatPNG,
		Region: &band,
	}, ocr.PANDigitsOptions()...)
	results, attempts := chain.Run(ctx, in)
	b.AddOCRAttempts(attempts)
	best := ocr.SelectBest(results, true)
	stats := detect.ROIStats{AvgConfidence: best.AvgConfidence, MinConfidence: best.MinConfidence()}
	return detect.FindPANsInROIText(best.Text, stats, pre.MapToPage(band), 0)
}

// expiryBandOCR runs the expiry read over the lower-right band.
func (p *CardPhoto) expiryBandOCR(ctx context.Context, chain *ocr.Chain, working []byte, pre vision.Output, regionBoxes []vision.Box) []detect.Detection {
	wb := pre.Image.Bounds()
	band := vision.ResolveExpiryBand(mapBoxes(regionBoxes, pre), wb.Dx(), wb.Dy())
	in := ocr.Apply(ocr.Input{
		ID:     "expiry_band",
		Image:  working,
		Format: ocr.ImageFormatPNG,
		Region: &band,
	}, ocr.ExpiryOptions()...)
	results, _ := chain.Run(ctx, in)
	best := ocr.SelectBest(results, true)
	exp := detect.ParseExpiry(best.Text, p.env.now())
	if exp == nil {
		return nil
	}
	return []detect.Detection{detect.BuildExpiryDetection(*exp, pre.MapToPage(band), 0)}
}

// mapBoxes transforms detector boxes from page into working coordinates.
func mapBoxes(boxes []vision.Box, pre vision.Output) []vision.Box {
	if len(boxes) == 0 {
		return nil
	}
	out := make([]vision.Box, len(boxes))
	for i, box := range boxes {
		out[i] = vision.Box{
			Label:      box.Label,
			Confidence: box.Confidence,
			Rect:       pre.MapFromPage(box.Rect),
		}
	}
	return out
}

// redactAndVerify fills the boxes on the original image and probes each box
// with a targeted re-read. Surviving digits void the artifact.
func (p *CardPhoto) redactAndVerify(ctx context.Context, req Request, b *report.Builder, chain *ocr.Chain, boxes []render.Box, out policy.Outcome) (policy.Outcome, error) {
	log := p.env.logger()
	if len(boxes) == 0 {
		return out, nil
	}
	redPath, err := artifactPath(req.OutputDir, b.RunID(), "redacted.png")
	if err != nil {
		return out, err
	}
	if _, err := p.env.Renderer.Redact(ctx, req.Input, boxes, redPath); err != nil {
		return out, err
	}
	b.AddArtifact(report.ArtifactRedacted, redPath)

	verifier := verify.New(extract.NewDocumentExtractor(chain, log), chain, log)
	ver, err := verifier.Boxes(ctx, redPath, boxes)
	if err != nil {
		return out, err
	}
	if !ver.Clean {
		b.RemoveArtifact(report.ArtifactRedacted)
		if rmErr := os.Remove(redPath); rmErr != nil {
			log.Warn("failed to remove dirty artifact", observability.Error("err", rmErr))
		}
		return policy.Downgrade(out), nil
	}
	return out, nil
}

package packs

import (
	"context"
	"os"

	"github.com/cardshield/cardshield/coords"
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

// IDPhotoID identifies the identity-document photo pack.
const IDPhotoID = "global.id_photo.v1"

// IDPhoto scans photos of passports and ID cards. The machine-readable zone
// is the structural anchor: an MRZ match confirms, a bare document number
// only raises review. Confirmed runs redact the MRZ and document number
// together with the face and date-of-birth regions the detector localized.
type IDPhoto struct {
	env Env
}

func NewIDPhoto(env Env) *IDPhoto { return &IDPhoto{env: env} }

func (p *IDPhoto) ID() string { return IDPhotoID }

func (p *IDPhoto) Scan(ctx context.Context, req Request) (report.Report, error) {
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

	wb := pre.Image.Bounds()
	workingBoxes := mapBoxes(regionBoxes, pre)
	mrzBand := vision.ResolveMRZBand(workingBoxes, wb.Dx(), wb.Dy())
	idBand := vision.ResolveIDNumberBand(workingBoxes, wb.Dx(), wb.Dy())
	mrzText := p.bandOCR(ctx, chain, b, "mrz_band", working, mrzBand, ocr.MRZOptions())
	idText := p.bandOCR(ctx, chain, b, "id_band", working, idBand, ocr.IDAlnumOptions())
	charCount := extract.CharCount([]detect.Token{{Text: mrzText}, {Text: idText}})
	b.SetExtraction(extract.Stats{UsedOCR: true}, charCount)

	var dets []detect.Detection
	if mrz, ok := detect.DetectMRZ(mrzText); ok {
		dets = append(dets, detect.BuildMRZDetection(mrz, pre.MapToPage(mrzBand), 0))
	}
	if id, ok := detect.DetectIDNumber(idText); ok {
		dets = append(dets, detect.BuildIDDetection(id, pre.MapToPage(idBand), 0))
	}
	b.AddDetections(dets)

	if text := mrzText + "\n" + idText; text != "\n" {
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
	out := policy.EvaluateID(dets, sig, req.Config)
	out = applyRule(out, req.Config, charCount, dets)

	boxes := p.identityBoxes(dets, regionBoxes)
	if len(boxes) > 0 {
		if hlPath, aerr := artifactPath(req.OutputDir, b.RunID(), "highlight.png"); aerr == nil {
			if _, herr := p.env.Renderer.Highlight(ctx, req.Input, boxes, hlPath); herr == nil {
				b.AddArtifact(report.ArtifactHighlight, hlPath)
			}
		}
	}

	if out.NeedsRedaction {
		out, err = p.redactAndVerify(ctx, req, b, chain, boxes, out)
		if err != nil {
			return report.Report{}, err
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

// bandOCR runs one field-tuned read over a band of the working image and
// returns the best text.
func (p *IDPhoto) bandOCR(ctx context.Context, chain *ocr.Chain, b *report.Builder, id string, working []byte, band coords.Rect, opts []ocr.InputOption) string {
	in := ocr.Apply(ocr.Input{
		ID:     id,
		Image:  working,
		Format: ocr.ImageFormatPNG,
		Region: &band,
	}, opts...)
	results, attempts := chain.Run(ctx, in)
	b.AddOCRAttempts(attempts)
	return ocr.SelectBest(results, false).Text
}

// identityBoxes collects the regions to annotate and remove: the detected
// MRZ and document-number boxes plus the best face and date-of-birth boxes
// from the detector.
func (p *IDPhoto) identityBoxes(dets []detect.Detection, regionBoxes []vision.Box) []render.Box {
	var boxes []render.Box
	for _, d := range dets {
		color := render.ColorSuspicion
		if d.Severity == detect.SeverityHit {
			color = render.ColorHit
		}
		boxes = append(boxes, render.Box{
			Page:  d.Page,
			Rect:  d.Box,
			Label: d.FieldID,
			Color: color,
		})
	}
	for _, label := range []string{vision.LabelDOB, vision.LabelFace} {
		if best, ok := bestBox(regionBoxes, label); ok {
			boxes = append(boxes, render.Box{Rect: best.Rect, Label: label, Color: render.ColorROI})
		}
	}
	return boxes
}

func bestBox(boxes []vision.Box, label string) (vision.Box, bool) {
	var best vision.Box
	found := false
	for _, b := range boxes {
		if b.Label != label {
			continue
		}
		if !found || b.Confidence > best.Confidence {
			best = b
			found = true
		}
	}
	return best, found
}

// redactAndVerify fills the identity boxes on the original image and probes
// the MRZ and document-number boxes with field-tuned re-reads. A readable
// MRZ or number voids the artifact.
func (p *IDPhoto) redactAndVerify(ctx context.Context, req Request, b *report.Builder, chain *ocr.Chain, boxes []render.Box, out policy.Outcome) (policy.Outcome, error) {
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
	ver, err := verifier.IDBoxes(ctx, redPath, boxes)
	if err != nil {
		return out, err
	}
	if !ver.Clean {
		b.RemoveArtifact(report.ArtifactRedacted)
		if rmErr := os.Remove(redPath); rmErr != nil {
			log.Warn("failed to remove dirty artifact", observability.Error("err", rmErr))
		}
		return policy.DowngradeMRZ(out), nil
	}
	return out, nil
}

package packs

import (
	"context"
	"os"

	"github.com/cardshield/cardshield/detect"
	"github.com/cardshield/cardshield/extract"
	"github.com/cardshield/cardshield/observability"
	"github.com/cardshield/cardshield/ocr"
	"github.com/cardshield/cardshield/policy"
	"github.com/cardshield/cardshield/report"
	"github.com/cardshield/cardshield/verify"
)

// PCILiteID identifies the document pack.
const PCILiteID = "global.pci_lite.v1"

// PCILite is the text-first document pack: extract tokens, detect PANs and
// expiry dates, redact hits and verify the redacted artifact before the
// CONFIRMED decision is released.
type PCILite struct {
	env Env
}

func NewPCILite(env Env) *PCILite { return &PCILite{env: env} }

func (p *PCILite) ID() string { return PCILiteID }

func (p *PCILite) Scan(ctx context.Context, req Request) (report.Report, error) {
	log := p.env.logger()
	b := report.NewBuilder(p.ID(), req.Input)

	mode := p.env.OCR.ResolveMode(req.BackendMode)
	chain := p.env.OCR.ChainForMode(mode, log)
	extractor := extract.NewDocumentExtractor(chain, log)

	tokens, stats, err := extractor.Extract(ctx, req.Input)
	if err != nil {
		return report.Report{}, err
	}
	charCount := extract.CharCount(tokens)
	b.SetExtraction(stats, charCount)
	b.AddOCRAttempts(extractor.LastAttempts)

	var trace detect.PANTrace
	dets := detect.FindPANs(tokens, req.Config.PAN, &trace)
	dets = mergePANs(dets)
	dets = append(dets, p.scanExpiry(tokens)...)
	b.AddDetections(dets)
	b.SetTrace("pan", trace)

	out := policy.Evaluate(dets, policy.Signals{CharCount: charCount}, req.Config)
	out = applyRule(out, req.Config, charCount, dets)

	if out.NeedsRedaction {
		out, err = p.redactAndVerify(ctx, req, b, chain, dets, out)
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

// scanExpiry runs the expiry primitive over every token.
func (p *PCILite) scanExpiry(tokens []detect.Token) []detect.Detection {
	now := p.env.now()
	var out []detect.Detection
	for _, tok := range tokens {
		exp := detect.ParseExpiry(tok.Text, now)
		if exp == nil {
			continue
		}
		d := detect.BuildExpiryDetection(*exp, tok.Box, tok.Page)
		d.Source = tok.Source
		out = append(out, d)
	}
	return out
}

// redactAndVerify destructively removes hit boxes and re-runs detection over
// the result. A dirty verification pass voids the artifact and downgrades the
// decision; there is no automatic retry of the destructive edit.
func (p *PCILite) redactAndVerify(ctx context.Context, req Request, b *report.Builder, chain *ocr.Chain, dets []detect.Detection, out policy.Outcome) (policy.Outcome, error) {
	log := p.env.logger()
	boxes := redactionBoxes(dets)

	if hlPath, err := artifactPath(req.OutputDir, b.RunID(), "highlight.png"); err == nil {
		if _, err := p.env.Renderer.Highlight(ctx, req.Input, highlightBoxes(dets), hlPath); err == nil {
			b.AddArtifact(report.ArtifactHighlight, hlPath)
		}
	}

	redPath, err := artifactPath(req.OutputDir, b.RunID(), "redacted.png")
	if err != nil {
		return out, err
	}
	if _, err := p.env.Renderer.Redact(ctx, req.Input, boxes, redPath); err != nil {
		// The renderer cannot rewrite this format in-process; the hits are
		// surfaced for operator action instead of auto-released.
		log.Warn("redaction unavailable for input", observability.Error("err", err))
		for _, box := range boxes {
			b.AddSuggested(box.Page, box.Rect, box.Label)
		}
		out.Decision = policy.Review
		out.NeedsRedaction = false
		out.Reasons = append(out.Reasons, policy.NewReason(policy.CodeSuspicionUnresolved))
		return out, nil
	}
	b.AddArtifact(report.ArtifactRedacted, redPath)

	verifier := verify.New(extract.NewDocumentExtractor(chain, log), chain, log)
	ver, err := verifier.Document(ctx, redPath, req.Config.PAN)
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

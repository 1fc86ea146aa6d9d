package policy

import "github.com/cardshield/cardshield/detect"

// Signals carries the non-detection evidence the engine weighs: extraction
// volume and, for image packs, region and capture-quality checks.
type Signals struct {
	CharCount int
	// CardRegionRequired gates confirmation on a locatable document or
	// card region; CardRegionFound reports whether one was resolved from
	// the detector or the edge heuristic (the margin fallback does not
	// count).
	CardRegionRequired bool
	CardRegionFound    bool
	// BlurChecked enables the blur gate; BlurScore is the region's
	// Laplacian-variance sharpness.
	BlurChecked bool
	BlurScore   float64
	// OcclusionSuspected is the skin/dark-coverage flag over the region.
	OcclusionSuspected bool
}

// Outcome is the engine's pre-verification result. NeedsRedaction is set
// when hit detections must be destructively removed and re-verified before
// the CONFIRMED decision may be released.
type Outcome struct {
	Decision       Decision
	Reasons        []Reason
	NeedsRedaction bool
	// SuggestRedaction is set when the only PAN evidence is visual; the
	// suggested boxes may be applied solely under an operator override.
	SuggestRedaction bool
}

// Evaluate runs the decision state machine over the detection set. The
// caller owns the redaction/verification step signalled by NeedsRedaction;
// Downgrade finalizes the outcome afterwards.
func Evaluate(dets []detect.Detection, sig Signals, cfg Config) Outcome {
	if cfg.MinCharCount > 0 && sig.CharCount < cfg.MinCharCount {
		return Outcome{Decision: Rejected, Reasons: []Reason{NewReason(CodeExtractionEmpty)}}
	}

	hits, suspicions, visualOnly, expiryOnly := partition(dets)

	// A checksum-verified hit with a locatable subject confirms; quality
	// flags cannot outvote structural evidence.
	if len(hits) > 0 && (!sig.CardRegionRequired || sig.CardRegionFound) {
		if len(suspicions) == 0 {
			return Outcome{
				Decision:       Confirmed,
				Reasons:        []Reason{NewReason(CodePANConfirmed)},
				NeedsRedaction: true,
			}
		}
	}

	var reasons []Reason
	if len(visualOnly) > 0 {
		reasons = append(reasons, NewReason(CodePANSuspectVisual))
	}
	reasons = append(reasons, suspicionReasons(suspicions)...)
	if len(expiryOnly) > 0 && len(hits) == 0 {
		reasons = append(reasons, NewReason(CodeExpiryOnly))
	}
	if sig.OcclusionSuspected {
		reasons = append(reasons, NewReason(CodeOcclusion))
	}
	blurLow := sig.BlurChecked && sig.BlurScore < cfg.BlurMin
	if blurLow {
		reasons = append(reasons, NewReason(CodeQualityLow))
	}
	if sig.CardRegionRequired && !sig.CardRegionFound {
		reasons = append(reasons, NewReason(CodeCardRegionMissing))
	}

	// Unresolvable capture: nothing found, no subject, too blurry to say
	// anything better than "recapture".
	if sig.CardRegionRequired && !sig.CardRegionFound && blurLow &&
		len(hits)+len(suspicions)+len(visualOnly) == 0 {
		return Outcome{Decision: Rejected, Reasons: []Reason{NewReason(CodeQualityLow)}}
	}

	if len(hits) > 0 {
		// Hits shadowed by suspicions or a missing region: the hit is
		// real evidence but cannot be auto-released.
		return Outcome{Decision: Review, Reasons: reasons}
	}
	if len(reasons) > 0 {
		return Outcome{
			Decision:         Review,
			Reasons:          reasons,
			SuggestRedaction: len(visualOnly) > 0 && len(suspicions) == 0,
		}
	}

	switch cfg.NoDetectionDefault {
	case Review:
		return Outcome{Decision: Review, Reasons: []Reason{NewReason(CodeNoDetectionsReview)}}
	default:
		return Outcome{Decision: Confirmed}
	}
}

// Downgrade voids a pending CONFIRMED after a failed verification pass. The
// pre-verification confirmation reason is dropped with it: the report must
// not claim a redaction that was voided. The redacted artifact reference
// must be cleared by the caller.
func Downgrade(out Outcome) Outcome {
	reasons := make([]Reason, 0, len(out.Reasons)+1)
	for _, r := range out.Reasons {
		if r.Code == CodePANConfirmed {
			continue
		}
		reasons = append(reasons, r)
	}
	return Outcome{
		Decision: Review,
		Reasons:  append(reasons, NewReason(CodePANRemains)),
	}
}

// EvaluateID runs the decision state machine for identity-document scans.
// An MRZ hit is structural evidence and confirms on its own; a document
// number without an MRZ never rises above REVIEW. A capture with nothing
// found and nothing to review is rejected for recapture.
func EvaluateID(dets []detect.Detection, sig Signals, cfg Config) Outcome {
	mrzHits, idSuspects := 0, 0
	for _, d := range dets {
		switch d.Category {
		case detect.CategoryMRZ:
			if d.Severity == detect.SeverityHit {
				mrzHits++
			}
		case detect.CategoryID:
			idSuspects++
		}
	}
	if mrzHits > 0 {
		return Outcome{
			Decision:       Confirmed,
			Reasons:        []Reason{NewReason(CodeMRZConfirmed)},
			NeedsRedaction: true,
		}
	}

	var reasons []Reason
	if idSuspects > 0 {
		reasons = append(reasons, NewReason(CodeIDSuspect))
	}
	blurLow := sig.BlurChecked && sig.BlurScore < cfg.BlurMin
	if sig.OcclusionSuspected || blurLow {
		reasons = append(reasons, NewReason(CodeQualityLow))
		if sig.OcclusionSuspected {
			reasons = append(reasons, NewReason(CodeOcclusion))
		}
	}
	if len(reasons) > 0 {
		return Outcome{Decision: Review, Reasons: reasons}
	}
	return Outcome{Decision: Rejected, Reasons: []Reason{NewReason(CodeQualityLow)}}
}

// DowngradeMRZ voids a pending CONFIRMED when the machine-readable zone is
// still readable after redaction. The confirmation reasons are replaced
// outright; the artifact reference must be cleared by the caller.
func DowngradeMRZ(Outcome) Outcome {
	return Outcome{Decision: Review, Reasons: []Reason{NewReason(CodeMRZRemains)}}
}

func partition(dets []detect.Detection) (hits, suspicions, visualOnly, expiry []detect.Detection) {
	hasOCRPAN := false
	for _, d := range dets {
		if d.Category == detect.CategoryPAN && d.Source != detect.SourceVisual {
			hasOCRPAN = true
			break
		}
	}
	for _, d := range dets {
		switch {
		case d.Category == detect.CategoryExpiry:
			expiry = append(expiry, d)
		case d.Source == detect.SourceVisual:
			if !hasOCRPAN {
				visualOnly = append(visualOnly, d)
			}
		case d.Severity == detect.SeverityHit:
			hits = append(hits, d)
		case d.Severity == detect.SeveritySuspicion:
			suspicions = append(suspicions, d)
		}
	}
	return hits, suspicions, visualOnly, expiry
}

// suspicionReasons names the validator family of each suspicion class
// present, one reason per family.
func suspicionReasons(suspicions []detect.Detection) []Reason {
	var reasons []Reason
	seen := map[string]bool{}
	add := func(code string) {
		if !seen[code] {
			seen[code] = true
			reasons = append(reasons, NewReason(code))
		}
	}
	for _, d := range suspicions {
		switch {
		case d.HasValidator("near_pan"):
			add(CodePANSuspectNear)
		default:
			add(CodePANSuspectLowConf)
		}
	}
	return reasons
}

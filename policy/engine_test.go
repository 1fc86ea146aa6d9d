package policy

import (
	"testing"

	"github.com/cardshield/cardshield/detect"
)

func hit() detect.Detection {
	return detect.Detection{
		FieldID:    detect.FieldCardPAN,
		Category:   detect.CategoryPAN,
		Source:     detect.SourceText,
		Validators: []string{"luhn"},
		Severity:   detect.SeverityHit,
	}
}

func suspicion(tags ...string) detect.Detection {
	return detect.Detection{
		FieldID:    detect.FieldCardPAN,
		Category:   detect.CategoryPAN,
		Source:     detect.SourceOCR,
		Validators: tags,
		Severity:   detect.SeveritySuspicion,
	}
}

func hasReason(out Outcome, code string) bool {
	for _, r := range out.Reasons {
		if r.Code == code {
			return true
		}
	}
	return false
}

func TestEvaluateSparseDocumentRejected(t *testing.T) {
	cfg := DefaultDocumentConfig()
	out := Evaluate(nil, Signals{CharCount: 10}, cfg)
	if out.Decision != Rejected {
		t.Fatalf("decision = %s, want REJECTED", out.Decision)
	}
	if !hasReason(out, CodeExtractionEmpty) {
		t.Errorf("reasons = %v", out.Reasons)
	}
}

func TestEvaluateHitConfirmsWithRedaction(t *testing.T) {
	cfg := DefaultDocumentConfig()
	out := Evaluate([]detect.Detection{hit()}, Signals{CharCount: 100}, cfg)
	if out.Decision != Confirmed {
		t.Fatalf("decision = %s, want CONFIRMED", out.Decision)
	}
	if !out.NeedsRedaction {
		t.Fatal("confirmed hits must require redaction before release")
	}
	if !hasReason(out, CodePANConfirmed) {
		t.Errorf("reasons = %v", out.Reasons)
	}
}

func TestEvaluateSuspicionForcesReview(t *testing.T) {
	cfg := DefaultDocumentConfig()
	out := Evaluate([]detect.Detection{suspicion("regex")}, Signals{CharCount: 100}, cfg)
	if out.Decision != Review {
		t.Fatalf("decision = %s, want REVIEW", out.Decision)
	}
	if !hasReason(out, CodePANSuspectLowConf) {
		t.Errorf("reasons = %v", out.Reasons)
	}
}

func TestEvaluateNearPANReason(t *testing.T) {
	cfg := DefaultDocumentConfig()
	out := Evaluate([]detect.Detection{suspicion("regex", "stitch", "near_pan")}, Signals{CharCount: 100}, cfg)
	if !hasReason(out, CodePANSuspectNear) {
		t.Errorf("reasons = %v", out.Reasons)
	}
}

func TestEvaluateHitShadowedBySuspicion(t *testing.T) {
	cfg := DefaultDocumentConfig()
	out := Evaluate([]detect.Detection{hit(), suspicion("regex")}, Signals{CharCount: 100}, cfg)
	if out.Decision != Review {
		t.Fatalf("decision = %s, want REVIEW", out.Decision)
	}
	if out.NeedsRedaction {
		t.Fatal("shadowed hits must not auto-redact")
	}
}

func TestEvaluateNoDetectionDefaults(t *testing.T) {
	dets := []detect.Detection{}
	sig := Signals{CharCount: 100}

	doc := DefaultDocumentConfig()
	if out := Evaluate(dets, sig, doc); out.Decision != Confirmed {
		t.Errorf("document default = %s, want CONFIRMED", out.Decision)
	}

	photo := DefaultPhotoConfig()
	photoSig := Signals{
		CharCount:          100,
		CardRegionRequired: true,
		CardRegionFound:    true,
		BlurChecked:        true,
		BlurScore:          150,
	}
	out := Evaluate(dets, photoSig, photo)
	if out.Decision != Review {
		t.Errorf("photo default = %s, want REVIEW", out.Decision)
	}
	if !hasReason(out, CodeNoDetectionsReview) {
		t.Errorf("reasons = %v", out.Reasons)
	}
}

func TestEvaluateVisualOnlySuggestsRedaction(t *testing.T) {
	visual := detect.Detection{
		FieldID:    detect.FieldCardPAN,
		Category:   detect.CategoryPAN,
		Source:     detect.SourceVisual,
		Validators: []string{"visual"},
		Severity:   detect.SeveritySuspicion,
	}
	sig := Signals{
		CharCount:          100,
		CardRegionRequired: true,
		CardRegionFound:    true,
		BlurChecked:        true,
		BlurScore:          150,
	}
	out := Evaluate([]detect.Detection{visual}, sig, DefaultPhotoConfig())
	if out.Decision != Review {
		t.Fatalf("decision = %s, want REVIEW", out.Decision)
	}
	if !out.SuggestRedaction {
		t.Fatal("visual-only evidence should suggest a redaction")
	}
	if !hasReason(out, CodePANSuspectVisual) {
		t.Errorf("reasons = %v", out.Reasons)
	}
}

func TestEvaluateVisualIgnoredWhenOCRPANExists(t *testing.T) {
	visual := detect.Detection{
		Category:   detect.CategoryPAN,
		Source:     detect.SourceVisual,
		Validators: []string{"visual"},
		Severity:   detect.SeveritySuspicion,
	}
	out := Evaluate([]detect.Detection{hit(), visual}, Signals{CharCount: 100}, DefaultDocumentConfig())
	if out.Decision != Confirmed {
		t.Fatalf("decision = %s, want CONFIRMED", out.Decision)
	}
}

func TestEvaluateQualityGates(t *testing.T) {
	cfg := DefaultPhotoConfig()
	sig := Signals{
		CharCount:          100,
		CardRegionRequired: true,
		CardRegionFound:    true,
		BlurChecked:        true,
		BlurScore:          5,
		OcclusionSuspected: true,
	}
	out := Evaluate(nil, sig, cfg)
	if out.Decision != Review {
		t.Fatalf("decision = %s, want REVIEW", out.Decision)
	}
	if !hasReason(out, CodeQualityLow) || !hasReason(out, CodeOcclusion) {
		t.Errorf("reasons = %v", out.Reasons)
	}

	// A confirmed hit outvotes the quality flags when the region resolved.
	out = Evaluate([]detect.Detection{hit()}, sig, cfg)
	if out.Decision != Confirmed {
		t.Errorf("hit under quality flags = %s, want CONFIRMED", out.Decision)
	}
}

func TestEvaluateUnresolvableCaptureRejected(t *testing.T) {
	cfg := DefaultPhotoConfig()
	sig := Signals{
		CharCount:          100,
		CardRegionRequired: true,
		CardRegionFound:    false,
		BlurChecked:        true,
		BlurScore:          3,
	}
	out := Evaluate(nil, sig, cfg)
	if out.Decision != Rejected {
		t.Fatalf("decision = %s, want REJECTED", out.Decision)
	}
}

func TestEvaluateExpiryOnly(t *testing.T) {
	expiry := detect.Detection{
		FieldID:    detect.FieldCardExpiry,
		Category:   detect.CategoryExpiry,
		Source:     detect.SourceROIOCR,
		Validators: []string{"format_mm_yy"},
		Severity:   detect.SeverityHit,
	}
	out := Evaluate([]detect.Detection{expiry}, Signals{CharCount: 100}, DefaultDocumentConfig())
	if out.Decision != Review {
		t.Fatalf("decision = %s, want REVIEW", out.Decision)
	}
	if !hasReason(out, CodeExpiryOnly) {
		t.Errorf("reasons = %v", out.Reasons)
	}
}

func TestDowngrade(t *testing.T) {
	out := Outcome{
		Decision:       Confirmed,
		Reasons:        []Reason{NewReason(CodePANConfirmed)},
		NeedsRedaction: true,
	}
	down := Downgrade(out)
	if down.Decision != Review {
		t.Fatalf("decision = %s, want REVIEW", down.Decision)
	}
	if down.NeedsRedaction {
		t.Fatal("downgraded outcome must not re-redact")
	}
	if !hasReason(down, CodePANRemains) {
		t.Errorf("reasons = %v", down.Reasons)
	}
	if hasReason(down, CodePANConfirmed) {
		t.Errorf("voided confirmation must not survive the downgrade: %v", down.Reasons)
	}
}

func mrzHit() detect.Detection {
	return detect.Detection{
		FieldID:    detect.FieldMRZ,
		Category:   detect.CategoryMRZ,
		Source:     detect.SourceROIOCR,
		Validators: []string{"mrz_pattern"},
		Severity:   detect.SeverityHit,
	}
}

func idSuspect() detect.Detection {
	return detect.Detection{
		FieldID:    detect.FieldIDNumber,
		Category:   detect.CategoryID,
		Source:     detect.SourceROIOCR,
		Validators: []string{"pattern_alnum"},
		Severity:   detect.SeveritySuspicion,
	}
}

func TestEvaluateIDMRZConfirms(t *testing.T) {
	cfg := DefaultIDPhotoConfig()
	out := EvaluateID([]detect.Detection{mrzHit()}, Signals{}, cfg)
	if out.Decision != Confirmed {
		t.Fatalf("decision = %s, want CONFIRMED", out.Decision)
	}
	if !out.NeedsRedaction {
		t.Fatal("confirmed MRZ must require redaction before release")
	}
	if !hasReason(out, CodeMRZConfirmed) {
		t.Errorf("reasons = %v", out.Reasons)
	}

	// An accompanying document-number suspicion does not shadow the MRZ:
	// the zone structure is evidence enough on its own.
	out = EvaluateID([]detect.Detection{mrzHit(), idSuspect()}, Signals{}, cfg)
	if out.Decision != Confirmed {
		t.Errorf("decision = %s, want CONFIRMED", out.Decision)
	}
}

func TestEvaluateIDNumberOnlyReviews(t *testing.T) {
	cfg := DefaultIDPhotoConfig()
	out := EvaluateID([]detect.Detection{idSuspect()}, Signals{}, cfg)
	if out.Decision != Review {
		t.Fatalf("decision = %s, want REVIEW", out.Decision)
	}
	if !hasReason(out, CodeIDSuspect) {
		t.Errorf("reasons = %v", out.Reasons)
	}
}

func TestEvaluateIDQualityFlagsReview(t *testing.T) {
	cfg := DefaultIDPhotoConfig()
	sig := Signals{BlurChecked: true, BlurScore: 4, OcclusionSuspected: true}
	out := EvaluateID(nil, sig, cfg)
	if out.Decision != Review {
		t.Fatalf("decision = %s, want REVIEW", out.Decision)
	}
	if !hasReason(out, CodeQualityLow) || !hasReason(out, CodeOcclusion) {
		t.Errorf("reasons = %v", out.Reasons)
	}
}

func TestEvaluateIDNothingFoundRejected(t *testing.T) {
	cfg := DefaultIDPhotoConfig()
	sig := Signals{BlurChecked: true, BlurScore: 100}
	out := EvaluateID(nil, sig, cfg)
	if out.Decision != Rejected {
		t.Fatalf("decision = %s, want REJECTED", out.Decision)
	}
	if !hasReason(out, CodeQualityLow) {
		t.Errorf("reasons = %v", out.Reasons)
	}
}

func TestDowngradeMRZ(t *testing.T) {
	out := Outcome{
		Decision:       Confirmed,
		Reasons:        []Reason{NewReason(CodeMRZConfirmed)},
		NeedsRedaction: true,
	}
	down := DowngradeMRZ(out)
	if down.Decision != Review {
		t.Fatalf("decision = %s, want REVIEW", down.Decision)
	}
	if !hasReason(down, CodeMRZRemains) || hasReason(down, CodeMRZConfirmed) {
		t.Errorf("reasons = %v", down.Reasons)
	}
}

func TestExitCodes(t *testing.T) {
	cases := []struct {
		d    Decision
		want int
	}{
		{Confirmed, 0},
		{Review, 10},
		{Rejected, 20},
		{Decision("bogus"), ExitIOFailure},
	}
	for _, tc := range cases {
		if got := ExitCode(tc.d); got != tc.want {
			t.Errorf("ExitCode(%s) = %d, want %d", tc.d, got, tc.want)
		}
	}
}

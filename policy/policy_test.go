package policy

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	data := `
min_char_count: 50
no_detection_default: REVIEW
pan:
  suspicion_threshold: 0.8
  allow_lowercase_b_to_6: true
rule: 'scan.suspicions > 0 ? "REVIEW" : ""'
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path, DefaultDocumentConfig())
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.MinCharCount != 50 {
		t.Errorf("MinCharCount = %d", cfg.MinCharCount)
	}
	if cfg.NoDetectionDefault != Review {
		t.Errorf("NoDetectionDefault = %s", cfg.NoDetectionDefault)
	}
	if cfg.PAN.SuspicionThreshold != 0.8 {
		t.Errorf("SuspicionThreshold = %v", cfg.PAN.SuspicionThreshold)
	}
	if !cfg.PAN.AllowLowercaseBTo6 {
		t.Error("AllowLowercaseBTo6 not applied")
	}
	// Untouched defaults survive the overlay.
	if cfg.PAN.StitchWindowMax != 6 {
		t.Errorf("StitchWindowMax = %d", cfg.PAN.StitchWindowMax)
	}
	if cfg.Rule == "" {
		t.Error("rule not loaded")
	}
}

func TestLoadConfigRejectsBadDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("no_detection_default: MAYBE\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path, DefaultDocumentConfig()); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"), DefaultDocumentConfig()); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestNewReasonUnknownCode(t *testing.T) {
	r := NewReason("SOMETHING_NEW")
	if r.Code != "SOMETHING_NEW" || r.Description != "SOMETHING_NEW" {
		t.Errorf("reason = %+v", r)
	}
}

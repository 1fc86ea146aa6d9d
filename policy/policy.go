// Package policy implements the decision engine: the terminal mapping from
// detections and quality signals to REJECTED, REVIEW or CONFIRMED with
// explicit reasons.
package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cardshield/cardshield/detect"
)

// Decision is the terminal outcome of one scan.
type Decision string

const (
	Rejected  Decision = "REJECTED"
	Review    Decision = "REVIEW"
	Confirmed Decision = "CONFIRMED"
)

// Reason is one coded explanation on a report. Codes are stable; the
// descriptions are for humans.
type Reason struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// Stable reason codes.
const (
	CodeExtractionEmpty     = "EXTRACTION_EMPTY"
	CodePANConfirmed        = "PAN_CONFIRMED"
	CodePANSuspectLowConf   = "PAN_SUSPECT_OCR_LOW_CONF"
	CodePANSuspectNear      = "PAN_SUSPECT_NEAR_PAN"
	CodePANSuspectVisual    = "PAN_SUSPECT_VISUAL"
	CodePANRemains          = "PAN_REMAINS_AFTER_REDACTION"
	CodeExpiryOnly          = "EXPIRY_ONLY"
	CodeQualityLow          = "QUALITY_LOW"
	CodeOcclusion           = "OCCLUSION"
	CodeNoDetectionsReview  = "NO_DETECTIONS_REVIEW"
	CodePolicyRule          = "POLICY_RULE"
	CodeCardRegionMissing   = "CARD_REGION_MISSING"
	CodeSuspicionUnresolved = "SUSPICION_UNRESOLVED"
	CodeMRZConfirmed        = "MRZ_CONFIRMED"
	CodeIDSuspect           = "ID_SUSPECT"
	CodeMRZRemains          = "MRZ_REMAINS"
)

var reasonDescriptions = map[string]string{
	CodeExtractionEmpty:     "Extraction produced no tokens or insufficient characters to inspect.",
	CodePANConfirmed:        "PAN verified via checksum and redacted.",
	CodePANSuspectLowConf:   "OCR-derived PAN candidate failed checksum at low confidence.",
	CodePANSuspectNear:      "Stitched OCR window resembles a PAN but failed checksum.",
	CodePANSuspectVisual:    "Visual PAN-like pattern detected without OCR confirmation.",
	CodePANRemains:          "PAN still detectable after redaction.",
	CodeExpiryOnly:          "Expiry detected without PAN confirmation.",
	CodeQualityLow:          "Image quality too low for a decision.",
	CodeOcclusion:           "Potential occlusion over the document region.",
	CodeNoDetectionsReview:  "Policy requires explicit confirmation of the no-PII result.",
	CodePolicyRule:          "Operator policy rule escalated the decision.",
	CodeCardRegionMissing:   "No card or document region could be located.",
	CodeSuspicionUnresolved: "Unresolved suspicion remained at finalization.",
	CodeMRZConfirmed:        "MRZ structure detected.",
	CodeIDSuspect:           "ID number detected but not verified.",
	CodeMRZRemains:          "MRZ still readable after redaction.",
}

// NewReason builds a Reason for a known code. Unknown codes keep the code as
// description so nothing is silently dropped.
func NewReason(code string) Reason {
	desc, ok := reasonDescriptions[code]
	if !ok {
		desc = code
	}
	return Reason{Code: code, Description: desc}
}

// Config is the per-pack policy tuning. The no-detection default is
// deliberately external configuration: some deployments treat an empty
// document as safe, others require explicit operator confirmation.
type Config struct {
	MinCharCount       int              `yaml:"min_char_count"`
	NoDetectionDefault Decision         `yaml:"no_detection_default"`
	BlurMin            float64          `yaml:"blur_min"`
	PAN                detect.PANConfig `yaml:"pan"`
	// Rule is an optional operator escalation expression, see CompileRule.
	Rule string `yaml:"rule"`
}

// DefaultDocumentConfig is the tuning for text-first document packs.
func DefaultDocumentConfig() Config {
	pan := detect.DefaultPANConfig()
	pan.AllowLowercaseBTo6 = true
	return Config{
		MinCharCount:       30,
		NoDetectionDefault: Confirmed,
		PAN:                pan,
	}
}

// DefaultPhotoConfig is the tuning for image-first card/ID packs.
func DefaultPhotoConfig() Config {
	return Config{
		NoDetectionDefault: Review,
		BlurMin:            20.0,
		PAN:                detect.DefaultPANConfig(),
	}
}

// DefaultIDPhotoConfig is the tuning for identity-document photo packs.
func DefaultIDPhotoConfig() Config {
	return Config{
		NoDetectionDefault: Review,
		BlurMin:            18.0,
		PAN:                detect.DefaultPANConfig(),
	}
}

// LoadConfig reads a YAML policy file over the given defaults.
func LoadConfig(path string, defaults Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read policy config: %w", err)
	}
	cfg := defaults
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse policy config: %w", err)
	}
	if cfg.NoDetectionDefault != Confirmed && cfg.NoDetectionDefault != Review {
		return Config{}, fmt.Errorf("policy config: no_detection_default must be CONFIRMED or REVIEW, got %q", cfg.NoDetectionDefault)
	}
	return cfg, nil
}

// ExitCode maps a decision to the process exit code contract. I/O failures
// use ExitIOFailure and never collide with a decision code.
func ExitCode(d Decision) int {
	switch d {
	case Confirmed:
		return 0
	case Review:
		return 10
	case Rejected:
		return 20
	default:
		return ExitIOFailure
	}
}

// ExitIOFailure is the exit code for hard input/output failures.
const ExitIOFailure = 2

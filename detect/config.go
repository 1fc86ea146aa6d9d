package detect

// PANConfig tunes the PAN extractor and span stitcher.
type PANConfig struct {
	// SuspicionThreshold is the OCR confidence below which a Luhn-failing
	// candidate surfaces as a suspicion instead of being dropped.
	SuspicionThreshold float64 `yaml:"suspicion_threshold"`
	// AllowConfusables enables the letter-to-digit confusable table during
	// candidate normalization.
	AllowConfusables bool `yaml:"allow_confusables"`
	// LineYTolerance is the vertical-center distance in pixels within which
	// OCR tokens are clustered into one line.
	LineYTolerance float64 `yaml:"line_y_tolerance"`
	// MaxXGapPx is the absolute horizontal gap cap between adjacent window
	// tokens; MaxXGapRatio is the same cap relative to average token height.
	// A gap must exceed both to break a window.
	MaxXGapPx    float64 `yaml:"max_x_gap_px"`
	MaxXGapRatio float64 `yaml:"max_x_gap_ratio"`
	// DigitishRatio is the minimum share of digit-resolvable characters a
	// token needs to join a stitch window.
	DigitishRatio float64 `yaml:"digitish_ratio"`
	// StitchWindowMin and StitchWindowMax bound the sliding window size.
	StitchWindowMin int `yaml:"stitch_window_min"`
	StitchWindowMax int `yaml:"stitch_window_max"`
	// AllowSymbolConfusables enables the '%'→4 reading on the stitch path.
	AllowSymbolConfusables bool `yaml:"allow_symbol_confusables"`
	// AllowLowercaseBTo6 enables the 'b'→6 recovery pass when the primary
	// stitch normalization fails Luhn.
	AllowLowercaseBTo6 bool `yaml:"allow_lowercase_b_to_6"`
	// MinTokenConfidence is the per-token confidence floor; a window whose
	// weakest token falls below it may surface as a near-PAN suspicion.
	MinTokenConfidence float64 `yaml:"min_token_confidence"`
}

// DefaultPANConfig returns the tuning used by the standard packs.
func DefaultPANConfig() PANConfig {
	return PANConfig{
		SuspicionThreshold:     0.75,
		AllowConfusables:       true,
		LineYTolerance:         8.0,
		MaxXGapPx:              40.0,
		MaxXGapRatio:           1.0,
		DigitishRatio:          0.5,
		StitchWindowMin:        2,
		StitchWindowMax:        6,
		AllowSymbolConfusables: true,
		AllowLowercaseBTo6:     false,
		MinTokenConfidence:     0.6,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// PAN digit-length bounds after normalization.
const (
	minPANLen = 13
	maxPANLen = 19
)

func panLengthOK(digits string) bool {
	return len(digits) >= minPANLen && len(digits) <= maxPANLen
}

package detect

import (
	"strings"

	"github.com/cardshield/cardshield/coords"
)

// MRZ is a detected machine-readable zone block of up to three lines.
type MRZ struct {
	Block string
	Lines int
}

// DetectMRZ looks for a machine-readable zone in OCR text: at least two
// lines of 30–44 characters drawn from A–Z, 0–9 and '<' after uppercasing
// and stripping spaces. At most the first three matching lines form the
// block.
func DetectMRZ(text string) (MRZ, bool) {
	if text == "" {
		return MRZ{}, false
	}
	var matched []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(line), " ", ""))
		if mrzLine(line) {
			matched = append(matched, line)
		}
	}
	if len(matched) < 2 {
		return MRZ{}, false
	}
	if len(matched) > 3 {
		matched = matched[:3]
	}
	return MRZ{Block: strings.Join(matched, "\n"), Lines: len(matched)}, true
}

func mrzLine(line string) bool {
	if len(line) < 30 || len(line) > 44 {
		return false
	}
	for i := 0; i < len(line); i++ {
		c := line[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') && c != '<' {
			return false
		}
	}
	return true
}

// BuildMRZDetection converts a detected MRZ block into a hit anchored to the
// ROI it was read from. The masked form keeps the filler structure but hides
// every data character.
func BuildMRZDetection(mrz MRZ, box coords.Rect, page int) Detection {
	return Detection{
		FieldID:    FieldMRZ,
		Category:   CategoryMRZ,
		Masked:     maskMRZ(mrz.Block),
		Raw:        mrz.Block,
		Box:        box,
		Page:       page,
		Source:     SourceROIOCR,
		Validators: []string{"mrz_pattern"},
		Severity:   SeverityHit,
	}
}

func maskMRZ(block string) string {
	out := []byte(block)
	for i, c := range out {
		if (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			out[i] = '*'
		}
	}
	return string(out)
}

// DetectIDNumber looks for a document-number candidate: the first run of six
// or more uppercase letters and digits after stripping spaces. The pattern
// alone never verifies anything, so callers treat the result as a suspicion.
func DetectIDNumber(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	compact := strings.ReplaceAll(text, " ", "")
	start := -1
	for i := 0; i <= len(compact); i++ {
		if i < len(compact) && idRune(compact[i]) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 && i-start >= 6 {
			return compact[start:i], true
		}
		start = -1
	}
	return "", false
}

func idRune(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// BuildIDDetection converts a document-number candidate into a suspicion
// anchored to the ROI it was read from. Only the last two characters stay
// visible.
func BuildIDDetection(value string, box coords.Rect, page int) Detection {
	return Detection{
		FieldID:    FieldIDNumber,
		Category:   CategoryID,
		Masked:     maskTail(value, 2),
		Raw:        value,
		Box:        box,
		Page:       page,
		Source:     SourceROIOCR,
		Validators: []string{"pattern_alnum"},
		Severity:   SeveritySuspicion,
	}
}

func maskTail(value string, keep int) string {
	if len(value) <= keep {
		return value
	}
	return strings.Repeat("*", len(value)-keep) + value[len(value)-keep:]
}

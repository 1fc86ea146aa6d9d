package detect

import (
	"fmt"
	"regexp"
	"time"

	"github.com/cardshield/cardshield/coords"
)

var expiryPattern = regexp.MustCompile(`(0[1-9]|1[0-2])[\-/](\d{2,4})`)

// Expiry is a parsed card expiry date.
type Expiry struct {
	Display    string
	Raw        string
	Severity   Severity
	Validators []string
}

// ParseExpiry finds the first MM/YY or MM/YYYY date in text. Dates more than
// a year in the past downgrade to a suspicion tagged "expired": stale cards
// still identify an account but carry less live risk.
func ParseExpiry(text string, now time.Time) *Expiry {
	if text == "" {
		return nil
	}
	m := expiryPattern.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	month := int(m[1][0]-'0')*10 + int(m[1][1]-'0')
	year := 0
	for _, c := range m[2] {
		year = year*10 + int(c-'0')
	}
	if len(m[2]) == 3 {
		return nil
	}
	if year < 100 {
		year += 2000
	}
	if year < 1900 || year > 9999 {
		return nil
	}

	validators := []string{"format_mm_yy"}
	severity := SeverityHit
	if year < now.Year()-1 {
		severity = SeveritySuspicion
		validators = append(validators, "expired")
	}
	return &Expiry{
		Display:    fmt.Sprintf("%02d/%02d", month, year%100),
		Raw:        m[0],
		Severity:   severity,
		Validators: validators,
	}
}

// BuildExpiryDetection converts a parsed expiry into a Detection anchored to
// the ROI it was read from.
func BuildExpiryDetection(exp Expiry, box coords.Rect, page int) Detection {
	return Detection{
		FieldID:    FieldCardExpiry,
		Category:   CategoryExpiry,
		Masked:     exp.Display,
		Raw:        exp.Raw,
		Box:        box,
		Page:       page,
		Source:     SourceROIOCR,
		Validators: exp.Validators,
		Severity:   exp.Severity,
	}
}

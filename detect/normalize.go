package detect

import "strings"

// confusables maps letters that OCR engines and humans commonly mistake for
// digits. 'b' maps to 8 by default; the 6 reading is a separate recovery mode
// applied only on the stitch path (see mapStitchRune).
var confusables = map[rune]rune{
	'O': '0', 'o': '0',
	'I': '1', 'i': '1', 'l': '1',
	'S': '5', 's': '5',
	'B': '8', 'b': '8',
	'Z': '2', 'z': '2',
}

// maskedMarkers are display-masking characters. A candidate containing one
// anywhere is a masked rendition of a stored PAN, never a live number.
var maskedMarkers = []rune{'*', '•'}

func containsMaskedMarker(s string) bool {
	for _, m := range maskedMarkers {
		if strings.ContainsRune(s, m) {
			return true
		}
	}
	return false
}

func isConfusable(r rune) bool {
	_, ok := confusables[r]
	return ok
}

func isASCIIDigit(r rune) bool { return r >= '0' && r <= '9' }

// Normalize maps confusable letters to digits and strips everything that is
// not a digit. It returns "" when the raw candidate carries a masking marker.
func Normalize(candidate string, allowConfusables bool) string {
	if containsMaskedMarker(candidate) {
		return ""
	}
	var b strings.Builder
	for _, r := range candidate {
		if isASCIIDigit(r) {
			b.WriteRune(r)
			continue
		}
		if allowConfusables {
			if d, ok := confusables[r]; ok {
				b.WriteRune(d)
			}
		}
	}
	return b.String()
}

// Mask renders digits with all but the last four characters replaced by '*',
// grouped in fours for display.
func Mask(digits string) string {
	keep := 4
	if len(digits) < keep {
		keep = len(digits)
	}
	masked := strings.Repeat("*", len(digits)-keep) + digits[len(digits)-keep:]
	var b strings.Builder
	for i := 0; i < len(masked); i += 4 {
		if i > 0 {
			b.WriteByte(' ')
		}
		end := i + 4
		if end > len(masked) {
			end = len(masked)
		}
		b.WriteString(masked[i:end])
	}
	return b.String()
}

// mapStitchRune resolves one rune on the stitch path. The 'b'→6 reading and
// the '%'→4 reading recover known OCR failure modes and are gated on config.
func mapStitchRune(r rune, cfg PANConfig, bTo6 bool) (rune, bool) {
	if isASCIIDigit(r) {
		return r, true
	}
	if r == 'b' {
		if bTo6 && cfg.AllowLowercaseBTo6 {
			return '6', true
		}
		return '8', true
	}
	if d, ok := confusables[r]; ok {
		return d, true
	}
	if r == '%' && cfg.AllowSymbolConfusables {
		return '4', true
	}
	return 0, false
}

// normalizeStitched maps a concatenated window through the stitch confusable
// table, dropping anything that does not resolve to a digit.
func normalizeStitched(raw string, cfg PANConfig, bTo6 bool) string {
	var b strings.Builder
	for _, r := range raw {
		if !isASCIIDigit(r) && !isASCIILetter(r) && r != '%' {
			continue
		}
		if d, ok := mapStitchRune(r, cfg, bTo6); ok && isASCIIDigit(d) {
			b.WriteRune(d)
		}
	}
	return b.String()
}

func isASCIILetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

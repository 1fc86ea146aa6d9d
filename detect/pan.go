package detect

import "github.com/cardshield/cardshield/coords"

// PANTrace records diagnostic counters for one detection run. It feeds the
// report trace only and never influences classification.
type PANTrace struct {
	SingleToken struct {
		Candidates int
		Hits       int
		Suspicions int
	}
	Stitched StitchTrace
}

// FindPANs scans tokens for payment-card numbers. Single tokens are scanned
// directly; OCR tokens are additionally stitched across fragments. The trace
// pointer may be nil.
func FindPANs(tokens []Token, cfg PANConfig, trace *PANTrace) []Detection {
	threshold := clamp01(cfg.SuspicionThreshold)
	var local PANTrace
	if trace == nil {
		trace = &local
	}

	var out []Detection
	for _, tok := range tokens {
		out = append(out, scanToken(tok, cfg, threshold, trace)...)
	}
	out = append(out, stitchTokens(tokens, cfg, threshold, &trace.Stitched)...)
	return out
}

// scanToken extracts boundary-anchored candidates from a single token.
func scanToken(tok Token, cfg PANConfig, threshold float64, trace *PANTrace) []Detection {
	raw := []rune(tok.Text)
	sanitized := sanitizeRunes(raw)

	var out []Detection
	for _, run := range candidateRuns(sanitized) {
		candidate := string(raw[run[0]:run[1]])
		digits := Normalize(candidate, cfg.AllowConfusables)
		if !panLengthOK(digits) {
			continue
		}
		trace.SingleToken.Candidates++

		severity := SeverityHit
		validators := []string{"luhn"}
		if !LuhnValid(digits) {
			// Non-OCR failures come from a trusted text layer and are
			// never OCR noise; they stay silent.
			if tok.Source != SourceOCR || tok.Confidence >= threshold {
				continue
			}
			severity = SeveritySuspicion
			validators = []string{"regex"}
			trace.SingleToken.Suspicions++
		} else {
			trace.SingleToken.Hits++
		}

		out = append(out, Detection{
			FieldID:    FieldCardPAN,
			Category:   CategoryPAN,
			Masked:     Mask(digits),
			Raw:        digits,
			Box:        tok.Box,
			Page:       tok.Page,
			Source:     tok.Source,
			Validators: validators,
			Severity:   severity,
		})
	}
	return out
}

// sanitizeRunes builds a same-length copy where digits and separators pass
// through, confusable letters pass only when adjacent to a digit, and
// everything else becomes a boundary space. Keeping the length identical
// lets run offsets index back into the raw text.
func sanitizeRunes(raw []rune) []rune {
	out := make([]rune, len(raw))
	for i, r := range raw {
		switch {
		case isASCIIDigit(r) || r == ' ' || r == '-':
			out[i] = r
		case isConfusable(r):
			prevDigit := i > 0 && isASCIIDigit(raw[i-1])
			nextDigit := i+1 < len(raw) && isASCIIDigit(raw[i+1])
			if prevDigit || nextDigit {
				out[i] = r
			} else {
				out[i] = ' '
			}
		default:
			out[i] = ' '
		}
	}
	return out
}

func isClassRune(r rune) bool { return isASCIIDigit(r) || isConfusable(r) }

// classBlock is one separator-free run of class characters.
type classBlock struct {
	start, end int // [start, end) rune offsets
	count      int
}

// candidateRuns finds runs of 13–19 class characters optionally separated by
// spaces and hyphens. A run must start at the beginning of a block of
// directly-adjacent class characters and end at the end of one: a candidate
// is never adjacent to another class character, but a block boundary may
// split a longer digit sequence into a valid run plus a remainder. The scan
// is greedy and left to right, so each block contributes to at most one run.
// Returned pairs are [start, end) rune offsets with both endpoints on class
// characters.
func candidateRuns(s []rune) [][2]int {
	var blocks []classBlock
	i := 0
	for i < len(s) {
		if !isClassRune(s[i]) {
			i++
			continue
		}
		j := i
		for j < len(s) && isClassRune(s[j]) {
			j++
		}
		blocks = append(blocks, classBlock{start: i, end: j, count: j - i})
		i = j
	}

	var runs [][2]int
	b := 0
	for b < len(blocks) {
		count := 0
		last := -1
		for j := b; j < len(blocks) && count+blocks[j].count <= maxPANLen; j++ {
			count += blocks[j].count
			if count >= minPANLen {
				last = j
			}
		}
		if last < 0 {
			b++
			continue
		}
		runs = append(runs, [2]int{blocks[b].start, blocks[last].end})
		b = last + 1
	}
	return runs
}

// ROIStats summarizes confidence over one ROI OCR pass.
type ROIStats struct {
	AvgConfidence float64
	MinConfidence float64
}

// lowROIConfidence is the ROI average below which even a Luhn pass is only a
// suspicion: a single noisy region read is too thin to confirm on its own.
const lowROIConfidence = 0.5

// FindPANsInROIText scans the joined text of a targeted OCR region. The
// region box stands in for per-word geometry, which ROI backends often omit.
func FindPANsInROIText(text string, stats ROIStats, box coords.Rect, page int) []Detection {
	if text == "" {
		return nil
	}
	raw := []rune(text)
	masked := make([]rune, len(raw))
	for i, r := range raw {
		if isClassRune(r) || r == ' ' || r == '-' {
			masked[i] = r
		} else {
			masked[i] = ' '
		}
	}

	var candidates []string
	runs := candidateRuns(masked)
	if len(runs) > 0 {
		candidates = append(candidates, string(raw[runs[0][0]:runs[0][1]]))
	} else {
		digits := Normalize(text, false)
		if panLengthOK(digits) {
			candidates = append(candidates, digits)
		}
	}

	var out []Detection
	for _, candidate := range candidates {
		digits := Normalize(candidate, true)
		if !panLengthOK(digits) {
			continue
		}
		validators := []string{"regex", "roi"}
		severity := SeveritySuspicion
		if LuhnValid(digits) {
			if stats.AvgConfidence < lowROIConfidence {
				validators = append(validators, "low_conf")
			} else {
				severity = SeverityHit
				validators = append(validators, "luhn")
			}
		}
		out = append(out, Detection{
			FieldID:    FieldCardPAN,
			Category:   CategoryPAN,
			Masked:     Mask(digits),
			Raw:        digits,
			Box:        box,
			Page:       page,
			Source:     SourceROIOCR,
			Validators: validators,
			Severity:   severity,
		})
	}
	return out
}

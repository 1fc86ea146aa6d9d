package detect

import (
	"sort"
	"strings"

	"github.com/cardshield/cardshield/coords"
)

// StitchTrace records window-evaluation diagnostics for one stitch run.
type StitchTrace struct {
	WindowsEvaluated int
	Hits             int
	Suspicions       int
	// BestWindow is the highest average-confidence window that reached
	// normalization, kept regardless of its outcome.
	BestWindow *WindowInfo
}

// WindowInfo describes one evaluated stitch window.
type WindowInfo struct {
	Raw           string
	Normalized    string
	Length        int
	LuhnPass      bool
	AvgConfidence float64
	MinConfidence float64
	RejectReason  string
	Severity      string
}

// stitchCandidate carries the ranking signals used to deduplicate
// overlapping windows that normalize to the same digits.
type stitchCandidate struct {
	detection Detection
	severity  Severity
	avgConf   float64
	size      int
	x0        float64
}

type stitchKey struct {
	page   int
	digits string
}

// stitchTokens reconstructs PANs that OCR split across several tokens.
// Tokens are clustered into lines per page, and every window of adjacent
// digit-ish tokens is concatenated, normalized and classified.
func stitchTokens(tokens []Token, cfg PANConfig, threshold float64, trace *StitchTrace) []Detection {
	var ocrTokens []Token
	for _, tok := range tokens {
		if tok.Source == SourceOCR {
			ocrTokens = append(ocrTokens, tok)
		}
	}
	if len(ocrTokens) == 0 {
		return nil
	}

	windowMin := cfg.StitchWindowMin
	if windowMin < 2 {
		windowMin = 2
	}
	windowMax := cfg.StitchWindowMax
	if windowMax < windowMin {
		windowMax = windowMin
	}

	pages := make(map[int][]Token)
	var pageOrder []int
	for _, tok := range ocrTokens {
		if _, ok := pages[tok.Page]; !ok {
			pageOrder = append(pageOrder, tok.Page)
		}
		pages[tok.Page] = append(pages[tok.Page], tok)
	}
	sort.Ints(pageOrder)

	best := make(map[stitchKey]stitchCandidate)
	var keyOrder []stitchKey

	for _, page := range pageOrder {
		for _, line := range groupLines(pages[page], cfg.LineYTolerance) {
			sort.Slice(line, func(i, j int) bool { return line[i].Box.X0 < line[j].Box.X0 })
			if len(line) < windowMin {
				continue
			}
			maxSize := windowMax
			if len(line) < maxSize {
				maxSize = len(line)
			}
			for size := windowMin; size <= maxSize; size++ {
				for start := 0; start+size <= len(line); start++ {
					window := line[start : start+size]
					cand, ok := evaluateWindow(window, page, cfg, threshold, trace)
					if !ok {
						continue
					}
					key := stitchKey{page: page, digits: cand.detection.Raw}
					prev, seen := best[key]
					if !seen {
						best[key] = cand
						keyOrder = append(keyOrder, key)
					} else if betterCandidate(cand, prev) {
						best[key] = cand
					}
				}
			}
		}
	}

	out := make([]Detection, 0, len(keyOrder))
	for _, key := range keyOrder {
		out = append(out, best[key].detection)
	}
	return out
}

// evaluateWindow classifies one window. The bool result reports whether the
// window produced a detection; rejected windows still update the trace.
func evaluateWindow(window []Token, page int, cfg PANConfig, threshold float64, trace *StitchTrace) (stitchCandidate, bool) {
	for _, tok := range window {
		if !digitish(tok.Text, cfg) {
			return stitchCandidate{}, false
		}
	}
	if !gapsWithinLimits(window, cfg) {
		return stitchCandidate{}, false
	}

	parts := make([]string, len(window))
	for i, tok := range window {
		parts[i] = tok.Text
	}
	raw := strings.Join(parts, " ")

	digits := normalizeStitched(raw, cfg, false)
	if !panLengthOK(digits) {
		return stitchCandidate{}, false
	}
	trace.WindowsEvaluated++

	avgConf, minConf := windowConfidence(window)
	pass := LuhnValid(digits)
	bTo6 := false
	if !pass && cfg.AllowLowercaseBTo6 && windowHasLowercaseB(window) {
		recovered := normalizeStitched(raw, cfg, true)
		if panLengthOK(recovered) && LuhnValid(recovered) {
			pass = true
			bTo6 = true
			digits = recovered
		}
	}

	lowConf := avgConf < threshold || minConf < cfg.MinTokenConfidence
	validators := []string{"regex", "stitch"}
	var severity Severity
	reason := "luhn_fail_high_conf"
	switch {
	case pass:
		severity = SeverityHit
		validators = append(validators, "luhn")
		reason = "luhn_pass"
		if bTo6 {
			validators = append(validators, "confusable:b->6")
			reason = "luhn_pass_b6"
		}
	case lowConf:
		severity = SeveritySuspicion
		validators = append(validators, "near_pan")
		reason = "luhn_fail_low_conf"
	}

	recordBestWindow(trace, WindowInfo{
		Raw:           strings.TrimSpace(raw),
		Normalized:    digits,
		Length:        len(digits),
		LuhnPass:      pass,
		AvgConfidence: avgConf,
		MinConfidence: minConf,
		RejectReason:  rejectReason(pass, reason),
		Severity:      windowSeverity(pass, lowConf),
	})

	if severity == "" {
		return stitchCandidate{}, false
	}
	if severity == SeverityHit {
		trace.Hits++
	} else {
		trace.Suspicions++
	}

	box := windowBox(window)
	return stitchCandidate{
		detection: Detection{
			FieldID:    FieldCardPAN,
			Category:   CategoryPAN,
			Masked:     Mask(digits),
			Raw:        digits,
			Box:        box,
			Page:       page,
			Source:     SourceOCR,
			Validators: validators,
			Severity:   severity,
		},
		severity: severity,
		avgConf:  avgConf,
		size:     len(window),
		x0:       box.X0,
	}, true
}

// groupLines clusters tokens whose vertical centers sit within tolerance of
// the running line center.
func groupLines(tokens []Token, tolerance float64) [][]Token {
	sorted := append([]Token(nil), tokens...)
	sort.Slice(sorted, func(i, j int) bool {
		ci, cj := sorted[i].Box.YCenter(), sorted[j].Box.YCenter()
		if ci != cj {
			return ci < cj
		}
		return sorted[i].Box.X0 < sorted[j].Box.X0
	})

	var lines [][]Token
	var current []Token
	var center float64
	for _, tok := range sorted {
		c := tok.Box.YCenter()
		if len(current) == 0 {
			current = []Token{tok}
			center = c
			continue
		}
		if abs(c-center) <= tolerance {
			current = append(current, tok)
			center = (center*float64(len(current)-1) + c) / float64(len(current))
		} else {
			lines = append(lines, current)
			current = []Token{tok}
			center = c
		}
	}
	if len(current) > 0 {
		lines = append(lines, current)
	}
	return lines
}

// digitish reports whether the token's alphanumeric-and-percent characters
// are dominated by digit-resolvable ones.
func digitish(text string, cfg PANConfig) bool {
	if text == "" {
		return false
	}
	relevant := 0
	resolvable := 0
	for _, r := range text {
		if !isASCIIDigit(r) && !isASCIILetter(r) && r != '%' {
			continue
		}
		relevant++
		switch {
		case isASCIIDigit(r):
			resolvable++
		case isConfusable(r) || (r == 'b' && cfg.AllowLowercaseBTo6):
			resolvable++
		case r == '%' && cfg.AllowSymbolConfusables:
			resolvable++
		}
	}
	if relevant == 0 {
		return false
	}
	return float64(resolvable)/float64(relevant) >= cfg.DigitishRatio
}

// gapsWithinLimits rejects windows whose adjacent tokens sit farther apart
// than both the absolute pixel cap and the height-relative cap.
func gapsWithinLimits(window []Token, cfg PANConfig) bool {
	for i := 1; i < len(window); i++ {
		left, right := window[i-1], window[i]
		gap := right.Box.X0 - left.Box.X1
		if gap <= 0 {
			continue
		}
		avgHeight := (max0(left.Box.Height()) + max0(right.Box.Height())) / 2
		if avgHeight == 0 {
			avgHeight = 1
		}
		if gap > cfg.MaxXGapPx && gap > cfg.MaxXGapRatio*avgHeight {
			return false
		}
	}
	return true
}

func windowConfidence(window []Token) (avg, min float64) {
	min = window[0].Confidence
	var sum float64
	for _, tok := range window {
		sum += tok.Confidence
		if tok.Confidence < min {
			min = tok.Confidence
		}
	}
	return sum / float64(len(window)), min
}

func windowHasLowercaseB(window []Token) bool {
	for _, tok := range window {
		if strings.Contains(strings.ToLower(tok.Text), "b") {
			return true
		}
	}
	return false
}

func windowBox(window []Token) coords.Rect {
	box := window[0].Box
	for _, tok := range window[1:] {
		box = box.Union(tok.Box)
	}
	return box
}

// betterCandidate orders duplicates: higher severity, then average
// confidence, then window size, then leftmost position.
func betterCandidate(a, b stitchCandidate) bool {
	if a.severity != b.severity {
		return a.severity == SeverityHit
	}
	if a.avgConf != b.avgConf {
		return a.avgConf > b.avgConf
	}
	if a.size != b.size {
		return a.size > b.size
	}
	return a.x0 < b.x0
}

func recordBestWindow(trace *StitchTrace, info WindowInfo) {
	if trace.BestWindow == nil || info.AvgConfidence > trace.BestWindow.AvgConfidence {
		trace.BestWindow = &info
	}
}

func rejectReason(pass bool, reason string) string {
	if pass {
		return ""
	}
	return reason
}

func windowSeverity(pass, lowConf bool) string {
	if pass {
		return string(SeverityHit)
	}
	if lowConf {
		return string(SeveritySuspicion)
	}
	return "rejected"
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func max0(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

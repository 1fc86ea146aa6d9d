package detect

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		in         string
		confusable bool
		want       string
	}{
		{"4242 4242 4242 4242", false, "4242424242424242"},
		{"4242-4242-4242-4242", false, "4242424242424242"},
		{"4O12 8888 8888 1881", true, "4012888888881881"},
		{"4O12 8888 8888 1881", false, "412888888881881"},
		{"Il0oSsBbZz", true, "1100558822"},
		{"**** **** **** 4242", false, ""},
		{"4242 •••• 4242", true, ""},
		{"", true, ""},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in, tc.confusable); got != tc.want {
			t.Errorf("Normalize(%q, %v) = %q, want %q", tc.in, tc.confusable, got, tc.want)
		}
	}
}

func TestMask(t *testing.T) {
	cases := []struct {
		digits string
		want   string
	}{
		{"4242424242424242", "**** **** **** 4242"},
		{"378282246310005", "**** **** ***0 005"},
		{"1881", "1881"},
		{"81", "81"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := Mask(tc.digits); got != tc.want {
			t.Errorf("Mask(%q) = %q, want %q", tc.digits, got, tc.want)
		}
	}
}

func TestNormalizeStitchedConfusables(t *testing.T) {
	cfg := DefaultPANConfig()

	// Primary reading maps 'b' to 8.
	if got := normalizeStitched("5b78", cfg, false); got != "5878" {
		t.Errorf("primary stitch normalization = %q, want 5878", got)
	}
	// Recovery reading maps 'b' to 6 when enabled.
	cfg.AllowLowercaseBTo6 = true
	if got := normalizeStitched("5b78", cfg, true); got != "5678" {
		t.Errorf("b->6 stitch normalization = %q, want 5678", got)
	}
	// '%' reads as 4 only with symbol confusables on.
	if got := normalizeStitched("123%", cfg, false); got != "1234" {
		t.Errorf("%%->4 stitch normalization = %q, want 1234", got)
	}
	cfg.AllowSymbolConfusables = false
	if got := normalizeStitched("123%", cfg, false); got != "123" {
		t.Errorf("disabled %%->4 normalization = %q, want 123", got)
	}
}

package detect

import "testing"

func TestLuhnValid(t *testing.T) {
	cases := []struct {
		digits string
		want   bool
	}{
		{"4242424242424242", true},
		{"4242424242424243", false},
		{"4012888888881881", true},
		{"4000123456789017", true},
		{"4000123456789018", false},
		{"5555555555554444", true},
		{"378282246310005", true},  // 15-digit Amex
		{"6011111111111117", true}, // 16-digit Discover
		{"0000000000000", true},    // 13 zeros, trivially valid
		{"", false},
		{"4242 4242", false}, // non-digit input never validates
		{"424242424242424x", false},
	}
	for _, tc := range cases {
		if got := LuhnValid(tc.digits); got != tc.want {
			t.Errorf("LuhnValid(%q) = %v, want %v", tc.digits, got, tc.want)
		}
	}
}

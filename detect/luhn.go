package detect

// LuhnValid reports whether digits passes the mod-10 checksum. Doubling is
// applied to every second digit counted from the right; the starting parity
// is derived from the string length so the same digit positions are doubled
// regardless of total length. Non-digit input returns false.
func LuhnValid(digits string) bool {
	if digits == "" {
		return false
	}
	total := 0
	parity := len(digits) % 2
	for i := 0; i < len(digits); i++ {
		c := digits[i]
		if c < '0' || c > '9' {
			return false
		}
		v := int(c - '0')
		if i%2 == parity {
			v *= 2
			if v > 9 {
				v -= 9
			}
		}
		total += v
	}
	return total%10 == 0
}

package schema

import "fmt"

// PartNumberDigits is the width of the numeric part of a part number.
const PartNumberDigits = 6

// FormatPartNumber renders prefix followed by n zero padded to six digits,
// e.g. RES000001. Larger numbers print in full.
func FormatPartNumber(prefix string, n int) string {
	return fmt.Sprintf("%s%0*d", prefix, PartNumberDigits, n)
}

// NextPartNumber returns the sequence number following currentMax. Zero means
// no part with the prefix exists yet.
func NextPartNumber(currentMax int) int {
	if currentMax < 0 {
		currentMax = 0
	}
	return currentMax + 1
}

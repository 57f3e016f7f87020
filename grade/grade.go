package grade

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/width"
)

// knownGrades is the mill's wire-rod diameter lineup (mm).
var knownGrades = []string{
	"5.50", "6.00", "6.50", "7.00", "8.00", "9.00", "10.00", "11.00", "12.00",
}

// skuMap maps a canonical grade to the plant SKU printed on labels.
var skuMap = map[string]string{
	"5.50":  "10000241",
	"6.00":  "10000285",
	"6.50":  "10000248",
	"7.00":  "10000271",
	"8.00":  "10000003",
	"9.00":  "10000288",
	"10.00": "10000287",
	"12.00": "10000240",
}

// Normalize canonicalizes a grade string to exactly two decimal places
// ("7" -> "7.00"). Scanner input may arrive with full-width digits when a
// handheld is paired with a CJK IME, so the string is width-folded first.
// Every grade comparison in the system goes through this.
func Normalize(s string) (string, error) {
	folded := width.Fold.String(strings.TrimSpace(s))
	if folded == "" {
		return "", fmt.Errorf("grade is empty")
	}
	val, err := strconv.ParseFloat(folded, 64)
	if err != nil {
		return "", fmt.Errorf("invalid grade %q: %w", s, err)
	}
	if val <= 0 {
		return "", fmt.Errorf("invalid grade %q: must be positive", s)
	}
	return strconv.FormatFloat(val, 'f', 2, 64), nil
}

// Known returns the selectable grade list.
func Known() []string {
	out := make([]string, len(knownGrades))
	copy(out, knownGrades)
	return out
}

// SKU returns the SKU for a canonical grade, or "00000000" when the
// grade has no assigned SKU.
func SKU(normalized string) string {
	if sku, ok := skuMap[normalized]; ok {
		return sku
	}
	return "00000000"
}

package domain

import "strings"

// PatternKey picks the lookup key for a sample: the barcode when known,
// otherwise the exact product name. Empty means neither was given.
func PatternKey(barcode, productName string) string {
	if b := strings.TrimSpace(barcode); b != "" {
		return "barcode:" + b
	}
	if n := strings.TrimSpace(productName); n != "" {
		return "name:" + n
	}
	return ""
}

package domain

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Store categories whose items carry expiry dates.
var expiryCategories = map[string]struct{}{
	"medical": {},
	"grocery": {},
	"sweets":  {},
}

// RequiresExpiry reports whether any of the store's categories track
// item expiry. The add-item dialogue asks for a date only when true.
func RequiresExpiry(categories []string) bool {
	for _, category := range categories {
		if _, ok := expiryCategories[strings.ToLower(strings.TrimSpace(category))]; ok {
			return true
		}
	}
	return false
}

var expiryDatePattern = regexp.MustCompile(`^\d{2}-\d{2}-\d{4}$`)

// ValidExpiryDate reports whether the date is in the wire format
// DD-MM-YYYY. No other format is ever accepted from the dialogue.
func ValidExpiryDate(date string) bool {
	return expiryDatePattern.MatchString(date)
}

// ExpiryInstant derives the persisted comparison point for a DD-MM-YYYY
// date: 23:59:59.999 local time on that calendar day.
func ExpiryInstant(date string) (time.Time, bool) {
	if !ValidExpiryDate(date) {
		return time.Time{}, false
	}
	parts := strings.Split(date, "-")
	day, _ := strconv.Atoi(parts[0])
	month, _ := strconv.Atoi(parts[1])
	year, _ := strconv.Atoi(parts[2])
	instant := time.Date(year, time.Month(month), day, 23, 59, 59, 999_000_000, time.Local)
	return instant, true
}

// NormalizeItemName lowercases and trims an item name for natural-key
// lookup and merge.
func NormalizeItemName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

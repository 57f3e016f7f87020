package batchcode

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MaxSeq is the highest sequence a single (date, grade) bucket can hold.
// Codes never wrap past it; the operator has to move to a new date or
// grade instead.
const MaxSeq = 999

// Separator sits between the date prefix and the sequence ("251215I001").
const Separator = "I"

// DatePrefix converts a YYYY-MM-DD production date into the YYMMDD code
// prefix. The date is interpreted on the local calendar: parsing it as
// UTC and converting back can shift the day for evening shifts west of
// Greenwich, which would file the batch under the wrong bucket.
func DatePrefix(dateStr string) (string, error) {
	t, err := time.ParseInLocation("2006-01-02", dateStr, time.Local)
	if err != nil {
		return "", fmt.Errorf("invalid date %q: %w", dateStr, err)
	}
	return t.Format("060102"), nil
}

// DateFromPrefix re-derives the YYYY-MM-DD date from a YYMMDD prefix.
// Used when the server rolls the bucket over to a different date and the
// record's logical date has to follow the code.
func DateFromPrefix(prefix string) (string, error) {
	t, err := time.ParseInLocation("060102", prefix, time.Local)
	if err != nil {
		return "", fmt.Errorf("invalid date prefix %q: %w", prefix, err)
	}
	return t.Format("2006-01-02"), nil
}

// Format renders a batch code from a YYMMDD prefix and a sequence.
func Format(prefix string, seq int) string {
	return fmt.Sprintf("%s%s%03d", prefix, Separator, seq)
}

// Split breaks a batch code into its date prefix and sequence.
func Split(code string) (prefix string, seq int, err error) {
	parts := strings.Split(code, Separator)
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("malformed batch code %q", code)
	}
	seq, err = strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, fmt.Errorf("malformed batch code %q: %w", code, err)
	}
	return parts[0], seq, nil
}

// StorageKey builds the local sequence-cache key for a bucket.
func StorageKey(prefix, normalizedGrade string) string {
	return prefix + "_" + normalizedGrade
}

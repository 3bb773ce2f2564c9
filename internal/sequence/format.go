package sequence

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

const (
	orderDigits = 5
	batchDigits = 3

	maxOrderSeq = 99999
	maxBatchSeq = 999

	dateLayout = "2006-01-02"
)

var (
	orderNumberRe = regexp.MustCompile(`^[A-Z]\d{5}$`)
	batchNumberRe = regexp.MustCompile(`^[A-Z]-\d{4}-\d{2}-\d{2}-\d{3}$`)
)

// ValidOrderNumber проверяет формат номера заказа, например S00042.
func ValidOrderNumber(s string) bool {
	return orderNumberRe.MatchString(s)
}

// ValidBatchNumber проверяет формат номера партии, например S-2026-02-16-003.
func ValidBatchNumber(s string) bool {
	return batchNumberRe.MatchString(s)
}

// ParseOrderNumber разбирает номер заказа на код точки и счётчик.
func ParseOrderNumber(s string) (code string, seq int, err error) {
	if !ValidOrderNumber(s) {
		return "", 0, fmt.Errorf("invalid order number %q", s)
	}
	seq, err = strconv.Atoi(s[1:])
	if err != nil {
		return "", 0, fmt.Errorf("invalid order number %q: %w", s, err)
	}
	return s[:1], seq, nil
}

// ParseBatchNumber разбирает номер партии на код точки, дату и счётчик.
func ParseBatchNumber(s string) (code string, date time.Time, seq int, err error) {
	if !ValidBatchNumber(s) {
		return "", time.Time{}, 0, fmt.Errorf("invalid batch number %q", s)
	}
	date, err = time.Parse(dateLayout, s[2:12])
	if err != nil {
		return "", time.Time{}, 0, fmt.Errorf("invalid batch number %q: %w", s, err)
	}
	seq, err = strconv.Atoi(s[13:])
	if err != nil {
		return "", time.Time{}, 0, fmt.Errorf("invalid batch number %q: %w", s, err)
	}
	return s[:1], date, seq, nil
}

func formatOrderNumber(code string, seq int) string {
	return fmt.Sprintf("%s%0*d", code, orderDigits, seq)
}

func batchPrefix(code string, date time.Time) string {
	return fmt.Sprintf("%s-%s-", code, date.Format(dateLayout))
}

func formatBatchNumber(code string, date time.Time, seq int) string {
	return fmt.Sprintf("%s%0*d", batchPrefix(code, date), batchDigits, seq)
}

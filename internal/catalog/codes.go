package catalog

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"
)

const (
	BarcodeEAN13   = "EAN13"
	BarcodeCode128 = "CODE128"
	BarcodeCode39  = "CODE39"
)

// BarcodeFormat canonicalizes a requested format. Empty means CODE128;
// anything unknown reports false.
func BarcodeFormat(format string) (string, bool) {
	switch f := strings.ToUpper(strings.TrimSpace(format)); f {
	case "":
		return BarcodeCode128, true
	case BarcodeEAN13, BarcodeCode128, BarcodeCode39:
		return f, true
	default:
		return "", false
	}
}

const code128Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateBarcode derives a barcode from the current time plus a random tail.
// EAN13 values are all digits with a valid check digit.
func GenerateBarcode(format string, now time.Time) string {
	stamp := strconv.FormatInt(now.UnixMilli(), 10)

	switch format {
	case BarcodeEAN13:
		digits := lastN(stamp, 11) + strconv.Itoa(rand.IntN(10))
		return digits + strconv.Itoa(EAN13CheckDigit(digits))
	case BarcodeCode39:
		return "*" + lastN(stamp, 8) + randomTail(4) + "*"
	default:
		return lastN(stamp, 10) + randomTail(4)
	}
}

// EAN13CheckDigit computes the 13th digit for a 12 digit payload.
func EAN13CheckDigit(digits string) int {
	sum := 0
	for i := 0; i < 12 && i < len(digits); i++ {
		d := int(digits[i] - '0')
		if i%2 == 0 {
			sum += d
		} else {
			sum += d * 3
		}
	}
	return (10 - sum%10) % 10
}

// GenerateSKU builds "{CAT}-{time4}-{index:04d}" from the first three letters
// of the category.
func GenerateSKU(category string, index int, now time.Time) string {
	prefix := strings.ToUpper(strings.TrimSpace(category))
	if len(prefix) > 3 {
		prefix = prefix[:3]
	}
	if prefix == "" {
		prefix = "GEN"
	}
	stamp := strconv.FormatInt(now.UnixMilli(), 10)
	return fmt.Sprintf("%s-%s-%04d", prefix, lastN(stamp, 4), index)
}

func randomTail(n int) string {
	var b strings.Builder
	for range n {
		b.WriteByte(code128Alphabet[rand.IntN(len(code128Alphabet))])
	}
	return b.String()
}

func lastN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

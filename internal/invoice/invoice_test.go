package invoice

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormat(t *testing.T) {
	at := time.Date(2026, time.March, 7, 23, 59, 0, 0, time.UTC)

	assert.Equal(t, "INV-260307-000042", Format("INV", at, 42))
	assert.Equal(t, "INV-260307-000001", Format("  ", at, 1))
	assert.Equal(t, "SHOP-260307-1234567", Format("SHOP", at, 1234567))
}

func TestFormatUsesLocationOfTimestamp(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*60*60)
	at := time.Date(2026, time.March, 7, 20, 0, 0, 0, time.UTC).In(jakarta)

	assert.Equal(t, "INV-260308-000003", Format("INV", at, 3))
}

package invoice

import (
	"fmt"
	"strings"
	"time"
)

const DefaultPrefix = "INV"

// Format builds "{prefix}-{YYMMDD}-{sequence:06d}" using the calendar date of
// at in its own location.
func Format(prefix string, at time.Time, sequence int64) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return fmt.Sprintf("%s-%s-%06d", prefix, at.Format("060102"), sequence)
}

// Package ids mints the externally visible identifiers of the CRM:
// POT-DDDD for opportunities and QUO-YYYY-DDDD for quotations.
package ids

import (
	"fmt"
	"math/rand"
	"regexp"
	"time"
)

var (
	potPattern = regexp.MustCompile(`^POT-\d{4}$`)
	quoPattern = regexp.MustCompile(`^QUO-\d{4}-\d{4}$`)
)

// RandomPotNumber draws a candidate number uniformly from [1000,9999].
// Collisions against the unique index are handled by the caller.
func RandomPotNumber() int {
	return 1000 + rand.Intn(9000)
}

// FormatPot renders a POT id from its numeric part. The result is always
// 8 characters.
func FormatPot(n int) string {
	return fmt.Sprintf("POT-%04d", n%10000)
}

// FormatQuo renders a QUO id for the given year and sequence number.
// The result is always 13 characters.
func FormatQuo(year, seq int) string {
	return fmt.Sprintf("QUO-%04d-%04d", year, seq%10000)
}

// QuoYear returns the year component used for quotation ids.
func QuoYear(t time.Time) int {
	return t.Year()
}

// ValidPot reports whether s is a well-formed POT id.
func ValidPot(s string) bool {
	return potPattern.MatchString(s)
}

// ValidQuo reports whether s is a well-formed QUO id.
func ValidQuo(s string) bool {
	return quoPattern.MatchString(s)
}

package domain

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// FundingInfo is staged per-signature funding metadata from the feed.
type FundingInfo struct {
	Origin     *string
	AgeLiteral *string
	Tags       []string
}

var ageLiteralRe = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*(s|m|h|d|w|mo|y)$`)

var ageUnitSeconds = map[string]float64{
	"s":  1,
	"m":  60,
	"h":  3600,
	"d":  86400,
	"w":  604800,
	"mo": 2592000,
	"y":  31536000,
}

// ParseAgeLiteral parses a funding age literal such as "2d", "3h", "45m",
// "2w", "1mo" or "1.5y" into whole seconds. It returns false when the
// expression does not match the unit grammar.
func ParseAgeLiteral(expr string) (int64, bool) {
	m := ageLiteralRe.FindStringSubmatch(strings.ToLower(strings.TrimSpace(expr)))
	if m == nil {
		return 0, false
	}
	q, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	secs := q * ageUnitSeconds[m[2]]
	if math.IsInf(secs, 0) || math.IsNaN(secs) {
		return 0, false
	}
	return int64(math.Round(secs)), true
}

package domain

import "strings"

// Known feed channels mapped to type labels. A source URL that matches none
// of these yields no label.
var sourceLabels = []struct {
	fragment string
	label    string
}{
	{"channels/958046672473194556/1241009019494072370", "AG"},
	{"channels/1372291116853887077/1382098297891717252", "Fresh"},
	{"channels/1372291116853887077/1382099149842812988", "Dormant"},
	{"channels/1372291116853887077/1387731366212538390", "SNS"},
	{"channels/1372291116853887077/1387731454577872936", "AboveAVG"},
}

// TypeLabelForSource derives the feed type label from an originating source
// URL. Returns "" when the source is unknown.
func TypeLabelForSource(sourceURL string) string {
	for _, s := range sourceLabels {
		if strings.Contains(sourceURL, s.fragment) {
			return s.label
		}
	}
	return ""
}

// SanitizeTimestamp normalizes a timestamp to unix seconds, converting
// millisecond values. A zero timestamp is returned unchanged; callers decide
// the fallback.
func SanitizeTimestamp(ts int64) int64 {
	if ts > 10_000_000_000 {
		return ts / 1000
	}
	return ts
}

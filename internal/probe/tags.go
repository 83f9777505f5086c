package probe

import (
	"strconv"
	"strings"

	"github.com/pezzottify/catalog-engine/internal/model"
)

// ParseFileTags converts the raw recognized tag map from ExtractTags into a
// FileTags value: track splits "n/total", date is reduced to its first four
// characters as year.
func ParseFileTags(tags map[string]string) model.FileTags {
	var result model.FileTags

	result.Artist = tags["artist"]
	result.Album = tags["album"]
	result.Title = tags["title"]

	if track, ok := tags["track"]; ok {
		result.TrackNum, result.TrackTotal = parseFraction(track)
	}

	if disc, ok := tags["disc"]; ok {
		result.DiscNum, _ = parseFraction(disc)
	}

	if date, ok := tags["date"]; ok && len(date) >= 4 {
		result.Year = date[:4]
	} else if ok {
		result.Year = date
	}

	return result
}

// parseFraction parses "n" or "n/total" track/disc number strings.
func parseFraction(s string) (num, total int64) {
	parts := strings.SplitN(s, "/", 2)

	num, _ = strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)

	if len(parts) == 2 {
		total, _ = strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	}

	return num, total
}

package probe_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pezzottify/catalog-engine/internal/probe"
)

func TestParseFileTags(t *testing.T) {
	t.Parallel()

	tags := probe.ParseFileTags(map[string]string{
		"artist": "Boards of Canada",
		"album":  "Music Has the Right to Children",
		"title":  "Roygbiv",
		"track":  "7/17",
		"disc":   "1",
		"date":   "1998-04-20",
	})

	assert.Equal(t, "Boards of Canada", tags.Artist)
	assert.Equal(t, "Music Has the Right to Children", tags.Album)
	assert.Equal(t, "Roygbiv", tags.Title)
	assert.Equal(t, int64(7), tags.TrackNum)
	assert.Equal(t, int64(17), tags.TrackTotal)
	assert.Equal(t, int64(1), tags.DiscNum)
	assert.Equal(t, "1998", tags.Year)
}

func TestParseFileTagsWithoutTotals(t *testing.T) {
	t.Parallel()

	tags := probe.ParseFileTags(map[string]string{
		"track": "3",
		"date":  "2020",
	})

	assert.Equal(t, int64(3), tags.TrackNum)
	assert.Equal(t, int64(0), tags.TrackTotal)
	assert.Equal(t, "2020", tags.Year)
}

func TestParseFileTagsEmpty(t *testing.T) {
	t.Parallel()

	tags := probe.ParseFileTags(map[string]string{})

	assert.Empty(t, tags.Artist)
	assert.Empty(t, tags.Year)
}

package match

import "github.com/pezzottify/catalog-engine/internal/model"

// candidateScoreWeights sum to 1.0 across whichever factors have inputs;
// missing factors are omitted from both numerator and denominator.
//
//nolint:gochecknoglobals // Fixed weighting table from spec §4.7.
var candidateScoreWeights = map[string]float64{
	"artist":   0.25,
	"album":    0.25,
	"count":    0.15,
	"overlap":  0.15,
	"duration": 0.10,
	"filename": 0.10,
}

// CandidateScoreInput is everything needed to weight-score one AlbumCandidate
// against an uploaded album's detected metadata.
type CandidateScoreInput struct {
	DetectedArtist    string
	DetectedAlbum     string
	SourceFilename    string // e.g. original archive/dir name, compared to "artist - album"
	UploadedTitles    []string
	UploadedTotalMs   int64
	HasSourceFilename bool
}

// ScoreCandidate applies the weighted formula from spec §4.7 to one
// AlbumCandidate, normalizing over whichever factors have usable inputs.
func ScoreCandidate(input CandidateScoreInput, candidate model.AlbumCandidate) float64 {
	var (
		numerator   float64
		denominator float64
	)

	add := func(factor string, value float64) {
		numerator += candidateScoreWeights[factor] * value
		denominator += candidateScoreWeights[factor]
	}

	add("artist", StringSimilarity(input.DetectedArtist, candidate.Artist))
	add("album", StringSimilarity(input.DetectedAlbum, candidate.Name))

	uploadedCount := len(input.UploadedTitles)
	candidateCount := len(candidate.TrackTitles)
	countDelta := uploadedCount - candidateCount

	if countDelta < 0 {
		countDelta = -countDelta
	}

	countScore := 1.0 - 0.1*float64(countDelta)
	if countScore < 0 {
		countScore = 0
	}

	add("count", countScore)

	if len(input.UploadedTitles) > 0 {
		var matched int

		for _, title := range input.UploadedTitles {
			if BestSimilarity(title, candidate.TrackTitles) > 0.7 {
				matched++
			}
		}

		add("overlap", float64(matched)/float64(len(input.UploadedTitles)))
	}

	if input.UploadedTotalMs > 0 && candidate.TotalMs > 0 {
		ratio := float64(input.UploadedTotalMs) / float64(candidate.TotalMs)

		durationScore := 1.0 - 5.0*abs(1.0-ratio)
		if durationScore < 0 {
			durationScore = 0
		}

		add("duration", durationScore)
	}

	if input.HasSourceFilename {
		expected := candidate.Artist + " - " + candidate.Name
		add("filename", StringSimilarity(input.SourceFilename, expected))
	}

	if denominator == 0 {
		return 0
	}

	return numerator / denominator
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}

	return v
}

// RankCandidates scores every candidate and returns them sorted best-first.
func RankCandidates(input CandidateScoreInput, candidates []model.AlbumCandidate) []model.AlbumCandidate {
	ranked := make([]model.AlbumCandidate, len(candidates))
	copy(ranked, candidates)

	for i := range ranked {
		ranked[i].Score = ScoreCandidate(input, ranked[i])
	}

	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0 && ranked[j].Score > ranked[j-1].Score; j-- {
			ranked[j], ranked[j-1] = ranked[j-1], ranked[j]
		}
	}

	return ranked
}

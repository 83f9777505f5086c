package ingestion

import (
	"context"
	"fmt"

	"github.com/pezzottify/catalog-engine/internal/model"
)

// reviewOptionsLowBitrate holds the two choices offered when a job has at
// least one low-bitrate file pending confirmation.
var reviewOptionsLowBitrate = []model.ReviewOption{ //nolint:gochecknoglobals // Fixed option set from spec §4.7.
	{ID: "convert_low_bitrate", Label: "Convert anyway", Description: "Transcode the low-bitrate file(s) at the target bitrate."},
	{ID: "no_match", Label: "Cancel", Description: "Abandon this upload."},
}

// analyze runs the Analyze stage: probe and tag every file, compute each
// file's conversion_reason, and decide whether the job can proceed straight
// to album identification or must first pause for a low-bitrate review.
func (m *Manager) analyze(ctx context.Context, job *model.IngestionJob) error {
	job.Status = model.IngestionStatusAnalyzing

	if err := m.store.UpdateJob(ctx, job); err != nil {
		return err
	}

	files, err := m.store.ListFilesByJob(ctx, job.ID)
	if err != nil {
		return err
	}

	var (
		probeFailures int
		anyLowBitrate bool
	)

	for i, file := range files {
		if m.analyzeFile(ctx, file) != nil {
			probeFailures++
		} else if file.ConversionReason == model.ConversionLowBitratePendingConfirmation {
			anyLowBitrate = true
		}

		if err := m.store.UpdateFile(ctx, file); err != nil {
			return err
		}

		if job.UserID != "" {
			percent := float64(i+1) / float64(len(files)) * 100 //nolint:mnd // Percentage scale, not a magic tuning constant.
			m.notifier.NotifyProgress(ctx, job.UserID, job.ID, "analyze", percent, i+1)
		}
	}

	if len(files) > 0 && probeFailures == len(files) {
		return m.fail(ctx, job, "all files failed to probe")
	}

	if err := m.store.AppendReasoning(ctx, job.ID, "analyze",
		fmt.Sprintf("%d files probed, %d failed, low bitrate present: %t", len(files), probeFailures, anyLowBitrate)); err != nil {
		return err
	}

	if anyLowBitrate {
		return m.requireReview(ctx, job, "One or more files are below the target bitrate. Convert anyway?", reviewOptionsLowBitrate)
	}

	job.Status = model.IngestionStatusIdentifyingAlbum

	return m.store.UpdateJob(ctx, job)
}

// analyzeFile probes one file, extracts its tags, and computes its
// conversion reason. A probe failure is recorded on the file (so partial
// failures only warn per spec §4.7) and returned so the caller can count it.
func (m *Manager) analyzeFile(ctx context.Context, file *model.IngestionFile) error {
	result, err := m.prober.Probe(ctx, file.TempPath)
	if err != nil {
		file.ErrorMessage = err.Error()

		return err
	}

	file.Probed = &result
	file.OriginalBitrate = result.Bitrate
	file.ConversionReason = classifyBitrate(result.Bitrate, m.cfg.TargetBitrate, m.cfg.BitrateTolerance)

	rawTags, err := m.prober.ExtractTags(ctx, file.TempPath)
	if err != nil {
		// Tags are best-effort: a file that probes fine but whose tags can't
		// be read still has a usable duration for matching.
		return nil
	}

	tags := parseFileTags(rawTags)
	file.Tags = &tags

	return nil
}

// classifyBitrate implements spec §4.7's conversion_reason decision table:
// a bitrate of zero is undetectable; below target-tolerance needs reviewer
// confirmation; above target+tolerance is already high enough to keep as-is
// content-wise but still counts as HighBitrate (it still gets re-encoded
// down to the target); within tolerance needs no conversion.
func classifyBitrate(bitrate, target, tolerance int64) model.ConversionReason {
	switch {
	case bitrate == 0:
		return model.ConversionUndetectableBitrate
	case bitrate < target-tolerance:
		return model.ConversionLowBitratePendingConfirmation
	case bitrate > target+tolerance:
		return model.ConversionHighBitrate
	default:
		return model.ConversionNoneNeeded
	}
}

// parseFileTags maps probe.ExtractTags's recognized lowercase keys onto
// FileTags, splitting "track"/"disc" values that may arrive as "n/total".
func parseFileTags(raw map[string]string) model.FileTags {
	tags := model.FileTags{
		Artist: raw["artist"],
		Album:  raw["album"],
		Title:  raw["title"],
		Year:   normalizeYear(raw["date"]),
	}

	tags.TrackNum, tags.TrackTotal = splitFraction(raw["track"])
	tags.DiscNum, _ = splitFraction(raw["disc"])

	return tags
}

// normalizeYear reduces an arbitrary date tag to its leading four-digit year.
func normalizeYear(date string) string {
	if len(date) >= 4 { //nolint:mnd // Four-digit year prefix, not a tuning constant.
		return date[:4]
	}

	return date
}

// splitFraction parses a "n" or "n/total" tag value into its numerator and
// (if present) denominator.
func splitFraction(value string) (num, total int64) {
	if value == "" {
		return 0, 0
	}

	var n, t int64

	matched, _ := fmt.Sscanf(value, "%d/%d", &n, &t)
	if matched >= 1 {
		return n, t
	}

	return 0, 0
}

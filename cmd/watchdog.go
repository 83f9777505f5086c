package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/pezzottify/catalog-engine/internal/filestore"
	"github.com/pezzottify/catalog-engine/internal/manager/watchdog"
	storecatalog "github.com/pezzottify/catalog-engine/internal/store/catalog"
	"github.com/pezzottify/catalog-engine/internal/store/queue"
)

//nolint:gochecknoglobals
var watchdogDryRun bool

//nolint:gochecknoglobals,lll // Cobra command requires a global definition for proper command-line parsing and execution.
var watchdogCmd = &cobra.Command{
	Use:   "watchdog",
	Short: "Run one missing-files scan and print the report.",
	Args:  cobra.NoArgs,
	RunE:  runWatchdogCommand,
}

//nolint:gochecknoinits // Cobra requires the init function to register flags and subcommands.
func init() {
	watchdogCmd.Flags().BoolVar(&watchdogDryRun, "dry-run", false, "report missing files without enqueueing repairs.")
	rootCmd.AddCommand(watchdogCmd)
}

func runWatchdogCommand(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	catalogStore, err := storecatalog.Open(ctx, appConfig.CatalogDBPath)
	if err != nil {
		return fmt.Errorf("open catalog store: %w", err)
	}
	defer catalogStore.Close() //nolint:errcheck // Best-effort close on command exit.

	queueStore, err := queue.Open(ctx, appConfig.QueueDBPath)
	if err != nil {
		return fmt.Errorf("open queue store: %w", err)
	}
	defer queueStore.Close() //nolint:errcheck // Best-effort close on command exit.

	fileStore := filestore.New(appConfig.ScratchDir, appConfig.MediaDir, appConfig.ParsedMaxFileSize)
	wd := watchdog.New(catalogStore, queueStore, fileStore)

	mode := watchdog.Actual
	if watchdogDryRun {
		mode = watchdog.DryRun
	}

	report, err := runScanWithProgress(ctx, wd, mode)
	if err != nil {
		return fmt.Errorf("watchdog scan: %w", err)
	}

	printWatchdogReport(cmd, report)

	return nil
}

// runScanWithProgress shows an indeterminate spinner while the scan runs
// in the background, matching the teacher's CLI-output
// texture for long-running operations.
func runScanWithProgress(ctx context.Context, wd *watchdog.Watchdog, mode watchdog.Mode) (watchdog.Report, error) {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("scanning catalog"),
		progressbar.OptionSpinnerType(14), //nolint:mnd // Matches the teacher's chosen spinner style.
	)
	defer bar.Close() //nolint:errcheck // Best-effort terminal cleanup.

	stop := make(chan struct{})
	ticked := make(chan struct{})

	go func() {
		defer close(ticked)

		ticker := time.NewTicker(100 * time.Millisecond) //nolint:mnd // Cosmetic refresh rate only.
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				_ = bar.Add(1) //nolint:errcheck // Cosmetic progress only.
			}
		}
	}()

	report, err := wd.Scan(ctx, mode)
	close(stop)
	<-ticked

	return report, err
}

func printWatchdogReport(cmd *cobra.Command, report watchdog.Report) {
	out := cmd.OutOrStdout()

	mode := "actual"
	if report.Mode == watchdog.DryRun {
		mode = "dry-run"
	}

	fmt.Fprintf(out, "mode:           %s\n", mode)
	fmt.Fprintf(out, "scanned:        %d\n", report.Scanned)
	fmt.Fprintf(out, "missing:        %d\n", len(report.Missing))
	fmt.Fprintf(out, "queued:         %d\n", report.ItemsQueued)
	fmt.Fprintf(out, "already queued: %d\n", report.ItemsSkipped)
	fmt.Fprintf(out, "duration:       %dms\n", report.ScanDurationMs)

	for _, item := range report.Missing {
		fmt.Fprintf(out, "  missing %s %s: %s\n", item.ContentType.String(), item.ContentID, item.Detail)
	}
}

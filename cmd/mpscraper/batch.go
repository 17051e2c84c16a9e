package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"mpscraper/pkg/checkpoint"
	"mpscraper/pkg/scraper"
	"mpscraper/pkg/ui"
)

var (
	batchOpts       scrapeFlags
	resume          bool
	forceRestart    bool
	cronSpec        string
	notify          bool
	accountInterval time.Duration
)

var batchCmd = &cobra.Command{
	Use:   "batch [account...]",
	Short: "Harvest several official accounts one after another",
	Long: `Scrape a list of accounts sequentially, pausing batch.account_interval
between them. Progress is checkpointed so an interrupted batch can be
resumed. Without arguments the accounts come from batch.accounts.

With --cron (or batch.schedule) the batch runs once immediately and then
on the given five-field cron schedule until interrupted.

Examples:
  mpscraper batch "Daily Tech" "Go Weekly" --days 3
  mpscraper batch --resume
  mpscraper batch --cron "0 6 * * *" --notify`,
	RunE: runBatch,
}

func init() {
	batchOpts.register(batchCmd)
	batchCmd.Flags().BoolVar(&resume, "resume", false, "resume from the last checkpoint")
	batchCmd.Flags().BoolVar(&forceRestart, "force-restart", false, "discard an existing checkpoint")
	batchCmd.Flags().StringVar(&cronSpec, "cron", "", "run on a cron schedule (default from batch.schedule)")
	batchCmd.Flags().BoolVar(&notify, "notify", false, "send desktop notifications")
	batchCmd.Flags().DurationVar(&accountInterval, "account-interval", 0, "delay between accounts")
	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	flags := batchOpts.configFlags(cmd)
	if cmd.Flags().Changed("account-interval") {
		flags["account-interval"] = accountInterval
	}

	a, err := loadApp(flags)
	if err != nil {
		return err
	}

	accounts := args
	if len(accounts) == 0 {
		accounts = a.cfg.Batch.Accounts
	}
	if len(accounts) == 0 {
		return fmt.Errorf("no accounts given and batch.accounts is empty")
	}

	ctx, stop := signalContext()
	defer stop()

	p, err := a.openPersistence(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	checkpoints, err := checkpoint.NewManager("batch")
	if err != nil {
		return fmt.Errorf("failed to open checkpoint: %w", err)
	}

	if resume {
		if info, err := checkpoints.GetCheckpointInfo(); err == nil && info != nil {
			ui.PrintInfo("Resuming", fmt.Sprintf("%v/%v accounts done, %v failed, %v articles so far",
				info["completed"], info["accounts"], info["failed"], info["total_articles"]))
		}
	}

	runner := scraper.NewBatchRunner(a.newScraper(p.existence()), p.persister, checkpoints, a.cfg.Batch, a.log)
	notifier := ui.NewNotifier(notify)
	opts := scraper.BatchOptions{
		Options:      batchOpts.options(cmd, a.cfg.Scraper.SkipExisting),
		Resume:       resume,
		ForceRestart: forceRestart,
	}

	spec := cronSpec
	if spec == "" {
		spec = a.cfg.Batch.Schedule
	}
	if spec == "" {
		return explain(runBatchOnce(ctx, runner, notifier, accounts, opts))
	}

	// later runs pick up whatever an earlier run left behind
	scheduled := opts
	scheduled.Resume = true
	first := true
	job := func(ctx context.Context) {
		runOpts := scheduled
		if first {
			runOpts = opts
			first = false
		}
		if err := runBatchOnce(ctx, runner, notifier, accounts, runOpts); err != nil {
			ui.PrintError("Batch run failed", explain(err))
		}
	}

	scheduler, err := scraper.NewScheduler(spec, job, a.log)
	if err != nil {
		return err
	}
	ui.PrintInfo("Schedule", spec)
	return scheduler.Run(ctx, true)
}

func runBatchOnce(ctx context.Context, runner *scraper.BatchRunner, notifier *ui.Notifier, accounts []string, opts scraper.BatchOptions) error {
	tracker := ui.NewStatusTracker(len(accounts))
	runner.SetReporter(tracker)

	report, err := runner.Run(ctx, accounts, opts)
	if err != nil {
		notifier.SendError("Batch aborted", err.Error())
		return err
	}

	summary := tracker.Summary()
	if failed := report.Failed(); len(failed) > 0 {
		notifier.SendError("Batch finished with failures", summary)
		ui.PrintWarning("Run 'mpscraper batch --resume' to retry the failed accounts")
		return nil
	}
	notifier.SendSuccess("Batch complete", summary)
	return nil
}

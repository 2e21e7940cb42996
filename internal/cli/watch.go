package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"technews/internal/session"
	"technews/internal/store"
)

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var (
		schedule string
		now      bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Refresh and prune the index on a cron schedule until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open(cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()
			if schedule == "" {
				schedule = e.cfg.Maintenance.WatchSchedule
			}
			if err := validateSchedule(schedule); err != nil {
				return err
			}
			sess, err := e.newSession("")
			if err != nil {
				return err
			}
			job := &watchJob{
				session: sess,
				store:   e.store,
				maxAge:  maxAge(e.cfg.Maintenance.MaxAgeDays),
				sources: e.cfg.SourceNames(),
				out:     cmd.OutOrStdout(),
				logger:  e.logger,
			}
			return runWatch(cmd.Context(), schedule, now, job, e.logger)
		},
	}
	cmd.Flags().StringVar(&schedule, "schedule", "", "Cron expression (defaults to maintenance.watch_schedule)")
	cmd.Flags().BoolVar(&now, "now", false, "Run once immediately before following the schedule")
	return cmd
}

// validateSchedule accepts standard five-field cron expressions.
func validateSchedule(expr string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// runWatch blocks until ctx is done. Runs never overlap; a run that is
// still going when the next one is due pushes that one back.
func runWatch(ctx context.Context, schedule string, immediately bool, job *watchJob, logger *logrus.Logger) error {
	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.Local))
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	jobOpts := []gocron.JobOption{
		gocron.WithName("refresh"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	}
	if immediately {
		jobOpts = append(jobOpts, gocron.WithStartAt(gocron.WithStartImmediately()))
	}
	if _, err := scheduler.NewJob(
		gocron.CronJob(schedule, false),
		gocron.NewTask(func() { job.run(ctx) }),
		jobOpts...,
	); err != nil {
		_ = scheduler.Shutdown()
		return fmt.Errorf("schedule refresh: %w", err)
	}

	scheduler.Start()
	logger.WithField("schedule", schedule).Info("watching sources")
	<-ctx.Done()
	logger.Info("stopping watch")
	return scheduler.Shutdown()
}

type watchJob struct {
	session *session.Session
	store   *store.Store
	maxAge  time.Duration
	sources []string
	out     io.Writer
	logger  *logrus.Logger
}

// run does one refresh followed by a prune of entries past maxAge.
func (j *watchJob) run(ctx context.Context) {
	started := time.Now()
	report := j.session.Refresh(ctx)
	fmt.Fprintf(j.out, "[%s] ", started.Format(time.DateTime))
	printRefresh(j.out, j.sources, report)
	if j.maxAge > 0 {
		if removed := j.store.DeleteOlderThan(ctx, j.maxAge); removed > 0 {
			fmt.Fprintf(j.out, "Pruned %d stale entries\n", removed)
		}
	}
	j.logger.WithFields(logrus.Fields{
		"added":    report.Added,
		"duration": time.Since(started).Round(time.Millisecond),
	}).Debug("watch run finished")
}

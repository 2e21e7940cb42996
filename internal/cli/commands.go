package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"technews/internal/domain"
	"technews/internal/logging"
	"technews/internal/retriever"
	"technews/internal/session"
	"technews/internal/tui"
)

func newTUICmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Start the interactive terminal UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, opts)
		},
	}
}

func runTUI(cmd *cobra.Command, opts *rootOptions) error {
	e, err := opts.open(cmd, true)
	if err != nil {
		return err
	}
	defer e.closer.Close()
	sess, err := e.newSession("")
	if err != nil {
		_ = e.store.Close()
		return err
	}
	defer sess.Close()

	ctx := cmd.Context()
	sess.Resume(ctx)
	p := tea.NewProgram(tui.New(ctx, sess), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

func newRefreshCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Fetch every source and index new items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open(cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()
			sess, err := e.newSession("")
			if err != nil {
				return err
			}
			report := sess.Refresh(cmd.Context())
			printRefresh(cmd.OutOrStdout(), e.cfg.SourceNames(), report)
			return report.IndexErr
		},
	}
}

func printRefresh(w io.Writer, sources []string, r session.RefreshReport) {
	fmt.Fprintf(w, "Fetched %d updates: %d added, %d already indexed\n", r.Fetched, r.Added, r.Skipped)
	for _, name := range sources {
		if err, failed := r.Failures[name]; failed {
			fmt.Fprintf(w, "  %-20s failed: %v\n", name, err)
			continue
		}
		fmt.Fprintf(w, "  %-20s %d\n", name, r.Counts[name])
	}
	if r.IndexErr != nil {
		fmt.Fprintf(w, "Indexing failed: %v\n", r.IndexErr)
	}
}

func newAskCmd(opts *rootOptions) *cobra.Command {
	var (
		style string
		topK  int
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question, fetching updates first if the index is empty",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open(cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()
			if topK > 0 {
				e.cfg.Session.TopK = topK
			}
			sess, err := e.newSession(style)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if !sess.Resume(ctx) {
				report := sess.Refresh(ctx)
				printRefresh(cmd.ErrOrStderr(), e.cfg.SourceNames(), report)
			}
			turn := sess.Ask(ctx, strings.Join(args, " "))
			fmt.Fprintln(cmd.OutOrStdout(), turn.Response)
			return nil
		},
	}
	cmd.Flags().StringVar(&style, "style", "", "Response style: structured or conversational (defaults to config)")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of context documents (defaults to config)")
	return cmd
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Show the indexed items closest to a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open(cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()
			results := e.store.Search(cmd.Context(), strings.Join(args, " "), limit)
			out := cmd.OutOrStdout()
			if asJSON {
				if results == nil {
					results = []domain.QueryResult{}
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}
			if len(results) == 0 {
				fmt.Fprintln(out, "No results.")
				return nil
			}
			for i, r := range results {
				fmt.Fprintf(out, "%d. [%.3f] %s (%s)\n   %s\n", i+1, r.Score, r.Title, r.Source, r.URL)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 5, "Maximum number of results")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	return cmd
}

func newRecentCmd(opts *rootOptions) *cobra.Command {
	var (
		limit  int
		source string
	)
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List the newest indexed items",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open(cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()
			var docs []domain.Document
			if source != "" {
				docs = e.store.BySource(cmd.Context(), source, limit)
			} else {
				docs = e.store.Recent(cmd.Context(), limit)
			}
			out := cmd.OutOrStdout()
			if len(docs) == 0 {
				fmt.Fprintln(out, "No updates indexed.")
				return nil
			}
			for _, d := range docs {
				fmt.Fprintf(out, "%s  %-20s %s\n  %s\n", d.Timestamp.Local().Format("2006-01-02 15:04"), d.Source, d.Title, d.URL)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of items")
	cmd.Flags().StringVar(&source, "source", "", "Only show items from this source")
	return cmd
}

func newStatsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open(cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()
			stats := e.store.Stats(cmd.Context())
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Collection: %s\nTotal:      %d\n", stats.Collection, stats.Total)
			names := make([]string, 0, len(stats.BySource))
			for name := range stats.BySource {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(out, "  %-20s %d\n", name, stats.BySource[name])
			}
			return nil
		},
	}
}

func newPruneCmd(opts *rootOptions) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete indexed items older than a number of days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open(cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()
			if !cmd.Flags().Changed("days") {
				days = e.cfg.Maintenance.MaxAgeDays
				if days < 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Pruning is disabled (maintenance.max_age_days < 0); pass --days to prune")
					return nil
				}
			}
			if days <= 0 {
				return fmt.Errorf("--days must be positive, got %d", days)
			}
			removed := e.store.DeleteOlderThan(cmd.Context(), maxAge(days))
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d entries older than %d days\n", removed, days)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "Age limit in days (defaults to maintenance.max_age_days)")
	return cmd
}

func newClearCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every indexed item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open(cmd, false)
			if err != nil {
				return err
			}
			defer e.Close()
			removed := e.store.Clear(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d entries\n", removed)
			return nil
		},
	}
}

func maxAge(days int) time.Duration {
	return time.Duration(days) * 24 * time.Hour
}

func newSourcesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "Fetch every source once and show how many items each returns, without indexing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			logger, closer, err := logging.New(cfg.Log, opts.verbose)
			if err != nil {
				return err
			}
			defer closer.Close()
			if cfg.Log.File == "" {
				logger.SetOutput(cmd.ErrOrStderr())
			}
			ret, err := retriever.New(cfg.Retriever, cfg.Sources, logger)
			if err != nil {
				return err
			}
			counts := ret.SourceStats(cmd.Context())
			out := cmd.OutOrStdout()
			for _, name := range ret.Sources() {
				fmt.Fprintf(out, "  %-20s %d\n", name, counts[name])
			}
			return nil
		},
	}
}

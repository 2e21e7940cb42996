// Package cli wires the components into the technews command line.
package cli

import (
	"context"
	"errors"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"technews/internal/config"
	"technews/internal/llm"
	"technews/internal/logging"
	"technews/internal/responder"
	"technews/internal/retriever"
	"technews/internal/session"
	"technews/internal/store"
)

type rootOptions struct {
	configPath string
	verbose    bool
}

// NewRootCmd builds the technews command tree. Running it without a
// subcommand starts the terminal UI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "technews",
		Short: "Ask questions about the latest tech news",
		Long: `technews fetches recent items from news feeds, GitHub and Reddit,
indexes them for semantic search and answers questions about them.

Quick Start:
  technews                      Launch the interactive UI (default)
  technews refresh              Fetch and index all sources
  technews ask "what's new in Go?"

Config: ./config.yaml or ~/.config/technews/config.yaml`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, opts)
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to YAML config file (defaults to ./config.yaml, then ~/.config/technews/config.yaml)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newTUICmd(opts),
		newRefreshCmd(opts),
		newAskCmd(opts),
		newSearchCmd(opts),
		newRecentCmd(opts),
		newStatsCmd(opts),
		newPruneCmd(opts),
		newClearCmd(opts),
		newWatchCmd(opts),
		newSourcesCmd(opts),
	)
	return root
}

// Execute runs the command tree with ctx.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// env holds what every command needs once the config is loaded.
type env struct {
	cfg    *config.AppConfig
	logger *logrus.Logger
	closer io.Closer
	store  *store.Store
}

func (o *rootOptions) loadConfig() (*config.AppConfig, error) {
	if o.configPath == "" {
		cfg, _, err := config.LoadDefault()
		return cfg, err
	}
	return config.Load(o.configPath)
}

// open loads the config, builds the logger and opens the store. When
// quiet is set and no log file is configured, logs are dropped so they do
// not draw over the terminal UI.
func (o *rootOptions) open(cmd *cobra.Command, quiet bool) (*env, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	logger, closer, err := logging.New(cfg.Log, o.verbose)
	if err != nil {
		return nil, err
	}
	if cfg.Log.File == "" {
		if quiet {
			logger.SetOutput(io.Discard)
		} else {
			logger.SetOutput(cmd.ErrOrStderr())
		}
	}
	st, err := store.Open(cmd.Context(), cfg, logger)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}
	return &env{cfg: cfg, logger: logger, closer: closer, store: st}, nil
}

func (e *env) Close() error {
	return errors.Join(e.store.Close(), e.closer.Close())
}

// newSession builds the retriever and responder around the store. A
// missing LLM key does not stop the session; every answer then reports it.
func (e *env) newSession(style string) (*session.Session, error) {
	ret, err := retriever.New(e.cfg.Retriever, e.cfg.Sources, e.logger)
	if err != nil {
		return nil, err
	}
	client, err := llm.NewClient(e.cfg.LLM)
	if err != nil {
		e.logger.WithError(err).Warn("LLM client unavailable")
		client = llm.Unavailable(err)
	}
	cfg := e.cfg.Session
	if style != "" {
		cfg.Style = style
	}
	return session.New(ret, e.store, responder.New(client, e.logger), cfg, e.logger)
}

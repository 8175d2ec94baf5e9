// Package cli is the chatline command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"chatline/app"
	"chatline/ui"
)

type globalOptions struct {
	dataDir string
	debug   bool
}

// NewRootCmd builds the command tree. Running it without a subcommand starts
// the TUI.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "chatline",
		Short:         "Terminal client for the chat service",
		Long:          "chatline signs in to the chat service and keeps conversations, live messages and unread counts in sync from the terminal.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd, opts)
		},
	}
	root.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "directory for config.json and the log file (default: per-user config dir)")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "log at debug level")

	root.AddCommand(
		newTUICmd(opts),
		newLoginCmd(opts),
		newConversationsCmd(opts),
		newMessagesCmd(opts),
		newCountsCmd(opts),
		newSendCmd(opts),
		newTailCmd(opts),
		newWatchCountsCmd(opts),
		newProfileCmd(opts),
		newConfigCmd(opts),
	)
	return root
}

// Execute runs the command tree against os.Args.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

func newTUICmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Start the interactive terminal client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd, opts)
		},
	}
}

func runTUI(cmd *cobra.Command, opts *globalOptions) error {
	if !isTerminal(os.Stdout) || !isTerminal(os.Stdin) {
		return runListConversations(cmd, opts, listOptions{})
	}

	a, err := openApp(opts, false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if _, err := a.Authenticate(ctx); err != nil && !errors.Is(err, app.ErrNoCredentials) {
		a.Logger.Infow("automatic sign-in failed, showing login", "error", err)
	}
	return ui.Run(ctx, a)
}

// openApp loads config and builds the client. Commands other than the TUI
// log to stderr when --debug is set.
func openApp(opts *globalOptions, logToStderr bool) (*app.App, error) {
	a, err := app.Open(app.Options{
		DataDir:     opts.dataDir,
		Debug:       opts.debug,
		LogToStderr: logToStderr && opts.debug,
	})
	if err != nil {
		return nil, fmt.Errorf("startup failed: %w", err)
	}
	return a, nil
}

// signedIn opens the app and authenticates from the environment.
func signedIn(cmd *cobra.Command, opts *globalOptions) (*app.App, error) {
	a, err := openApp(opts, true)
	if err != nil {
		return nil, err
	}
	if _, err := a.Authenticate(cmd.Context()); err != nil {
		a.Close()
		return nil, fmt.Errorf("sign in: %w", err)
	}
	return a, nil
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

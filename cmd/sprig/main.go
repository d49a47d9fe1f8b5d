// cmd/sprig/main.go
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"sprig/internal/config"
	"sprig/internal/errors"
	"sprig/internal/logging"
	"sprig/internal/middleware"
	"sprig/internal/session"
	"sprig/internal/worktree"

	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	ErrIncorrectOperands = errors.Validation("Incorrect operands.")
	ErrNoCommand         = errors.Validation("Please enter a command.")
	ErrUnknownCommand    = errors.Validation("No command with that name exists.")
)

// app carries the global flags and collaborators shared by every command.
type app struct {
	fs       afero.Fs
	clock    func() time.Time
	dir      string
	logLevel string
	noColor  bool
	logger   *logging.Logger
	out      io.Writer
}

func (a *app) log() *logging.Logger {
	if a.logger == nil {
		return logging.Nop()
	}
	return a.logger
}

// setup builds the logger and color settings from the configuration of the
// enclosing repository, if any, and the global flags.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	base := a.dir
	if root, err := worktree.FindRoot(a.fs, a.dir); err == nil {
		base = root
	}
	cfg, err := config.Load(a.fs, filepath.Join(base, worktree.MetaDir))
	if err != nil {
		if errors.IsUser(err) {
			return err
		}
		cfg = config.Default()
	}

	level := cfg.LogLevel
	if a.logLevel != "" {
		level = a.logLevel
	}
	if a.logger, err = logging.NewLogger(level); err != nil {
		return ErrIncorrectOperands
	}
	if a.noColor || !cfg.Color {
		color.NoColor = true
	}
	a.out = cmd.OutOrStdout()
	return nil
}

func (a *app) options() session.Options {
	return session.Options{FS: a.fs, Logger: a.log(), Clock: a.clock}
}

// withSession opens the repository, runs fn and persists the Repository
// only if fn succeeded.
func (a *app) withSession(fn func(s *session.Session) error) error {
	s, err := session.Open(a.dir, a.options())
	if err != nil {
		return err
	}
	defer s.Close()

	if err := fn(s); err != nil {
		return err
	}
	return s.Save()
}

// readSession opens the repository for a command that never changes it.
func (a *app) readSession(fn func(s *session.Session) error) error {
	s, err := session.Open(a.dir, a.options())
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

// handle wraps a command body with the standard middleware.
func (a *app) handle(h middleware.Handler) func(*cobra.Command, []string) error {
	return middleware.RunE(middleware.Chain(h,
		middleware.Recover(a.log),
		middleware.Logger(a.log),
		middleware.OpID,
	))
}

// exactArgs rejects any other operand count as incorrect operands.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return ErrIncorrectOperands
		}
		return nil
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "sprig",
		Short: "Sprig is a small single-user version control system",
		Long: `Sprig keeps content-addressed snapshots of a working tree, with branches,
a staging area and three-way merges.`,
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return ErrUnknownCommand
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return ErrNoCommand
		},
	}

	root.PersistentFlags().StringVarP(&a.dir, "dir", "C", ".", "repository directory")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&a.noColor, "no-color", false, "disable colored output")
	root.SetFlagErrorFunc(func(*cobra.Command, error) error { return ErrIncorrectOperands })
	root.CompletionOptions.DisableDefaultCmd = true

	addCommands(root, a)
	return root
}

// run executes one command line and returns the process exit code. User
// errors are reported on out and exit 0; anything else exits 1.
func run(ctx context.Context, args []string, fs afero.Fs, out, errOut io.Writer) int {
	a := &app{fs: fs, clock: time.Now, out: out}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(errOut)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	if strings.HasPrefix(err.Error(), "unknown command") {
		err = ErrUnknownCommand
	}
	if errors.IsUser(err) {
		fmt.Fprintln(out, err.Error())
		return 0
	}
	color.New(color.FgRed).Fprintf(errOut, "error: %v\n", err)
	return 1
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], afero.NewOsFs(), os.Stdout, os.Stderr))
}

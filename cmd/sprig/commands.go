package main

import (
	"context"
	"fmt"
	"strings"

	"sprig/internal/errors"
	"sprig/internal/session"
	"sprig/internal/workspace"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func addCommands(root *cobra.Command, a *app) {
	root.AddCommand(
		&cobra.Command{
			Use:   "init",
			Short: "Create a new repository in the current directory",
			Args:  exactArgs(0),
			RunE: a.handle(func(ctx context.Context, cmd *cobra.Command, args []string) error {
				s, err := session.Init(a.dir, a.options())
				if err != nil {
					return err
				}
				return s.Close()
			}),
		},
		&cobra.Command{
			Use:   "add <file>",
			Short: "Stage the current content of a file",
			Args:  exactArgs(1),
			RunE: a.handle(func(ctx context.Context, cmd *cobra.Command, args []string) error {
				return a.withSession(func(s *session.Session) error {
					return s.Workspace.Add(args[0])
				})
			}),
		},
		&cobra.Command{
			Use:   "commit <message>",
			Short: "Record the staged changes as a new commit",
			Args:  exactArgs(1),
			RunE: a.handle(func(ctx context.Context, cmd *cobra.Command, args []string) error {
				return a.withSession(func(s *session.Session) error {
					_, err := s.Workspace.Commit(args[0])
					return err
				})
			}),
		},
		&cobra.Command{
			Use:   "rm <file>",
			Short: "Unstage a file, or stage its removal",
			Args:  exactArgs(1),
			RunE: a.handle(func(ctx context.Context, cmd *cobra.Command, args []string) error {
				return a.withSession(func(s *session.Session) error {
					return s.Workspace.Remove(args[0])
				})
			}),
		},
		&cobra.Command{
			Use:   "log",
			Short: "Show the first-parent history of the current branch",
			Args:  exactArgs(0),
			RunE: a.handle(func(ctx context.Context, cmd *cobra.Command, args []string) error {
				return a.readSession(func(s *session.Session) error {
					log, err := s.Workspace.Log()
					if err != nil {
						return err
					}
					for _, c := range log {
						fmt.Fprintln(a.out, c.Format())
					}
					return nil
				})
			}),
		},
		&cobra.Command{
			Use:   "global-log",
			Short: "Show every commit ever made",
			Args:  exactArgs(0),
			RunE: a.handle(func(ctx context.Context, cmd *cobra.Command, args []string) error {
				return a.readSession(func(s *session.Session) error {
					for _, c := range s.Workspace.GlobalLog() {
						fmt.Fprintln(a.out, c.Format())
					}
					return nil
				})
			}),
		},
		&cobra.Command{
			Use:   "find <message>",
			Short: "Print the ids of commits with the given message",
			Args:  exactArgs(1),
			RunE: a.handle(func(ctx context.Context, cmd *cobra.Command, args []string) error {
				return a.readSession(func(s *session.Session) error {
					ids, err := s.Workspace.Find(args[0])
					if err != nil {
						return err
					}
					for _, id := range ids {
						fmt.Fprintln(a.out, id)
					}
					return nil
				})
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show branches, staged files and working tree changes",
			Args:  exactArgs(0),
			RunE: a.handle(func(ctx context.Context, cmd *cobra.Command, args []string) error {
				return a.readSession(func(s *session.Session) error {
					st, err := s.Workspace.Status()
					if err != nil {
						return err
					}
					printStatus(a, st)
					return nil
				})
			}),
		},
		&cobra.Command{
			Use:   "branch <name>",
			Short: "Create a branch at the current head",
			Args:  exactArgs(1),
			RunE: a.handle(func(ctx context.Context, cmd *cobra.Command, args []string) error {
				return a.withSession(func(s *session.Session) error {
					return s.Workspace.Branch(args[0])
				})
			}),
		},
		&cobra.Command{
			Use:   "rm-branch <name>",
			Short: "Delete a branch pointer",
			Args:  exactArgs(1),
			RunE: a.handle(func(ctx context.Context, cmd *cobra.Command, args []string) error {
				return a.withSession(func(s *session.Session) error {
					return s.Workspace.RemoveBranch(args[0])
				})
			}),
		},
		&cobra.Command{
			Use:   "checkout <branch> | -- <file> | <commit-id> -- <file>",
			Short: "Switch branches or restore a file",
			RunE: a.handle(func(ctx context.Context, cmd *cobra.Command, args []string) error {
				dash := cmd.ArgsLenAtDash()
				return a.withSession(func(s *session.Session) error {
					switch {
					case dash < 0 && len(args) == 1:
						return s.Workspace.CheckoutBranch(args[0])
					case dash == 0 && len(args) == 1:
						return s.Workspace.CheckoutFile(args[0])
					case dash == 1 && len(args) == 2:
						return s.Workspace.CheckoutFileAt(args[0], args[1])
					}
					return ErrIncorrectOperands
				})
			}),
		},
		&cobra.Command{
			Use:   "reset <commit-id>",
			Short: "Move the current branch to a commit and check it out",
			Args:  exactArgs(1),
			RunE: a.handle(func(ctx context.Context, cmd *cobra.Command, args []string) error {
				return a.withSession(func(s *session.Session) error {
					return s.Workspace.Reset(args[0])
				})
			}),
		},
		&cobra.Command{
			Use:   "merge <branch>",
			Short: "Merge a branch into the current branch",
			Args:  exactArgs(1),
			RunE: a.handle(func(ctx context.Context, cmd *cobra.Command, args []string) error {
				return a.withSession(func(s *session.Session) error {
					res, err := s.Workspace.Merge(args[0])
					if err != nil {
						return err
					}
					printMerge(a, res)
					return nil
				})
			}),
		},
		&cobra.Command{
			Use:   "verify",
			Short: "Check every stored blob against its digest",
			Args:  exactArgs(0),
			RunE: a.handle(func(ctx context.Context, cmd *cobra.Command, args []string) error {
				return a.readSession(func(s *session.Session) error {
					bad, err := s.Safe.Verify()
					if err != nil {
						return err
					}
					if len(bad) == 0 {
						fmt.Fprintln(a.out, "All blobs verified.")
						return nil
					}
					for _, h := range bad {
						color.New(color.FgRed).Fprintln(a.out, h)
					}
					return errors.Internal("object store is damaged", fmt.Errorf("%d blobs failed verification", len(bad)))
				})
			}),
		},
	)
}

func printStatus(a *app, st *workspace.Status) {
	header := color.New(color.Bold)
	active := color.New(color.FgGreen)
	for _, line := range strings.SplitAfter(st.String(), "\n") {
		switch {
		case strings.HasPrefix(line, "=== "):
			header.Fprint(a.out, line)
		case line == "*"+st.Active+"\n":
			active.Fprint(a.out, line)
		default:
			fmt.Fprint(a.out, line)
		}
	}
}

func printMerge(a *app, res *workspace.MergeResult) {
	for _, msg := range res.Messages() {
		if res.Conflicted {
			color.New(color.FgRed).Fprintln(a.out, msg)
			continue
		}
		fmt.Fprintln(a.out, msg)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/karteji/internal/api/dto"
	"github.com/spec-kit/karteji/internal/config"
	"github.com/spec-kit/karteji/internal/directory"
	"github.com/spec-kit/karteji/internal/docstore"
	"github.com/spec-kit/karteji/internal/domain"
	"github.com/spec-kit/karteji/internal/observability"
	"github.com/spec-kit/karteji/internal/persistence"
	"github.com/spec-kit/karteji/internal/repository"
)

const loadTimeout = 15 * time.Second

// env is what commands run against; tests swap the store opener.
type env struct {
	out       io.Writer
	openStore func(ctx context.Context) (docstore.Store, func(), error)
	migrate   func(ctx context.Context) ([]string, error)
}

func defaultEnv() *env {
	return &env{
		out: os.Stdout,
		openStore: func(ctx context.Context) (docstore.Store, func(), error) {
			cfg, logger, err := loadConfig()
			if err != nil {
				return nil, nil, err
			}
			backend, err := persistence.Open(ctx, cfg, logger)
			if err != nil {
				return nil, nil, err
			}
			return backend.Store, func() { backend.Close(context.Background()) }, nil
		},
		migrate: func(ctx context.Context) ([]string, error) {
			cfg, logger, err := loadConfig()
			if err != nil {
				return nil, err
			}
			pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
			if err != nil {
				return nil, err
			}
			defer pg.Close()
			return persistence.RunMigrations(ctx, pg.Pool, cfg.Postgres.MigrationsDir, logger)
		},
	}
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	cfg.Logger.Level = "warn"
	logger, err := observability.NewLogger(cfg.Logger, cfg.App.Env)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newRootCommand(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:           "memberctl",
		Short:         "Operator tooling for the KARTEJI member directory",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newMigrateCommand(e))
	root.AddCommand(newMembersCommand(e))
	return root
}

func newMigrateCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending Postgres migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			applied, err := e.migrate(cmd.Context())
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(e.out, "schema is up to date")
				return nil
			}
			for _, name := range applied {
				fmt.Fprintf(e.out, "applied %s\n", name)
			}
			return nil
		},
	}
}

func newMembersCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "members",
		Short: "Inspect and repair member records",
	}
	cmd.AddCommand(newMembersListCommand(e))
	cmd.AddCommand(newMembersPendingCommand(e))
	cmd.AddCommand(newMembersQuarantinedCommand(e))
	cmd.AddCommand(newMembersSetCommand(e))
	return cmd
}

func newMembersListCommand(e *env) *cobra.Command {
	var search, role, status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List members in rank order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			wantRole, wantStatus, err := parseFlags(role, status)
			if err != nil {
				return err
			}
			return e.withSnapshot(cmd.Context(), func(snap *directory.Snapshot) error {
				members := snap.Filter(search, wantRole)
				if wantStatus != "" {
					kept := members[:0]
					for _, m := range members {
						if m.Status == wantStatus {
							kept = append(kept, m)
						}
					}
					members = kept
				}
				return printMembers(e.out, members)
			})
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "case-insensitive name substring")
	cmd.Flags().StringVar(&role, "role", "", "exact role, stored value or alias such as vice_chairman")
	cmd.Flags().StringVar(&status, "status", "", "pending, active or inactive")
	return cmd
}

func newMembersPendingCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List members awaiting verification",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.withSnapshot(cmd.Context(), func(snap *directory.Snapshot) error {
				return printMembers(e.out, snap.Pending())
			})
		},
	}
}

func newMembersQuarantinedCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "quarantined",
		Short: "List malformed member records excluded from the directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return e.withSnapshot(cmd.Context(), func(snap *directory.Snapshot) error {
				tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tPROBLEM")
				for _, q := range snap.Quarantined() {
					fmt.Fprintf(tw, "%s\t%v\n", q.ID, q.Err)
				}
				return tw.Flush()
			})
		},
	}
}

// newMembersSetCommand writes role and status directly, skipping the manager policy.
// It exists to repair records, e.g. a second bootstrap Super Admin.
func newMembersSetCommand(e *env) *cobra.Command {
	var role, status string
	cmd := &cobra.Command{
		Use:   "set <member-id>",
		Short: "Overwrite a member's role and/or status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if role == "" && status == "" {
				return errors.New("--role or --status is required")
			}
			wantRole, wantStatus, err := parseFlags(role, status)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), loadTimeout)
			defer cancel()
			store, closeStore, err := e.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			repo := repository.NewMemberRepository(store)
			rec, err := store.GetOne(ctx, repository.MembersCollection, args[0])
			if err != nil {
				return fmt.Errorf("load member %s: %w", args[0], err)
			}
			current, _ := repository.DecodeMember(rec)
			newRole, newStatus := current.Role, current.Status
			if wantRole != "" {
				newRole = wantRole
			}
			if wantStatus != "" {
				newStatus = wantStatus
			}
			if !newRole.Valid() || !newStatus.Valid() {
				return errors.New("stored record is malformed; pass both --role and --status")
			}
			if err := repo.UpdateRoleStatus(ctx, args[0], newRole, newStatus); err != nil {
				return err
			}
			fmt.Fprintf(e.out, "%s: role=%s status=%s\n", args[0], newRole, newStatus)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "new role, stored value or alias such as treasurer")
	cmd.Flags().StringVar(&status, "status", "", "new status")
	return cmd
}

func (e *env) withSnapshot(ctx context.Context, fn func(*directory.Snapshot) error) error {
	ctx, cancel := context.WithTimeout(ctx, loadTimeout)
	defer cancel()
	store, closeStore, err := e.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	dir := directory.New(store, zap.NewNop(), nil)
	if err := dir.Start(ctx); err != nil {
		return err
	}
	defer dir.Stop()
	return fn(dir.Current())
}

// parseFlags accepts role aliases; status must be one of the stored values.
func parseFlags(role, status string) (domain.Role, domain.MemberStatus, error) {
	var parsed domain.Role
	if role != "" {
		r, ok := domain.ParseRole(role)
		if !ok {
			return "", "", fmt.Errorf("unknown role %q", role)
		}
		parsed = r
	}
	if status != "" {
		if err := dto.Validator().Var(status, "member_status"); err != nil {
			return "", "", fmt.Errorf("unknown status %q", status)
		}
	}
	return parsed, domain.MemberStatus(status), nil
}

func printMembers(w io.Writer, members []domain.Member) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tROLE\tSTATUS\tJOINED")
	for _, m := range members {
		joined := "-"
		if !m.JoinedAt.IsZero() {
			joined = m.JoinedAt.Format("2006-01-02")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", m.ID, strings.TrimSpace(m.Name), m.Role, m.Status, joined)
	}
	return tw.Flush()
}

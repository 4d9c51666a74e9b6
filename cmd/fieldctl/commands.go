package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"fieldsettings/db"
	appctx "fieldsettings/internal/core/context"
	"fieldsettings/internal/domain/auth"
	"fieldsettings/internal/domain/fieldsettings"
	"fieldsettings/internal/infrastructure/storage/postgres"
)

var errInstituteRequired = errors.New("--institute is required")

func newMigrateCmd(e *env) *cobra.Command {
	var status bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, _, _, err := e.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			out := cmd.OutOrStdout()
			if status {
				statuses, err := postgres.MigrationStatus(cmd.Context(), pool, db.Migrations)
				if err != nil {
					return err
				}
				for _, st := range statuses {
					applied := "-"
					if !st.AppliedAt.IsZero() {
						applied = st.AppliedAt.Format("2006-01-02 15:04:05")
					}
					fmt.Fprintf(out, "%05d  %-8s %s  %s\n", st.Source.Version, st.State, applied, st.Source.Path)
				}
				return nil
			}

			applied, err := postgres.Migrate(cmd.Context(), pool, db.Migrations)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "applied %d migration(s)\n", applied)
			return nil
		},
	}
	cmd.Flags().BoolVar(&status, "status", false, "list migrations and whether they are applied")
	return cmd
}

func newExportCmd(e *env) *cobra.Command {
	var institute string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Print an institute's stored settings as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if institute == "" {
				return errInstituteRequired
			}
			pool, store, _, err := e.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			snap, err := store.Load(cmd.Context(), institute)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), snap)
		},
	}
	cmd.Flags().StringVar(&institute, "institute", "", "institute id")
	return cmd
}

func newColumnsCmd(e *env) *cobra.Command {
	var institute, location string
	cmd := &cobra.Command{
		Use:   "columns",
		Short: "Print the columns an institute shows at a location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if institute == "" {
				return errInstituteRequired
			}
			loc, err := fieldsettings.ParseLocation(location)
			if err != nil {
				return err
			}
			pool, store, _, err := e.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			snap, err := store.Load(cmd.Context(), institute)
			if err != nil {
				return err
			}
			reg, err := fieldsettings.NewRegistryFromSnapshot(snap)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), reg.Columns(loc))
		},
	}
	cmd.Flags().StringVar(&institute, "institute", "", "institute id")
	cmd.Flags().StringVar(&location, "location", string(fieldsettings.LocationLearnersList), "display location")
	return cmd
}

func newHistoryCmd(e *env) *cobra.Command {
	var institute string
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List saved versions of an institute's settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if institute == "" {
				return errInstituteRequired
			}
			pool, _, history, err := e.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			entries, err := history.List(cmd.Context(), institute, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, h := range entries {
				fmt.Fprintf(out, "v%-5d %s  %-36s %s\n",
					h.Version, h.CreatedAt.Format("2006-01-02 15:04:05"), h.UserID, h.CompressionAlgo)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&institute, "institute", "", "institute id")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of versions to list")
	return cmd
}

func newPruneHistoryCmd(e *env) *cobra.Command {
	var institute string
	var keep int
	cmd := &cobra.Command{
		Use:   "prune-history",
		Short: "Delete all but the newest saved versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if institute == "" {
				return errInstituteRequired
			}
			pool, _, history, err := e.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			deleted, err := history.Prune(cmd.Context(), institute, keep)
			if err != nil {
				return err
			}
			e.log.WithInstitute(institute).Infow("history pruned", "kept", keep, "deleted", deleted)
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d version(s)\n", deleted)
			return nil
		},
	}
	cmd.Flags().StringVar(&institute, "institute", "", "institute id")
	cmd.Flags().IntVar(&keep, "keep", 50, "number of newest versions to keep")
	return cmd
}

func newTokenCmd(e *env) *cobra.Command {
	var user appctx.UserContext
	var roles string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token for local testing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if roles != "" {
				user.Roles = strings.Split(roles, ",")
			}
			jwtConfig := auth.DefaultJWTConfig(e.cfg.JWTSecret)
			jwtConfig.Issuer = e.cfg.JWTIssuer
			jwtConfig.AccessTokenTTL = e.cfg.AccessTokenTTL

			token, expires, err := auth.NewJWTService(jwtConfig).GenerateAccessToken(user)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expires.Format("2006-01-02 15:04:05 MST"))
			return nil
		},
	}
	cmd.Flags().StringVar(&user.UserID, "user", "", "user id")
	cmd.Flags().StringVar(&user.InstituteID, "institute", "", "institute id")
	cmd.Flags().StringVar(&user.Email, "email", "", "user email")
	cmd.Flags().StringVar(&roles, "roles", appctx.RoleFieldAdmin, "comma separated roles")
	cmd.Flags().BoolVar(&user.IsAdmin, "admin", false, "grant cross-institute access")
	return cmd
}

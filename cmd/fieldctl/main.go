// Command fieldctl administers stored field settings.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"fieldsettings/internal/config"
	"fieldsettings/internal/infrastructure/storage/postgres"
	"fieldsettings/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env is what every command needs, built lazily so that commands without
// database access stay usable offline.
type env struct {
	cfg *config.Config
	log *logger.Logger
}

func newRootCmd() *cobra.Command {
	e := &env{}
	var envFile string

	root := &cobra.Command{
		Use:           "fieldctl",
		Short:         "Manage institute field settings",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var files []string
			if envFile != "" {
				files = append(files, envFile)
			}
			cfg, err := config.Load(files...)
			if err != nil {
				return err
			}
			log, err := logger.New(logger.Config{Level: cfg.LogLevel, Development: cfg.IsDevelopment()})
			if err != nil {
				return err
			}
			e.cfg, e.log = cfg, log
			cmd.SetContext(logger.WithLogger(cmd.Context(), log))
			return nil
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load (default .env)")

	root.AddCommand(
		newMigrateCmd(e),
		newExportCmd(e),
		newColumnsCmd(e),
		newHistoryCmd(e),
		newPruneHistoryCmd(e),
		newTokenCmd(e),
	)
	return root
}

// connect opens the database and the settings store on top of it.
func (e *env) connect(ctx context.Context) (*postgres.Pool, *postgres.SettingsStore, *postgres.History, error) {
	poolCfg := postgres.DefaultPoolConfig(e.cfg.DatabaseURL)
	poolCfg.MaxConns = e.cfg.DBMaxConns
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return nil, nil, nil, err
	}
	txManager := postgres.NewTxManager(pool)
	history, err := postgres.NewHistory(txManager)
	if err != nil {
		pool.Close()
		return nil, nil, nil, err
	}
	return pool, postgres.NewSettingsStore(txManager, history), history, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stratadb/strata/pkg/command"
	"github.com/stratadb/strata/pkg/config"
	"github.com/stratadb/strata/pkg/engine"
	"github.com/stratadb/strata/pkg/ids"
	"github.com/stratadb/strata/pkg/log"
	"github.com/stratadb/strata/pkg/value"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "strata",
	Short: "Strata - an embeddable, branch-scoped multi-primitive database",
	Long: `Strata is a library-first database engine combining key-value,
JSON documents, an append-only event log, CAS state cells, and vector
collections in one ACID, branch-scoped store.

This binary is a thin exerciser over the engine, not a server: every
subcommand opens the data directory, performs one operation, and
closes it again.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"strata version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("data-dir", "./strata-data", "Database data directory")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(compactCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

func openDatabase(cmd *cobra.Command) (*engine.Database, error) {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	return engine.Open(config.Default(dataDir))
}

var openCmd = &cobra.Command{
	Use:   "open",
	Short: "Open the data directory, run recovery, and exit",
	Long: `Open runs WAL recovery and snapshot restoration on the data
directory the same way a long-lived process would, then closes the
database immediately. Useful for validating that a directory recovers
cleanly without holding the open-database registry lock.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase(cmd)
		if err != nil {
			return fmt.Errorf("open: %w", err)
		}
		defer db.Close()

		fmt.Println("database opened and recovered successfully")
		return nil
	},
}

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print commit, WAL, and checkpoint counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase(cmd)
		if err != nil {
			return fmt.Errorf("open: %w", err)
		}
		defer db.Close()

		stats, err := db.Stats()
		if err != nil {
			return fmt.Errorf("stats: %w", err)
		}

		fmt.Printf("committed count:      %d\n", stats.CommittedCount)
		fmt.Printf("current version:      %d\n", stats.CurrentVersion)
		fmt.Printf("wal bytes:            %d\n", stats.WalBytes)
		fmt.Printf("wal segments:         %d\n", stats.WalSegments)
		fmt.Printf("active checkpoint id: %d\n", stats.ActiveCheckpointID)
		return nil
	},
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Round-trip a throwaway key through the kv primitive",
	Long: `Ping opens the database, writes a throwaway key under the
"cli"/"ping"/"strata-cli" namespace on the default branch, reads it
back, and deletes it.
A successful run confirms the WAL, store, and txn manager are all
wired and healthy.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase(cmd)
		if err != nil {
			return fmt.Errorf("open: %w", err)
		}
		defer db.Close()

		ns := ids.NewNamespace("cli", "ping", "strata-cli", engine.DefaultBranch)
		key := []byte("probe")

		if _, err := db.Execute(ns, engine.DefaultBranch, command.KvPut{
			Key:   key,
			Value: value.String("pong"),
		}); err != nil {
			return fmt.Errorf("put: %w", err)
		}

		out, err := db.Execute(ns, engine.DefaultBranch, command.KvGet{Key: key})
		if err != nil {
			return fmt.Errorf("get: %w", err)
		}
		got, ok := out.(command.MaybeVersionedOutput)
		if !ok || !got.Found {
			return fmt.Errorf("probe key missing after put")
		}

		if _, err := db.Execute(ns, engine.DefaultBranch, command.KvDelete{Key: key}); err != nil {
			return fmt.Errorf("delete: %w", err)
		}

		fmt.Println("pong")
		return nil
	},
}

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Run an out-of-cycle checkpoint and retire covered WAL segments",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDatabase(cmd)
		if err != nil {
			return fmt.Errorf("open: %w", err)
		}
		defer db.Close()

		if err := db.Compact(); err != nil {
			return fmt.Errorf("compact: %w", err)
		}

		fmt.Println("checkpoint captured, covered WAL segments retired")
		return nil
	},
}

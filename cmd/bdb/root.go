package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/andreyvit/bdb"
)

var (
	db *bdb.DB

	// RootCmd is the bdb command; every subcommand operates on one database.
	RootCmd = &cobra.Command{
		Use:   "bdb",
		Short: "embedded key-value store",
		Long: `bdb reads and writes a single-file database addressed with dot paths,
e.g. "user.name" or "users[0].tags".

Values are given and printed as YAML, so JSON works too.`,
		SilenceUsage:       true,
		PersistentPreRunE:  openDatabase,
		PersistentPostRunE: closeDatabase,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	key := "file"
	RootCmd.PersistentFlags().StringP(key, "f", bdb.DefaultPath, "database file")
	key = "no-cache"
	RootCmd.PersistentFlags().Bool(key, false, "reread the file on every operation")
	key = "bolt"
	RootCmd.PersistentFlags().Bool(key, false, "the file is a Bolt database")
	key = "verbose"
	RootCmd.PersistentFlags().BoolP(key, "v", false, "log every save")

	RootCmd.AddCommand(getCmd, setCmd, hasCmd, deleteCmd, addCmd, subtractCmd, pushCmd, pullCmd, allCmd, keysCmd, clearCmd, statsCmd, benchCmd)
}

// Execute runs the command line and exits with status 1 on failure.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func initConfig() {
	_ = godotenv.Load(".env")

	viper.SetEnvPrefix("bdb")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	}))
}

func dbOptions() bdb.Options {
	opt := bdb.Options{
		Path:    viper.GetString("file"),
		NoCache: viper.GetBool("no-cache"),
		Verbose: viper.GetBool("verbose"),
		Logger:  newLogger(viper.GetBool("verbose")),
	}
	if viper.GetBool("bolt") {
		opt.Storage = bdb.BoltStorage(opt.Path)
	}
	return opt
}

func openDatabase(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if cmd.Annotations["db"] == "none" {
		return nil
	}
	var err error
	db, err = bdb.Open(dbOptions())
	if err != nil {
		return fmt.Errorf("cannot open database: %w", err)
	}
	return nil
}

func closeDatabase(_ *cobra.Command, _ []string) error {
	if db == nil {
		return nil
	}
	err := db.Close()
	db = nil
	return err
}

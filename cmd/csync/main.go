package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"csync/internal/app"
	"csync/internal/config"
	"csync/internal/csync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file named by the application defaults.
func loadConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp creates a CSyncApp for cfg. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "sync", "watch").
func newApp(ctx context.Context, cfg *config.Config, operation string) (*app.CSyncApp, error) {
	a, err := app.NewCSyncApp(ctx, cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// closeApp closes a and reports a failed close, which can mean a lost snapshot.
func closeApp(a *app.CSyncApp) {
	if err := a.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
}

// syncOptions applies the sync flags on top of cfg.
func syncOptions(cmd *cobra.Command, cfg *config.Config) csync.SyncOptions {
	opts := csync.SyncOptions{WriteDBToFile: cfg.Sync.WriteDBToFile}
	if fileToDBOnly, _ := cmd.Flags().GetBool("file-to-db-only"); fileToDBOnly {
		opts.WriteDBToFile = false
	}
	if skip, _ := cmd.Flags().GetBool("skip-malformed"); skip {
		cfg.Sync.SkipMalformed = true
	}
	return opts
}

var rootCmd = &cobra.Command{
	Use:          "csync",
	Short:        "Keep a directory of content files in sync with the CMS database",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init CONTENT_DIR",
	Short: "Initialize configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		contentDir, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("resolving content dir: %w", err)
		}

		instanceID := uuid.New().String()
		cfg := config.NewConfig(instanceID, defaults["base_dir"], contentDir)
		if dbPath, _ := cmd.Flags().GetString("db"); dbPath != "" {
			cfg.Database.Path = dbPath
		}

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Instance ID: %s\n", instanceID)
		fmt.Printf("Content Dir: %s\n", contentDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Instance ID: %s\n", cfg.InstanceID)
		fmt.Printf("Base Dir:    %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:     %s\n", cfg.LogDir)
		fmt.Printf("Content Dir: %s\n", cfg.ContentDir)
		fmt.Printf("Database:    %s\n", cfg.Database.Type)
		snap := cfg.Snapshot.Type
		if snap == "" {
			snap = "disabled"
		}
		fmt.Printf("Snapshots:   %s\n", snap)
		return nil
	},
}

// migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the index tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		withCMS, _ := cmd.Flags().GetBool("with-cms")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := app.Migrate(cfg, withCMS); err != nil {
			return fmt.Errorf("migrating: %w", err)
		}
		fmt.Println("Database is up to date.")
		return nil
	},
}

// sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile content files with the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		opts := syncOptions(cmd, cfg)

		a, err := newApp(cmd.Context(), cfg, app.OpSync)
		if err != nil {
			return err
		}
		defer closeApp(a)

		report, err := a.Sync(cmd.Context(), opts)
		if report != nil {
			printCounts(report.Counts)
		}
		if err != nil {
			return fmt.Errorf("sync failed: %w", err)
		}
		return nil
	},
}

func printCounts(c csync.Counts) {
	fmt.Printf("created %d, updated %d, renamed %d, written back %d, unchanged %d, deleted %d, skipped %d\n",
		c.Created, c.Updated, c.Renamed, c.WrittenBack, c.Unchanged, c.Deleted, c.Skipped)
}

// status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show what sync would do",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), cfg, app.OpStatus)
		if err != nil {
			return err
		}
		defer closeApp(a)

		plan, err := a.Status(cmd.Context())
		if err != nil {
			return err
		}

		all, _ := cmd.Flags().GetBool("all")
		width := terminalWidth()
		shown := 0
		for _, e := range plan.Entries {
			if e.State == csync.PlanFresh && !all {
				continue
			}
			line := fmt.Sprintf("%s %s", e.State.Indicator(), e.Path)
			if e.Detail != "" {
				line += "  (" + e.Detail + ")"
			}
			fmt.Println(truncate(line, width))
			shown++
		}
		if shown == 0 {
			fmt.Println("Everything is in sync.")
		}
		return nil
	},
}

// terminalWidth returns stdout's width, or 0 when it is not a terminal.
func terminalWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return 0
	}
	w, _, err := term.GetSize(fd)
	if err != nil {
		return 0
	}
	return w
}

func truncate(s string, width int) string {
	if width <= 0 || len(s) <= width {
		return s
	}
	if width < 4 {
		return s[:width]
	}
	return s[:width-3] + "..."
}

// parse command
var parseCmd = &cobra.Command{
	Use:   "parse FILE",
	Short: "Show the record a content file describes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), cfg, app.OpParse)
		if err != nil {
			return err
		}
		defer closeApp(a)

		c, err := a.Parse(args[0])
		if err != nil {
			return err
		}

		fmt.Printf("class: %s\n", c.Class())
		for _, field := range c.Fields() {
			if field == csync.FieldBody {
				continue
			}
			if v := c.Raw(field); v != nil {
				fmt.Printf("%s: %s\n", field, *v)
			}
		}
		if tags := csync.TagNames(c.Tags()); len(tags) > 0 {
			fmt.Printf("tags: %s\n", strings.Join(tags, ", "))
		}
		if body := c.Raw(csync.FieldBody); body != nil {
			fmt.Printf("body: %d bytes\n", len(*body))
		}
		return nil
	},
}

// watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Sync whenever the content directory changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		opts := syncOptions(cmd, cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, app.OpWatch)
		if err != nil {
			return err
		}
		defer closeApp(a)

		if err := a.Watch(ctx, opts); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View sync run history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), cfg, app.OpHistory)
		if err != nil {
			return err
		}
		defer closeApp(a)

		runs, err := a.History(cmd.Context(), limit)
		if err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Println("No sync runs recorded.")
			return nil
		}

		for _, run := range runs {
			duration := ""
			if run.FinishedAt.Valid {
				d := run.FinishedAt.Time.Sub(run.StartedAt)
				duration = d.Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-6s  %s  %-8s  %-8s  +%d ~%d >%d <%d -%d !%d\n",
				run.ID,
				run.Operation,
				run.StartedAt.Format("2006-01-02 15:04:05"),
				run.Status,
				duration,
				run.Created, run.Updated, run.Renamed, run.WrittenBack, run.Deleted, run.Skipped,
			)
			if run.Error != "" {
				fmt.Printf("      %s\n", run.Error)
			}
		}
		return nil
	},
}

// list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List managed files",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), cfg, app.OpList)
		if err != nil {
			return err
		}
		defer closeApp(a)

		entries, err := a.List(cmd.Context())
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No managed files.")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("%6d  %-5s  %s  %s  %s\n",
				e.ContentID,
				e.Class,
				e.Mtime.Local().Format("2006-01-02 15:04:05"),
				e.Path,
				e.Address,
			)
		}
		return nil
	},
}

// snapshot command
var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Manage database snapshots",
}

var snapshotKeygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Create the key pair used to encrypt snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		passphrase, err := readPassphrase("Passphrase: ")
		if err != nil {
			return err
		}
		confirm, err := readPassphrase("Confirm passphrase: ")
		if err != nil {
			return err
		}
		if passphrase != confirm {
			return fmt.Errorf("passphrases do not match")
		}
		if passphrase == "" {
			return fmt.Errorf("passphrase must not be empty")
		}

		if err := app.Keygen(cfg, passphrase); err != nil {
			return err
		}
		fmt.Printf("Public key:  %s\n", cfg.Snapshot.PublicKeyPath)
		fmt.Printf("Private key: %s\n", cfg.Snapshot.PrivateKeyPath)
		return nil
	},
}

var snapshotRestoreCmd = &cobra.Command{
	Use:   "restore DEST",
	Short: "Download the latest database snapshot to DEST",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		var passphrase string
		if app.SnapshotEncrypted(cfg) {
			passphrase, err = readPassphrase("Passphrase: ")
			if err != nil {
				return err
			}
		}

		if err := app.RestoreSnapshot(cmd.Context(), cfg, args[0], passphrase); err != nil {
			return fmt.Errorf("restoring snapshot: %w", err)
		}
		fmt.Printf("Snapshot restored to %s\n", args[0])
		return nil
	},
}

// readPassphrase prompts on stderr and reads without echo.
func readPassphrase(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("a terminal is required to enter the passphrase")
	}
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configInitCmd.Flags().String("db", "", "Path to an existing CMS database")

	// snapshot subcommands
	snapshotCmd.AddCommand(snapshotKeygenCmd)
	snapshotCmd.AddCommand(snapshotRestoreCmd)

	for _, c := range []*cobra.Command{syncCmd, watchCmd} {
		c.Flags().Bool("file-to-db-only", false, "Never write database changes back to files")
		c.Flags().Bool("skip-malformed", false, "Skip files with malformed headers instead of failing")
	}
	migrateCmd.Flags().Bool("with-cms", false, "Also create the CMS content tables")
	statusCmd.Flags().BoolP("all", "a", false, "Include files that are in sync")
	historyCmd.Flags().IntP("limit", "n", 20, "Maximum number of runs to show")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(snapshotCmd)
}

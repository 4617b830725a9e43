package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"docwatch/internal/app"
	"docwatch/internal/config"
	"docwatch/internal/encryption"
	"docwatch/internal/model"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file, .env and environment overrides.
func loadConfig() (*config.Config, error) {
	paths, err := app.DefaultPaths()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.Load(paths.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp reads the config and creates an App. The caller must defer a.Close().
// operation identifies the CLI command being run (e.g. "run", "reconcile").
func newApp(ctx context.Context, operation string) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewApp(ctx, cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// stdin is shared so consecutive prompts read consecutive lines.
var stdin = bufio.NewReader(os.Stdin)

// readPassphrase prompts on the terminal without echo. When stdin is not a
// terminal it reads one line, so passphrases can be piped in.
func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	line, err := stdin.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

var rootCmd = &cobra.Command{
	Use:          "docwatch",
	Short:        "Watch a folder and keep a searchable catalog of its documents",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		watchDir, _ := cmd.Flags().GetString("watch-dir")

		paths, err := app.DefaultPaths()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		if watchDir == "" {
			watchDir = paths.WatchDir
		}
		if watchDir, err = filepath.Abs(watchDir); err != nil {
			return fmt.Errorf("resolving watch dir: %w", err)
		}

		cfg := config.NewConfig(paths.BaseDir, watchDir)
		if err := config.Init(paths.ConfigFile, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", paths.ConfigFile)
		fmt.Printf("Watch Dir: %s\n", watchDir)
		fmt.Printf("Base Dir:  %s\n", paths.BaseDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Printf("Watch Dir:        %s\n", cfg.WatchDir)
		fmt.Printf("Base Dir:         %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:          %s (%s)\n", cfg.LogDir, cfg.LogLevel)
		fmt.Printf("Catalog:          %s %s\n", cfg.Database.Type, cfg.Database.DataDir)
		fmt.Printf("Artifacts:        %s\n", cfg.Artifacts.Type)
		fmt.Printf("Summarizer:       %s %s\n", cfg.Summarizer.Type, cfg.Summarizer.Model)
		fmt.Printf("Duplicate Policy: %s\n", cfg.Intake.DuplicatePolicy)
		fmt.Printf("Removal Policy:   %s\n", cfg.Catalog.RemovalPolicy)
		fmt.Printf("Reconcile Every:  %s\n", cfg.Reconcile.Interval)
		return nil
	},
}

var configEnvCmd = &cobra.Command{
	Use:   "env",
	Short: "List environment overrides",
	RunE: func(cmd *cobra.Command, args []string) error {
		desc, err := config.EnvDescription()
		if err != nil {
			return err
		}
		fmt.Println(desc)
		return nil
	},
}

var configKeysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage snapshot encryption keys",
}

var configKeysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate the snapshot key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
		if err != nil {
			return err
		}

		pass, err := readPassphrase("Passphrase: ")
		if err != nil {
			return fmt.Errorf("reading passphrase: %w", err)
		}
		confirm, err := readPassphrase("Repeat passphrase: ")
		if err != nil {
			return fmt.Errorf("reading passphrase: %w", err)
		}
		if pass != confirm {
			return errors.New("passphrases do not match")
		}

		if err := enc.Setup(pass); err != nil {
			return err
		}
		fmt.Printf("Public key:  %s\n", cfg.Encryption.PublicKeyPath)
		fmt.Printf("Private key: %s\n", cfg.Encryption.PrivateKeyPath)
		return nil
	},
}

// run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Reconcile, then watch the folder until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, "run")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Run(ctx)
	},
}

// reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Bring the catalog in line with the folder once",
	RunE: func(cmd *cobra.Command, args []string) error {
		full, _ := cmd.Flags().GetBool("full")

		a, err := newApp(cmd.Context(), "reconcile")
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Reconcile(cmd.Context(), full)
		if err != nil {
			return err
		}

		fmt.Printf("Scanned %d file(s) in %s\n", report.Scanned, report.Duration.Round(time.Millisecond))
		for _, outcome := range slices.Sorted(maps.Keys(report.Outcomes)) {
			fmt.Printf("  %-18s %d\n", outcome, report.Outcomes[outcome])
		}
		fmt.Printf("  %-18s %d\n", "repaired", report.Repaired)
		fmt.Printf("  %-18s %d\n", "archived", report.Archived)
		fmt.Printf("  %-18s %d\n", "deleted", report.Deleted)
		fmt.Printf("  %-18s %d\n", "dismissed", report.Dismissed)
		fmt.Printf("  %-18s %d\n", "swept", report.Swept)
		for _, f := range report.Failures {
			fmt.Printf("  failed: %s: %v\n", f.Filename, f.Err)
		}
		if len(report.Failures) > 0 {
			return fmt.Errorf("%d file(s) failed", len(report.Failures))
		}
		return nil
	},
}

// sweep command
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove thumbnails and previews of removed documents",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "sweep")
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.Sweep(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d artifact(s)\n", n)
		return nil
	},
}

// intake command
var intakeCmd = &cobra.Command{
	Use:   "intake PATH",
	Short: "Run one file through the pipeline",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "intake")
		if err != nil {
			return err
		}
		defer a.Close()

		outcome, err := a.Intake(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s\n", filepath.Base(args[0]), outcome)
		return nil
	},
}

// docs command
var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Browse cataloged documents",
}

var docsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active documents, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "docs.list")
		if err != nil {
			return err
		}
		defer a.Close()

		docs, err := a.Documents(cmd.Context())
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			fmt.Println("No documents.")
			return nil
		}
		for _, d := range docs {
			fmt.Printf("%s  %-12s  %-14s  %s\n",
				d.DateAdded.Local().Format("2006-01-02 15:04"),
				d.Category,
				d.Keyword,
				d.Filename,
			)
		}
		return nil
	},
}

var docsShowCmd = &cobra.Command{
	Use:   "show FILENAME",
	Short: "Show one document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "docs.show")
		if err != nil {
			return err
		}
		defer a.Close()

		d, err := a.Document(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("File:      %s\n", d.Filename)
		fmt.Printf("Name:      %s\n", d.CommonName)
		fmt.Printf("Summary:   %s\n", d.Summary)
		fmt.Printf("Keyword:   %s\n", d.Keyword)
		fmt.Printf("Category:  %s\n", d.Category)
		fmt.Printf("Size:      %d\n", d.FileSize)
		fmt.Printf("SHA-256:   %s\n", d.ContentHash)
		fmt.Printf("Thumbnail: %s\n", d.ThumbnailPath)
		fmt.Printf("Preview:   %s\n", d.PreviewPath)
		fmt.Printf("Updated:   %s\n", d.DateAdded.Local().Format("2006-01-02 15:04:05"))
		if d.Archived {
			fmt.Println("Archived:  yes")
		}
		return nil
	},
}

var docsRemoveCmd = &cobra.Command{
	Use:   "remove FILENAME",
	Short: "Delete a document's file and apply the removal policy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "docs.remove")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.RemoveDocument(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Removed %s\n", args[0])
		return nil
	},
}

var docsThumbnailCmd = &cobra.Command{
	Use:   "thumbnail FILENAME",
	Short: "Write a document's thumbnail (or preview) as JPEG",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		preview, _ := cmd.Flags().GetBool("preview")
		output, _ := cmd.Flags().GetString("output")

		a, err := newApp(cmd.Context(), "docs.thumbnail")
		if err != nil {
			return err
		}
		defer a.Close()

		if output == "" || output == "-" {
			return a.WriteArtifact(cmd.Context(), args[0], preview, os.Stdout)
		}

		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("creating %s: %w", output, err)
		}
		if err := a.WriteArtifact(cmd.Context(), args[0], preview, f); err != nil {
			f.Close()
			os.Remove(output)
			return err
		}
		return f.Close()
	},
}

// conflicts command
var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "Review files that collided with cataloged documents",
}

var conflictsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending conflicts, oldest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "conflicts.list")
		if err != nil {
			return err
		}
		defer a.Close()

		conflicts, err := a.Conflicts(cmd.Context())
		if err != nil {
			return err
		}
		if len(conflicts) == 0 {
			fmt.Println("No pending conflicts.")
			return nil
		}
		for _, c := range conflicts {
			fmt.Printf("#%d  %-9s  %s -> %s\n", c.ID, c.Kind, c.NewFilename, c.ExistingFilename)
			if c.DiffSummary != "" {
				fmt.Printf("     %s\n", c.DiffSummary)
			}
		}
		return nil
	},
}

var conflictsResolveCmd = &cobra.Command{
	Use:   "resolve ID ACTION",
	Short: "Resolve a conflict with keep_old, replace or keep_both",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid conflict id %q", args[0])
		}

		a, err := newApp(cmd.Context(), "conflicts.resolve")
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.ResolveConflict(cmd.Context(), id, args[1])
		if err != nil {
			return err
		}
		fmt.Printf("Conflict #%d resolved: %s\n", c.ID, c.ActionTaken)
		if c.ActionTaken == model.ActionKeepBoth {
			fmt.Println("The new file was renamed and will be cataloged on the next pass.")
		}
		return nil
	},
}

// snapshot command
var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Export or restore the catalog",
}

var snapshotCreateCmd = &cobra.Command{
	Use:   "create DEST",
	Short: "Write a consistent, encrypted copy of the catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "snapshot.create")
		if err != nil {
			return err
		}
		defer a.Close()

		encrypted, err := a.CreateSnapshot(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		state := "encrypted"
		if !encrypted {
			state = "plaintext"
		}
		fmt.Printf("Snapshot written to %s (%s)\n", args[0], state)
		return nil
	},
}

var snapshotRestoreCmd = &cobra.Command{
	Use:   "restore SRC",
	Short: "Replace the catalog with a snapshot (docwatch run must be stopped)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		prompt := func() (string, error) { return readPassphrase("Passphrase: ") }
		if err := app.RestoreSnapshot(cmd.Context(), cfg, args[0], prompt); err != nil {
			return err
		}
		fmt.Printf("Catalog restored from %s\n", args[0])
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().String("watch-dir", "", "Directory to watch (default: $DOCWATCH_WATCH_DIR or the current directory)")
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configEnvCmd)
	configCmd.AddCommand(configKeysCmd)
	configKeysCmd.AddCommand(configKeysInitCmd)

	// docs subcommands
	docsCmd.AddCommand(docsListCmd)
	docsCmd.AddCommand(docsShowCmd)
	docsCmd.AddCommand(docsRemoveCmd)
	docsCmd.AddCommand(docsThumbnailCmd)
	docsThumbnailCmd.Flags().Bool("preview", false, "Write the full-size preview instead")
	docsThumbnailCmd.Flags().StringP("output", "o", "", "Output file (default: stdout)")

	// conflicts subcommands
	conflictsCmd.AddCommand(conflictsListCmd)
	conflictsCmd.AddCommand(conflictsResolveCmd)

	// snapshot subcommands
	snapshotCmd.AddCommand(snapshotCreateCmd)
	snapshotCmd.AddCommand(snapshotRestoreCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(reconcileCmd)
	reconcileCmd.Flags().Bool("full", false, "Also purge archived rows under the delete policy")
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(intakeCmd)
	rootCmd.AddCommand(docsCmd)
	rootCmd.AddCommand(conflictsCmd)
	rootCmd.AddCommand(snapshotCmd)
}

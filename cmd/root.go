package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"precache/config"
	"precache/internal/fetch"
	"precache/internal/precache"
	"precache/internal/report"
	"precache/internal/s3client"
	"precache/pkg/utils"
)

var rootCmd = &cobra.Command{
	Use:   "precache [settings.ini]",
	Short: "Pre-cache the files of a remote playlist into a local directory",
	Long: `precache reads a settings file naming a download server and a playlist,
fetches the playlist (a JSON array of file names) and downloads every file it
lists into the local cache directory.

A file the server no longer serves is removed from the cache. Without an
argument the settings are read from precache-settings.ini next to the
executable. Environment variables PRECACHE_DOWNLOAD_SERVER, PRECACHE_PLAYLIST
and PRECACHE_DOWNLOAD_DIRECTORY override the file, also when set in .env.`,
	Example: `  # Use precache-settings.ini next to the executable
  precache

  # Use a specific settings file and skip the final pause
  precache ./friday.ini --no-pause

  # Print the run summary as JSON
  precache --json --no-pause`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := resolvePaths(cmd)
		if err != nil {
			return fail(cmd, err)
		}
		settings := filepath.Join(paths.BaseDir, config.DefaultSettingsFile)
		if len(args) == 1 {
			settings = config.Resolve(paths.WorkDir, args[0])
		}
		return runPrecache(cmd, paths, settings)
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(remoteCmd)

	rootCmd.PersistentFlags().String("base-dir", "", "Directory holding the default settings files (default: the executable's directory)")
	rootCmd.PersistentFlags().Int("timeout", 0, "Timeout in seconds for the whole run, 0 for none")
	rootCmd.PersistentFlags().Int("request-timeout", 0, "Timeout in seconds for each download, 0 for none")
	rootCmd.PersistentFlags().Bool("json", false, "Print the run summary as JSON")
	rootCmd.PersistentFlags().Bool("progress", false, "Show a progress bar for each file")
	rootCmd.PersistentFlags().Bool("no-pause", false, "Exit without waiting for enter")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
}

func isVerbose(cmd *cobra.Command) bool {
	verbose, _ := cmd.Flags().GetBool("verbose")
	return verbose
}

func isJSON(cmd *cobra.Command) bool {
	asJSON, _ := cmd.Flags().GetBool("json")
	return asJSON
}

func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if isVerbose(cmd) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// resolvePaths fixes the base and working directories once per invocation.
func resolvePaths(cmd *cobra.Command) (config.Paths, error) {
	workDir, err := os.Getwd()
	if err != nil {
		return config.Paths{}, fmt.Errorf("failed to get working directory: %w", err)
	}

	baseDir, _ := cmd.Flags().GetString("base-dir")
	if baseDir == "" {
		if baseDir, err = utils.ExecutableDir(); err != nil {
			return config.Paths{}, err
		}
	}
	return config.Paths{BaseDir: config.Resolve(workDir, baseDir), WorkDir: workDir}, nil
}

func newConsole(cmd *cobra.Command) *report.Console {
	progress, _ := cmd.Flags().GetBool("progress")
	out := cmd.OutOrStdout()
	if isJSON(cmd) {
		out = cmd.ErrOrStderr()
	}
	return report.NewConsole(out, cmd.ErrOrStderr(), report.WithProgress(progress))
}

func newSource(cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) fetch.Source {
	requestTimeout, _ := cmd.Flags().GetInt("request-timeout")
	httpClient := fetch.NewHTTPClient(
		fetch.WithTimeout(time.Duration(requestTimeout)*time.Second),
		fetch.WithLogger(logger),
	)
	return fetch.Mux{
		"http":  httpClient,
		"https": httpClient,
		"s3":    s3client.Lazy(cfg.S3),
	}
}

func runPrecache(cmd *cobra.Command, paths config.Paths, settings ...string) error {
	logger := newLogger(cmd)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if timeout, _ := cmd.Flags().GetInt("timeout"); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
		defer cancel()
	}

	logger.Debug("loading settings", "files", settings, "base_dir", paths.BaseDir, "work_dir", paths.WorkDir)

	cfg, err := config.Load(paths, settings...)
	if err != nil {
		return fail(cmd, err)
	}
	if err := cfg.Validate(); err != nil {
		return fail(cmd, err)
	}

	console := newConsole(cmd)
	result, err := precache.New(cfg, newSource(cmd, cfg, logger), console, logger).Run(ctx)
	if err != nil {
		return fail(cmd, err)
	}

	if isJSON(cmd) {
		if err := utils.PrintJSON(cmd.OutOrStdout(), result); err != nil {
			return fail(cmd, err)
		}
	}

	pause(cmd)
	return nil
}

// fail reports a run-ending error and hands it back for the exit code.
func fail(cmd *cobra.Command, err error) error {
	if isJSON(cmd) {
		utils.PrintError(cmd.OutOrStdout(), err, cmd.Name())
	} else {
		newConsole(cmd).Fatal(err)
	}
	pause(cmd)
	return err
}

func pause(cmd *cobra.Command) {
	noPause, _ := cmd.Flags().GetBool("no-pause")
	if noPause || !isTerminal(os.Stdin) {
		return
	}
	waitForEnter(cmd.InOrStdin(), promptOutput(cmd))
}

// promptOutput keeps stdout free for the JSON document.
func promptOutput(cmd *cobra.Command) io.Writer {
	if isJSON(cmd) {
		return cmd.ErrOrStderr()
	}
	return cmd.OutOrStdout()
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func waitForEnter(in io.Reader, out io.Writer) {
	fmt.Fprint(out, "Press enter to exit.")
	bufio.NewReader(in).ReadString('\n')
	fmt.Fprintln(out)
}

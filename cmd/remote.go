package cmd

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"precache/config"
)

var remoteCmd = &cobra.Command{
	Use:   "remote [server-settings.ini]",
	Short: "Pre-cache using server settings layered with local settings",
	Long: `Run with settings shared by the server operator, layered with a local
settings file that keeps machine specific values such as the download
directory.

The local settings file is created with DownloadDirectory = ./MovieNight when
it does not exist yet. Values in the local file override the server file.`,
	Example: `  # precache-server-settings.ini and precache-local-settings.ini next to the executable
  precache remote

  # Explicit files
  precache remote ./server.ini --local-settings ./local.ini`,
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := resolvePaths(cmd)
		if err != nil {
			return fail(cmd, err)
		}

		server := filepath.Join(paths.BaseDir, config.DefaultServerSettingsFile)
		if len(args) == 1 {
			server = config.Resolve(paths.WorkDir, args[0])
		}
		local := filepath.Join(paths.BaseDir, config.DefaultLocalSettingsFile)
		if flag, _ := cmd.Flags().GetString("local-settings"); flag != "" {
			local = config.Resolve(paths.WorkDir, flag)
		}

		newLogger(cmd)
		if _, err := config.EnsureLocalSettings(local); err != nil {
			return fail(cmd, err)
		}
		return runPrecache(cmd, paths, server, local)
	},
}

func init() {
	remoteCmd.Flags().String("local-settings", "", "Local settings file layered over the server settings (default: precache-local-settings.ini in the base directory)")
}

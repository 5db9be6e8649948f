package cmd

import (
	"fmt"

	"github.com/smazurov/ezvizbridge/internal/logging"
	"github.com/smazurov/ezvizbridge/internal/updater"
	"github.com/spf13/cobra"
)

// CreateUpdateCmd creates the update command.
func CreateUpdateCmd() *cobra.Command {
	var repository string
	var prerelease bool
	var checkOnly bool

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Install the newest ezvizbridge release",
		Long: `Checks GitHub for a newer release and replaces the current binary. ` +
			`The replaced binary is kept for rollback through the API. Restart the service afterwards.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			logging.Initialize(logging.Config{Level: "info", Format: "text"})

			// The running process is not a server here, so a restart is left to the operator.
			svc, err := updater.NewService(updater.Options{
				Repository: repository,
				Prerelease: prerelease,
				Restart:    func() {},
			}, logging.GetLogger("updater"))
			if err != nil {
				return err
			}
			if !svc.IsEnabled() {
				return fmt.Errorf("update disabled: %s", svc.DisabledReason())
			}

			info, err := svc.CheckForUpdate(c.Context())
			if err != nil {
				return err
			}
			out := c.OutOrStdout()
			if !info.UpdateAvailable {
				fmt.Fprintf(out, "ezvizbridge %s is up to date (latest %s)\n", info.CurrentVersion, info.LatestVersion)
				return nil
			}
			fmt.Fprintf(out, "update available: %s -> %s\n", info.CurrentVersion, info.LatestVersion)
			if checkOnly {
				return nil
			}

			if err := svc.ApplyUpdate(c.Context()); err != nil {
				return err
			}
			fmt.Fprintf(out, "installed %s, restart ezvizbridge to use it\n", info.LatestVersion)
			return nil
		},
	}

	cmd.Flags().StringVar(&repository, "repository", updater.DefaultRepository, "GitHub repository publishing releases")
	cmd.Flags().BoolVar(&prerelease, "prerelease", false, "Consider prereleases")
	cmd.Flags().BoolVar(&checkOnly, "check", false, "Only report whether an update is available")

	return cmd
}

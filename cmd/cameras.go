package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/smazurov/ezvizbridge/internal/config"
	"github.com/smazurov/ezvizbridge/internal/ezviz"
	"github.com/smazurov/ezvizbridge/internal/logging"
	"github.com/spf13/cobra"
)

// CreateCamerasCmd creates the cameras command.
func CreateCamerasCmd() *cobra.Command {
	var asJSON bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "cameras",
		Short: "List cameras on the Ezviz account",
		Long: `Logs in with the [ezviz] credentials from the config file and prints every IP camera on the account, ` +
			`including whether it has an RTSP override under [ezviz.cameras].`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			logging.Initialize(logging.Config{Level: "warn", Format: "text"})

			cfg, err := loadPlatform(c)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(c.Context(), timeout)
			defer cancel()

			client, err := login(ctx, cfg)
			if err != nil {
				return err
			}
			cameras, err := client.LoadCameras(ctx)
			if err != nil {
				return fmt.Errorf("load cameras: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(c.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(cameras)
			}

			w := tabwriter.NewWriter(c.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SERIAL\tNAME\tONLINE\tMODEL\tLOCAL ADDRESS\tCONFIGURED")
			for _, cam := range cameras {
				_, configured := cfg.Override(cam.Serial)
				fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s:%d\t%t\n",
					cam.Serial, cam.Name, cam.Status, cam.DeviceSubCategory, cam.LocalIP, cam.LocalRTSPPort, configured)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the camera records as JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Overall timeout for the cloud calls")

	return cmd
}

// loadPlatform reads the [ezviz] section from the root --config file.
func loadPlatform(c *cobra.Command) (config.Ezviz, error) {
	path, err := c.Flags().GetString("config")
	if err != nil || path == "" {
		path = "config.toml"
	}
	cfg, err := config.LoadPlatform(path)
	if err != nil {
		return config.Ezviz{}, err
	}
	return cfg, nil
}

func login(ctx context.Context, cfg config.Ezviz) (*ezviz.Client, error) {
	client := ezviz.New(ezviz.Config{
		Username:  cfg.Username,
		Password:  cfg.Password,
		APIDomain: cfg.APIDomain,
	}, logging.GetLogger("ezviz"))
	if err := client.Login(ctx); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return client, nil
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/smazurov/ezvizbridge/internal/camera"
	"github.com/smazurov/ezvizbridge/internal/ffmpeg"
	"github.com/smazurov/ezvizbridge/internal/logging"
	"github.com/spf13/cobra"
)

// CreateSnapshotCmd creates the snapshot command.
func CreateSnapshotCmd() *cobra.Command {
	var output string
	var binary string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "snapshot [serial]",
		Short: "Grab one JPEG frame from a camera",
		Long: `Resolves the camera's local address through the Ezviz cloud, builds its RTSP URL from the ` +
			`[ezviz.cameras] override and writes a single JPEG frame grabbed with ffmpeg.`,
		Args: cobra.ExactArgs(1),
		Run: func(c *cobra.Command, args []string) {
			serial := args[0]
			logging.Initialize(logging.Config{Level: "info", Format: "text"})
			logger := logging.GetLogger("snapshot").With("serial", serial)

			cfg, err := loadPlatform(c)
			if err != nil {
				fail(err)
			}
			override, ok := cfg.Override(serial)
			if !ok {
				fail(fmt.Errorf("camera %s has no credentials under [ezviz.cameras]", serial))
			}

			ctx, cancel := context.WithTimeout(c.Context(), timeout)
			defer cancel()

			client, err := login(ctx, cfg)
			if err != nil {
				fail(err)
			}
			info, err := client.CameraStatus(ctx, serial)
			if err != nil {
				fail(err)
			}
			if info.LocalIP == "" {
				fail(fmt.Errorf("camera %s reports no local address", serial))
			}

			url := camera.RTSPURL(override.Username, override.Password, info.LocalIP, info.LocalRTSPPort)
			grabber := ffmpeg.NewImageFrame(binary, ffmpeg.WithTimeout(timeout), ffmpeg.WithLogger(logger))
			image, err := grabber.GetImage(ctx, url, ffmpeg.ImageJPEG)
			if err != nil {
				fail(fmt.Errorf("grab frame: %w", err))
			}

			if output == "" {
				output = serial + ".jpg"
			}
			if err := os.WriteFile(output, image, 0o644); err != nil {
				fail(err)
			}
			logger.Info("Snapshot written", "file", output, "bytes", len(image))
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default <serial>.jpg)")
	cmd.Flags().StringVar(&binary, "ffmpeg", "ffmpeg", "ffmpeg executable")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Overall timeout for login and grab")

	return cmd
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}

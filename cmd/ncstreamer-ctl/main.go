package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"ncstreamer/internal/logging"
	"ncstreamer/internal/model"
	"ncstreamer/pkg/remote"
)

var (
	ctlURL     string
	ctlToken   string
	ctlTimeout time.Duration
	ctlDebug   bool

	startUserPage    string
	startPrivacy     string
	startTitle       string
	startDescription string
)

var rootCmd = &cobra.Command{
	Use:           "ncstreamer-ctl",
	Short:         "Control a running ncstreamer over its remote control socket",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the streaming status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(func(ctx context.Context, c *remote.Client) error {
			st, err := c.Status(ctx)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		})
	},
}

var startCmd = &cobra.Command{
	Use:   "start <source>",
	Short: "Start streaming the named source",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(func(ctx context.Context, c *remote.Client) error {
			err := c.StartStreaming(ctx, model.StartParams{
				Source:      args[0],
				UserPage:    startUserPage,
				Privacy:     startPrivacy,
				Title:       startTitle,
				Description: startDescription,
			})
			if err == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "on air")
			}
			return err
		})
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop streaming",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(func(ctx context.Context, c *remote.Client) error {
			err := c.StopStreaming(ctx)
			if err == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "stopped")
			}
			return err
		})
	},
}

var qualityCmd = &cobra.Command{
	Use:   "quality <high|medium|low|WxH@fps/bitrate>",
	Short: "Change the video quality",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := model.ParseVideoQuality(args[0])
		if err != nil {
			return err
		}
		return withClient(func(ctx context.Context, c *remote.Client) error {
			if err := c.UpdateVideoQuality(ctx, q); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "quality set to", q.Name())
			return nil
		})
	},
}

var exitCmd = &cobra.Command{
	Use:   "exit",
	Short: "Ask the server process to quit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withClient(func(ctx context.Context, c *remote.Client) error {
			return c.Exit()
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&ctlURL, "url", "ws://127.0.0.1:9002/", "remote control endpoint")
	rootCmd.PersistentFlags().StringVar(&ctlToken, "token", os.Getenv("NCSTREAMER_AUTH_TOKEN"), "auth token")
	rootCmd.PersistentFlags().DurationVar(&ctlTimeout, "timeout", 30*time.Second, "how long to wait for the server")
	rootCmd.PersistentFlags().BoolVar(&ctlDebug, "debug", false, "enable debug logs")

	startCmd.Flags().StringVar(&startUserPage, "user-page", "me", "page to post the live video to")
	startCmd.Flags().StringVar(&startPrivacy, "privacy", "SELF", "live video privacy")
	startCmd.Flags().StringVar(&startTitle, "title", "", "live video title")
	startCmd.Flags().StringVar(&startDescription, "description", "", "live video description")

	rootCmd.AddCommand(statusCmd, startCmd, stopCmd, qualityCmd, exitCmd)
}

func withClient(fn func(ctx context.Context, c *remote.Client) error) error {
	log := logging.New(ctlDebug)
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), ctlTimeout)
	defer cancel()

	c, err := remote.Dial(ctx, ctlURL, remote.WithToken(ctlToken), remote.WithLogger(log))
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(ctx, c)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ncstreamer-ctl:", err)
		os.Exit(1)
	}
}

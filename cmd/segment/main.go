// Package main is the segment CLI: it sends one image to the segmentation
// service and saves the annotated result.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"github.com/kiranshivaraju/segmenter/internal/config"
	"github.com/kiranshivaraju/segmenter/internal/log"
	"github.com/kiranshivaraju/segmenter/internal/segment"
	"github.com/spf13/cobra"
)

type options struct {
	url     string
	timeout time.Duration
	verbose bool
	output  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		slog.Error("segment failed", "err", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:          "segment",
		Short:        "Send images to a segmentation service",
		SilenceUsage: true,
		// errors are logged by main
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initSegment(cmd, opts)
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.url, "url", "", "segmentation service base URL (default $SEGMENT_API_URL or "+config.DefaultSegmentURL+")")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 0, "request timeout, 0 disables (default $SEGMENT_TIMEOUT or 2m)")
	rootCmd.PersistentFlags().BoolVar(&opts.verbose, "verbose", false, "verbose logging")

	predictCmd := &cobra.Command{
		Use:   "predict <image>",
		Short: "segment an image and save the annotated result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := segment.NewHTTPClient(opts.url, opts.timeout)
			out, n, err := predict(cmd.Context(), client, args[0], opts.output)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", out, n)
			return nil
		},
	}
	predictCmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (default segmented.<ext> in the current directory)")

	pingCmd := &cobra.Command{
		Use:   "ping",
		Short: "check that the segmentation service is up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := segment.NewHTTPClient(opts.url, opts.timeout)
			if err := client.Ready(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is up\n", opts.url)
			return nil
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "print version information",
		Args:  cobra.NoArgs,
		// skip service flag resolution
		PersistentPreRun: func(*cobra.Command, []string) {},
		Run: func(cmd *cobra.Command, _ []string) {
			w := cmd.OutOrStdout()
			info, ok := debug.ReadBuildInfo()
			if !ok {
				fmt.Fprintln(w, "segment: version info not available")
				return
			}
			fmt.Fprintf(w, "segment: %s\n", info.Main.Version)
			fmt.Fprintf(w, "go:      %s\n", info.GoVersion)
			for _, s := range info.Settings {
				switch s.Key {
				case "vcs.revision":
					fmt.Fprintf(w, "commit:  %s\n", s.Value)
				case "vcs.time":
					fmt.Fprintf(w, "date:    %s\n", s.Value)
				case "vcs.modified":
					fmt.Fprintf(w, "dirty:   %s\n", s.Value)
				}
			}
		},
	}

	rootCmd.AddCommand(predictCmd, pingCmd, versionCmd)
	return rootCmd
}

// initSegment sets up logging and resolves the service settings: flags take
// precedence over the environment.
func initSegment(cmd *cobra.Command, opts *options) error {
	slog.SetDefault(log.NewText(cmd.ErrOrStderr(), opts.verbose))

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	flags := cmd.Flags()
	if !flags.Changed("url") {
		opts.url = cfg.Segment.BaseURL
	}
	if !flags.Changed("timeout") {
		opts.timeout = cfg.Segment.Timeout
	}
	if err := config.ValidateServiceURL(opts.url); err != nil {
		return fmt.Errorf("--url: %w", err)
	}
	if opts.timeout < 0 {
		return fmt.Errorf("--timeout must not be negative, got %s", opts.timeout)
	}

	slog.Debug("segment run", "url", opts.url, "timeout", opts.timeout)
	return nil
}

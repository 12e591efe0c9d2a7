package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dunamismax/hueshift/internal/config"
	"github.com/dunamismax/hueshift/internal/pipeline"
	"github.com/spf13/cobra"
)

func main() {
	logger := log.New(os.Stderr, "[hueshift] ", log.LstdFlags|log.Lmsgprefix)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := execute(ctx, logger, os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

// execute runs the root command and logs any failure, since cobra's own
// error printing is silenced.
func execute(ctx context.Context, logger *log.Logger, args []string) error {
	cmd := newRootCmd(logger)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		logger.Printf("error: %v", err)
		return err
	}
	return nil
}

func newRootCmd(logger *log.Logger) *cobra.Command {
	var (
		output    string
		quality   int
		maxPixels int64
	)

	cmd := &cobra.Command{
		Use:   "hueshift <input>",
		Short: "Rotate the hue of an image by 120 degrees and write it as JPEG",
		Long: `hueshift decodes an image (PNG, JPEG, GIF, WebP, BMP or TIFF), rotates
every pixel's hue by 120 degrees and writes the result as JPEG.

Without --output the result is written next to the input as <name>_hueshift.jpg.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			processor, err := pipeline.NewLocalProcessor(pipeline.Options{JPEGQuality: quality, MaxPixels: maxPixels})
			if err != nil {
				return err
			}
			defer pipeline.Shutdown()

			result, err := processor.Process(cmd.Context(), pipeline.Request{
				InputPath:  args[0],
				OutputPath: output,
			})
			if err != nil {
				return fmt.Errorf("process %s: %w", args[0], err)
			}

			logger.Printf(
				"processed input=%s format=%s size=%dx%d bytes_in=%d bytes_out=%d",
				args[0],
				result.Format,
				result.Width,
				result.Height,
				result.SourceBytes,
				result.OutputBytes,
			)
			_, err = fmt.Fprintln(cmd.OutOrStdout(), result.OutputPath)
			return err
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output JPEG path")
	defaults := config.Load().Transcode
	cmd.Flags().IntVarP(&quality, "quality", "q", defaults.JPEGQuality, "JPEG quality (1-100)")
	cmd.Flags().Int64Var(&maxPixels, "max-pixels", defaults.MaxPixels, "reject images with more pixels than this")

	return cmd
}

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newInfoCmd())
}

func newInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info <image>",
		Short: "Decode an image and report its bitmap layout",
		Long: `The info command decodes a PNG, GIF, JPEG, BMP, TIFF or WebP file into
an anonymous bitmap and prints its format, size, stride and byte count.

Example:
  bitmapctl info logo.png
  bitmapctl info logo.png --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(cmd.Context(), args)
		},
	}
	return cmd
}

func runInfo(ctx context.Context, args []string) error {
	path := args[0]
	if ctx == nil {
		ctx = context.Background()
	}

	alloc, err := newAllocator(nil)
	if err != nil {
		return err
	}
	defer alloc.Close()

	printVerbose("Decoding: %s\n", path)
	b, err := alloc.LoadFromFile(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to load image: %w", err)
	}
	defer b.Close()

	if jsonOut {
		return printJSON(summarize(path, b))
	}
	printSummary("Bitmap Information", summarize(path, b))
	return nil
}

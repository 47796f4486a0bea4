package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/srediag/plugin-bitmap/pkg/bitmap"
)

var (
	rawFormat string
	rawWidth  int
	rawHeight int
)

func init() {
	rootCmd.AddCommand(newRawCmd())
}

func newRawCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "raw <file>",
		Short: "Map a raw pixel file read-only",
		Long: `The raw command maps a file of uncompressed pixel rows as a read-only
bitmap. Rows are expected at the bitmap stride: width*4 rounded up to 16 bytes.

Example:
  bitmapctl raw frame.bin --format rgba32 --width 640 --height 480`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRaw(cmd.Context(), args)
		},
	}
	cmd.Flags().StringVarP(&rawFormat, "format", "f", "rgb32", "Pixel format (rgb32, rgba32)")
	cmd.Flags().IntVarP(&rawWidth, "width", "W", 0, "Width in pixels")
	cmd.Flags().IntVarP(&rawHeight, "height", "H", 0, "Height in pixels")
	_ = cmd.MarkFlagRequired("width")
	_ = cmd.MarkFlagRequired("height")
	return cmd
}

func runRaw(ctx context.Context, args []string) error {
	path := args[0]
	if ctx == nil {
		ctx = context.Background()
	}
	format, err := bitmap.ParseFormat(rawFormat)
	if err != nil {
		return err
	}

	alloc, err := newAllocator(nil)
	if err != nil {
		return err
	}
	defer alloc.Close()

	b, err := alloc.LoadRawFile(ctx, path, format, bitmap.Sz(rawWidth, rawHeight))
	if err != nil {
		return fmt.Errorf("failed to map raw file: %w", err)
	}
	defer b.Close()

	if jsonOut {
		return printJSON(summarize(path, b))
	}
	printSummary("Raw Bitmap", summarize(path, b))
	printVerbose("  First pixel: %#08x\n", uint32(b.Pixel(0, 0)))
	return nil
}

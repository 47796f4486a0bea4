package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/srediag/plugin-bitmap/pkg/shm"
)

var shareHold time.Duration

func init() {
	rootCmd.AddCommand(newShareCmd())
}

func newShareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "share <image>",
		Short: "Copy an image into a shared memory segment",
		Long: `The share command decodes an image, copies its pixels into a shared
memory segment and prints the segment's name, descriptor and size. Paletted
images are flattened to RGBA32 on the way.

With --hold the segment stays mapped for the given duration so another
process can map it through /proc/<pid>/fd/<fd>.

Example:
  bitmapctl share logo.png
  bitmapctl share logo.png --hold 30s`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShare(cmd.Context(), args)
		},
	}
	cmd.Flags().DurationVar(&shareHold, "hold", 0, "Keep the segment mapped this long")
	return cmd
}

type shareSummary struct {
	bitmapSummary
	Segment string `json:"segment"`
	Name    string `json:"name"`
	Fd      int    `json:"fd"`
	Size    int    `json:"size"`
}

func runShare(ctx context.Context, args []string) error {
	path := args[0]
	if ctx == nil {
		ctx = context.Background()
	}

	alloc, err := newAllocator(nil)
	if err != nil {
		return err
	}
	defer alloc.Close()

	b, err := alloc.LoadFromFile(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to load image: %w", err)
	}
	defer b.Close()

	shared, err := b.ToShareable(ctx)
	if err != nil {
		return fmt.Errorf("failed to share bitmap: %w", err)
	}
	defer shared.Close()

	segment := shared.Segment()
	summary := shareSummary{
		bitmapSummary: summarize(path, shared),
		Segment:       segment.ID(),
		Name:          segment.Name(),
		Fd:            segment.Fd(),
		Size:          segment.Size(),
	}
	if jsonOut {
		if err := printJSON(summary); err != nil {
			return err
		}
	} else {
		printSummary("Shared Bitmap", summary.bitmapSummary)
		printInfo("  Segment: %s\n", summary.Segment)
		printInfo("  Name: %s\n", summary.Name)
		printInfo("  Fd: %d\n", summary.Fd)
		printInfo("  Segment size: %d\n", summary.Size)
	}
	if verbose && !quiet {
		shm.DebugSegmentDetail(os.Stdout, fmt.Sprintf("/proc/%d/fd/%d", os.Getpid(), segment.Fd()))
	}

	if shareHold > 0 {
		printVerbose("Holding segment for %s\n", shareHold)
		select {
		case <-time.After(shareHold):
		case <-ctx.Done():
		}
	}
	return nil
}

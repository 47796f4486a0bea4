package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/srediag/plugin-bitmap/pkg/bitmap"
	"github.com/srediag/plugin-bitmap/pkg/shm"
)

var (
	// Global flags
	verbose    bool
	quiet      bool
	jsonOut    bool
	logLevel   int
	shmDir     string
	memMapType string
)

var rootCmd = &cobra.Command{
	Use:   "bitmapctl",
	Short: "Load, inspect and share pixel buffers",
	Long: `bitmapctl loads images and raw pixel files into bitmaps, reports their
layout, copies them into shared memory segments and serves health and
metrics endpoints for a long-running allocator.`,
	Version: "0.1.0",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cmd.Flags().Changed("log-level") {
			bitmap.SetLogLevel(logLevel)
		}
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().
		BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().
		IntVar(&logLevel, "log-level", bitmap.LogLevel(), "Library log level (0 trace .. 5 silent)")
	rootCmd.PersistentFlags().
		StringVar(&shmDir, "shm-dir", "", "Directory for file-backed shared segments")
	rootCmd.PersistentFlags().
		StringVar(&memMapType, "memmap-type", "", "Shared segment type: memfd or devshm")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newAllocator applies the global shared memory flags to config and builds
// an allocator. A nil config starts from bitmap.DefaultConfig.
func newAllocator(config *bitmap.Config) (*bitmap.Allocator, error) {
	if config == nil {
		config = bitmap.DefaultConfig()
	}
	if shmDir != "" {
		config.Shm.Dir = shmDir
		config.Shm.MemMapType = shm.MemMapTypeDevShmFile
	}
	if memMapType != "" {
		t, err := shm.ParseMemMapType(memMapType)
		if err != nil {
			return nil, err
		}
		config.Shm.MemMapType = t
	}
	return bitmap.NewAllocator(config)
}

// printInfo prints an info message if not in quiet mode
func printInfo(format string, args ...interface{}) {
	if !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printVerbose prints a verbose message if verbose mode is enabled
func printVerbose(format string, args ...interface{}) {
	if verbose && !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printJSON outputs data as JSON
func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// bitmapSummary is the JSON form of a bitmap's layout.
type bitmapSummary struct {
	Path    string `json:"path"`
	Format  string `json:"format"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Stride  int    `json:"stride"`
	Bytes   int    `json:"bytes"`
	Backing string `json:"backing"`
	Palette int    `json:"palette,omitempty"`
}

func summarize(path string, b *bitmap.Bitmap) bitmapSummary {
	return bitmapSummary{
		Path:    path,
		Format:  b.Format().String(),
		Width:   b.Width(),
		Height:  b.Height(),
		Stride:  b.Stride(),
		Bytes:   b.SizeInBytes(),
		Backing: b.Backing().String(),
		Palette: len(b.Palette()),
	}
}

func printSummary(title string, s bitmapSummary) {
	printInfo("\n%s:\n", title)
	printInfo("  File: %s\n", s.Path)
	printInfo("  Format: %s\n", s.Format)
	printInfo("  Size: %dx%d\n", s.Width, s.Height)
	printInfo("  Stride: %d\n", s.Stride)
	printInfo("  Bytes: %d\n", s.Bytes)
	printInfo("  Backing: %s\n", s.Backing)
	if s.Palette > 0 {
		printInfo("  Palette: %d entries\n", s.Palette)
	}
}

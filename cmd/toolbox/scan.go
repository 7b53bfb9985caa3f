package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/lyallcooper/toolbox/internal/app"
	"github.com/lyallcooper/toolbox/internal/config"
	"github.com/lyallcooper/toolbox/internal/dupes"
	"github.com/lyallcooper/toolbox/internal/pathutil"
	"github.com/lyallcooper/toolbox/internal/progress"
	"github.com/spf13/cobra"
)

// scanOptions holds CLI flags for the scan command.
type scanOptions struct {
	minSizeStr  string
	methods     []string
	hidden      bool
	noRecursive bool
	noProgress  bool
	jsonOutput  bool
	workers     int
	algorithm   string
	cacheFile   string
}

func newScanCmd() *cobra.Command {
	opts := &scanOptions{
		minSizeStr: "1KiB",
		methods:    []string{dupes.MethodSize, dupes.MethodHash},
		workers:    runtime.NumCPU(),
		algorithm:  "md5",
	}

	cmd := &cobra.Command{
		Use:   "scan PATH",
		Short: "Find duplicate files under a directory",
		Long: `Scans a directory for duplicate files and prints the groups found,
largest wasted space first.

Methods run in the order size, hash, content. Add "content" for a
byte-by-byte check of every group:
  toolbox scan ~/Photos --methods size,hash,content`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd.Context(), args[0], opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.minSizeStr, "min-size", "m", opts.minSizeStr, "Minimum file size (e.g., 0, 100, 1K, 10MiB)")
	cmd.Flags().StringSliceVar(&opts.methods, "methods", opts.methods, "Detection methods: size, hash, content")
	cmd.Flags().BoolVar(&opts.hidden, "hidden", false, "Include hidden files and directories")
	cmd.Flags().BoolVar(&opts.noRecursive, "no-recursive", false, "Only scan the top-level directory")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "Disable progress output")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print the result as JSON")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", opts.workers, "Number of parallel workers")
	cmd.Flags().StringVar(&opts.algorithm, "algorithm", opts.algorithm, "Hash algorithm: md5, sha256, xxhash")
	cmd.Flags().StringVar(&opts.cacheFile, "cache-file", "", "Path to hash cache file (enables caching)")

	return cmd
}

// scanParams validates flags and builds the scan parameters.
func scanParams(path string, opts *scanOptions) (dupes.Params, error) {
	minSize, err := parseSize(opts.minSizeStr)
	if err != nil {
		return dupes.Params{}, fmt.Errorf("invalid --min-size: %w", err)
	}
	methods, err := dupes.ParseMethods(opts.methods)
	if err != nil {
		return dupes.Params{}, fmt.Errorf("invalid --methods: %w", err)
	}

	root := pathutil.Sanitize(path)
	if !pathutil.IsValidDirectory(root) {
		return dupes.Params{}, fmt.Errorf("%s is not a readable directory", path)
	}
	return dupes.Params{
		RootPath:      pathutil.Abs(root),
		Recursive:     !opts.noRecursive,
		IncludeHidden: opts.hidden,
		MinSize:       minSize,
		Methods:       methods,
	}, nil
}

func runScan(ctx context.Context, path string, opts *scanOptions, out io.Writer) error {
	params, err := scanParams(path, opts)
	if err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cache, err := app.OpenCache(config.ExpandPath(opts.cacheFile))
	if err != nil {
		return err
	}
	if cache != nil {
		defer func() { _ = cache.Close() }()
	}

	finder, err := app.NewFinder(&config.Config{
		HashAlgorithm: opts.algorithm,
		ScanWorkers:   opts.workers,
	}, cache)
	if err != nil {
		return err
	}

	bar := progress.New(!opts.noProgress && !opts.jsonOutput)
	result, err := finder.Find(ctx, params, bar)
	if err != nil {
		return err
	}
	bar.Finish(fmt.Sprintf("Scanned %d files", result.Stats.TotalFiles))

	if opts.jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	printGroups(out, result)
	return nil
}

// printGroups writes a plain text report of the duplicate groups.
func printGroups(out io.Writer, result *dupes.Result) {
	for _, g := range result.Groups {
		header := fmt.Sprintf("%d files, %s each", len(g.Members), humanize.IBytes(uint64(g.SizeBytes)))
		if g.ContentHash != "" {
			header += ", " + g.ContentHash
		}
		fmt.Fprintln(out, header)
		for _, m := range g.Members {
			fmt.Fprintln(out, "  "+m)
		}
		fmt.Fprintln(out)
	}

	s := result.Stats
	fmt.Fprintf(out, "%d duplicate sets, %d duplicate files, %s wasted\n",
		s.DuplicateSetCount, s.DuplicateFileCount, humanize.IBytes(uint64(s.WastedSpaceBytes)))
	if s.SkippedFiles > 0 {
		fmt.Fprintf(out, "%d files skipped (unreadable or changed during scan)\n", s.SkippedFiles)
	}
}

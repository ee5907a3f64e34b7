package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gnolang/zeroelim/internal/problem"
)

// domain and optimize flags
var (
	jsonOutput bool
	outPath    string
	iterations int
	cacheDir   string
)

var domainCmd = &cobra.Command{
	Use:   "domain [paths...]",
	Short: "Simplify the domains of problem files",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runPass(cmd, problem.ModeDomain, args)
	},
}

var optimizeCmd = &cobra.Command{
	Use:   "optimize [paths...]",
	Short: "Optimize the tensors of problem files and lift their nonzeroness conditions",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runPass(cmd, problem.ModeOptimize, args)
	},
}

func init() {
	for _, c := range []*cobra.Command{domainCmd, optimizeCmd} {
		c.Flags().BoolVar(&jsonOutput, "json", false, "Output reports in JSON format")
		c.Flags().StringVarP(&outPath, "output", "o", "", "Output path (when using JSON)")
		c.Flags().IntVar(&iterations, "iterations", problem.DefaultConfig().Iterations, "Rounds of the domain simplification pipeline (overrides the configuration)")
		c.Flags().StringVar(&cacheDir, "cache-dir", "", "Reuse reports stored in this directory")
	}
}

func runPass(cmd *cobra.Command, mode problem.Mode, paths []string) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if cmd.Flags().Changed("iterations") {
		config.Iterations = iterations
	}
	opts, err := config.Options(logger)
	if err != nil {
		logger.Fatal("Invalid trace settings", zap.Error(err))
	}
	engine, err := problem.NewEngine(mode, opts)
	if err != nil {
		logger.Fatal("Failed to initialize engine", zap.Error(err))
	}
	if cacheDir != "" {
		cache, err := problem.NewCache(cacheDir, 0)
		if err != nil {
			logger.Fatal("Failed to open cache", zap.Error(err))
		}
		engine.WithCache(cache)
	}

	reports, err := runWithTimeout(ctx, func() ([]problem.Report, error) {
		return problem.ProcessFiles(ctx, logger, engine, paths, problem.ProcessFile)
	})
	if errors.Is(err, context.DeadlineExceeded) {
		logger.Error("Timed out", zap.Duration("timeout", timeout))
		os.Exit(1)
	}
	if err != nil {
		logger.Error("Error processing files", zap.Stringer("mode", mode), zap.Error(err))
		os.Exit(1)
	}

	var w io.Writer = os.Stdout
	if jsonOutput && outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			logger.Error("Error creating JSON output file", zap.Error(err))
			os.Exit(1)
		}
		defer f.Close()
		w = f
	}
	if err := printReports(w, reports, jsonOutput); err != nil {
		logger.Error("Error writing reports", zap.Error(err))
		os.Exit(1)
	}
}

// runWithTimeout returns the result of f, or ctx.Err() as soon as ctx is
// done. In the latter case f is left running.
func runWithTimeout(ctx context.Context, f func() ([]problem.Report, error)) ([]problem.Report, error) {
	type result struct {
		reports []problem.Report
		err     error
	}
	done := make(chan result, 1)
	go func() {
		reports, err := f()
		done <- result{reports, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		return r.reports, r.err
	}
}

// printReports writes reports grouped by file, files in lexical order.
func printReports(w io.Writer, reports []problem.Report, isJson bool) error {
	byFile := make(map[string][]problem.Report)
	for _, r := range reports {
		byFile[r.File] = append(byFile[r.File], r)
	}

	if isJson {
		d, err := json.Marshal(byFile)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(d))
		return err
	}

	files := make([]string, 0, len(byFile))
	for f := range byFile {
		files = append(files, f)
	}
	sort.Strings(files)

	for _, f := range files {
		if _, err := fmt.Fprintf(w, "%s:\n", f); err != nil {
			return err
		}
		for _, r := range byFile[f] {
			fmt.Fprintf(w, "  %s\n    input:  %s\n    output: %s\n", r.Name, r.Input, r.Output)
			for _, h := range r.Helpers {
				fmt.Fprintf(w, "    helper: %s\n", h)
			}
		}
	}
	return nil
}

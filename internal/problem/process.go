package problem

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

var desiredExtensions = map[string]bool{
	".yaml": true,
	".yml":  true,
}

func hasDesiredExtension(path string) bool {
	return desiredExtensions[filepath.Ext(path)] && filepath.Base(path) != ConfigFileName
}

// ProcessFile runs runner on a single file.
func ProcessFile(runner Runner, path string) ([]Report, error) {
	return runner.Run(path)
}

// ProcessFiles processes every path in order and concatenates the reports.
func ProcessFiles(
	ctx context.Context,
	logger *zap.Logger,
	runner Runner,
	paths []string,
	processor func(Runner, string) ([]Report, error),
) ([]Report, error) {
	var all []Report
	for _, path := range paths {
		reports, err := ProcessPath(ctx, logger, runner, path, processor)
		if err != nil {
			if logger != nil {
				logger.Error("Error processing path", zap.String("path", path), zap.Error(err))
			}
			return all, err
		}
		all = append(all, reports...)
	}
	return all, nil
}

// ProcessPath processes a problem file, or every problem file below a
// directory. Files of a directory are processed concurrently by up to
// runtime.NumCPU() workers; a file that fails is logged and skipped.
// Reports keep the order of the files. When ctx is done no new file is
// started and the reports gathered so far are returned with ctx.Err().
func ProcessPath(
	ctx context.Context,
	logger *zap.Logger,
	runner Runner,
	path string,
	processor func(Runner, string) ([]Report, error),
) ([]Report, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error accessing %s", path)
	}
	if !info.IsDir() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return processor(runner, path)
	}

	var files []string
	err = filepath.Walk(path, func(filePath string, fileInfo os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !fileInfo.IsDir() && hasDesiredExtension(filePath) {
			files = append(files, filePath)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "error walking %s", path)
	}

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(path),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))

	results := make([][]Report, len(files))
	sem := make(chan struct{}, runtime.NumCPU())
	var wg sync.WaitGroup
	for i, filePath := range files {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
		case sem <- struct{}{}:
			wg.Add(1)
			go func(i int, fp string) {
				defer wg.Done()
				defer func() { <-sem }()

				reports, err := processor(runner, fp)
				if err != nil {
					if logger != nil {
						logger.Error("Error processing file", zap.String("file", fp), zap.Error(err))
					}
				} else {
					results[i] = reports
				}
				_ = bar.Add(1)
			}(i, filePath)
		}
	}
	wg.Wait()
	_ = bar.Finish()

	reports := make([]Report, 0, len(files))
	for _, r := range results {
		reports = append(reports, r...)
	}
	return reports, ctx.Err()
}

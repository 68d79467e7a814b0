package preflight

import (
	"context"

	"banana3d/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every check for the given config.
func RunAll(ctx context.Context, cfg *config.Config, client Pinger) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir),
		CheckRunLock(cfg.LockPath()),
		CheckService(ctx, cfg.Service.BaseURL, client),
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}

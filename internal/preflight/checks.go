package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"banana3d/internal/runlock"
)

// Pinger is satisfied by the generation service client.
type Pinger interface {
	Ping(ctx context.Context) error
}

const serviceCheckTimeout = 5 * time.Second

// CheckService verifies the generation service answers HTTP at all. It uses
// a short timeout and a single attempt.
func CheckService(ctx context.Context, baseURL string, client Pinger) Result {
	const name = "Generation service"

	if client == nil {
		return Result{Name: name, Detail: "not configured"}
	}
	checkCtx, cancel := context.WithTimeout(ctx, serviceCheckTimeout)
	defer cancel()

	if err := client.Ping(checkCtx); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (%s)", baseURL, summarizeServiceError(err))}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (reachable)", baseURL)}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckRunLock reports whether another run currently holds the lock.
func CheckRunLock(path string) Result {
	const name = "Run lock"

	lock := runlock.New(path)
	if err := lock.Acquire(); err != nil {
		if errors.Is(err, runlock.ErrHeld) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (held by another run)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}
	_ = lock.Release()
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (free)", path)}
}

func summarizeServiceError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timed out (service unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timed out (service unreachable)"
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Sprintf("unreachable: %v", opErr.Err)
	}
	return err.Error()
}

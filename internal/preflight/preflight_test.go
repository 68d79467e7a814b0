package preflight

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"banana3d/internal/runlock"
	"banana3d/internal/services/generator"
	"banana3d/internal/services/generator/generatortest"
	"banana3d/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if !strings.Contains(result.Detail, "does not exist") {
		t.Fatalf("unexpected detail %q", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckService_Reachable(t *testing.T) {
	srv := generatortest.New(t)
	result := CheckService(context.Background(), srv.URL, generator.NewClient(srv.URL))
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckService_Unreachable(t *testing.T) {
	srv := generatortest.New(t)
	url := srv.URL
	srv.Close()

	result := CheckService(context.Background(), url, generator.NewClient(url))
	if result.Passed {
		t.Fatal("expected failure for closed server")
	}
	if !strings.Contains(result.Detail, url) {
		t.Fatalf("expected url in detail, got %q", result.Detail)
	}
}

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func TestCheckService_Timeout(t *testing.T) {
	result := CheckService(context.Background(), "http://svc", stubPinger{err: context.DeadlineExceeded})
	if result.Passed || !strings.Contains(result.Detail, "timed out") {
		t.Fatalf("expected timeout summary, got %+v", result)
	}
	result = CheckService(context.Background(), "http://svc", stubPinger{err: errors.New("boom")})
	if result.Passed || !strings.Contains(result.Detail, "boom") {
		t.Fatalf("expected raw error, got %+v", result)
	}
	if result := CheckService(context.Background(), "http://svc", nil); result.Passed {
		t.Fatal("expected failure without a client")
	}
}

func TestCheckRunLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "banana3d.lock")
	if result := CheckRunLock(path); !result.Passed {
		t.Fatalf("expected free lock, got %s", result.Detail)
	}

	held := runlock.New(path)
	if err := held.Acquire(); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = held.Release() }()
	if result := CheckRunLock(path); result.Passed {
		t.Fatal("expected held lock to fail the check")
	}
}

func TestRunAll(t *testing.T) {
	srv := generatortest.New(t)
	cfg := testsupport.NewConfig(t, testsupport.WithServiceURL(srv.URL))
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}

	results := RunAll(context.Background(), cfg, generator.NewClient(srv.URL))
	if len(results) != 4 {
		t.Fatalf("expected four checks, got %d", len(results))
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("expected all checks to pass, got %+v", failed)
	}
	if RunAll(context.Background(), nil, nil) != nil {
		t.Fatal("expected nil results without config")
	}
}

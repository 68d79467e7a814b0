package main

import (
	"bytes"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"banana3d/internal/config"
	"banana3d/internal/services/generator/generatortest"
	"banana3d/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	server     *generatortest.Server
	configPath string
	sourcePath string
}

func setupCLITestEnv(t *testing.T, serverOpts []generatortest.Option, cfgOpts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	srv := generatortest.New(t, serverOpts...)
	opts := append([]testsupport.ConfigOption{
		testsupport.WithServiceURL(srv.URL),
		testsupport.WithPolling(10, 2000),
		testsupport.WithHistory(true),
	}, cfgOpts...)
	cfg := testsupport.NewConfig(t, opts...)

	base := testsupport.BaseDir(cfg)
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("BANANA3D_API_KEY", "")

	configPath := filepath.Join(homeDir, ".config", "banana3d", "config.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{
		cfg:        cfg,
		server:     srv,
		configPath: configPath,
		sourcePath: testsupport.WriteImage(t, base, "hero.png", testsupport.PNG(t, color.RGBA{R: 200, A: 255})),
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func requireNotContains(t *testing.T, output, substr string) {
	t.Helper()
	if strings.Contains(output, substr) {
		t.Fatalf("expected %q not to contain %q", output, substr)
	}
}

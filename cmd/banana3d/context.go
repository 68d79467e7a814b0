package main

import (
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"banana3d/internal/config"
	"banana3d/internal/logging"
	"banana3d/internal/services"
	"banana3d/internal/workflow"
)

const logFileName = "banana3d.log"

type commandContext struct {
	configFlag   *string
	logLevelFlag *string
	verboseFlag  *bool

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag, logLevelFlag *string, verboseFlag *bool) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
		verboseFlag:  verboseFlag,
	}
}

func (c *commandContext) configFlagValue() string {
	if c.configFlag == nil {
		return ""
	}
	return strings.TrimSpace(*c.configFlag)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, path, _, err := config.Load(c.configFlagValue())
		if err != nil {
			c.configErr = services.Wrap(services.ErrConfiguration, "", "load config", path, err)
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = services.Wrap(services.ErrConfiguration, "", "ensure directories", "", err)
			return
		}
		c.config = cfg
		c.configPath = path
	})
	return c.config, c.configErr
}

// ensureLogger builds the file logger for cfg. Console output is reserved for
// progress lines unless --verbose is set.
func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		level := cfg.Logging.Level
		if c.logLevelFlag != nil && strings.TrimSpace(*c.logLevelFlag) != "" {
			level = strings.TrimSpace(*c.logLevelFlag)
		}
		outputs := []string{filepath.Join(cfg.LogDir(), logFileName)}
		if c.verboseFlag != nil && *c.verboseFlag {
			outputs = append(outputs, "stderr")
		}
		c.logger, c.loggerErr = logging.New(logging.Options{
			Level:       level,
			Format:      cfg.Logging.Format,
			OutputPaths: outputs,
		})
	})
	return c.logger, c.loggerErr
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

// exitCode maps failures onto distinct process exit statuses.
func exitCode(err error) int {
	var werr *workflow.Error
	if errors.As(err, &werr) {
		switch werr.Kind {
		case workflow.KindTimeout:
			return 4
		case workflow.KindValidation:
			return 2
		default:
			return 3
		}
	}
	switch services.KindOf(err) {
	case services.ErrValidation, services.ErrConfiguration:
		return 2
	case services.ErrTimeout:
		return 4
	case services.ErrSubmission, services.ErrTransport:
		return 3
	}
	return 1
}

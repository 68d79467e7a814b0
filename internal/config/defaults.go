package config

const (
	defaultConfigPath            = "~/.config/banana3d/config.toml"
	defaultServiceBaseURL        = "http://127.0.0.1:5500"
	defaultServiceRequestTimeout = 300
	defaultServiceUserAgent      = "banana3d/dev"
	defaultPollIntervalMS        = 2000
	defaultPollTimeoutMS         = 120000
	defaultModelTimeoutMS        = 600000
	defaultOutputDir             = "~/banana3d/output"
	defaultStateDir              = "~/.local/share/banana3d"
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultNotifyRequestTimeout  = 10

	apiKeyEnv = "BANANA3D_API_KEY"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Service: Service{
			BaseURL:        defaultServiceBaseURL,
			RequestTimeout: defaultServiceRequestTimeout,
			UserAgent:      defaultServiceUserAgent,
		},
		Polling: Polling{
			IntervalMS:     defaultPollIntervalMS,
			TimeoutMS:      defaultPollTimeoutMS,
			ModelTimeoutMS: defaultModelTimeoutMS,
		},
		Paths: Paths{
			OutputDir: defaultOutputDir,
			StateDir:  defaultStateDir,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			ModelReady:     true,
			Errors:         true,
		},
		History: History{
			Enabled: true,
		},
	}
}

package config

const (
	defaultConfigPath            = "~/.config/slidewright/config.toml"
	defaultDataDir               = "~/.local/share/slidewright"
	defaultLogDir                = "~/.local/share/slidewright/logs"
	defaultOutputDir             = "~/.local/share/slidewright/decks"
	defaultAPIBind               = "127.0.0.1:7490"
	defaultMaxConcurrent         = 5
	defaultTaskTimeoutSeconds    = 600
	defaultRetryAttempts         = 3
	defaultRetryBackoffSeconds   = 2
	defaultWatchdogInterval      = 15
	defaultLLMBaseURL            = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel              = "openai/gpt-4o"
	defaultLLMReferer            = "https://github.com/slidewright/slidewright"
	defaultLLMTitle              = "Slidewright"
	defaultLLMTimeoutSeconds     = 120
	defaultAnalysisTemperature   = 0.3
	defaultAnalysisSummaryLength = 500
	defaultAnalysisSummaryStyle  = "academic"
	defaultAnalysisLanguage      = "en"
	defaultAnalysisKeyPoints     = 5
	defaultAnalysisMaxSlides     = 10
	defaultAnalysisMaxInputChars = 100000
	defaultRenderTemplate        = "academic"
	defaultRenderFormat          = "pptx"
	defaultCacheTTLHours         = 168
	defaultCachePrefix           = "sw:"
	defaultNotifyRequestTimeout  = 10
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:   defaultDataDir,
			LogDir:    defaultLogDir,
			OutputDir: defaultOutputDir,
			APIBind:   defaultAPIBind,
		},
		Pipeline: Pipeline{
			MaxConcurrent:       defaultMaxConcurrent,
			TaskTimeoutSeconds:  defaultTaskTimeoutSeconds,
			RetryAttempts:       defaultRetryAttempts,
			RetryBackoffSeconds: defaultRetryBackoffSeconds,
			WatchdogInterval:    defaultWatchdogInterval,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Analysis: Analysis{
			Temperature:   defaultAnalysisTemperature,
			SummaryLength: defaultAnalysisSummaryLength,
			SummaryStyle:  defaultAnalysisSummaryStyle,
			Language:      defaultAnalysisLanguage,
			KeyPoints:     defaultAnalysisKeyPoints,
			MaxSlides:     defaultAnalysisMaxSlides,
			MaxInputChars: defaultAnalysisMaxInputChars,
		},
		Render: Render{
			Template:       defaultRenderTemplate,
			Format:         defaultRenderFormat,
			IncludeFigures: true,
			IncludeNotes:   true,
		},
		Cache: Cache{
			TTLHours: defaultCacheTTLHours,
			Prefix:   defaultCachePrefix,
		},
		Notifications: Notifications{
			RequestTimeout:    defaultNotifyRequestTimeout,
			StageCompleted:    false,
			DocumentCompleted: true,
			Errors:            true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}

package config

// DefaultConfig returns a configuration with working defaults for every
// field that has a sensible one. Credentials and tag IDs must still be
// supplied by the operator.
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			Type:          "openai",
			OllamaBaseURL: "http://localhost:11434/v1/",
		},
		OCR: OCRConfig{
			PreTag:      443,
			PostTag:     444,
			DPI:         300,
			PageWorkers: 8,
		},
		Classify: ClassifyConfig{
			TagLimit:            5,
			TaxonomyLimit:       100,
			MaxPages:            3,
			TailPages:           2,
			HeaderlessCharLimit: 15000,
		},
		Daemon: DaemonConfig{
			PollIntervalSeconds:   15,
			DocumentWorkers:       4,
			MaxRetries:            20,
			MaxRetryBackoffSecs:   30,
			RequestTimeoutSeconds: 180,
			ErrorTag:              552,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

package main

import (
	"fmt"
	"os"
	"strings"
	"time"
)

type AppConfig struct {
	BaseURL  string `required:"true"`
	Token    string `required:"true"`
	TenantID int    `required:"true"`
	ParentID int    `default:"-1"`

	Workers           int `default:"5"`
	TimeoutSeconds    int `default:"300"`
	MaxRetries        int `default:"3"`
	RetryDelaySeconds int `default:"1"`
	ChunkSize         int `default:"8192"`

	QuietIntervalSeconds int `default:"2"`
	PollIntervalSeconds  int `default:"1"`
	RescanCron           string

	Exclude  []string
	LogLevel string `default:"info"`
	Notify   NotifyConfig
}

type NotifyConfig struct {
	Region  string
	Profile string
	Topic   string
}

func (c *AppConfig) Validate() error {
	problems := make([]string, 0)

	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		problems = append(problems, "BaseURL must be an http or https URL")
	}
	if c.Token == "" {
		problems = append(problems, "Token must be set")
	}
	if c.Workers < 1 {
		problems = append(problems, "Workers must be at least 1")
	}
	if c.TimeoutSeconds <= 0 {
		problems = append(problems, "TimeoutSeconds must be greater than 0")
	}
	if c.MaxRetries < 1 {
		problems = append(problems, "MaxRetries must be at least 1")
	}
	if c.RetryDelaySeconds < 0 {
		problems = append(problems, "RetryDelaySeconds must not be negative")
	}
	if c.ChunkSize <= 0 {
		problems = append(problems, "ChunkSize must be greater than 0")
	}
	if c.QuietIntervalSeconds <= 0 {
		problems = append(problems, "QuietIntervalSeconds must be greater than 0")
	}
	if c.PollIntervalSeconds <= 0 {
		problems = append(problems, "PollIntervalSeconds must be greater than 0")
	}

	if len(problems) != 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}

	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
	return nil
}

func (c AppConfig) RequestTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c AppConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

func (c AppConfig) QuietInterval() time.Duration {
	return time.Duration(c.QuietIntervalSeconds) * time.Second
}

func (c AppConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

func (c AppConfig) ConfigStringArray() []string {
	configStrArr := make([]string, 0)
	configStrArr = append(configStrArr, fmt.Sprintf("  - BaseURL: %s", c.BaseURL))
	configStrArr = append(configStrArr, fmt.Sprintf("  - TenantID: %d", c.TenantID))
	configStrArr = append(configStrArr, fmt.Sprintf("  - ParentID: %d", c.ParentID))
	configStrArr = append(configStrArr, fmt.Sprintf("  - Concurrent Uploads: %d", c.Workers))
	configStrArr = append(configStrArr, fmt.Sprintf("  - Max Retries: %d", c.MaxRetries))

	if len(c.Exclude) != 0 {
		configStrArr = append(configStrArr, fmt.Sprintf("  - Exclude: %s", strings.Join(c.Exclude, ", ")))
	}
	if c.RescanCron != "" {
		configStrArr = append(configStrArr, fmt.Sprintf("  - RescanCron: %s", c.RescanCron))
	}
	if c.Notify.Topic != "" {
		configStrArr = append(configStrArr, fmt.Sprintf("  - SNSTopic: %s", c.Notify.Topic))
	}

	return configStrArr
}

const sampleConfig = `{
  "BaseURL": "http://localhost:12345/dolphinscheduler",
  "Token": "your_access_token_here",
  "TenantID": 1,
  "ParentID": -1,
  "Workers": 5,
  "TimeoutSeconds": 300,
  "MaxRetries": 3,
  "RetryDelaySeconds": 1,
  "ChunkSize": 8192,
  "QuietIntervalSeconds": 2,
  "PollIntervalSeconds": 1,
  "Exclude": [],
  "LogLevel": "info"
}
`

// writeSampleConfig scaffolds a config file for an operator to fill in.
// Refuses to clobber an existing file.
func writeSampleConfig(path string) error {
	if _, statErr := os.Stat(path); statErr == nil {
		return fmt.Errorf("%s already exists, refusing to overwrite", path)
	}
	return os.WriteFile(path, []byte(sampleConfig), 0644)
}

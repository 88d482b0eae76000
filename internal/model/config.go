package model

type Config struct {
	Provider string        `yaml:"provider"`
	Model    string        `yaml:"model"`
	Run      RunLimits     `yaml:"run"`
	Shell    ShellConfig   `yaml:"shell"`
	Web      WebConfig     `yaml:"web"`
	Server   ServerConfig  `yaml:"server"`
	Logging  LoggingConfig `yaml:"logging"`
}

type RunLimits struct {
	MaxSteps     int    `yaml:"max_steps"`
	MaxRetries   int    `yaml:"max_retries"`
	ApprovalMode string `yaml:"approval_mode"` // strict|normal
}

type ShellConfig struct {
	AllowedCommands []string `yaml:"allowed_commands"`
	TimeoutSec      int      `yaml:"timeout_sec"`
}

type WebConfig struct {
	MaxResults int `yaml:"max_results"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
	// Token is the static bearer token seeded into the token store. The
	// WARDEN_TOKEN environment variable takes precedence.
	Token string `yaml:"token"`
	// ApprovalTimeoutSec bounds how long a worker waits for a remote
	// approval answer before auto-denying.
	ApprovalTimeoutSec int `yaml:"approval_timeout_sec"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

package assistant

import (
	"path/filepath"

	"github.com/brainybot/brainy/pkg/brainy/channels/whatsapp"
	"github.com/brainybot/brainy/pkg/brainy/llm"
	"github.com/brainybot/brainy/pkg/brainy/memory"
	"github.com/brainybot/brainy/pkg/brainy/webui"
)

// Config holds all assistant configuration.
type Config struct {
	// Name is the assistant name used in the web chat persona.
	Name string `yaml:"name"`

	// AuthorizedNumber is the counterparty phone number allowed to command
	// the assistant in two-number mode.
	AuthorizedNumber string `yaml:"authorized_number"`

	// Mode is the initial authorization mode: "two-number" or "single-number".
	Mode string `yaml:"mode"`

	// Timezone anchors the digest schedule (e.g. "Asia/Kolkata").
	Timezone string `yaml:"timezone"`

	// Ephemeral marks deployments without durable local state (e.g. free-tier
	// hosting). Memory initialization failures degrade instead of being fatal.
	Ephemeral bool `yaml:"ephemeral"`

	// DataDir is the base directory for session and memory databases.
	DataDir string `yaml:"data_dir"`

	// API configures the completion service.
	API llm.Config `yaml:"api"`

	// Memory configures the semantic memory store.
	Memory MemoryConfig `yaml:"memory"`

	// Channels configures the messaging transport.
	Channels ChannelsConfig `yaml:"channels"`

	// WebUI configures the web chat server.
	WebUI webui.Config `yaml:"webui"`

	// Digest configures the daily briefing job.
	Digest DigestConfig `yaml:"digest"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// MemoryConfig configures the memory store.
type MemoryConfig struct {
	// Path is the SQLite database file. Defaults to {data_dir}/memory.db.
	Path string `yaml:"path"`

	// Collection is the memory collection name.
	Collection string `yaml:"collection"`

	// TopK is how many memories a question retrieves.
	TopK int `yaml:"top_k"`

	// Embedding configures the embedding provider.
	Embedding memory.EmbeddingConfig `yaml:"embedding"`
}

// ChannelsConfig configures messaging transports.
type ChannelsConfig struct {
	WhatsApp whatsapp.Config `yaml:"whatsapp"`
}

// DigestConfig configures the recurring daily briefing.
type DigestConfig struct {
	// Schedule is the cron expression, evaluated in Timezone.
	Schedule string `yaml:"schedule"`

	// Tasks is the static task list blended into each briefing.
	Tasks []string `yaml:"tasks"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	// Level is "debug", "info", "warn", or "error".
	Level string `yaml:"level"`

	// Format is "json" or "text".
	Format string `yaml:"format"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:     "Brainy",
		Mode:     string(ModeDualIdentity),
		Timezone: "Asia/Kolkata",
		DataDir:  "./data",
		API: llm.Config{
			Model:     "gemini-2.5-flash",
			ChatModel: "gemini-2.5-pro",
		},
		Memory: MemoryConfig{
			Collection: "memory",
			TopK:       3,
			Embedding: memory.EmbeddingConfig{
				Provider: "gemini",
			},
		},
		Channels: ChannelsConfig{
			WhatsApp: whatsapp.DefaultConfig(),
		},
		WebUI: webui.Config{
			Enabled: true,
			Address: ":3001",
		},
		Digest: DigestConfig{
			Schedule: "0 7 * * *",
			Tasks:    append([]string(nil), defaultDigestTasks...),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// applyDefaults fills empty fields of a loaded config from the defaults.
func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Name == "" {
		c.Name = def.Name
	}
	if c.Mode == "" {
		c.Mode = def.Mode
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	if c.API.Model == "" {
		c.API.Model = def.API.Model
	}
	if c.API.ChatModel == "" {
		c.API.ChatModel = def.API.ChatModel
	}
	if c.Memory.Collection == "" {
		c.Memory.Collection = def.Memory.Collection
	}
	if c.Memory.TopK <= 0 {
		c.Memory.TopK = def.Memory.TopK
	}
	if c.Memory.Embedding.Provider == "" {
		c.Memory.Embedding.Provider = def.Memory.Embedding.Provider
	}
	if c.Channels.WhatsApp.SessionDir == "" && c.Channels.WhatsApp.DatabasePath == "" {
		c.Channels.WhatsApp = def.Channels.WhatsApp
	}
	if c.WebUI.Address == "" {
		c.WebUI.Address = def.WebUI.Address
	}
	if c.Digest.Schedule == "" {
		c.Digest.Schedule = def.Digest.Schedule
	}
	if len(c.Digest.Tasks) == 0 {
		c.Digest.Tasks = append([]string(nil), def.Digest.Tasks...)
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = def.Logging.Format
	}
	if c.Memory.Path == "" {
		c.Memory.Path = filepath.Join(c.DataDir, "memory.db")
	}
}

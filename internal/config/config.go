// Package config loads application settings from an optional YAML file and
// environment variables, in that order.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration values.
type Config struct {
	Audio   AudioConfig   `yaml:"audio"`
	Vision  VisionConfig  `yaml:"vision"`
	LLM     LLMConfig     `yaml:"llm"`
	VLM     VLMConfig     `yaml:"vlm"`
	Intent  IntentConfig  `yaml:"intent"`
	Server  ServerConfig  `yaml:"server"`
	Session SessionConfig `yaml:"session"`

	// MaxConversationHistory is the sliding window of turns kept for
	// grounding.
	MaxConversationHistory int `yaml:"max_conversation_history"`

	LogFile string `yaml:"log_file"`
	// LogLevelName is the YAML-facing level; Load resolves it into LogLevel
	// after the SIDECOACH_LOG_LEVEL override is applied.
	LogLevelName string     `yaml:"log_level"`
	LogLevel     slog.Level `yaml:"-"`
}

type AudioConfig struct {
	// Engine selects the capture backend: "miniaudio" or "portaudio".
	Engine     string `yaml:"engine"`
	SampleRate int    `yaml:"sample_rate"`
	FrameSize  int    `yaml:"frame_size"`

	VADThreshold float64 `yaml:"vad_threshold"`
	// SilenceTimeoutSeconds of trailing silence finalize a segment.
	SilenceTimeoutSeconds float64 `yaml:"silence_timeout"`

	// CaptureSelf adds a second capture lane for the local speaker.
	CaptureSelf bool `yaml:"capture_self"`
}

func (c AudioConfig) SilenceTimeout() time.Duration {
	return time.Duration(c.SilenceTimeoutSeconds * float64(time.Second))
}

type VisionConfig struct {
	Enabled bool `yaml:"enabled"`
	// CaptureIntervalSeconds between screen polls.
	CaptureIntervalSeconds float64 `yaml:"capture_interval"`
	DiffThreshold          float64 `yaml:"diff_threshold"`
}

func (c VisionConfig) CaptureInterval() time.Duration {
	return time.Duration(c.CaptureIntervalSeconds * float64(time.Second))
}

type LLMConfig struct {
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

type VLMConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

type IntentConfig struct {
	MinLength     int     `yaml:"min_length"`
	MinConfidence float64 `yaml:"min_confidence"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type SessionConfig struct {
	DatabasePath string `yaml:"database_path"`
	ReportsDir   string `yaml:"reports_dir"`
}

func defaults() Config {
	return Config{
		Audio: AudioConfig{
			Engine:                "miniaudio",
			SampleRate:            16000,
			FrameSize:             512,
			VADThreshold:          0.5,
			SilenceTimeoutSeconds: 1.5,
		},
		Vision: VisionConfig{
			Enabled:                true,
			CaptureIntervalSeconds: 1.5,
			DiffThreshold:          0.05,
		},
		LLM: LLMConfig{
			BaseURL:     "https://api.deepseek.com/v1",
			Model:       "deepseek-chat",
			MaxTokens:   512,
			Temperature: 0.3,
		},
		VLM: VLMConfig{
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
		},
		Intent: IntentConfig{
			MinLength:     4,
			MinConfidence: 0.6,
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8765,
		},
		Session: SessionConfig{
			DatabasePath: "sidecoach.db",
			ReportsDir:   "reports",
		},
		MaxConversationHistory: 20,
		LogFile:                "sidecoach.log",
		LogLevel:               slog.LevelInfo,
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// environment variable overrides.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path == "" {
		path = os.Getenv("SIDECOACH_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.LLM.APIKey = getEnv("LLM_API_KEY", cfg.LLM.APIKey)
	cfg.LLM.BaseURL = getEnv("LLM_BASE_URL", cfg.LLM.BaseURL)
	cfg.LLM.Model = getEnv("LLM_MODEL", cfg.LLM.Model)
	cfg.VLM.APIKey = getEnv("VLM_API_KEY", cfg.VLM.APIKey)
	cfg.VLM.BaseURL = getEnv("VLM_BASE_URL", cfg.VLM.BaseURL)
	cfg.VLM.Model = getEnv("VLM_MODEL", cfg.VLM.Model)
	cfg.Audio.Engine = getEnv("AUDIO_ENGINE", cfg.Audio.Engine)
	cfg.Session.DatabasePath = getEnv("SIDECOACH_DB", cfg.Session.DatabasePath)
	cfg.LogFile = getEnv("SIDECOACH_LOG_FILE", cfg.LogFile)
	cfg.LogLevel = ParseLogLevel(getEnv("SIDECOACH_LOG_LEVEL", cfg.LogLevelName))

	if port := os.Getenv("SERVER_PORT"); port != "" {
		parsed, err := strconv.Atoi(port)
		if err != nil {
			return cfg, fmt.Errorf("invalid SERVER_PORT: %w", err)
		}
		cfg.Server.Port = parsed
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// ParseLogLevel maps a level name to its slog level, defaulting to info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

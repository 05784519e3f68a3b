// Package config provides application configuration management.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jmpijll/discrec/internal/types"
	"github.com/jmpijll/discrec/internal/util"
)

// Configuration defaults are used when values are not specified.
const (
	DefaultPort               = 8085
	DefaultOutputDirName      = "discrec"
	DefaultFormat             = string(types.FormatFLAC)
	DefaultSilenceWindowSec   = 5
	DefaultSampleRate         = 48000
	DefaultChannels           = 2
	DefaultBotTokenEnv        = "DISCORD_BOT_TOKEN"
	DefaultMaxDurationMinutes = 0 // unlimited
)

// validate checks struct tags on load and on every mutation.
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return fld.Name
		}
		return name
	})
}

// RecordingConfig holds capture and encoding settings.
type RecordingConfig struct {
	Mode               string  `json:"mode" validate:"required,oneof=system voice"`            // Capture origin
	OutputDir          string  `json:"output_dir" validate:"required"`                         // Destination directory
	Format             string  `json:"format" validate:"required,oneof=wav flac ogg"`          // Target file format
	TrimSilence        bool    `json:"trim_silence"`                                           // Gate away boundary silence
	SilenceThreshold   float64 `json:"silence_threshold" validate:"gte=0,lte=1"`               // Normalized peak threshold
	SilenceWindowSec   int     `json:"silence_window_sec" validate:"gte=1,lte=60"`             // Gate buffer depth in seconds
	MaxDurationMinutes int     `json:"max_duration_minutes" validate:"oneof=0 5 15 30 60 120"` // Auto-stop limit, 0 = unlimited
	SampleRate         int     `json:"sample_rate" validate:"oneof=44100 48000"`               // System capture rate
	Channels           int     `json:"channels" validate:"oneof=1 2"`                          // System capture channels
	Device             string  `json:"device" validate:"omitempty,max=256"`                    // Capture device name substring
}

// VoiceConfig holds Discord bot settings for voice mode. The token
// itself stays in the environment, never in the config file.
type VoiceConfig struct {
	GuildID         string `json:"guild_id" validate:"omitempty,numeric,max=20"`   // Server to join
	ChannelID       string `json:"channel_id" validate:"omitempty,numeric,max=20"` // Voice channel to record
	TokenEnv        string `json:"token_env" validate:"omitempty,max=64"`          // Env var holding the bot token
	Notify          bool   `json:"notify"`                                         // Post start/stop notices in channel chat
	AutoStopOnEmpty bool   `json:"auto_stop_on_empty"`                             // Stop when the channel empties
}

// UploadConfig holds S3-compatible storage settings for finished files.
type UploadConfig struct {
	Endpoint        string `json:"endpoint" validate:"omitempty,url,max=2048"` // Custom endpoint (empty = AWS)
	Region          string `json:"region" validate:"omitempty,max=64"`
	Bucket          string `json:"bucket" validate:"omitempty,max=253"`
	AccessKeyID     string `json:"access_key_id" validate:"omitempty,max=128"`
	SecretAccessKey string `json:"secret_access_key" validate:"omitempty,max=128"`
	Prefix          string `json:"prefix" validate:"omitempty,max=256"` // Object key prefix
}

// ServerConfig holds control surface settings.
type ServerConfig struct {
	Port int `json:"port" validate:"gte=1,lte=65535"` // HTTP server port
}

// Config holds all application configuration. It is safe for concurrent use.
type Config struct {
	Recording RecordingConfig `json:"recording"`
	Voice     VoiceConfig     `json:"voice"`
	Upload    UploadConfig    `json:"upload"`
	Server    ServerConfig    `json:"server"`

	mu       sync.RWMutex
	filePath string
}

// New creates a Config bound to the given file path.
func New(filePath string) *Config {
	return &Config{filePath: filePath}
}

// Load reads the configuration file, applies defaults and validates the
// result. A missing file is created with defaults.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.filePath)
	switch {
	case os.IsNotExist(err):
		// First run: write a default config the user can edit.
	case err != nil:
		return util.WrapError("read config file", err)
	default:
		if err := json.Unmarshal(data, c); err != nil {
			return util.WrapError("parse config file", err)
		}
	}

	c.applyDefaults()
	if err := c.validateLocked(); err != nil {
		return err
	}
	return c.saveLocked()
}

func (c *Config) applyDefaults() {
	if c.Recording.Mode == "" {
		c.Recording.Mode = string(types.ModeSystem)
	}
	if c.Recording.OutputDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		c.Recording.OutputDir = filepath.Join(home, DefaultOutputDirName)
	}
	if c.Recording.Format == "" {
		c.Recording.Format = DefaultFormat
	}
	if c.Recording.SilenceThreshold == 0 {
		c.Recording.SilenceThreshold = types.DefaultSilenceThreshold
	}
	if c.Recording.SilenceWindowSec == 0 {
		c.Recording.SilenceWindowSec = DefaultSilenceWindowSec
	}
	if c.Recording.SampleRate == 0 {
		c.Recording.SampleRate = DefaultSampleRate
	}
	if c.Recording.Channels == 0 {
		c.Recording.Channels = DefaultChannels
	}
	if c.Voice.TokenEnv == "" {
		c.Voice.TokenEnv = DefaultBotTokenEnv
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
}

func (c *Config) validateLocked() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := util.ValidatePath("recording.output_dir", c.Recording.OutputDir); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func (c *Config) saveLocked() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return util.WrapError("encode config", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.filePath), 0o755); err != nil {
		return util.WrapError("create config directory", err)
	}
	// Write-then-rename keeps the file intact if we crash mid-save.
	tmp := c.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return util.WrapError("write config file", err)
	}
	if err := os.Rename(tmp, c.filePath); err != nil {
		return util.WrapError("replace config file", err)
	}
	return nil
}

// Snapshot is a point-in-time copy of all settings.
type Snapshot struct {
	Recording RecordingConfig `json:"recording"`
	Voice     VoiceConfig     `json:"voice"`
	Upload    UploadConfig    `json:"upload"`
	Server    ServerConfig    `json:"server"`
}

// Snapshot returns a consistent copy of the current configuration.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		Recording: c.Recording,
		Voice:     c.Voice,
		Upload:    c.Upload,
		Server:    c.Server,
	}
}

// Format returns the configured recording format.
func (c *Config) Format() types.Format {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return types.Format(c.Recording.Format)
}

// Mode returns the configured capture mode.
func (c *Config) Mode() types.Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return types.Mode(c.Recording.Mode)
}

// MaxDuration returns the auto-stop limit; zero means unlimited.
func (c *Config) MaxDuration() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.Recording.MaxDurationMinutes) * time.Minute
}

// SilenceWindow returns the gate buffer depth.
func (c *Config) SilenceWindow() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.Recording.SilenceWindowSec) * time.Second
}

// BotToken reads the Discord bot token from the configured environment
// variable.
func (c *Config) BotToken() string {
	c.mu.RLock()
	env := c.Voice.TokenEnv
	c.mu.RUnlock()
	return os.Getenv(env)
}

// SetRecording replaces the recording settings and persists the file.
func (c *Config) SetRecording(rec RecordingConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.Recording
	c.Recording = rec
	if err := c.validateLocked(); err != nil {
		c.Recording = old
		return err
	}
	return c.saveLocked()
}

// SetVoice replaces the voice settings and persists the file.
func (c *Config) SetVoice(v VoiceConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.Voice
	c.Voice = v
	if err := c.validateLocked(); err != nil {
		c.Voice = old
		return err
	}
	return c.saveLocked()
}

// SetUpload replaces the upload settings and persists the file.
func (c *Config) SetUpload(u UploadConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.Upload
	c.Upload = u
	if err := c.validateLocked(); err != nil {
		c.Upload = old
		return err
	}
	return c.saveLocked()
}

// UploadConfigured reports whether all required upload settings are set.
func (c *Config) UploadConfigured() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return util.IsConfigured(c.Upload.Bucket, c.Upload.AccessKeyID, c.Upload.SecretAccessKey)
}

// ValidMaxDuration reports whether minutes is an allowed limit.
func ValidMaxDuration(minutes int) bool {
	return slices.Contains(types.MaxDurationChoices, minutes)
}

package server

// Request types for WebSocket commands with validation tags. Fields are
// pointers so clients can update settings partially; nil fields keep
// their current value.

// RecordingUpdateRequest is the request body for settings/recording.
type RecordingUpdateRequest struct {
	Mode               *string  `json:"mode" validate:"omitempty,oneof=system voice"`
	OutputDir          *string  `json:"output_dir" validate:"omitempty,max=4096"`
	Format             *string  `json:"format" validate:"omitempty,oneof=wav flac ogg"`
	TrimSilence        *bool    `json:"trim_silence"`
	SilenceThreshold   *float64 `json:"silence_threshold" validate:"omitempty,gte=0,lte=1"`
	SilenceWindowSec   *int     `json:"silence_window_sec" validate:"omitempty,gte=1,lte=60"`
	MaxDurationMinutes *int     `json:"max_duration_minutes" validate:"omitempty,oneof=0 5 15 30 60 120"`
	Device             *string  `json:"device" validate:"omitempty,max=256"`
}

// VoiceUpdateRequest is the request body for settings/voice.
type VoiceUpdateRequest struct {
	GuildID         *string `json:"guild_id" validate:"omitempty,numeric,max=20"`
	ChannelID       *string `json:"channel_id" validate:"omitempty,numeric,max=20"`
	TokenEnv        *string `json:"token_env" validate:"omitempty,max=64"`
	Notify          *bool   `json:"notify"`
	AutoStopOnEmpty *bool   `json:"auto_stop_on_empty"`
}

// UploadUpdateRequest is the request body for settings/upload.
type UploadUpdateRequest struct {
	Endpoint        *string `json:"endpoint" validate:"omitempty,url,max=2048"`
	Region          *string `json:"region" validate:"omitempty,max=64"`
	Bucket          *string `json:"bucket" validate:"omitempty,max=253"`
	AccessKeyID     *string `json:"access_key_id" validate:"omitempty,max=128"`
	SecretAccessKey *string `json:"secret_access_key" validate:"omitempty,max=128"`
	Prefix          *string `json:"prefix" validate:"omitempty,max=256"`
}

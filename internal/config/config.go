// Package config loads process settings from the environment.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dontdude/vedit/internal/platform/ffmpeg"
	"github.com/dontdude/vedit/internal/platform/storage"
)

// Transcoder backends.
const (
	TranscoderExec   = "exec"
	TranscoderDocker = "docker"
)

// Event channel and repository backends. Memory only serves a single
// process; cmd/watch needs Redis.
const (
	BrokerRedis  = "redis"
	BrokerMemory = "memory"
)

type Config struct {
	HTTPAddr string
	LogLevel slog.Level
	Broker   string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// KeyPrefix namespaces every Redis key and channel.
	KeyPrefix string

	// EventTTL is how long a job's event history is kept for late subscribers.
	EventTTL        time.Duration
	EventHistoryMax int64

	Storage storage.Config

	Transcoder     string
	FFmpegPath     string
	FFmpeg         ffmpeg.Options
	DockerImage    string
	DockerMemoryMB int64
	TempDir        string

	TranscriptionURL     string
	TranscriptionTimeout time.Duration

	// JobTimeout bounds a single job run. Zero disables it.
	JobTimeout        time.Duration
	MaxConcurrentJobs int

	RateLimit float64
	RateBurst float64

	ShutdownTimeout time.Duration
}

// Load reads the environment. Malformed numbers fall back to their defaults.
func Load() Config {
	return load(os.Getenv)
}

func load(getenv func(string) string) Config {
	defaults := ffmpeg.DefaultOptions()

	tempDir := getenv("VEDIT_TMP_DIR")
	if tempDir == "" {
		tempDir = os.TempDir()
	}

	return Config{
		HTTPAddr: valueOrDefault(getenv("HTTP_ADDR"), ":8080"),
		LogLevel: parseLevel(getenv("LOG_LEVEL")),
		Broker:   strings.ToLower(valueOrDefault(getenv("BROKER"), BrokerRedis)),

		RedisAddr:     valueOrDefault(getenv("REDIS_ADDR"), "localhost:6379"),
		RedisPassword: getenv("REDIS_PASSWORD"),
		RedisDB:       parseInt(getenv("REDIS_DB"), 0),
		KeyPrefix:     valueOrDefault(getenv("REDIS_KEY_PREFIX"), "vedit"),

		EventTTL:        parseDuration(getenv("EVENT_TTL"), 10*time.Minute),
		EventHistoryMax: int64(parseInt(getenv("EVENT_HISTORY_MAX"), 256)),

		Storage: storage.Config{
			Endpoint:      valueOrDefault(getenv("MINIO_ENDPOINT"), "localhost:9000"),
			AccessKey:     valueOrDefault(getenv("MINIO_ACCESS_KEY"), "minio"),
			SecretKey:     valueOrDefault(getenv("MINIO_SECRET_KEY"), "minio123"),
			UseSSL:        parseBool(getenv("MINIO_USE_SSL"), false),
			Region:        getenv("MINIO_REGION"),
			Bucket:        valueOrDefault(getenv("MINIO_BUCKET"), "videos"),
			Folder:        valueOrDefault(getenv("MINIO_FOLDER"), "video_editor"),
			PublicBaseURL: getenv("MINIO_PUBLIC_URL"),
			PresignExpiry: parseDuration(getenv("MINIO_PRESIGN_EXPIRY"), 24*time.Hour),
		},

		Transcoder: strings.ToLower(valueOrDefault(getenv("TRANSCODER"), TranscoderExec)),
		FFmpegPath: valueOrDefault(getenv("FFMPEG_PATH"), "ffmpeg"),
		FFmpeg: ffmpeg.Options{
			Preset:       valueOrDefault(getenv("FFMPEG_PRESET"), defaults.Preset),
			CRF:          parseInt(getenv("VIDEO_CRF"), defaults.CRF),
			AudioCodec:   valueOrDefault(getenv("AUDIO_CODEC"), defaults.AudioCodec),
			AudioBitrate: valueOrDefault(getenv("AUDIO_BITRATE"), defaults.AudioBitrate),
		},
		DockerImage:    valueOrDefault(getenv("DOCKER_IMAGE"), "jrottenberg/ffmpeg:6.1-ubuntu"),
		DockerMemoryMB: int64(parseInt(getenv("DOCKER_MEMORY_MB"), 1024)),
		TempDir:        tempDir,

		TranscriptionURL:     valueOrDefault(getenv("TRANSCRIPTION_URL"), "http://localhost:5000"),
		TranscriptionTimeout: parseDuration(getenv("TRANSCRIPTION_TIMEOUT"), 10*time.Minute),

		JobTimeout:        parseDuration(getenv("JOB_TIMEOUT"), 0),
		MaxConcurrentJobs: parseInt(getenv("MAX_CONCURRENT_JOBS"), 0),

		RateLimit: parseFloat(getenv("RATE_LIMIT"), 0.5),
		RateBurst: parseFloat(getenv("RATE_BURST"), 5),

		ShutdownTimeout: parseDuration(getenv("SHUTDOWN_TIMEOUT"), 30*time.Second),
	}
}

func parseLevel(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parseInt(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseFloat(value string, fallback float64) float64 {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func parseBool(value string, fallback bool) bool {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

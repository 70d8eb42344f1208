// Package config loads the pipeline's runtime configuration from the
// environment, with an optional .env file for local development.
package config

import (
	"log/slog"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the immutable pipeline configuration. Once a pipeline is
// started with a Config, its values never change; components that need
// sample/second/byte conversions call the helpers below.
type Config struct {
	SampleRate int
	Channels   int

	PreloadSizeSeconds     float64
	PreloadThresholdSeconds float64
	BufferSizeSeconds      float64
	LatencySeconds         float64

	// HTTP / process level settings, not part of the audio pipeline proper
	// but loaded alongside it the way the teacher's Config bundles both.
	Port        string
	StationName string
	JWTSecret   string
}

// Load reads configuration from the environment. It first attempts to load
// a ".env" file (silently ignored if absent), matching the convention used
// by ivugurura-radio-studio's entrypoint.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}

	return &Config{
		SampleRate:              getEnvAsInt("SAMPLE_RATE", 44100),
		Channels:                getEnvAsInt("CHANNELS", 2),
		PreloadSizeSeconds:      getEnvAsFloat("PRELOAD_SIZE_SECONDS", 300),
		PreloadThresholdSeconds: getEnvAsFloat("PRELOAD_THRESHOLD_SECONDS", 10),
		BufferSizeSeconds:       getEnvAsFloat("BUFFER_SIZE_SECONDS", 0.1),
		LatencySeconds:          getEnvAsFloat("LATENCY_SECONDS", 0.1),
		Port:                    getEnv("PORT", "8000"),
		StationName:             getEnv("STATION_NAME", "Turntable"),
		JWTSecret:               getEnv("JWT_SECRET", "change-me-in-production-please"),
	}
}

// Default returns a Config populated with the spec's default values,
// useful for tests and for callers that don't want environment loading.
func Default() *Config {
	return &Config{
		SampleRate:              44100,
		Channels:                2,
		PreloadSizeSeconds:      300,
		PreloadThresholdSeconds: 10,
		BufferSizeSeconds:       0.1,
		LatencySeconds:          0.1,
		Port:                    "8000",
		StationName:             "Turntable",
		JWTSecret:               "change-me-in-production-please",
	}
}

// SamplesPerSecond returns the number of samples (all channels combined)
// that make up one second of audio at this config's sample rate.
func (c *Config) SamplesPerSecond() int {
	return c.SampleRate * c.Channels
}

// FramesToSamples converts a frame count (one value per channel) to a
// sample count (interleaved, channel_count values per frame).
func (c *Config) FramesToSamples(frames int) int {
	return frames * c.Channels
}

// SamplesToFrames converts an interleaved sample count back to frames.
func (c *Config) SamplesToFrames(samples int) int {
	return samples / c.Channels
}

// SecondsToSamples converts a duration in seconds to an interleaved sample
// count, rounding down to the nearest whole frame.
func (c *Config) SecondsToSamples(seconds float64) int {
	frames := int(seconds * float64(c.SampleRate))
	return c.FramesToSamples(frames)
}

// SamplesToSeconds converts an interleaved sample count to seconds.
func (c *Config) SamplesToSeconds(samples int) float64 {
	frames := c.SamplesToFrames(samples)
	return float64(frames) / float64(c.SampleRate)
}

// SamplesToBytes converts an interleaved float32 sample count to the byte
// length of its canonical in-memory representation (4 bytes per sample).
func (c *Config) SamplesToBytes(samples int) int {
	return samples * 4
}

// PreloadSizeInSamples is the lookahead window (in interleaved samples)
// Ingestion tries to keep buffered for the head of a queue.
func (c *Config) PreloadSizeInSamples() int {
	return c.SecondsToSamples(c.PreloadSizeSeconds)
}

// PreloadThresholdInSamples is the forward-availability floor below which
// Timeline.preload requests more data.
func (c *Config) PreloadThresholdInSamples() int {
	return c.SecondsToSamples(c.PreloadThresholdSeconds)
}

// BufferSizeInSamples is both the per-tick render size and (via
// BufferSizeSeconds) the tick period.
func (c *Config) BufferSizeInSamples() int {
	return c.SecondsToSamples(c.BufferSizeSeconds)
}

// LatencyInSamples is the size of a Stream's preload cache.
func (c *Config) LatencyInSamples() int {
	return c.SecondsToSamples(c.LatencySeconds)
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(name string, defaultVal int) int {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultVal
}

func getEnvAsFloat(name string, defaultVal float64) float64 {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
			return value
		}
	}
	return defaultVal
}

// Package envconfig reads the environment variables understood by the
// trainer.
//
//   - VAE_DEBUG: log level (true for debug, or an integer verbosity)
//   - VAE_SAVE_PATH, VAE_LOG_PATH: override the configured output directories
//   - VAE_TRAIN_DATA, VAE_TEST_DATA: override the configured dataset files
//   - VAE_EPOCHS: override the configured epoch count
package envconfig

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// LogLevel returns the log level for the application.
// Values are 0 or false INFO (default), 1 or true DEBUG, 2 TRACE.
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("VAE_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}
	return level
}

// Var returns an environment variable stripped of leading and trailing
// quotes and spaces.
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

// String returns a getter for a string variable.
func String(key string) func() string {
	return func() string {
		return Var(key)
	}
}

// Int returns a getter for an integer variable. Zero means unset; an
// unparsable value is logged and treated as unset.
func Int(key string) func() int {
	return func() int {
		s := Var(key)
		if s == "" {
			return 0
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			slog.Warn("invalid environment variable, ignoring", "key", key, "value", s)
			return 0
		}
		return n
	}
}

var (
	// SavePath overrides Path.save_path.
	SavePath = String("VAE_SAVE_PATH")
	// LogPath overrides Path.log_path.
	LogPath = String("VAE_LOG_PATH")
	// TrainData overrides Path.train_data_path.
	TrainData = String("VAE_TRAIN_DATA")
	// TestData overrides Path.test_data_path.
	TestData = String("VAE_TEST_DATA")
	// Epochs overrides train_params.epochs when positive.
	Epochs = Int("VAE_EPOCHS")
)

// EnvVar describes one variable for help output.
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap returns every variable with its current value.
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"VAE_DEBUG":      {"VAE_DEBUG", LogLevel(), "Show additional debug information (e.g. VAE_DEBUG=1)"},
		"VAE_SAVE_PATH":  {"VAE_SAVE_PATH", SavePath(), "Directory for model snapshots and latent dumps"},
		"VAE_LOG_PATH":   {"VAE_LOG_PATH", LogPath(), "Directory for the checkpoint and history"},
		"VAE_TRAIN_DATA": {"VAE_TRAIN_DATA", TrainData(), "Training .npy file"},
		"VAE_TEST_DATA":  {"VAE_TEST_DATA", TestData(), "Test .npy file"},
		"VAE_EPOCHS":     {"VAE_EPOCHS", Epochs(), "Number of epochs to train"},
	}
}

// Values returns every variable's current value as a string.
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}

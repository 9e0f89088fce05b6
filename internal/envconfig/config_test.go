package envconfig

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":      slog.LevelInfo,
		"false": slog.LevelInfo,
		"0":     slog.LevelInfo,
		"true":  slog.LevelDebug,
		"1":     slog.LevelDebug,
		"2":     slog.Level(-8),
		"-1":    slog.LevelWarn,
	}

	for input, want := range cases {
		t.Run(input, func(t *testing.T) {
			t.Setenv("VAE_DEBUG", input)
			if got := LogLevel(); got != want {
				t.Errorf("LogLevel() = %v, want %v", got, want)
			}
		})
	}
}

func TestVarTrimsQuotesAndSpace(t *testing.T) {
	t.Setenv("VAE_SAVE_PATH", `  "/tmp/out"  `)
	assert.Equal(t, "/tmp/out", SavePath())

	t.Setenv("VAE_LOG_PATH", "'logs'")
	assert.Equal(t, "logs", LogPath())
}

func TestEpochs(t *testing.T) {
	t.Setenv("VAE_EPOCHS", "")
	assert.Equal(t, 0, Epochs())

	t.Setenv("VAE_EPOCHS", "12")
	assert.Equal(t, 12, Epochs())

	t.Setenv("VAE_EPOCHS", "twelve")
	assert.Equal(t, 0, Epochs())
}

func TestValues(t *testing.T) {
	t.Setenv("VAE_TRAIN_DATA", "train.npy")
	vals := Values()
	assert.Equal(t, "train.npy", vals["VAE_TRAIN_DATA"])
	assert.Contains(t, vals, "VAE_DEBUG")
}

package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/iwvelando/revenue-recognition/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.LoggingConfig
		override  string
		wantLevel zapcore.Level
		wantError bool
	}{
		{
			name:      "Defaults",
			cfg:       config.LoggingConfig{},
			wantLevel: zapcore.InfoLevel,
		},
		{
			name:      "Console debug",
			cfg:       config.LoggingConfig{Level: "debug", Format: "console"},
			wantLevel: zapcore.DebugLevel,
		},
		{
			name:      "Override wins",
			cfg:       config.LoggingConfig{Level: "debug"},
			override:  "error",
			wantLevel: zapcore.ErrorLevel,
		},
		{
			name:      "Warning alias",
			cfg:       config.LoggingConfig{Level: "warning"},
			wantLevel: zapcore.WarnLevel,
		},
		{
			name:      "Invalid level",
			cfg:       config.LoggingConfig{Level: "verbose"},
			wantError: true,
		},
		{
			name:      "Invalid format",
			cfg:       config.LoggingConfig{Format: "xml"},
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.cfg, tt.override)
			if tt.wantError {
				if err == nil {
					t.Errorf("NewLogger() expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewLogger() error = %v", err)
			}
			if !logger.Core().Enabled(tt.wantLevel) {
				t.Errorf("level %v not enabled", tt.wantLevel)
			}
			if tt.wantLevel > zapcore.DebugLevel && logger.Core().Enabled(tt.wantLevel-1) {
				t.Errorf("level %v enabled, expected %v to be the minimum", tt.wantLevel-1, tt.wantLevel)
			}
		})
	}
}

func TestNewLoggerOutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "revrec.log")

	logger, err := NewLogger(config.LoggingConfig{OutputFile: path}, "")
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	logger.Info("written to file", zap.String("op", "test"))
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), `"op":"test"`) {
		t.Errorf("log file = %q, expected the op field", string(data))
	}
}

func TestOrNop(t *testing.T) {
	if OrNop(nil) == nil {
		t.Errorf("OrNop(nil) returned nil")
	}
	logger := zap.NewExample()
	if OrNop(logger) != logger {
		t.Errorf("OrNop() replaced a non-nil logger")
	}
}

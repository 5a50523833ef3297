package loggers

import (
	"log"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gleanhub/go-claimsync"
	"github.com/gleanhub/go-claimsync/common"
	"github.com/gleanhub/go-claimsync/models"
)

// NewLogger builds the process-wide logger. JSON goes to stderr, which keeps
// stdout clean for subcommands that print machine-readable output.
func NewLogger() models.Logger {
	level := zap.NewAtomicLevelAt(zap.DebugLevel)

	logLevel := os.Getenv(claimsync.Env_LogLevel)
	if len(logLevel) > 0 {
		if parsedLevel, err := zap.ParseAtomicLevel(logLevel); err != nil {
			log.Fatalf("Error parsing log level %s: %v", logLevel, err)
		} else {
			level = parsedLevel
		}
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = level
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.TimeKey = "timestamp"

	return zap.Must(cfg.Build()).Named(common.ServiceName).Sugar()
}

// NewTestLogger writes human-readable output for test runs.
func NewTestLogger() models.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.TimeKey = "timestamp"

	return zap.Must(cfg.Build()).Sugar()
}

package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Logger is the process-wide logger. It discards everything until Initialize runs.
	Logger *zap.SugaredLogger
	// JSONOutput is true when Initialize selected the production JSON encoder.
	JSONOutput bool
)

func init() {
	Logger = zap.NewNop().Sugar()
}

// Initialize replaces the global logger.
// level accepts zap level names ("debug", "info", "warn", "error"); empty means info.
func Initialize(jsonOutput bool, level string) error {
	lvl, err := parseLevel(level)
	if err != nil {
		return err
	}
	JSONOutput = jsonOutput

	var zapLogger *zap.Logger
	if jsonOutput {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(lvl)
		zapLogger, err = cfg.Build()
		if err != nil {
			return err
		}
	} else {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		zapLogger = zap.New(
			zapcore.NewCore(
				zapcore.NewConsoleEncoder(encCfg),
				zapcore.AddSync(os.Stdout),
				lvl,
			),
		)
	}

	Logger = zapLogger.Sugar()
	return nil
}

// Named returns a child of the global logger, or of base when it is set.
func Named(base *zap.SugaredLogger, name string) *zap.SugaredLogger {
	if base == nil {
		base = Logger
	}
	return base.Named(name)
}

func parseLevel(level string) (zapcore.Level, error) {
	if strings.TrimSpace(level) == "" {
		return zapcore.InfoLevel, nil
	}
	return zapcore.ParseLevel(strings.ToLower(level))
}

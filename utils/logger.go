package utils

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	ServiceName  = "orderarb"
	LogFile      = "orderarb.log"
	ErrorLogFile = "orderarb-error.log"
)

var (
	log   *zap.Logger
	once  sync.Once
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// InitLogger builds the process logger on first use. Later calls return the
// same logger; use SetDebug to change the level afterwards.
func InitLogger(debug bool) *zap.Logger {
	once.Do(func() {
		SetDebug(debug)
		logger, err := newLogger(level,
			[]string{"stdout", LogFile},
			[]string{"stderr", ErrorLogFile})
		if err != nil {
			panic(err)
		}
		log = logger
	})

	return log
}

// newLogger builds a JSON logger tagged with the service name whose level
// follows lvl.
func newLogger(lvl zap.AtomicLevel, outputs, errorOutputs []string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.Level = lvl
	config.OutputPaths = outputs
	config.ErrorOutputPaths = errorOutputs
	config.InitialFields = map[string]interface{}{"service": ServiceName}

	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.StacktraceKey = "stacktrace"

	return config.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
}

// SetDebug switches the process logger between debug and info level. It can
// be called before or after InitLogger.
func SetDebug(enabled bool) {
	if enabled {
		level.SetLevel(zapcore.DebugLevel)
		return
	}
	level.SetLevel(zapcore.InfoLevel)
}

// DebugEnabled reports whether debug entries are currently written.
func DebugEnabled() bool {
	return level.Enabled(zapcore.DebugLevel)
}

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	if log == nil {
		return InitLogger(false)
	}
	return log
}

// CleanupLogger flushes any buffered log entries
func CleanupLogger() {
	if log != nil {
		_ = log.Sync()
	}
}

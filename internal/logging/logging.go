package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pharmacare/go-session"
	"github.com/pharmacare/go-session/internal/config"
)

// NewLogger creates a structured zap.Logger configured via env settings.
func NewLogger(cfg config.LoggerConfig) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if err := level.Set(strings.ToLower(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	zapCfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(level),
		Development: level == zapcore.DebugLevel,
		Encoding:    "json",
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey: "message",
			LevelKey:   "level",
			TimeKey:    "ts",
			NameKey:    "logger",
			EncodeLevel: func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
				enc.AppendString(l.String())
			},
			EncodeTime: zapcore.ISO8601TimeEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return zapCfg.Build()
}

// Adapter exposes a zap logger through the session.Logger interface.
type Adapter struct {
	sugar *zap.SugaredLogger
}

var _ session.Logger = Adapter{}

// Named returns a session.Logger for a component, ie "manager" or "client".
func Named(logger *zap.Logger, name string) Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Adapter{sugar: logger.Named(name).Sugar()}
}

func (a Adapter) Debug(format string, args ...any) { a.sugar.Debugf(format, args...) }
func (a Adapter) Info(format string, args ...any)  { a.sugar.Infof(format, args...) }
func (a Adapter) Warn(format string, args ...any)  { a.sugar.Warnf(format, args...) }
func (a Adapter) Error(format string, args ...any) { a.sugar.Errorf(format, args...) }

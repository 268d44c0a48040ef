package utils

import (
	"encoding"
	"errors"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var ErrUnknownLogLevel = errors.New("unknown log level (known: debug, info, warn, error)")

// LogLevel is settable from flags, config files and the environment.
type LogLevel int

var (
	_ pflag.Value              = (*LogLevel)(nil)
	_ encoding.TextUnmarshaler = (*LogLevel)(nil)
	_ encoding.TextMarshaler   = LogLevel(0)
)

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

var levels = [...]struct {
	name string
	zap  zapcore.Level
}{
	DEBUG: {"debug", zapcore.DebugLevel},
	INFO:  {"info", zapcore.InfoLevel},
	WARN:  {"warn", zapcore.WarnLevel},
	ERROR: {"error", zapcore.ErrorLevel},
}

const timeFormat = "15:04:05.000 02/01/2006 -07:00"

func (l LogLevel) valid() bool {
	return l >= DEBUG && l <= ERROR
}

func (l LogLevel) String() string {
	if !l.valid() {
		panic(ErrUnknownLogLevel)
	}
	return levels[l].name
}

func (l LogLevel) MarshalYAML() (any, error) {
	return l.String(), nil
}

func (l LogLevel) MarshalText() ([]byte, error) {
	if !l.valid() {
		return nil, ErrUnknownLogLevel
	}
	return []byte(l.String()), nil
}

// Set accepts level names in any case.
func (l *LogLevel) Set(s string) error {
	for level, def := range levels {
		if strings.EqualFold(s, def.name) {
			*l = LogLevel(level)
			return nil
		}
	}
	return ErrUnknownLogLevel
}

func (l *LogLevel) Type() string {
	return "LogLevel"
}

func (l *LogLevel) UnmarshalText(text []byte) error {
	return l.Set(string(text))
}

// Logger is also handed to pebble for its internal diagnostics.
type Logger interface {
	SimpleLogger
	pebble.Logger
}

type SimpleLogger interface {
	Debugw(msg string, keysAndValues ...any)
	Infow(msg string, keysAndValues ...any)
	Warnw(msg string, keysAndValues ...any)
	Errorw(msg string, keysAndValues ...any)
}

type ZapLogger struct {
	*zap.SugaredLogger
}

var _ Logger = (*ZapLogger)(nil)

func NewNopZapLogger() *ZapLogger {
	return &ZapLogger{zap.NewNop().Sugar()}
}

// NewZapLogger logs human readable lines to stderr.
func NewZapLogger(logLevel LogLevel, colour bool) (*ZapLogger, error) {
	if !logLevel.valid() {
		return nil, ErrUnknownLogLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	if colour {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	encCfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.Local().Format(timeFormat))
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), levels[logLevel].zap)
	return &ZapLogger{zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)).Sugar()}, nil
}

// Named returns a child logger whose entries carry the component name.
func (l *ZapLogger) Named(name string) *ZapLogger {
	return &ZapLogger{l.SugaredLogger.Named(name)}
}

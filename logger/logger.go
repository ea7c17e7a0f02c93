package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log is the process-wide logger. It is a no-op until Init is called.
var Log = zap.NewNop().Sugar()

// Options controls where and how verbosely the logger writes.
type Options struct {
	Level      string // debug, info, warn, error
	Console    bool   // human readable console encoding instead of JSON
	File       string // optional rotating log file
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Init builds the global logger. Output always goes to stdout; when File is set
// it is also written to a lumberjack-rotated file.
func Init(opts Options) error {
	level := zapcore.InfoLevel
	if opts.Level != "" {
		if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
			return err
		}
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeCaller = zapcore.ShortCallerEncoder

	var encoder zapcore.Encoder
	if opts.Console {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), level),
	}
	if opts.File != "" {
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(lj), level))
	}

	Log = zap.New(zapcore.NewTee(cores...), zap.AddCaller()).Sugar()
	return nil
}

// Sync flushes buffered log entries.
func Sync() {
	_ = Log.Sync()
}

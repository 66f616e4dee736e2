// Package logger собирает zap-логгер приложения: консоль для разработки,
// JSON для прода и опциональный файл с ротацией через lumberjack.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Zap struct {
	*zap.Logger
}

// New создаёт логгер. env="prod" включает JSON-вывод, file задаёт путь
// к файлу логов (пусто - только stdout).
func New(env, level, file string) (*Zap, error) {
	lvl := zap.NewAtomicLevel()
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl.SetLevel(zap.InfoLevel)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z07:00")

	var consoleEnc zapcore.Encoder
	if env == "prod" {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		consoleEnc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		consoleEnc = zapcore.NewConsoleEncoder(encCfg)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEnc, zapcore.Lock(os.Stdout), lvl),
	}

	if file != "" {
		fileCfg := zap.NewProductionEncoderConfig()
		fileCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		writer := zapcore.AddSync(&lumberjack.Logger{
			Filename:   file,
			MaxSize:    20,
			MaxBackups: 5,
			MaxAge:     14,
			Compress:   true,
		})
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileCfg), writer, lvl))
	}

	l := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel))
	return &Zap{Logger: l.Named("live")}, nil
}

// Nop нужен тестам и утилитам без вывода.
func Nop() *Zap {
	return &Zap{Logger: zap.NewNop()}
}

package logger

import (
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"lostfound/config"
)

// Logger 封装zap日志库
type Logger struct {
	*zap.Logger
	lumberJackLogger *lumberjack.Logger
}

// NewLogger 创建一个只输出到控制台的日志记录器
func NewLogger(level string) *Logger {
	return NewLoggerWithConfig(level, config.LogFileConfig{})
}

// NewNop 创建一个丢弃所有输出的日志记录器，用于测试
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}

// NewLoggerWithConfig 使用配置创建一个新的日志记录器
func NewLoggerWithConfig(level string, logFileConfig config.LogFileConfig) *Logger {
	zapLevel := parseLevel(level)

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	levelEnabler := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= zapLevel
	})

	// 控制台输出
	var cores []zapcore.Core
	cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.Lock(os.Stdout), levelEnabler))

	var lumberJackLogger *lumberjack.Logger

	// 如果启用了文件日志，添加文件输出
	if logFileConfig.Enabled && logFileConfig.Path != "" {
		logDir := filepath.Dir(logFileConfig.Path)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			panic(err)
		}

		lumberJackLogger = &lumberjack.Logger{
			Filename:   dailyFileName(logDir, time.Now()),
			MaxSize:    logFileConfig.MaxSize,
			MaxBackups: logFileConfig.MaxBackups,
			MaxAge:     logFileConfig.MaxAge,
			Compress:   logFileConfig.Compress,
			LocalTime:  true,
		}

		// 每天零点切换到新的日志文件
		go func() {
			for {
				now := time.Now()
				next := now.Add(time.Hour * 24)
				next = time.Date(next.Year(), next.Month(), next.Day(), 0, 0, 0, 0, next.Location())
				timer := time.NewTimer(next.Sub(now))
				<-timer.C

				lumberJackLogger.Filename = dailyFileName(logDir, time.Now())
				lumberJackLogger.Rotate()
			}
		}()

		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(lumberJackLogger), levelEnabler))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddCallerSkip(1))

	return &Logger{Logger: logger, lumberJackLogger: lumberJackLogger}
}

// Close 刷新缓冲并关闭日志文件
func (l *Logger) Close() error {
	_ = l.Logger.Sync()
	if l.lumberJackLogger != nil {
		return l.lumberJackLogger.Close()
	}
	return nil
}

// Info 记录信息级别日志
func (l *Logger) Info(msg string, fields ...interface{}) {
	l.Logger.Info(msg, fieldsToZapFields(fields...)...)
}

// Debug 记录调试级别日志
func (l *Logger) Debug(msg string, fields ...interface{}) {
	l.Logger.Debug(msg, fieldsToZapFields(fields...)...)
}

// Warn 记录警告级别日志
func (l *Logger) Warn(msg string, fields ...interface{}) {
	l.Logger.Warn(msg, fieldsToZapFields(fields...)...)
}

// Error 记录错误级别日志
func (l *Logger) Error(msg string, fields ...interface{}) {
	l.Logger.Error(msg, fieldsToZapFields(fields...)...)
}

// Fatal 记录致命错误日志并退出程序
func (l *Logger) Fatal(msg string, fields ...interface{}) {
	l.Logger.Fatal(msg, fieldsToZapFields(fields...)...)
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func dailyFileName(dir string, t time.Time) string {
	return filepath.Join(dir, t.Format("2006-01-02")+".log")
}

// 将通用接口转换为zap字段
func fieldsToZapFields(fields ...interface{}) []zap.Field {
	zapFields := make([]zap.Field, 0, len(fields))
	for i := 0; i < len(fields); i++ {
		switch f := fields[i].(type) {
		case error:
			zapFields = append(zapFields, zap.Error(f))
		case string:
			if i+1 < len(fields) {
				zapFields = append(zapFields, zap.Any(f, fields[i+1]))
				i++
			}
		default:
			zapFields = append(zapFields, zap.Any("field", f))
		}
	}
	return zapFields
}

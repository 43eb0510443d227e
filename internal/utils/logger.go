package utils

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/RecoveryAshes/cnkifetch/internal/models"
)

// 日志文件名,位于 LogDir 下
const (
	MainLogFile  = "cnkifetch.log"
	ErrorLogFile = "cnkifetch_error.log"
)

// 各组件共用的结构化字段名
const (
	FieldRunID    = "run_id"
	FieldTerm     = "term"
	FieldCategory = "category"
	FieldTitle    = "title"
	FieldCode     = "code"
)

// Logger 全局日志器,InitLogger 之前不输出
var Logger = zerolog.Nop()

// LogConfig 日志配置,对应配置文件 logging 段
type LogConfig struct {
	Level      string
	LogDir     string
	MaxSize    int // MB
	MaxBackups int
	MaxAge     int // 天
	Compress   bool
}

// DefaultLogConfig 默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:      "info",
		LogDir:     "logs",
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
}

func (c LogConfig) rotating(name string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   filepath.Join(c.LogDir, name),
		MaxSize:    c.MaxSize,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAge,
		Compress:   c.Compress,
	}
}

// InitLogger 初始化全局日志器,控制台输出到标准输出
func InitLogger(config LogConfig) error {
	logger, err := NewLogger(config, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.DateTime})
	if err != nil {
		return err
	}
	Logger = logger
	log.Logger = logger

	Logger.Info().
		Str("level", zerolog.GlobalLevel().String()).
		Str("log_dir", config.LogDir).
		Msg("日志系统初始化完成")
	return nil
}

// NewLogger 创建日志器
//
// 同一条日志写入三处: console、LogDir/cnkifetch.log(全部级别)、
// LogDir/cnkifetch_error.log(仅 error 及以上)。无法识别的级别按 info 处理。
func NewLogger(config LogConfig, console io.Writer) (zerolog.Logger, error) {
	if err := os.MkdirAll(config.LogDir, 0755); err != nil {
		return zerolog.Nop(), err
	}

	level, err := zerolog.ParseLevel(config.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	writers := []io.Writer{
		config.rotating(MainLogFile),
		&FilteredWriter{Writer: config.rotating(ErrorLogFile), MinLevel: zerolog.ErrorLevel},
	}
	if console != nil {
		writers = append([]io.Writer{console}, writers...)
	}

	return zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().
		Timestamp().
		Caller().
		Logger(), nil
}

// WithRun 一次运行的子日志器,每行带 run_id、检索词和文献类型
func WithRun(base zerolog.Logger, runID string, req models.AcquisitionRequest) zerolog.Logger {
	return base.With().
		Str(FieldRunID, runID).
		Str(FieldTerm, req.SearchTerm).
		Str(FieldCategory, string(req.Category)).
		Logger()
}

// WithRecord 单篇文献的子日志器
func WithRecord(base zerolog.Logger, record models.Record) zerolog.Logger {
	return base.With().Str(FieldTitle, record.ShortTitle()).Logger()
}

// FilteredWriter 只写入 MinLevel 及以上的日志
type FilteredWriter struct {
	Writer   io.Writer
	MinLevel zerolog.Level
}

// Write 不带级别的写入一律丢弃
func (w *FilteredWriter) Write(p []byte) (n int, err error) {
	return len(p), nil
}

// WriteLevel 实现 zerolog.LevelWriter
func (w *FilteredWriter) WriteLevel(level zerolog.Level, p []byte) (n int, err error) {
	if level < w.MinLevel {
		return len(p), nil
	}
	return w.Writer.Write(p)
}

// 命令行使用的快捷方法

func Info(msg string) { Logger.Info().Msg(msg) }
func Infof(format string, args ...interface{}) { Logger.Info().Msgf(format, args...) }
func Warn(msg string) { Logger.Warn().Msg(msg) }
func Warnf(format string, args ...interface{}) { Logger.Warn().Msgf(format, args...) }
func Errorf(format string, args ...interface{}) { Logger.Error().Msgf(format, args...) }
func Debugf(format string, args ...interface{}) { Logger.Debug().Msgf(format, args...) }

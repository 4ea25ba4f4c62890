package log

import (
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// 单个日志文件默认上限，单位 MB。
const defaultLogMaxSize = 300

// FileLogConfig 为文件输出配置，由 lumberjack 负责轮转。
type FileLogConfig struct {
	RootPath string `mapstructure:"rootpath" json:"rootpath"`
	// Filename 为空时不写文件。
	Filename   string `mapstructure:"filename" json:"filename"`
	MaxSize    int    `mapstructure:"max-size" json:"max-size"`
	MaxDays    int    `mapstructure:"max-days" json:"max-days"`
	MaxBackups int    `mapstructure:"max-backups" json:"max-backups"`
}

// Config 对应配置文件 logging 段下的一项，也用于 VSERIAL_LOG_* 构造的全局 Logger。
type Config struct {
	Level string `mapstructure:"level" json:"level"`
	// Format 为 "json" 时输出 JSON，其余取值输出 console 格式。
	Format            string        `mapstructure:"format" json:"format"`
	DisableTimestamp  bool          `mapstructure:"disable-timestamp" json:"disable-timestamp"`
	Stdout            bool          `mapstructure:"stdout" json:"stdout"`
	File              FileLogConfig `mapstructure:"file" json:"file"`
	DisableCaller     bool          `mapstructure:"disable-caller" json:"disable-caller"`
	DisableStacktrace bool          `mapstructure:"disable-stacktrace" json:"disable-stacktrace"`
	// Sampling 按秒采样，语义同 zapcore.NewSamplerWithOptions。
	Sampling *zap.SamplingConfig `mapstructure:"sampling" json:"sampling"`
}

// ZapProperties 保存 Logger 的核心组件，SetLevel 通过其中的 Level 生效。
type ZapProperties struct {
	Core   zapcore.Core
	Syncer zapcore.WriteSyncer
	Level  zap.AtomicLevel
}

func newZapEncoder(cfg *Config) zapcore.Encoder {
	encCfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "name",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stack",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout("2006/01/02 15:04:05.000 -07:00"),
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	if cfg.DisableTimestamp {
		encCfg.TimeKey = ""
	}
	if strings.EqualFold(cfg.Format, "json") {
		return zapcore.NewJSONEncoder(encCfg)
	}
	return zapcore.NewConsoleEncoder(encCfg)
}

func (cfg *Config) buildOptions(errSink zapcore.WriteSyncer) []zap.Option {
	opts := []zap.Option{zap.ErrorOutput(errSink)}
	if !cfg.DisableCaller {
		opts = append(opts, zap.AddCaller())
	}
	if !cfg.DisableStacktrace {
		opts = append(opts, zap.AddStacktrace(zap.ErrorLevel))
	}
	if s := cfg.Sampling; s != nil {
		opts = append(opts, zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewSamplerWithOptions(core, time.Second, s.Initial, s.Thereafter, zapcore.SamplerHook(s.Hook))
		}))
	}
	return opts
}

// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Copyright 2019 PingCAP, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/uber/jaeger-client-go/utils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"gopkg.in/natefinch/lumberjack.v2"
)

var _globalL, _globalP, _globalR, _globalCleanup atomic.Value

// 按级别预先构造的 Logger，供 Ctx 在未绑定上下文时使用。
var _globalLevelLogger sync.Map

// RateLimiter 为限流日志使用的最小接口。
type RateLimiter interface {
	CheckCredit(delta float64) bool
}

type nopRateLimiter struct{}

func (nopRateLimiter) CheckCredit(float64) bool { return true }

// limiterBox 固定 _globalR 中存储的具体类型。
type limiterBox struct{ RateLimiter }

func init() {
	l, p := newStdLogger()
	_globalL.Store(l)
	_globalP.Store(p)
	_globalR.Store(limiterBox{nopRateLimiter{}})
	configureRateLimiterFromEnv()
}

// InitLogger 按 cfg 创建 Logger：文件输出经 lumberjack 轮转，可同时输出到标准输出。
// 级别 "trace" 视同 "debug"。
func InitLogger(cfg *Config, opts ...zap.Option) (*zap.Logger, *ZapProperties, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	output, err := openOutputs(cfg)
	if err != nil {
		return nil, nil, err
	}

	// 先以 debug 构造，再按配置收紧级别，使 SetLevel 可以向下调整。
	debugCfg := *cfg
	debugCfg.Level = "debug"
	lg, props, err := InitLoggerWithWriteSyncer(&debugCfg, output, opts...)
	if err != nil {
		return nil, nil, err
	}
	replaceLeveledLoggers(lg)
	props.Level.SetLevel(level)
	return lg.WithOptions(zap.AddCallerSkip(1)), props, nil
}

// InitTestLogger 创建写入 t.Log 的 Logger，zap 内部错误会使测试失败。
func InitTestLogger(t zaptest.TestingT, cfg *Config, opts ...zap.Option) (*zap.Logger, *ZapProperties, error) {
	writer := newTestingWriter(t)
	opts = append([]zap.Option{zap.ErrorOutput(writer.WithMarkFailed(true))}, opts...)
	return InitLoggerWithWriteSyncer(cfg, writer, opts...)
}

// InitLoggerWithWriteSyncer 以指定的 WriteSyncer 创建 Logger。
func InitLoggerWithWriteSyncer(cfg *Config, output zapcore.WriteSyncer, opts ...zap.Option) (*zap.Logger, *ZapProperties, error) {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, nil, fmt.Errorf("parse log level %q: %w", cfg.Level, err)
	}
	core := zapcore.NewCore(newZapEncoder(cfg), output, level)
	lg := zap.New(core, append(cfg.buildOptions(output), opts...)...)
	return lg, &ZapProperties{Core: core, Syncer: output, Level: level}, nil
}

func parseLevel(text string) (zapcore.Level, error) {
	if strings.EqualFold(text, "trace") {
		text = "debug"
	}
	level := zapcore.DebugLevel
	if err := level.UnmarshalText([]byte(text)); err != nil {
		return level, err
	}
	return level, nil
}

// openOutputs 合并文件与标准输出，两者都关闭时返回丢弃一切的 WriteSyncer。
func openOutputs(cfg *Config) (zapcore.WriteSyncer, error) {
	var outputs []zapcore.WriteSyncer
	if cfg.File.Filename != "" {
		lg, err := initFileLog(&cfg.File)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, zapcore.AddSync(lg))
	}
	if cfg.Stdout {
		stdout, _, err := zap.Open("stdout")
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, stdout)
	}
	return zap.CombineWriteSyncers(outputs...), nil
}

func initFileLog(cfg *FileLogConfig) (*lumberjack.Logger, error) {
	logPath := filepath.Join(cfg.RootPath, cfg.Filename)
	if st, err := os.Stat(logPath); err == nil && st.IsDir() {
		return nil, errors.Newf("log file %q is a directory", logPath)
	}
	if cfg.MaxSize == 0 {
		cfg.MaxSize = defaultLogMaxSize
	}
	lg := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxDays,
		LocalTime:  true,
	}
	registerCleanup(func() { _ = lg.Close() })
	return lg, nil
}

func newStdLogger() (*zap.Logger, *ZapProperties) {
	lg, props, _ := InitLogger(&Config{Level: "debug", Stdout: true}, zap.OnFatal(zapcore.WriteThenPanic))
	return lg, props
}

// L 返回全局 Logger，可由 ReplaceGlobals 替换，并发安全。
func L() *zap.Logger {
	return _globalL.Load().(*zap.Logger)
}

// R 返回全局限流器，未启用限流时为永不丢弃的实现。
func R() RateLimiter {
	if box, ok := _globalR.Load().(limiterBox); ok && box.RateLimiter != nil {
		return box.RateLimiter
	}
	return nopRateLimiter{}
}

func ctxL() *zap.Logger {
	level := _globalP.Load().(*ZapProperties).Level.Level()
	if l, ok := _globalLevelLogger.Load(level); ok {
		return l.(*zap.Logger)
	}
	return L()
}

// Cleanup 关闭全局 Logger 打开的日志文件。
func Cleanup() {
	if cleanup, ok := _globalCleanup.Load().(func()); ok {
		cleanup()
	}
}

// ReplaceGlobals 替换全局 Logger 及其属性。
func ReplaceGlobals(logger *zap.Logger, props *ZapProperties) {
	_globalL.Store(logger)
	_globalP.Store(props)
}

func registerCleanup(cleanup func()) {
	if old, ok := _globalCleanup.Swap(cleanup).(func()); ok {
		old()
	}
}

func replaceLeveledLoggers(debugLogger *zap.Logger) {
	for level := zapcore.DebugLevel; level <= zapcore.FatalLevel; level++ {
		_globalLevelLogger.Store(level, debugLogger.WithOptions(zap.IncreaseLevel(level)))
	}
}

// Sync 刷新全局 Logger 与按级别 Logger 的缓冲。
func Sync() error {
	if err := L().Sync(); err != nil {
		return err
	}
	var reterr error
	_globalLevelLogger.Range(func(_, val any) bool {
		if err := val.(*zap.Logger).Sync(); err != nil {
			reterr = err
			return false
		}
		return true
	})
	return reterr
}

// configureRateLimiterFromEnv 读取 VSERIAL_LOG_RATE_* 配置全局限流器。
//
//   - VSERIAL_LOG_RATE_ENABLE: "1"/"true" 时启用，默认关闭。
//   - VSERIAL_LOG_RATE_CREDIT_PER_SECOND: 每秒补充的额度，默认 1。
//   - VSERIAL_LOG_RATE_MAX_BALANCE: 额度上限，默认 60。
func configureRateLimiterFromEnv() {
	if !envBool("VSERIAL_LOG_RATE_ENABLE") {
		_globalR.Store(limiterBox{nopRateLimiter{}})
		return
	}
	credit := envFloat("VSERIAL_LOG_RATE_CREDIT_PER_SECOND", 1.0)
	maxBalance := envFloat("VSERIAL_LOG_RATE_MAX_BALANCE", 60.0)
	_globalR.Store(limiterBox{utils.NewRateLimiter(credit, maxBalance)})
}

func envBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func envFloat(key string, def float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64)
	if err != nil {
		return def
	}
	return f
}

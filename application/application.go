package application

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lk2023060901/vserial-go/internal/serializer"
	"github.com/lk2023060901/vserial-go/internal/serializer/cbor"
	"github.com/lk2023060901/vserial-go/internal/serializer/json"
	"github.com/lk2023060901/vserial-go/internal/serializer/msgpack"
	"github.com/lk2023060901/vserial-go/internal/serializer/yaml"
	vlog "github.com/lk2023060901/vserial-go/pkg/log"
	"github.com/lk2023060901/vserial-go/pkg/metrics"
	"github.com/lk2023060901/vserial-go/pkg/util/merr"
	vviper "github.com/lk2023060901/vserial-go/pkg/util/viper"
)

const defaultConfigPath = "./config.yaml"

// Application 为 vserial 进程的运行时容器，持有配置、日志与各格式的 Serializer。
type Application struct {
	file        *vviper.Config
	cfg         *serializer.Config
	session     serializer.SessionOptions
	loggers     map[string]*vlog.MLogger
	serializers map[string]serializer.Serializer
}

// Option 调整 Application 的构造参数。
type Option func(*Application)

// WithSession 设置所有 Serializer 共享的会话开关。
func WithSession(sess serializer.SessionOptions) Option {
	return func(a *Application) {
		a.session = sess
	}
}

func New(opts ...Option) *Application {
	a := &Application{cfg: serializer.NewConfig()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run 解析命令行参数并完成初始化。配置文件的查找顺序：
//  1. 默认 ./config.yaml（不存在时忽略）
//  2. 环境变量 VSERIAL_CONFIG_FILE_PATH
//  3. 命令行 --config <path> 或 --config=<path>
func (a *Application) Run(args []string) error {
	if err := a.loadConfig(args); err != nil {
		return err
	}
	if err := a.initLogging(); err != nil {
		return err
	}
	if err := a.initSerializers(); err != nil {
		return err
	}
	return nil
}

// Config 返回所有 Serializer 共享的选项句柄。
func (a *Application) Config() *serializer.Config {
	return a.cfg
}

// Logger 返回配置中的具名 Logger，未知名称回退到全局 Logger。
func (a *Application) Logger(name string) *vlog.MLogger {
	if lg, ok := a.loggers[name]; ok && lg != nil {
		return lg
	}
	return &vlog.MLogger{Logger: vlog.L()}
}

// Serializer 按格式名返回 Serializer。
func (a *Application) Serializer(format string) (serializer.Serializer, error) {
	s, ok := a.serializers[format]
	if !ok {
		return nil, merr.WrapErrParameterInvalidMsg("unknown format %q, expected one of %s",
			format, strings.Join(a.Formats(), ", "))
	}
	return s, nil
}

// Formats 返回已注册的格式名，按字典序排列。
func (a *Application) Formats() []string {
	names := make([]string, 0, len(a.serializers))
	for name := range a.serializers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterMetrics 将序列化指标注册到 registerer。
func (a *Application) RegisterMetrics(registerer prometheus.Registerer) {
	metrics.Register(registerer)
}

func configPath(args []string) (string, bool, error) {
	path, explicit := defaultConfigPath, false
	if envPath := os.Getenv("VSERIAL_CONFIG_FILE_PATH"); envPath != "" {
		path, explicit = envPath, true
	}
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--config" {
			if i+1 >= len(args) {
				return "", false, merr.WrapErrParameterInvalidMsg("missing value after --config")
			}
			path, explicit = args[i+1], true
			i++
			continue
		}
		if val, ok := strings.CutPrefix(arg, "--config="); ok && val != "" {
			path, explicit = val, true
		}
	}
	return path, explicit, nil
}

// loadConfig 读取配置文件，并将其中 serializer 段作为一次批量更新应用。
func (a *Application) loadConfig(args []string) error {
	path, explicit, err := configPath(args)
	if err != nil {
		return err
	}
	if !explicit {
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			return nil
		}
	}

	file := vviper.New()
	if err := file.LoadFile(path); err != nil {
		return merr.WrapErrIoFailed(path, err)
	}
	a.file = file

	if settings := file.Sub("serializer"); len(settings) > 0 {
		if err := a.cfg.Update(settings); err != nil {
			return errors.Wrapf(err, "apply serializer options from %q", path)
		}
	}
	return nil
}

func (a *Application) initLogging() error {
	if err := initGlobalLoggerFromEnv(); err != nil {
		return err
	}
	return a.initModuleLoggersFromConfig()
}

// initGlobalLoggerFromEnv 根据 VSERIAL_LOG_* 环境变量配置进程级 Logger。
//
//   - VSERIAL_LOG_ENABLE: "1"/"true" 时启用输出，其余视为关闭。
//   - VSERIAL_LOG_LEVEL: 日志级别，默认 "info"。
//   - VSERIAL_LOG_STDOUT: 是否输出到标准输出。
//   - VSERIAL_LOG_FILE_DIR / VSERIAL_LOG_FILE: 日志目录与文件名，文件名为空时不写文件。
//   - VSERIAL_LOG_FORMAT: "text" 或 "json"，默认 "text"。
func initGlobalLoggerFromEnv() error {
	enabled := getenvBool("VSERIAL_LOG_ENABLE", false)

	cfg := &vlog.Config{
		Level:  getenvDefault("VSERIAL_LOG_LEVEL", "info"),
		Format: getenvDefault("VSERIAL_LOG_FORMAT", "text"),
		Stdout: getenvBool("VSERIAL_LOG_STDOUT", false),
		File: vlog.FileLogConfig{
			RootPath: getenvDefault("VSERIAL_LOG_FILE_DIR", ""),
			Filename: getenvDefault("VSERIAL_LOG_FILE", ""),
		},
	}
	if !enabled {
		cfg.Stdout = false
		cfg.File.Filename = ""
	}

	logger, props, err := vlog.InitLogger(cfg)
	if err != nil {
		return fmt.Errorf("init global logger from env: %w", err)
	}
	vlog.ReplaceGlobals(logger, props)
	return nil
}

// initModuleLoggersFromConfig 按配置文件 logging 段创建具名 Logger，名称与格式名一致时
// 由对应的 Serializer 使用。
//
//	logging:
//	  msgpack:
//	    level: debug
//	    stdout: true
func (a *Application) initModuleLoggersFromConfig() error {
	if a.file == nil {
		return nil
	}
	raw := make(map[string]vlog.Config)
	if err := a.file.UnmarshalKey("logging", &raw); err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}

	a.loggers = make(map[string]*vlog.MLogger, len(raw))
	for name, lc := range raw {
		cfgCopy := lc
		logger, _, err := vlog.InitLogger(&cfgCopy)
		if err != nil {
			return fmt.Errorf("init module logger %q: %w", name, err)
		}
		a.loggers[name] = &vlog.MLogger{Logger: logger}
	}
	return nil
}

func (a *Application) initSerializers() error {
	opts := func(format string) serializer.BaseOptions {
		return serializer.BaseOptions{Config: a.cfg, Session: a.session, Logger: a.Logger(format)}
	}
	list := []serializer.Serializer{
		msgpack.New(opts("msgpack")),
		yaml.New(opts("yaml")),
		json.New(opts("json")),
		cbor.New(opts("cbor")),
	}
	a.serializers = make(map[string]serializer.Serializer, len(list))
	for _, s := range list {
		if _, dup := a.serializers[s.Name()]; dup {
			return merr.WrapErrParameterInvalidMsg("duplicate serializer %s", s.Name())
		}
		a.serializers[s.Name()] = s
	}
	return nil
}

func getenvDefault(key, def string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	return val
}

func getenvBool(key string, def bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

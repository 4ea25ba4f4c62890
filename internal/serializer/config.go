package serializer

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/atomic"

	"github.com/lk2023060901/vserial-go/pkg/log"
	"github.com/lk2023060901/vserial-go/pkg/metrics"
	"github.com/lk2023060901/vserial-go/pkg/util/merr"
	"github.com/lk2023060901/vserial-go/pkg/util/typeutil"
	"github.com/lk2023060901/vserial-go/pkg/util/viper"
	"github.com/lk2023060901/vserial-go/pkg/value"
)

// Options 为序列化器的全部可调参数。
type Options struct {
	EncodeSparseConvert   bool `mapstructure:"encode_sparse_convert"`
	EncodeSparseRatio     int  `mapstructure:"encode_sparse_ratio"`
	EncodeSparseSafe      int  `mapstructure:"encode_sparse_safe"`
	EncodeMaxDepth        int  `mapstructure:"encode_max_depth"`
	EncodeDeepAsNil       bool `mapstructure:"encode_deep_as_nil"`
	EncodeInvalidNumbers  bool `mapstructure:"encode_invalid_numbers"`
	EncodeNumberPrecision int  `mapstructure:"encode_number_precision"`
	EncodeLoadMetatables  bool `mapstructure:"encode_load_metatables"`
	EncodeUseTostring     bool `mapstructure:"encode_use_tostring"`
	EncodeInvalidAsNil    bool `mapstructure:"encode_invalid_as_nil"`
	DecodeInvalidNumbers  bool `mapstructure:"decode_invalid_numbers"`
	DecodeSaveMetatables  bool `mapstructure:"decode_save_metatables"`
	DecodeMaxDepth        int  `mapstructure:"decode_max_depth"`
}

// DefaultOptions 返回默认配置。
func DefaultOptions() Options {
	return Options{
		EncodeSparseConvert:   true,
		EncodeSparseRatio:     2,
		EncodeSparseSafe:      10,
		EncodeMaxDepth:        128,
		EncodeDeepAsNil:       false,
		EncodeInvalidNumbers:  true,
		EncodeNumberPrecision: 14,
		EncodeLoadMetatables:  true,
		EncodeUseTostring:     false,
		EncodeInvalidAsNil:    false,
		DecodeInvalidNumbers:  true,
		DecodeSaveMetatables:  true,
		DecodeMaxDepth:        128,
	}
}

// SessionOptions 为调用方会话级别的开关。
type SessionOptions struct {
	// ErrorMarshaling 为 true 时错误对象按扩展类型编码，否则编码为其消息文本。
	ErrorMarshaling bool
}

type optionKind int

const (
	boolOption optionKind = iota
	intOption
)

type optionDesc struct {
	name string
	kind optionKind
	// min 为整数选项允许的最小值。
	min int
	get func(*Options) any
	set func(*Options, any)
}

func boolDesc(name string, field func(*Options) *bool) optionDesc {
	return optionDesc{
		name: name,
		kind: boolOption,
		get:  func(o *Options) any { return *field(o) },
		set:  func(o *Options, v any) { *field(o) = v.(bool) },
	}
}

func intDesc(name string, min int, field func(*Options) *int) optionDesc {
	return optionDesc{
		name: name,
		kind: intOption,
		min:  min,
		get:  func(o *Options) any { return *field(o) },
		set:  func(o *Options, v any) { *field(o) = v.(int) },
	}
}

var optionDescs = []optionDesc{
	boolDesc("encode_sparse_convert", func(o *Options) *bool { return &o.EncodeSparseConvert }),
	intDesc("encode_sparse_ratio", 0, func(o *Options) *int { return &o.EncodeSparseRatio }),
	intDesc("encode_sparse_safe", 0, func(o *Options) *int { return &o.EncodeSparseSafe }),
	intDesc("encode_max_depth", 1, func(o *Options) *int { return &o.EncodeMaxDepth }),
	boolDesc("encode_deep_as_nil", func(o *Options) *bool { return &o.EncodeDeepAsNil }),
	boolDesc("encode_invalid_numbers", func(o *Options) *bool { return &o.EncodeInvalidNumbers }),
	intDesc("encode_number_precision", 1, func(o *Options) *int { return &o.EncodeNumberPrecision }),
	boolDesc("encode_load_metatables", func(o *Options) *bool { return &o.EncodeLoadMetatables }),
	boolDesc("encode_use_tostring", func(o *Options) *bool { return &o.EncodeUseTostring }),
	boolDesc("encode_invalid_as_nil", func(o *Options) *bool { return &o.EncodeInvalidAsNil }),
	boolDesc("decode_invalid_numbers", func(o *Options) *bool { return &o.DecodeInvalidNumbers }),
	boolDesc("decode_save_metatables", func(o *Options) *bool { return &o.DecodeSaveMetatables }),
	intDesc("decode_max_depth", 1, func(o *Options) *int { return &o.DecodeMaxDepth }),
}

var optionIndex = func() map[string]*optionDesc {
	index := make(map[string]*optionDesc, len(optionDescs))
	for i := range optionDescs {
		index[optionDescs[i].name] = &optionDescs[i]
	}
	return index
}()

// OptionNames 按声明顺序返回全部选项名。
func OptionNames() []string {
	names := typeutil.NewOrderedSet[string]()
	for i := range optionDescs {
		names.Insert(optionDescs[i].name)
	}
	return names.Collect()
}

func toBool(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case value.Bool:
		return bool(x), true
	}
	return false, false
}

func floatToInt(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	if f < math.MinInt32 || f > math.MaxInt32 {
		return 0, false
	}
	return int(f), true
}

func toInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int8:
		return int(x), true
	case int16:
		return int(x), true
	case int32:
		return int(x), true
	case int64:
		return floatToInt(float64(x))
	case uint:
		return floatToInt(float64(x))
	case uint8:
		return int(x), true
	case uint16:
		return int(x), true
	case uint32:
		return floatToInt(float64(x))
	case uint64:
		return floatToInt(float64(x))
	case float32:
		return floatToInt(float64(x))
	case float64:
		return floatToInt(x)
	case value.Number:
		return floatToInt(float64(x))
	case value.Int64:
		return floatToInt(float64(x))
	case value.Uint64:
		return floatToInt(float64(x))
	}
	return 0, false
}

// Listener 在每次批量更新成功后被同步调用一次。
type Listener func(opts Options)

type listenerEntry struct {
	id uint64
	fn Listener
}

// Config 为显式持有的序列化配置句柄，读取无锁，更新互斥。
type Config struct {
	opts atomic.Pointer[Options]

	mu        sync.Mutex
	mirror    map[string]any
	listeners []listenerEntry
	nextID    uint64
}

// NewConfig 以默认值创建配置。
func NewConfig() *Config {
	return NewConfigWith(DefaultOptions())
}

// NewConfigWith 以给定选项创建配置。
func NewConfigWith(opts Options) *Config {
	c := &Config{
		mirror: make(map[string]any, len(optionDescs)),
	}
	c.opts.Store(&opts)
	c.refreshMirror(&opts)
	return c
}

// Options 返回当前配置快照。
func (c *Config) Options() Options {
	return *c.opts.Load()
}

func (c *Config) refreshMirror(opts *Options) {
	for i := range optionDescs {
		c.mirror[optionDescs[i].name] = optionDescs[i].get(opts)
	}
}

// Update 批量更新选项：先校验全部字段，任一非法则整体拒绝；
// 通过后原子生效、刷新镜像，并按注册顺序通知监听者。
func (c *Config) Update(changes map[string]any) error {
	names := make([]string, 0, len(changes))
	for name := range changes {
		names = append(names, name)
	}
	sort.Strings(names)

	c.mu.Lock()
	next := *c.opts.Load()
	for _, name := range names {
		desc, ok := optionIndex[name]
		if !ok {
			c.mu.Unlock()
			return merr.WrapErrInvalidOption(name, changes[name], "unknown option")
		}
		raw := changes[name]
		switch desc.kind {
		case boolOption:
			b, ok := toBool(raw)
			if !ok {
				c.mu.Unlock()
				return merr.WrapErrInvalidOption(name, raw, "boolean expected")
			}
			desc.set(&next, b)
		case intOption:
			i, ok := toInt(raw)
			if !ok {
				c.mu.Unlock()
				return merr.WrapErrInvalidOption(name, raw, "integer expected")
			}
			if i < desc.min {
				c.mu.Unlock()
				return merr.WrapErrInvalidOption(name, raw, fmt.Sprintf("must be at least %d", desc.min))
			}
			desc.set(&next, i)
		}
	}
	c.opts.Store(&next)
	c.refreshMirror(&next)
	listeners := make([]listenerEntry, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	metrics.SerializerConfigUpdatesTotal.Inc()
	log.Info("serializer options updated", log.FieldComponent("serializer"), log.FieldOptions(names))

	for _, l := range listeners {
		l.fn(next)
	}
	return nil
}

// OnUpdate 注册监听者，返回取消注册函数。
func (c *Config) OnUpdate(fn Listener) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.listeners = append(c.listeners, listenerEntry{id: id, fn: fn})
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i := range c.listeners {
			if c.listeners[i].id == id {
				c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
				return
			}
		}
	}
}

// Get 读取镜像中的单个选项。
func (c *Config) Get(name string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.mirror[name]
	return v, ok
}

// Table 返回镜像的宿主表形式，供脚本侧观察。
func (c *Config) Table() *value.Table {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := value.NewTable()
	for i := range optionDescs {
		name := optionDescs[i].name
		switch v := c.mirror[name].(type) {
		case bool:
			t.Set(value.String(name), value.Bool(v))
		case int:
			t.Set(value.String(name), value.Number(v))
		}
	}
	return t
}

// LoadFile 从 YAML/JSON 文件读取选项并以一次批量更新生效。
// 文件中存在 serializer 段时只读取该段。
func (c *Config) LoadFile(path string) error {
	v := viper.New()
	if err := v.LoadFile(path); err != nil {
		return merr.WrapErrIoFailed(path, err)
	}
	settings := v.Sub("serializer")
	if len(settings) == 0 {
		settings = v.AllSettings()
	}
	if len(settings) == 0 {
		return nil
	}
	return c.Update(settings)
}

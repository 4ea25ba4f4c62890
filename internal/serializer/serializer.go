package serializer

import (
	"math"

	"go.uber.org/zap"

	"github.com/lk2023060901/vserial-go/pkg/log"
	"github.com/lk2023060901/vserial-go/pkg/metrics"
	"github.com/lk2023060901/vserial-go/pkg/util/merr"
	"github.com/lk2023060901/vserial-go/pkg/value"
)

// Serializer 抽象了“宿主值 <-> 字节流”的序列化能力。
//
// 每次 Marshal 都拥有独立的引用缓存与锚点表，可在多个 goroutine 上
// 共享同一个 Serializer 与 Config 并发调用。
type Serializer interface {
	// Name 返回格式名称，用于日志与指标标签。
	Name() string

	// Marshal 将值编码为字节序列，失败时不返回任何部分输出。
	Marshal(v value.Value) ([]byte, error)

	// Unmarshal 将字节序列解码为值，输入必须恰好包含一个值。
	Unmarshal(data []byte) (value.Value, error)
}

// BaseOptions 用于构造各格式 Serializer 的依赖注入参数。
type BaseOptions struct {
	Config  *Config // 允许为 nil（内部会用 NewConfig）
	Session SessionOptions
	Logger  *log.MLogger // 允许为 nil（回退到全局 Logger）
}

// Base 为各格式共享的配置、会话与日志状态。
type Base struct {
	log.Binder

	format string
	cfg    *Config
	sess   SessionOptions
}

// NewBase 创建格式 format 的公共部分。
func NewBase(format string, opts BaseOptions) *Base {
	cfg := opts.Config
	if cfg == nil {
		cfg = NewConfig()
	}
	b := &Base{format: format, cfg: cfg, sess: opts.Session}
	fields := []zap.Field{log.FieldComponent("serializer"), log.FieldFormat(format)}
	if opts.Logger != nil {
		b.SetLogger(opts.Logger.With(fields...))
	} else {
		b.SetLogger(log.With(fields...))
	}
	return b
}

func (b *Base) Name() string { return b.format }

func (b *Base) Config() *Config { return b.cfg }

func (b *Base) Session() SessionOptions { return b.sess }

// Encode 使用当前配置快照驱动一次编码并记录指标。
func (b *Base) Encode(v value.Value, out Emitter, size func() int) error {
	stats, err := Encode(v, b.cfg.Options(), b.sess, out)
	if err != nil {
		b.Logger().RatedWarn(10, "encode failed", log.FieldKind(merr.Kind(err)), zap.Error(err))
		metrics.ObserveEncode(b.format, 0, 0, merr.Kind(err), err)
		return err
	}
	metrics.ObserveEncode(b.format, size(), stats.Anchors, "", nil)
	return nil
}

// ObserveDecode 记录一次解码结果。
func (b *Base) ObserveDecode(err error) {
	if err != nil {
		b.Logger().RatedWarn(10, "decode failed", log.FieldKind(merr.Kind(err)), zap.Error(err))
	}
	metrics.ObserveDecode(b.format, merr.Kind(err), err)
}

var (
	arrayMeta = value.WithHint("seq")
	mapMeta   = value.WithHint("map")
)

// maxSafeInteger 以内的整数解码为 Number，与宿主的双精度数字无损对应。
const maxSafeInteger = 1 << 53

// DecodeContext 为解码期间共享的选项检查。
type DecodeContext struct {
	opts Options
}

func NewDecodeContext(opts Options) *DecodeContext {
	return &DecodeContext{opts: opts}
}

// Enter 检查容器嵌套层级。
func (d *DecodeContext) Enter(level int) error {
	if level >= d.opts.DecodeMaxDepth {
		return merr.WrapErrDepthExceeded(level, d.opts.DecodeMaxDepth, "decode")
	}
	return nil
}

// Float 校验并包装浮点数。
func (d *DecodeContext) Float(f float64) (value.Value, error) {
	if !d.opts.DecodeInvalidNumbers && (math.IsNaN(f) || math.IsInf(f, 0)) {
		return nil, merr.WrapErrInvalidNumber(f, "decode")
	}
	return value.Number(f), nil
}

// Float32 校验并包装单精度浮点数。
func (d *DecodeContext) Float32(f float32) (value.Value, error) {
	return d.Float(float64(f))
}

func (d *DecodeContext) Int(i int64) value.Value {
	if i >= -maxSafeInteger && i <= maxSafeInteger {
		return value.Number(i)
	}
	return value.Int64(i)
}

func (d *DecodeContext) Uint(u uint64) value.Value {
	if u <= maxSafeInteger {
		return value.Number(u)
	}
	return value.Uint64(u)
}

// NewArray 创建解码用的数组表，按配置附加类型提示。
func (d *DecodeContext) NewArray() *value.Table {
	t := value.NewTable()
	if d.opts.DecodeSaveMetatables {
		t.SetMeta(arrayMeta)
	}
	return t
}

// NewMap 创建解码用的映射表，按配置附加类型提示。
func (d *DecodeContext) NewMap() *value.Table {
	t := value.NewTable()
	if d.opts.DecodeSaveMetatables {
		t.SetMeta(mapMeta)
	}
	return t
}

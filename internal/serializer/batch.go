package serializer

import (
	"context"

	"go.uber.org/zap"

	"github.com/lk2023060901/vserial-go/pkg/log"
	"github.com/lk2023060901/vserial-go/pkg/util/conc"
	"github.com/lk2023060901/vserial-go/pkg/util/merr"
	"github.com/lk2023060901/vserial-go/pkg/value"
)

// MarshalAll 在协程池上并发编码互不相关的多个根值，结果顺序与输入一致。
// 每个根值都有各自的缓存与锚点表；任一失败时返回全部失败的合并错误。
func MarshalAll(ctx context.Context, s Serializer, values []value.Value, pool *conc.Pool[[]byte]) ([][]byte, error) {
	ctx = log.WithFormat(ctx, s.Name())
	futures := make([]*conc.Future[[]byte], len(values))
	for i, v := range values {
		v := v
		futures[i] = pool.Submit(func() ([]byte, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return s.Marshal(v)
		})
	}

	out := make([][]byte, len(values))
	var errs []error
	for i, f := range futures {
		data, err := f.Await()
		if err != nil {
			log.Ctx(ctx).RatedWarn(1, "batch marshal item failed", zap.Int("index", i), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		out[i] = data
	}
	if err := merr.Combine(errs...); err != nil {
		return nil, err
	}
	return out, nil
}

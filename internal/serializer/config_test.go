package serializer

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/vserial-go/pkg/util/merr"
	"github.com/lk2023060901/vserial-go/pkg/value"
)

type ConfigSuite struct {
	suite.Suite
	cfg *Config
}

func (s *ConfigSuite) SetupTest() {
	s.cfg = NewConfig()
}

func (s *ConfigSuite) TestDefaults() {
	opts := s.cfg.Options()
	s.Equal(DefaultOptions(), opts)
	s.True(opts.EncodeSparseConvert)
	s.Equal(2, opts.EncodeSparseRatio)
	s.Equal(10, opts.EncodeSparseSafe)
	s.Equal(128, opts.EncodeMaxDepth)
	s.Equal(14, opts.EncodeNumberPrecision)
	s.Equal(128, opts.DecodeMaxDepth)

	v, ok := s.cfg.Get("encode_load_metatables")
	s.True(ok)
	s.Equal(true, v)
	s.Len(OptionNames(), 13)
	s.Equal("encode_sparse_convert", OptionNames()[0])
}

func (s *ConfigSuite) TestBatchUpdate() {
	err := s.cfg.Update(map[string]any{
		"encode_max_depth":       value.Number(4),
		"encode_deep_as_nil":     true,
		"encode_sparse_ratio":    int64(3),
		"decode_invalid_numbers": value.Bool(false),
	})
	s.Require().NoError(err)

	opts := s.cfg.Options()
	s.Equal(4, opts.EncodeMaxDepth)
	s.True(opts.EncodeDeepAsNil)
	s.Equal(3, opts.EncodeSparseRatio)
	s.False(opts.DecodeInvalidNumbers)

	mirror := s.cfg.Table()
	s.Equal(value.Number(4), mirror.Get(value.String("encode_max_depth")))
	s.Equal(value.Bool(true), mirror.Get(value.String("encode_deep_as_nil")))
	s.Equal(13, mirror.Len())
}

func (s *ConfigSuite) TestInvalidOptionRejectsWholeBatch() {
	before := s.cfg.Options()
	cases := []map[string]any{
		{"encode_max_depth": 8, "encode_deep_as_nil": "yes"},
		{"encode_max_depth": 1.5},
		{"encode_sparse_convert": 1},
		{"encode_unknown_option": true},
		{"encode_max_depth": -1},
		{"decode_max_depth": 0},
		{"encode_sparse_ratio": -3},
		{"encode_sparse_safe": -1, "encode_max_depth": 8},
		{"encode_number_precision": 0},
	}
	for _, changes := range cases {
		err := s.cfg.Update(changes)
		s.ErrorIs(err, merr.ErrInvalidOption)
		s.Equal("InvalidOption", merr.Kind(err))
	}
	s.Equal(before, s.cfg.Options())
	v, _ := s.cfg.Get("encode_max_depth")
	s.Equal(128, v)
}

func (s *ConfigSuite) TestListenersInOrder() {
	var calls []string
	var seen []Options
	s.cfg.OnUpdate(func(opts Options) {
		calls = append(calls, "first")
		seen = append(seen, opts)
	})
	unsubscribe := s.cfg.OnUpdate(func(Options) { calls = append(calls, "second") })
	s.cfg.OnUpdate(func(Options) { calls = append(calls, "third") })

	s.Require().NoError(s.cfg.Update(map[string]any{"encode_max_depth": 5, "encode_use_tostring": true}))
	s.Equal([]string{"first", "second", "third"}, calls)
	s.Require().Len(seen, 1)
	s.Equal(5, seen[0].EncodeMaxDepth)
	s.True(seen[0].EncodeUseTostring)

	unsubscribe()
	calls = nil
	s.Require().NoError(s.cfg.Update(map[string]any{"encode_max_depth": 6}))
	s.Equal([]string{"first", "third"}, calls)

	calls = nil
	s.Error(s.cfg.Update(map[string]any{"encode_max_depth": "deep"}))
	s.Empty(calls)
}

func (s *ConfigSuite) TestListenerCanReadConfig() {
	s.cfg.OnUpdate(func(opts Options) {
		s.Equal(opts, s.cfg.Options())
	})
	s.NoError(s.cfg.Update(map[string]any{"encode_invalid_as_nil": true}))
}

func (s *ConfigSuite) TestConcurrentReaders() {
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				opts := s.cfg.Options()
				// 同一批次内的两个字段必须一起可见。
				s.Equal(opts.EncodeSparseRatio, opts.EncodeSparseSafe-8)
			}
		}(i)
	}
	for j := 3; j < 50; j++ {
		s.Require().NoError(s.cfg.Update(map[string]any{"encode_sparse_ratio": j, "encode_sparse_safe": j + 8}))
	}
	wg.Wait()
}

func (s *ConfigSuite) TestLoadFile() {
	dir := s.T().TempDir()
	path := filepath.Join(dir, "options.yaml")
	s.Require().NoError(os.WriteFile(path, []byte("serializer:\n  encode_max_depth: 32\n  encode_sparse_convert: false\n"), 0o600))
	s.Require().NoError(s.cfg.LoadFile(path))
	s.Equal(32, s.cfg.Options().EncodeMaxDepth)
	s.False(s.cfg.Options().EncodeSparseConvert)

	flat := filepath.Join(dir, "flat.json")
	s.Require().NoError(os.WriteFile(flat, []byte(`{"encode_number_precision": 17}`), 0o600))
	s.Require().NoError(s.cfg.LoadFile(flat))
	s.Equal(17, s.cfg.Options().EncodeNumberPrecision)

	bad := filepath.Join(dir, "bad.yaml")
	s.Require().NoError(os.WriteFile(bad, []byte("encode_max_depth: many\n"), 0o600))
	s.ErrorIs(s.cfg.LoadFile(bad), merr.ErrInvalidOption)

	s.ErrorIs(s.cfg.LoadFile(filepath.Join(dir, "absent.yaml")), merr.ErrIoFailed)
}

func TestConfig(t *testing.T) {
	suite.Run(t, new(ConfigSuite))
}

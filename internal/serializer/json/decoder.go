package json

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	jsoniter "github.com/json-iterator/go"

	"github.com/lk2023060901/vserial-go/internal/serializer"
	"github.com/lk2023060901/vserial-go/pkg/util/merr"
	"github.com/lk2023060901/vserial-go/pkg/value"
)

type decoder struct {
	iter *jsoniter.Iterator
	ctx  *serializer.DecodeContext
}

func newDecoder(iter *jsoniter.Iterator, opts serializer.Options) *decoder {
	return &decoder{iter: iter, ctx: serializer.NewDecodeContext(opts)}
}

func (d *decoder) check() error {
	if err := d.iter.Error; err != nil && !errors.Is(err, io.EOF) {
		return merr.WrapErrMalformedInput(formatName, err)
	}
	return nil
}

func (d *decoder) decode(level int) (value.Value, error) {
	switch d.iter.WhatIsNext() {
	case jsoniter.NilValue:
		d.iter.ReadNil()
		return value.Nil{}, d.check()
	case jsoniter.BoolValue:
		return value.Bool(d.iter.ReadBool()), d.check()
	case jsoniter.StringValue:
		return value.String(d.iter.ReadString()), d.check()
	case jsoniter.NumberValue:
		n := d.iter.ReadNumber()
		if err := d.check(); err != nil {
			return nil, err
		}
		return d.number(string(n))
	case jsoniter.ArrayValue:
		return d.array(level)
	case jsoniter.ObjectValue:
		return d.object(level)
	}
	if err := d.check(); err != nil {
		return nil, err
	}
	return nil, merr.WrapErrMalformedInput(formatName, nil, "unexpected token")
}

// number 整数优先解析，超出 64 位范围时退化为浮点数。
func (d *decoder) number(text string) (value.Value, error) {
	if !strings.ContainsAny(text, ".eE") {
		if strings.HasPrefix(text, "-") {
			if i, err := strconv.ParseInt(text, 10, 64); err == nil {
				return d.ctx.Int(i), nil
			}
		} else if u, err := strconv.ParseUint(text, 10, 64); err == nil {
			return d.ctx.Uint(u), nil
		}
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return nil, merr.WrapErrMalformedInput(formatName, err, fmt.Sprintf("number %q", text))
	}
	return d.ctx.Float(f)
}

func (d *decoder) array(level int) (value.Value, error) {
	if err := d.ctx.Enter(level); err != nil {
		return nil, err
	}
	t := d.ctx.NewArray()
	var (
		n   int
		err error
	)
	d.iter.ReadArrayCB(func(*jsoniter.Iterator) bool {
		var v value.Value
		if v, err = d.decode(level + 1); err != nil {
			return false
		}
		n++
		t.Set(value.Number(n), v)
		return true
	})
	if err != nil {
		return nil, err
	}
	return t, d.check()
}

func (d *decoder) object(level int) (value.Value, error) {
	if err := d.ctx.Enter(level); err != nil {
		return nil, err
	}
	t := d.ctx.NewMap()
	var err error
	d.iter.ReadObjectCB(func(_ *jsoniter.Iterator, key string) bool {
		var v value.Value
		if v, err = d.decode(level + 1); err != nil {
			return false
		}
		t.Set(value.String(key), v)
		return true
	})
	if err != nil {
		return nil, err
	}
	return t, d.check()
}

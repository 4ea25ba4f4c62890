package serializer

import (
	"strconv"

	"github.com/lk2023060901/vserial-go/pkg/util/typeutil"
	"github.com/lk2023060901/vserial-go/pkg/value"
)

// cachedNil 标记钩子返回了 nil，与“未缓存”区分。
type cachedNil struct{}

func (cachedNil) Type() value.Type { return value.TypeNil }

// refCache 以身份为键保存钩子的替换结果，生命周期为一次顶层调用。
type refCache struct {
	entries map[value.Value]value.Value
}

func newRefCache() *refCache {
	return &refCache{entries: make(map[value.Value]value.Value)}
}

func (r *refCache) lookup(obj value.Value) (value.Value, bool) {
	res, ok := r.entries[obj]
	if !ok {
		return nil, false
	}
	if _, isNil := res.(cachedNil); isNil {
		return nil, true
	}
	return res, true
}

func (r *refCache) store(obj value.Value, res value.Value) {
	if value.IsNil(res) {
		res = cachedNil{}
	}
	r.entries[obj] = res
}

// preSerialize 为第一遍：深度优先调用全部钩子并缓存结果，使第二遍看到的图不再变化。
func (c *classifier) preSerialize(v value.Value, visited typeutil.Set[value.Value], level int) error {
	if level > c.opts.EncodeMaxDepth {
		return nil
	}
	switch x := v.(type) {
	case *value.Table:
		if visited.Contain(x) {
			return nil
		}
		visited.Insert(x)
		target := x
		if c.opts.EncodeLoadMetatables {
			if fn, ok := serializeFunc(x.Metatable()); ok {
				res, err := c.resolve(x, fn)
				if err != nil {
					return err
				}
				tbl, ok := res.(*value.Table)
				if !ok {
					return c.preSerializeResult(res, visited, level)
				}
				target = tbl
			}
		}
		return c.preSerializeChildren(target, visited, level)
	case *value.Userdata:
		if visited.Contain(x) || !c.opts.EncodeLoadMetatables {
			return nil
		}
		visited.Insert(x)
		if fn, ok := serializeFunc(x.Metatable()); ok {
			res, err := c.resolve(x, fn)
			if err != nil {
				return err
			}
			return c.preSerializeResult(res, visited, level)
		}
	}
	return nil
}

// preSerializeResult 处理钩子返回值：不再调用其自身钩子，只下探子节点。
func (c *classifier) preSerializeResult(res value.Value, visited typeutil.Set[value.Value], level int) error {
	tbl, ok := res.(*value.Table)
	if !ok || visited.Contain(tbl) {
		return nil
	}
	visited.Insert(tbl)
	return c.preSerializeChildren(tbl, visited, level)
}

func (c *classifier) preSerializeChildren(t *value.Table, visited typeutil.Set[value.Value], level int) error {
	var err error
	t.Range(func(k, v value.Value) bool {
		if err = c.preSerialize(k, visited, level+1); err != nil {
			return false
		}
		err = c.preSerialize(v, visited, level+1)
		return err == nil
	})
	return err
}

// canonical 返回值在本次调用中的最终形态（查缓存，不调用钩子）。
func (c *classifier) canonical(v value.Value) value.Value {
	switch v.(type) {
	case *value.Table, *value.Userdata:
		if c.cache != nil && c.opts.EncodeLoadMetatables {
			if res, ok := c.cache.lookup(v); ok {
				return res
			}
		}
	}
	return v
}

type anchorState int

const (
	seenOnce anchorState = iota + 1
	seenMultiUnnamed
	seenMultiNamed
)

type anchorEntry struct {
	state anchorState
	name  string
}

// anchorTable 记录每个容器身份的出现次数与锚点名。
type anchorTable struct {
	entries map[*value.Table]*anchorEntry
	counter int
}

func newAnchorTable() *anchorTable {
	return &anchorTable{entries: make(map[*value.Table]*anchorEntry)}
}

// findReferences 为第二遍：统计已定型的图中每个容器被引用的次数。
func (a *anchorTable) findReferences(c *classifier, v value.Value, level int) {
	if level > c.opts.EncodeMaxDepth {
		return
	}
	tbl, ok := c.canonical(v).(*value.Table)
	if !ok {
		return
	}
	if e, ok := a.entries[tbl]; ok {
		if e.state == seenOnce {
			e.state = seenMultiUnnamed
		}
		return
	}
	a.entries[tbl] = &anchorEntry{state: seenOnce}
	tbl.Range(func(k, val value.Value) bool {
		a.findReferences(c, k, level+1)
		a.findReferences(c, val, level+1)
		return true
	})
}

// anchorAction 描述发射时对一个容器的处理方式。
type anchorAction int

const (
	// anchorNone 只出现一次，直接内联。
	anchorNone anchorAction = iota
	// anchorDefine 第一次遇到多次引用的容器，写出锚点定义。
	anchorDefine
	// anchorAlias 锚点已定义，写出别名。
	anchorAlias
)

// resolve 按当前状态决定锚点处理方式，必要时分配名字。
func (a *anchorTable) resolve(t *value.Table) (string, anchorAction) {
	e, ok := a.entries[t]
	if !ok || e.state == seenOnce {
		return "", anchorNone
	}
	if e.state == seenMultiNamed {
		return e.name, anchorAlias
	}
	e.name = strconv.Itoa(a.counter)
	a.counter++
	e.state = seenMultiNamed
	return e.name, anchorDefine
}

// count 返回已分配的锚点数量。
func (a *anchorTable) count() int {
	return a.counter
}

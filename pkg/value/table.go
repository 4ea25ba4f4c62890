package value

import (
	"math"
)

type entry struct {
	key Value
	val Value
}

// Table 是按插入顺序保存键值对的关联容器，身份由指针决定。
// Table 不是并发安全的。
type Table struct {
	entries []entry
	index   map[Value]int
	meta    *Meta
}

var _ Serializable = (*Table)(nil)

func NewTable() *Table {
	return &Table{index: make(map[Value]int)}
}

// NewArray 以 1 起始的连续整数键构造表。
func NewArray(vs ...Value) *Table {
	t := NewTable()
	for i, v := range vs {
		t.Set(Number(i+1), v)
	}
	return t
}

// NewMap 以 k1, v1, k2, v2... 的形式构造表，奇数个参数时末尾键被忽略。
func NewMap(kvs ...Value) *Table {
	t := NewTable()
	for i := 0; i+1 < len(kvs); i += 2 {
		t.Set(kvs[i], kvs[i+1])
	}
	return t
}

func (t *Table) Type() Type { return TypeTable }

func (t *Table) Metatable() *Meta { return t.meta }

func (t *Table) SetMeta(m *Meta) { t.meta = m }

func validKey(k Value) bool {
	if IsNil(k) {
		return false
	}
	if n, ok := k.(Number); ok && math.IsNaN(float64(n)) {
		return false
	}
	return true
}

// Set 写入键值，值为空时等价于 Delete。nil 与 NaN 键被忽略。
func (t *Table) Set(k, v Value) {
	if !validKey(k) {
		return
	}
	if IsNil(v) {
		t.Delete(k)
		return
	}
	if t.index == nil {
		t.index = make(map[Value]int)
	}
	if i, ok := t.index[k]; ok {
		t.entries[i].val = v
		return
	}
	t.index[k] = len(t.entries)
	t.entries = append(t.entries, entry{key: k, val: v})
}

// Get 返回键对应的值，不存在时返回 nil。
func (t *Table) Get(k Value) Value {
	if !validKey(k) {
		return nil
	}
	if i, ok := t.index[k]; ok {
		return t.entries[i].val
	}
	return nil
}

func (t *Table) Delete(k Value) {
	i, ok := t.index[k]
	if !ok {
		return
	}
	delete(t.index, k)
	t.entries = append(t.entries[:i], t.entries[i+1:]...)
	for j := i; j < len(t.entries); j++ {
		t.index[t.entries[j].key] = j
	}
}

// Append 在数组部分末尾追加一个值。
func (t *Table) Append(v Value) {
	t.Set(Number(t.ArrayLen()+1), v)
}

// Len 返回键值对数量。
func (t *Table) Len() int {
	return len(t.entries)
}

// ArrayLen 返回从 1 开始连续存在的整数键个数。
func (t *Table) ArrayLen() int {
	n := 0
	for {
		if _, ok := t.index[Number(n+1)]; !ok {
			return n
		}
		n++
	}
}

// MaxN 返回最大的正整数键，不存在时返回 0。
func (t *Table) MaxN() int {
	max := 0
	for _, e := range t.entries {
		n, ok := e.key.(Number)
		if !ok {
			continue
		}
		f := float64(n)
		if f >= 1 && f <= math.MaxUint32 && f == math.Trunc(f) && int(f) > max {
			max = int(f)
		}
	}
	return max
}

// Range 按插入顺序遍历，回调返回 false 时停止。
func (t *Table) Range(fn func(k, v Value) bool) {
	for _, e := range t.entries {
		if !fn(e.key, e.val) {
			return
		}
	}
}

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

package typeutil

// Set 为无序集合，用于遍历期间的已访问标记与 hint 名称匹配。
type Set[T comparable] map[T]struct{}

func NewSet[T comparable](elements ...T) Set[T] {
	set := make(Set[T])
	set.Insert(elements...)
	return set
}

// Insert 插入元素，已存在的元素被忽略。
func (set Set[T]) Insert(elements ...T) {
	for i := range elements {
		set[elements[i]] = struct{}{}
	}
}

// Contain 判断一个或多个元素是否都存在于集合中。
func (set Set[T]) Contain(elements ...T) bool {
	for i := range elements {
		_, ok := set[elements[i]]
		if !ok {
			return false
		}
	}
	return true
}

// Len 返回集合中元素的个数。
func (set Set[T]) Len() int {
	return len(set)
}

// OrderedSet 记录插入顺序的集合，Collect 按首次插入顺序返回。
type OrderedSet[T comparable] struct {
	index map[T]int
	items []T
}

func NewOrderedSet[T comparable](elements ...T) *OrderedSet[T] {
	set := &OrderedSet[T]{index: make(map[T]int)}
	set.Insert(elements...)
	return set
}

// Insert 插入元素，已存在的元素保持原有位置。
func (set *OrderedSet[T]) Insert(elements ...T) {
	for _, elem := range elements {
		if _, ok := set.index[elem]; ok {
			continue
		}
		set.index[elem] = len(set.items)
		set.items = append(set.items, elem)
	}
}

func (set *OrderedSet[T]) Contain(element T) bool {
	_, ok := set.index[element]
	return ok
}

func (set *OrderedSet[T]) Collect() []T {
	return append([]T(nil), set.items...)
}

func (set *OrderedSet[T]) Len() int {
	return len(set.items)
}

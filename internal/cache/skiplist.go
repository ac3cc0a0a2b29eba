package cache

import (
	"math/rand"
	"time"
)

const (
	MaxLevel = 16
	P        = 0.5
)

// SkipListNode stores, per level, the forward pointer and the number of
// level-0 nodes that pointer jumps over.
type SkipListNode[K comparable] struct {
	Key     K
	Forward []*SkipListNode[K]
	Span    []int
}

type CompareFunc[K comparable] func(a, b K) int

// SkipList is an indexable skip list of unique keys ordered by compare. It is
// not safe for concurrent use; callers hold their own lock.
type SkipList[K comparable] struct {
	length   int
	header   *SkipListNode[K]
	level    int
	keyIndex map[K]*SkipListNode[K]
	rand     *rand.Rand
	compare  CompareFunc[K]
}

func newNode[K comparable](level int) *SkipListNode[K] {
	return &SkipListNode[K]{
		Forward: make([]*SkipListNode[K], level),
		Span:    make([]int, level),
	}
}

func NewSkipList[K comparable](compareFunc CompareFunc[K]) *SkipList[K] {
	return &SkipList[K]{
		header:   newNode[K](MaxLevel),
		level:    1,
		keyIndex: make(map[K]*SkipListNode[K]),
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
		compare:  compareFunc,
	}
}

func (sl *SkipList[K]) randomLevel() int {
	level := 1
	for level < MaxLevel && sl.rand.Float64() < P {
		level++
	}
	return level
}

// Insert adds key and reports false when it was already present.
func (sl *SkipList[K]) Insert(key K) bool {
	if _, exists := sl.keyIndex[key]; exists {
		return false
	}

	update := make([]*SkipListNode[K], MaxLevel)
	rank := make([]int, MaxLevel)
	x := sl.header

	for i := sl.level - 1; i >= 0; i-- {
		if i < sl.level-1 {
			rank[i] = rank[i+1]
		}
		for x.Forward[i] != nil && sl.compare(x.Forward[i].Key, key) < 0 {
			rank[i] += x.Span[i]
			x = x.Forward[i]
		}
		update[i] = x
	}

	newLevel := sl.randomLevel()
	if newLevel > sl.level {
		for i := sl.level; i < newLevel; i++ {
			rank[i] = 0
			update[i] = sl.header
			update[i].Span[i] = sl.length
		}
		sl.level = newLevel
	}

	node := newNode[K](newLevel)
	node.Key = key

	for i := 0; i < newLevel; i++ {
		node.Forward[i] = update[i].Forward[i]
		update[i].Forward[i] = node

		node.Span[i] = update[i].Span[i] - (rank[0] - rank[i])
		update[i].Span[i] = rank[0] - rank[i] + 1
	}

	for i := newLevel; i < sl.level; i++ {
		update[i].Span[i]++
	}

	sl.keyIndex[key] = node
	sl.length++
	return true
}

func (sl *SkipList[K]) Delete(key K) bool {
	if _, exists := sl.keyIndex[key]; !exists {
		return false
	}

	update := make([]*SkipListNode[K], MaxLevel)
	x := sl.header

	for i := sl.level - 1; i >= 0; i-- {
		for x.Forward[i] != nil && sl.compare(x.Forward[i].Key, key) < 0 {
			x = x.Forward[i]
		}
		update[i] = x
	}

	x = x.Forward[0]
	if x == nil || sl.compare(x.Key, key) != 0 {
		return false
	}

	for i := 0; i < sl.level; i++ {
		if update[i].Forward[i] == x {
			update[i].Span[i] += x.Span[i] - 1
			update[i].Forward[i] = x.Forward[i]
		} else {
			update[i].Span[i]--
		}
	}

	for sl.level > 1 && sl.header.Forward[sl.level-1] == nil {
		sl.level--
	}

	delete(sl.keyIndex, key)
	sl.length--
	return true
}

// CountBefore returns how many keys sort before pivot under cmp. cmp must be
// consistent with the list order (a coarser view of it, e.g. score only), so
// every key it places before pivot is also a prefix of the list.
func (sl *SkipList[K]) CountBefore(pivot K, cmp CompareFunc[K]) int {
	count := 0
	x := sl.header

	for i := sl.level - 1; i >= 0; i-- {
		for x.Forward[i] != nil && cmp(x.Forward[i].Key, pivot) < 0 {
			count += x.Span[i]
			x = x.Forward[i]
		}
	}

	return count
}

type Entry[K comparable] struct {
	Key  K
	Rank int
}

// Range returns up to limit entries starting at the zero-based position offset.
func (sl *SkipList[K]) Range(offset, limit int) []Entry[K] {
	if offset < 0 || limit <= 0 || offset >= sl.length {
		return []Entry[K]{}
	}

	target := offset + 1
	traversed := 0
	x := sl.header

	for i := sl.level - 1; i >= 0 && traversed < target; i-- {
		for x.Forward[i] != nil && traversed+x.Span[i] <= target {
			traversed += x.Span[i]
			x = x.Forward[i]
		}
	}

	result := make([]Entry[K], 0, min(limit, sl.length-offset))
	for rank := target; x != nil && len(result) < limit; rank++ {
		result = append(result, Entry[K]{Key: x.Key, Rank: rank})
		x = x.Forward[0]
	}

	return result
}

func (sl *SkipList[K]) GetLength() int {
	return sl.length
}

func (sl *SkipList[K]) Clear() {
	sl.header = newNode[K](MaxLevel)
	sl.level = 1
	sl.length = 0
	sl.keyIndex = make(map[K]*SkipListNode[K])
}

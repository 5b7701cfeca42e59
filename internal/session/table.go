// File: internal/session/table.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Generation-counted slot table (arena + index).

package session

import "github.com/momentics/wsreactor/api"

type slot[T any] struct {
	gen  uint32
	used bool
	val  T
}

// Table maps tokens to values with stable, reusable handles.
type Table[T any] struct {
	slots []slot[T]
	free  []uint32
	n     int
}

// NewTable returns an empty table with room for capHint entries.
func NewTable[T any](capHint int) *Table[T] {
	if capHint < 0 {
		capHint = 0
	}
	t := &Table[T]{slots: make([]slot[T], 1, capHint+1)}
	// Slot 0 stays unused so no entry can alias api.ListenerToken.
	t.slots[0].used = true
	return t
}

// Insert stores v and returns its token.
func (t *Table[T]) Insert(v T) api.Token {
	var idx uint32
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
		t.free = t.free[:n-1]
	} else {
		t.slots = append(t.slots, slot[T]{gen: 1})
		idx = uint32(len(t.slots) - 1)
	}
	s := &t.slots[idx]
	s.used = true
	s.val = v
	t.n++
	return api.NewToken(idx, s.gen)
}

// lookup returns the live slot addressed by tok or nil.
func (t *Table[T]) lookup(tok api.Token) *slot[T] {
	idx := tok.Index()
	if idx == 0 || int(idx) >= len(t.slots) {
		return nil
	}
	s := &t.slots[idx]
	if !s.used || s.gen != tok.Generation() {
		return nil
	}
	return s
}

// Get returns the value for tok. Stale tokens miss.
func (t *Table[T]) Get(tok api.Token) (T, bool) {
	if s := t.lookup(tok); s != nil {
		return s.val, true
	}
	var zero T
	return zero, false
}

// Remove deletes tok and retires its generation.
func (t *Table[T]) Remove(tok api.Token) (T, bool) {
	var zero T
	s := t.lookup(tok)
	if s == nil {
		return zero, false
	}
	v := s.val
	s.val = zero
	s.used = false
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	t.free = append(t.free, tok.Index())
	t.n--
	return v, true
}

// Len returns the number of live entries.
func (t *Table[T]) Len() int { return t.n }

// Range calls fn for every live entry until fn returns false.
// fn may remove the entry it is given.
func (t *Table[T]) Range(fn func(api.Token, T) bool) {
	for i := 1; i < len(t.slots); i++ {
		s := &t.slots[i]
		if !s.used {
			continue
		}
		if !fn(api.NewToken(uint32(i), s.gen), s.val) {
			return
		}
	}
}

package db

import (
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/gyeh/visitload/internal/model"
)

// CopyRow renders itself as one COPY tuple. Rows are usually pointers, so
// a nil row can be detected.
type CopyRow interface {
	comparable
	CopyValues() []any
}

// ChannelSource feeds pgx CopyFrom from a channel so a producer goroutine
// and the COPY writer run in lockstep. It stops at the first nil row.
type ChannelSource[T CopyRow] struct {
	ch   <-chan T
	cur  T
	sent int64
	err  error
}

func NewChannelSource[T CopyRow](ch <-chan T) *ChannelSource[T] {
	return &ChannelSource[T]{ch: ch}
}

func (s *ChannelSource[T]) Next() bool {
	if s.err != nil {
		return false
	}
	row, ok := <-s.ch
	if !ok {
		return false
	}
	var zero T
	if row == zero {
		s.err = fmt.Errorf("copy source: nil row after %d rows", s.sent)
		return false
	}
	s.cur = row
	s.sent++
	return true
}

func (s *ChannelSource[T]) Values() ([]any, error) {
	return s.cur.CopyValues(), nil
}

func (s *ChannelSource[T]) Err() error {
	return s.err
}

// Sent reports how many rows were handed to COPY.
func (s *ChannelSource[T]) Sent() int64 {
	return s.sent
}

var _ pgx.CopyFromSource = (*ChannelSource[*model.ArchivedRecord])(nil)

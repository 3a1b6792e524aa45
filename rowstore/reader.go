package rowstore

import (
	"fmt"
	"iter"
	"sync"

	"rowstore/storage"
)

// Reader is a lazy, single-pass sequence of rows produced by a Select.
// Rows are fetched from the backend one at a time as Next is called.
//
// A Reader must be closed, or drained, to release its cursor. Closing the
// handle closes every reader it produced; their next call to Next returns
// false and Err reports a StateError.
type Reader struct {
	h   *Handle
	gen uint64

	mu      sync.Mutex
	def     storage.TableDef
	columns []string
	cursor  storage.Cursor
	row     Row
	err     error
	done    bool
}

func newReader(h *Handle, gen uint64, def storage.TableDef, cur storage.Cursor) *Reader {
	return &Reader{
		h:       h,
		gen:     gen,
		def:     def,
		columns: def.ColumnNames(),
		cursor:  cur,
	}
}

// Columns returns the column names of the rows, in order.
func (r *Reader) Columns() []string {
	return append([]string(nil), r.columns...)
}

// Next advances to the next row. It returns false when the rows are
// exhausted or on failure; Err tells the two apart.
func (r *Reader) Next() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.done {
		if r.err == nil && !r.h.live(r.gen) {
			r.err = r.stateError()
		}
		return false
	}
	if !r.h.live(r.gen) {
		r.stop(r.stateError())
		return false
	}

	if !r.cursor.Next() {
		if err := r.cursor.Err(); err != nil {
			r.stop(r.failure(err))
		} else {
			r.stop(nil)
		}
		return false
	}

	raw, err := r.cursor.Values()
	if err != nil {
		r.stop(r.failure(err))
		return false
	}
	if len(raw) != len(r.def.Columns) {
		r.stop(newError(KindIO, "select", r.def.Name, fmt.Errorf("backend returned %d values for %d columns", len(raw), len(r.def.Columns))))
		return false
	}
	values := make([]Value, len(raw))
	for i, col := range r.def.Columns {
		v, err := valueFromRaw(raw[i], col.Type)
		if err != nil {
			e := newError(KindIO, "select", r.def.Name, err)
			e.Column = col.Name
			r.stop(e)
			return false
		}
		values[i] = v
	}
	r.row = Row{columns: r.columns, values: values}
	return true
}

// Row returns the current row. It is the zero Row before the first call to
// Next and after Next returns false.
func (r *Reader) Row() Row {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.row
}

func (r *Reader) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close releases the cursor. It is safe to call more than once and after
// the rows are exhausted.
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return nil
	}
	r.stop(nil)
	return r.err
}

// All ranges over the remaining rows. A failure is yielded once, as the last
// element. The reader is closed when the loop ends, including on break.
func (r *Reader) All() iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		defer r.Close()
		for r.Next() {
			if !yield(r.Row(), nil) {
				return
			}
		}
		if err := r.Err(); err != nil {
			yield(Row{}, err)
		}
	}
}

// Collect drains the reader and closes it. Rows read before a failure are
// returned along with the error.
func (r *Reader) Collect() ([]Row, error) {
	defer r.Close()
	var rows []Row
	for r.Next() {
		rows = append(rows, r.Row())
	}
	return rows, r.Err()
}

// stop ends the reader with err and releases its cursor. r.mu must be held.
func (r *Reader) stop(err error) {
	r.done = true
	r.row = Row{}
	r.err = err
	if cerr := r.cursor.Close(); cerr != nil && err == nil {
		r.err = r.failure(cerr)
	}
	r.h.untrack(r)
}

// invalidate is called by Handle.Close.
func (r *Reader) invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return
	}
	r.done = true
	r.row = Row{}
	r.err = r.stateError()
	_ = r.cursor.Close()
}

func (r *Reader) stateError() *Error {
	return newError(KindState, "select", r.def.Name, errReaderClosed)
}

// failure reports a cursor error, which is a StateError when the handle was
// closed while the cursor was in use.
func (r *Reader) failure(err error) *Error {
	if !r.h.live(r.gen) {
		return r.stateError()
	}
	return newError(KindIO, "select", r.def.Name, err)
}

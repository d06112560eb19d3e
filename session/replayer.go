package session

import (
	"fmt"
	"strings"
)

// Replayer is a scripted Session for tests. Expectations are consumed in
// order; statements are matched by prefix so tests can script only the
// significant part of a query.
type Replayer struct {
	steps []*ReplayStep

	lastID uint64

	// ConnectedTo records the params of the last RecordConnect call.
	ConnectedTo ConnectParams
}

type stepKind int

const (
	stepQuery stepKind = iota
	stepQueryOne
	stepExecute
)

// ReplayStep is one scripted expectation.
type ReplayStep struct {
	kind   stepKind
	prefix string

	rows   []Row
	err    error
	lastID uint64
}

// ExpectQuery scripts an expected Query call matching by prefix.
func (r *Replayer) ExpectQuery(prefix string) *ReplayStep {
	return r.add(stepQuery, prefix)
}

// ExpectQueryOne scripts an expected QueryOne call matching by prefix.
func (r *Replayer) ExpectQueryOne(prefix string) *ReplayStep {
	return r.add(stepQueryOne, prefix)
}

// ExpectExecute scripts an expected Execute call matching by prefix.
func (r *Replayer) ExpectExecute(prefix string) *ReplayStep {
	return r.add(stepExecute, prefix)
}

func (r *Replayer) add(kind stepKind, prefix string) *ReplayStep {
	st := &ReplayStep{kind: kind, prefix: prefix}
	r.steps = append(r.steps, st)
	return st
}

// ThenReturn makes the step succeed with the given rows.
func (st *ReplayStep) ThenReturn(rows ...Row) *ReplayStep {
	st.rows = rows
	return st
}

// ThenError makes the step fail with a server error.
func (st *ReplayStep) ThenError(msg string, code uint16) *ReplayStep {
	st.err = &Error{Msg: msg, Code: code}
	return st
}

// ThenOK makes an Execute step succeed, optionally recording an insert id.
func (st *ReplayStep) ThenOK(lastInsertID ...uint64) *ReplayStep {
	if len(lastInsertID) > 0 {
		st.lastID = lastInsertID[0]
	}
	return st
}

// Vals builds a Row from plain strings.
func Vals(cells ...string) Row {
	row := make(Row, len(cells))
	for i := range cells {
		v := cells[i]
		row[i] = &v
	}
	return row
}

// NullRow builds a Row where a nil entry stays NULL.
func NullRow(cells ...*string) Row {
	return Row(cells)
}

// Str returns a pointer usable as a NullRow cell.
func Str(s string) *string {
	return &s
}

func (r *Replayer) next(kind stepKind, q string) (*ReplayStep, error) {
	if len(r.steps) == 0 {
		return nil, fmt.Errorf("unexpected statement, no expectations left: %s", q)
	}
	st := r.steps[0]
	r.steps = r.steps[1:]
	if st.kind != kind {
		return nil, fmt.Errorf("statement kind mismatch for %q (expected %q)", q, st.prefix)
	}
	if !strings.HasPrefix(q, st.prefix) {
		return nil, fmt.Errorf("statement %q does not match expected prefix %q", q, st.prefix)
	}
	return st, nil
}

func (r *Replayer) Query(q string) ([]Row, error) {
	st, err := r.next(stepQuery, q)
	if err != nil {
		return nil, err
	}
	if st.err != nil {
		return nil, st.err
	}
	return st.rows, nil
}

func (r *Replayer) QueryOne(q string) (Row, error) {
	st, err := r.next(stepQueryOne, q)
	if err != nil {
		return nil, err
	}
	if st.err != nil {
		return nil, st.err
	}
	if len(st.rows) == 0 {
		return nil, nil
	}
	return st.rows[0], nil
}

func (r *Replayer) Execute(q string) error {
	st, err := r.next(stepExecute, q)
	if err != nil {
		return err
	}
	if st.err != nil {
		return st.err
	}
	r.lastID = st.lastID
	return nil
}

func (r *Replayer) LastInsertID() uint64 {
	return r.lastID
}

func (r *Replayer) Close() error {
	return nil
}

// Empty reports whether every scripted expectation was consumed.
func (r *Replayer) Empty() bool {
	return len(r.steps) == 0
}

// Remaining lists unconsumed expectation prefixes, for test failure output.
func (r *Replayer) Remaining() []string {
	out := make([]string, 0, len(r.steps))
	for _, st := range r.steps {
		out = append(out, st.prefix)
	}
	return out
}

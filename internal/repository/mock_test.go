package repository

import (
	"context"
	"database/sql"
	"errors"
)

// execCall はmockExecutorが受け取ったExecContext呼び出し。
type execCall struct {
	query string
	args  []interface{}
}

type fakeResult struct {
	rows int64
}

func (r fakeResult) LastInsertId() (int64, error) { return 0, errors.New("not supported") }
func (r fakeResult) RowsAffected() (int64, error) { return r.rows, nil }

// mockExecutor はExecContextの呼び出しを記録するDBTXのモック。
// QueryContext / QueryRowContext はテストで使わない。
type mockExecutor struct {
	calls        []execCall
	rowsAffected int64
	err          error
}

func (m *mockExecutor) ExecContext(_ context.Context, query string, args ...interface{}) (sql.Result, error) {
	m.calls = append(m.calls, execCall{query: query, args: args})
	if m.err != nil {
		return nil, m.err
	}
	return fakeResult{rows: m.rowsAffected}, nil
}

func (m *mockExecutor) QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error) {
	return nil, errors.New("not implemented")
}

func (m *mockExecutor) QueryRowContext(context.Context, string, ...interface{}) *sql.Row {
	panic("QueryRowContext is not supported by mockExecutor")
}

package score

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/lib/pq"
)

type execFunc func(query string, args []driver.NamedValue) (driver.Result, error)

// stubConnector hands out connections whose statements go to exec.
type stubConnector struct {
	exec execFunc
}

func (c stubConnector) Connect(context.Context) (driver.Conn, error) { return stubConn(c), nil }
func (c stubConnector) Driver() driver.Driver { return stubDriver{c} }

type stubDriver struct{ c stubConnector }

func (d stubDriver) Open(string) (driver.Conn, error) { return stubConn(d.c), nil }

type stubConn struct {
	exec execFunc
}

func (c stubConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("prepare not supported") }
func (c stubConn) Close() error { return nil }
func (c stubConn) Begin() (driver.Tx, error) { return nil, errors.New("transactions not supported") }

func (c stubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	return c.exec(query, args)
}

func newStubRepository(t *testing.T, exec execFunc) *PostgresRepository {
	t.Helper()
	conn := sql.OpenDB(stubConnector{exec: exec})
	t.Cleanup(func() { conn.Close() })
	return NewPostgresRepository(conn)
}

func TestPostgresInsertUniqueViolationIsConflict(t *testing.T) {
	repo := newStubRepository(t, func(query string, _ []driver.NamedValue) (driver.Result, error) {
		if !strings.Contains(query, "INSERT INTO scores") {
			t.Fatalf("unexpected query %q", query)
		}
		return nil, &pq.Error{Code: uniqueViolation, Message: "duplicate key value violates unique constraint"}
	})

	err := repo.Insert(context.Background(), Entry{PlayerID: "p1", GameID: "g1", Score: 10, AchievedAt: time.Now()})
	if !errors.Is(err, errConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestPostgresInsertOtherErrorsPassThrough(t *testing.T) {
	repo := newStubRepository(t, func(string, []driver.NamedValue) (driver.Result, error) {
		return nil, &pq.Error{Code: "23514", Message: "check constraint violated"}
	})

	err := repo.Insert(context.Background(), Entry{PlayerID: "p1", GameID: "g1", Score: 10, AchievedAt: time.Now()})
	if err == nil || errors.Is(err, errConflict) {
		t.Fatalf("expected a plain store error, got %v", err)
	}
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23514" {
		t.Fatalf("expected wrapped pq error, got %v", err)
	}
}

func TestPostgresReplaceIsConditional(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		conflict bool
	}{
		{name: "stored score unchanged", affected: 1},
		{name: "stored score moved", affected: 0, conflict: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []driver.NamedValue
			repo := newStubRepository(t, func(query string, args []driver.NamedValue) (driver.Result, error) {
				if !strings.Contains(query, "AND score = $5") {
					t.Fatalf("update is not guarded by the previous score: %q", query)
				}
				got = args
				return driver.RowsAffected(tt.affected), nil
			})

			prev := Entry{PlayerID: "p1", GameID: "g1", Score: 10}
			next := Entry{PlayerID: "p1", GameID: "g1", Score: 20, AchievedAt: time.Now().UTC()}
			err := repo.Replace(context.Background(), prev, next)
			if tt.conflict != errors.Is(err, errConflict) {
				t.Fatalf("conflict = %v, want %v (err %v)", errors.Is(err, errConflict), tt.conflict, err)
			}
			if !tt.conflict && err != nil {
				t.Fatalf("replace: %v", err)
			}
			if len(got) != 5 || got[2].Value != int64(20) || got[4].Value != int64(10) {
				t.Fatalf("unexpected args %+v", got)
			}
		})
	}
}

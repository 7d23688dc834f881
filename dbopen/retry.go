package dbopen

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// busyRetries is how many times Exec tries a statement that hit SQLITE_BUSY.
const busyRetries = 3

// IsBusy reports whether err is an SQLite lock conflict.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, s := range []string{"SQLITE_BUSY", "database is locked", "database table is locked"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// Exec runs a statement, retrying lock conflicts with 100/200 ms backoff.
func Exec(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	var (
		res sql.Result
		err error
	)
	for i := range busyRetries {
		res, err = db.ExecContext(ctx, query, args...)
		if !IsBusy(err) || i == busyRetries-1 {
			break
		}
		t := time.NewTimer(time.Duration(i+1) * 100 * time.Millisecond)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
	return res, err
}

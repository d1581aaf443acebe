package shared

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestIsSQLiteConflictError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("SQLITE_BUSY: database busy"), true},
		{errors.New("database is locked (5)"), true},
		{errors.New("no such table"), false},
	}
	for _, c := range cases {
		if got := IsSQLiteConflictError(c.err); got != c.want {
			t.Errorf("IsSQLiteConflictError(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestIsSQLiteConstraintError(t *testing.T) {
	if !IsSQLiteConstraintError(errors.New("insert agent: constraint failed: UNIQUE constraint failed: agents.system_role (2067)")) {
		t.Error("expected unique violation to be a constraint error")
	}
	if IsSQLiteConstraintError(errors.New("database is locked (5)")) || IsSQLiteConstraintError(nil) {
		t.Error("unexpected constraint match")
	}
}

func TestRetryOnConflictRetriesBusyOnly(t *testing.T) {
	calls := 0
	err := RetryOnConflict(context.Background(), "test", 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("SQLITE_BUSY")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}

	calls = 0
	permanent := errors.New("constraint failed")
	err = RetryOnConflict(context.Background(), "test", 3, time.Millisecond, func() error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) || calls != 1 {
		t.Fatalf("expected single call with permanent error, got %d calls, err %v", calls, err)
	}
}

func TestRetryOnConflictGivesUp(t *testing.T) {
	calls := 0
	err := RetryOnConflict(context.Background(), "test", 2, time.Millisecond, func() error {
		calls++
		return errors.New("database is locked")
	})
	if err == nil || calls != 2 {
		t.Fatalf("expected failure after 2 calls, got %d calls, err %v", calls, err)
	}
}

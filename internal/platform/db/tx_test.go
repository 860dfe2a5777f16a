package db

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type fakeTx struct {
	pgx.Tx
	commitErr  error
	committed  bool
	rolledBack bool
}

func (f *fakeTx) Commit(context.Context) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	if f.committed {
		return pgx.ErrTxClosed
	}
	f.rolledBack = true
	return nil
}

type fakeBeginner struct {
	tx    *fakeTx
	began int
}

func (b *fakeBeginner) Begin(context.Context) (pgx.Tx, error) {
	b.began++
	return b.tx, nil
}

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	err := WithTx(context.Background(), b, func(ctx context.Context) error {
		if TxFromContext(ctx) == nil {
			t.Error("expected transaction in context")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !b.tx.committed {
		t.Error("expected commit")
	}
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	boom := errors.New("boom")
	err := WithTx(context.Background(), b, func(context.Context) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if b.tx.committed || !b.tx.rolledBack {
		t.Errorf("expected rollback only, got %+v", b.tx)
	}
}

func TestWithTx_JoinsOuterTransaction(t *testing.T) {
	outer := &fakeTx{}
	ctx := ContextWithTx(context.Background(), outer)
	b := &fakeBeginner{tx: &fakeTx{}}

	err := WithTx(ctx, b, func(inner context.Context) error {
		if TxFromContext(inner) != pgx.Tx(outer) {
			t.Error("expected the outer transaction to be reused")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.tx.committed || outer.committed {
		t.Error("joined transactions must not be committed by the inner call")
	}
}

func TestWithTx_NoPool(t *testing.T) {
	err := WithTx(context.Background(), nil, func(context.Context) error { return nil })
	if !errors.Is(err, ErrNoPool) {
		t.Errorf("expected ErrNoPool, got %v", err)
	}
}

func TestTxFromContext_WithWrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), DBTxKey, "not-a-tx")
	if tx := TxFromContext(ctx); tx != nil {
		t.Error("expected nil when context value is wrong type")
	}
}

func serveTransactional(b *fakeBeginner, method string, h echo.HandlerFunc) *httptest.ResponseRecorder {
	e := echo.New()
	e.Use(Transactional(b, zerolog.Nop()))
	e.Any("/things", h)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(method, "/things", nil))
	return rec
}

func TestTransactional_CommitsBeforeSuccessIsSent(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	rec := serveTransactional(b, http.MethodPost, func(c echo.Context) error {
		if TxFromContext(c.Request().Context()) == nil {
			t.Error("expected transaction in request context")
		}
		return c.JSON(http.StatusCreated, map[string]string{"id": "1"})
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if !b.tx.committed {
		t.Error("expected commit")
	}
}

func TestTransactional_CommitFailureBecomes500(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{commitErr: errors.New("serialization failure")}}
	rec := serveTransactional(b, http.MethodPost, func(c echo.Context) error {
		return c.JSON(http.StatusCreated, map[string]string{"id": "1"})
	})
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), `"id"`) {
		t.Errorf("success body leaked after failed commit: %s", rec.Body.String())
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "application/problem+json" {
		t.Errorf("expected problem content type, got %q", ct)
	}
	if b.tx.committed {
		t.Error("commit must not be reported")
	}
}

func TestTransactional_ErrorStatusRollsBack(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	rec := serveTransactional(b, http.MethodPut, func(c echo.Context) error {
		return c.JSON(http.StatusConflict, map[string]string{"code": "CONFLICT"})
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if b.tx.committed || !b.tx.rolledBack {
		t.Errorf("expected rollback only, got %+v", b.tx)
	}
}

func TestTransactional_HandlerErrorRollsBack(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	rec := serveTransactional(b, http.MethodDelete, func(echo.Context) error {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "bad")
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	if b.tx.committed || !b.tx.rolledBack {
		t.Errorf("expected rollback only, got %+v", b.tx)
	}
}

func TestTransactional_CommitsWhenNothingWritten(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	serveTransactional(b, http.MethodPost, func(echo.Context) error { return nil })
	if !b.tx.committed {
		t.Error("expected commit")
	}
}

func TestTransactional_SafeMethodsSkipTransaction(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	rec := serveTransactional(b, http.MethodGet, func(c echo.Context) error {
		if TxFromContext(c.Request().Context()) != nil {
			t.Error("GET must not run in a transaction")
		}
		return c.NoContent(http.StatusOK)
	})
	if rec.Code != http.StatusOK || b.began != 0 {
		t.Errorf("expected pass-through, got status %d and %d begins", rec.Code, b.began)
	}
}

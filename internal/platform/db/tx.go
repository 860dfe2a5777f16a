package db

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Querier is the subset of pgx shared by pools, connections and transactions.
// Repositories run every statement through one.
type Querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// Beginner starts transactions. *pgxpool.Pool satisfies it.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// ErrNoPool is returned by WithTx when there is nothing to begin a
// transaction on.
var ErrNoPool = errors.New("no database pool")

// ContextWithTx stores tx in ctx so repositories join it.
func ContextWithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, DBTxKey, tx)
}

// TxFromContext retrieves the request transaction, if any.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(DBTxKey).(pgx.Tx)
	return tx
}

// Conn returns the transaction in ctx, or fallback when there is none.
func Conn(ctx context.Context, fallback Querier) Querier {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return fallback
}

// WithTx runs fn inside a transaction. When ctx already carries one, fn joins
// it and the outer owner decides commit or rollback.
func WithTx(ctx context.Context, b Beginner, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}
	if b == nil {
		return ErrNoPool
	}
	tx, err := b.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(ContextWithTx(ctx, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Transactional wraps each mutating request in one transaction. The commit
// happens just before the response status is written, so a failed commit
// still reaches the client as a 500. Error statuses and handler errors roll
// back. Safe methods pass through.
func Transactional(pool Beginner, logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			switch c.Request().Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				return next(c)
			}

			ctx := c.Request().Context()
			tx, err := pool.Begin(ctx)
			if err != nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "database unavailable").SetInternal(err)
			}
			defer func() {
				if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
					logger.Warn().Err(rbErr).Msg("rollback failed")
				}
			}()

			// settled flips once the outcome is decided; later writes, such as
			// the error handler's, must not commit.
			settled := false
			res := c.Response()
			res.Before(func() {
				if settled {
					return
				}
				settled = true
				if res.Status >= http.StatusBadRequest {
					return
				}
				if err := tx.Commit(ctx); err != nil {
					logger.Error().Err(err).Str("path", c.Request().URL.Path).Msg("commit request transaction")
					res.Status = http.StatusInternalServerError
					res.Writer = &commitFailedWriter{ResponseWriter: res.Writer}
				}
			})

			c.SetRequest(c.Request().WithContext(ContextWithTx(ctx, tx)))

			err = next(c)
			if settled {
				return err
			}
			settled = true
			if err != nil {
				return err
			}
			// Nothing was written; commit now and let a failure surface.
			if err := tx.Commit(ctx); err != nil {
				return fmt.Errorf("commit request transaction: %w", err)
			}
			return nil
		}
	}
}

const commitFailedBody = `{"type":"https://tools.ietf.org/html/rfc9110#section-15.6.1",` +
	`"title":"Internal Server Error","status":500,"detail":"the change could not be saved"}`

// commitFailedWriter replaces the handler's success body with a problem
// document once the commit has failed.
type commitFailedWriter struct {
	http.ResponseWriter
	wrote bool
}

func (w *commitFailedWriter) WriteHeader(code int) {
	h := w.Header()
	h.Set(echo.HeaderContentType, "application/problem+json")
	h.Del(echo.HeaderContentLength)
	w.ResponseWriter.WriteHeader(code)
	if !w.wrote {
		w.wrote = true
		_, _ = w.ResponseWriter.Write([]byte(commitFailedBody))
	}
}

func (w *commitFailedWriter) Write(b []byte) (int, error) { return len(b), nil }

package db

import (
	"context"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type contextKey string

const DBConnKey contextKey = "db_conn"

// SessionMiddleware acquires one pooled connection per request and releases it
// when the handler returns. Repositories pick it up through ConnFromContext.
func SessionMiddleware(pool *pgxpool.Pool, logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			conn, err := pool.Acquire(ctx)
			if err != nil {
				logger.Error().Err(err).
					Str("request_id", requestID(c)).
					Msg("acquire database connection")
				return echo.NewHTTPError(http.StatusServiceUnavailable, "database unavailable")
			}
			defer conn.Release()

			c.SetRequest(c.Request().WithContext(WithConn(ctx, conn)))
			c.Set("db", conn)

			return next(c)
		}
	}
}

// WithConn returns a context carrying the request-scoped connection.
func WithConn(ctx context.Context, conn *pgxpool.Conn) context.Context {
	return context.WithValue(ctx, DBConnKey, conn)
}

// ConnFromContext retrieves the request-scoped database connection from context.
func ConnFromContext(ctx context.Context) *pgxpool.Conn {
	conn, _ := ctx.Value(DBConnKey).(*pgxpool.Conn)
	return conn
}

func requestID(c echo.Context) string {
	rid, _ := c.Get("request_id").(string)
	return rid
}

package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pressly/goose/v3"
	sqldblogger "github.com/simukti/sqldb-logger"
	"go.uber.org/zap"
)

const dialect = "postgres"

//go:embed migrations/*.sql
var migrations embed.FS

// Config configures the Postgres connection.
type Config struct {
	DSN          string
	MaxOpenConns int
	LogQueries   bool
}

// Open connects to Postgres, retrying the initial ping a few times while
// the database container comes up, and applies the embedded migrations.
func Open(ctx context.Context, cfg Config, logr *zap.Logger) (*sqlx.DB, error) {
	raw, err := connect(cfg, logr)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		raw.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	const attempts = 5
	for attempt := 1; ; attempt++ {
		err := raw.PingContext(ctx)
		if err == nil {
			break
		}
		if attempt >= attempts {
			raw.Close()
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		logr.Warn("postgres not ready, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			raw.Close()
			return nil, ctx.Err()
		case <-time.After(3 * time.Second):
		}
	}

	if err := Migrate(raw, logr); err != nil {
		raw.Close()
		return nil, err
	}

	return sqlx.NewDb(raw, dialect), nil
}

// connect opens a single pool, wrapping the driver with the query logger
// when LogQueries is set.
func connect(cfg Config, logr *zap.Logger) (*sql.DB, error) {
	if cfg.LogQueries {
		return sqldblogger.OpenDriver(cfg.DSN, &pq.Driver{}, &sqlLogger{logger: logr.Named("sql")},
			sqldblogger.WithMinimumLevel(sqldblogger.LevelDebug),
		), nil
	}
	return sql.Open(dialect, cfg.DSN)
}

// Migrate applies the embedded goose migrations.
func Migrate(db *sql.DB, logr *zap.Logger) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(&gooseLogger{logger: logr.Named("migrate").Sugar()})
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	return nil
}

type sqlLogger struct {
	logger *zap.Logger
}

func (l *sqlLogger) Log(_ context.Context, level sqldblogger.Level, msg string, data map[string]interface{}) {
	fields := make([]zap.Field, 0, len(data))
	for k, v := range data {
		fields = append(fields, zap.Any(k, v))
	}

	switch level {
	case sqldblogger.LevelError:
		l.logger.Error(msg, fields...)
	case sqldblogger.LevelInfo:
		l.logger.Info(msg, fields...)
	default:
		l.logger.Debug(msg, fields...)
	}
}

type gooseLogger struct {
	logger *zap.SugaredLogger
}

func (l *gooseLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Fatalf(format, v...)
}

func (l *gooseLogger) Printf(format string, v ...interface{}) {
	l.logger.Infof(format, v...)
}

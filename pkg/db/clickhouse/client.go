package clickhouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/tessera-fund/vaultx/pkg/retry"
	"github.com/tessera-fund/vaultx/pkg/utils"
)

type Client struct {
	Logger         *zap.Logger
	Db             driver.Conn
	TargetDatabase string // Target database name (may differ from the current connection)
}

const (
	MergeTree          = "MergeTree"
	ReplacingMergeTree = "ReplacingMergeTree"
)

// Engine renders a table engine clause. ReplacingMergeTree takes an optional
// version column so re-inserts dedupe to the newest row.
func Engine(kind string, versionColumn string) string {
	if kind == ReplacingMergeTree && versionColumn != "" {
		return fmt.Sprintf("%s(%s)", kind, versionColumn)
	}
	return kind
}

// New initializes and returns a new database client for ClickHouse with the
// provided context and logger. The target database is created if missing.
func New(ctx context.Context, logger *zap.Logger, dbName string) (client Client, e error) {
	connCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	client.Logger = logger
	client.TargetDatabase = dbName
	retryConfig := retry.DefaultConfig()

	addr := utils.Env("CLICKHOUSE_ADDR", "localhost:9000")
	username := utils.Env("CLICKHOUSE_USER", "default")
	password := utils.Env("CLICKHOUSE_PASSWORD", "")

	debugEnabled := logger != nil && logger.Core().Enabled(zap.DebugLevel)

	options := &clickhouse.Options{
		Addr: strings.Split(addr, ","),
		Auth: clickhouse.Auth{
			Username: username,
			Password: password,
		},
		MaxOpenConns:    utils.EnvInt("CLICKHOUSE_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    utils.EnvInt("CLICKHOUSE_MAX_IDLE_CONNS", 25),
		ConnMaxLifetime: utils.EnvDuration("CLICKHOUSE_CONN_MAX_LIFETIME", time.Hour),
		DialTimeout:     10 * time.Second,
		Debug:           debugEnabled,
		Compression:     &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
	}

	connectErr := retry.WithBackoff(connCtx, retryConfig, logger, "clickhouse_connection", func() error {
		conn, err := clickhouse.Open(options)
		if err != nil {
			return err
		}
		if err = conn.Ping(connCtx); err != nil {
			return err
		}
		client.Db = conn
		return nil
	})
	if connectErr != nil {
		return client, connectErr
	}

	if err := client.EnsureDatabase(connCtx); err != nil {
		return client, err
	}

	logger.Info("Connected to ClickHouse",
		zap.String("addr", addr),
		zap.String("database", dbName))

	return client, nil
}

// EnsureDatabase creates the target database if it does not exist yet.
func (c *Client) EnsureDatabase(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS "%s"`, c.TargetDatabase)
	if err := c.Db.Exec(ctx, query); err != nil {
		return fmt.Errorf("create database %s: %w", c.TargetDatabase, err)
	}
	return nil
}

// Exec runs a statement against the connection.
func (c *Client) Exec(ctx context.Context, query string, args ...any) error {
	return c.Db.Exec(ctx, query, args...)
}

// Select scans query results into dest.
func (c *Client) Select(ctx context.Context, dest interface{}, query string, args ...any) error {
	return c.Db.Select(ctx, dest, query, args...)
}

// QueryRow returns a single row.
func (c *Client) QueryRow(ctx context.Context, query string, args ...any) driver.Row {
	return c.Db.QueryRow(ctx, query, args...)
}

// PrepareBatch prepares a batch insert.
func (c *Client) PrepareBatch(ctx context.Context, query string) (driver.Batch, error) {
	return c.Db.PrepareBatch(ctx, query)
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.Db.Close()
}

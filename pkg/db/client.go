// Package db owns the shared GORM connection: Postgres in deployed
// environments, sqlite for local runs and tests.
package db

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/creatorvault-backend/pkg/config"
	"github.com/angelmondragon/creatorvault-backend/pkg/logger"
)

const defaultTxRetries = 3

type Client struct {
	conn      *gorm.DB
	txRetries int
}

// New opens the configured database. useSQLite switches to cfg.SQLitePath.
func New(ctx context.Context, cfg config.DBConfig, useSQLite bool, logg *logger.Logger) (*Client, error) {
	dialector, err := dialectorFor(cfg, useSQLite)
	if err != nil {
		return nil, err
	}
	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 queryLogger(logg, cfg.SlowQueryThreshold),
		SkipDefaultTransaction: true,
		NowFunc:                NowUTC,
	})
	if err != nil {
		return nil, fmt.Errorf("opening %s connection: %w", dialector.Name(), err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("sql handle: %w", err)
	}

	if useSQLite {
		// one writer at a time or sqlite answers SQLITE_BUSY
		sqlDB.SetMaxOpenConns(1)
		if err := conn.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			return nil, fmt.Errorf("enabling sqlite foreign keys: %w", err)
		}
	} else {
		if cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		}
	}
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if logg != nil {
		logg.Info(logg.WithField(ctx, "dialect", dialector.Name()), "database connection established")
	}
	retries := cfg.TxRetries
	if retries <= 0 {
		retries = defaultTxRetries
	}
	return &Client{conn: conn, txRetries: retries}, nil
}

// NowUTC stamps autoCreateTime and autoUpdateTime columns. UTC keeps range
// filters consistent on sqlite, which stores times as text.
func NowUTC() time.Time {
	return time.Now().UTC()
}

// NewFromConn wraps an open connection. Used by tests.
func NewFromConn(conn *gorm.DB) *Client {
	return &Client{conn: conn, txRetries: defaultTxRetries}
}

func dialectorFor(cfg config.DBConfig, useSQLite bool) (gorm.Dialector, error) {
	if useSQLite {
		if cfg.SQLitePath == "" {
			return nil, fmt.Errorf("sqlite path is required")
		}
		return sqlite.Open(cfg.SQLitePath), nil
	}
	dsn := cfg.DSN
	if dsn == "" {
		dsn = postgresURL(cfg)
	}
	if dsn == "" {
		return nil, fmt.Errorf("database DSN or host is required")
	}
	return postgres.New(postgres.Config{DSN: dsn, PreferSimpleProtocol: true}), nil
}

// postgresURL assembles a DSN from the discrete host settings.
func postgresURL(cfg config.DBConfig) string {
	if cfg.Host == "" {
		return ""
	}
	host := cfg.Host
	if cfg.Port > 0 {
		host += ":" + strconv.Itoa(cfg.Port)
	}
	u := url.URL{Scheme: "postgres", Host: host, Path: "/" + cfg.Name}
	if cfg.User != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	}
	if cfg.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {cfg.SSLMode}}.Encode()
	}
	return u.String()
}

func (c *Client) DB() *gorm.DB {
	return c.conn
}

func (c *Client) Ping(ctx context.Context) error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (c *Client) Close() error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithTx runs fn in a transaction. fn's error or panic rolls back. Postgres
// serialization failures and deadlocks rerun fn from the start, so fn must
// not have effects outside tx.
func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	var err error
	for attempt := 0; attempt <= c.txRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 20 * time.Millisecond):
			}
		}
		err = c.conn.WithContext(ctx).Transaction(fn)
		if !IsRetryableTx(err) {
			return err
		}
	}
	return err
}

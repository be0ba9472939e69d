package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Options describes a MySQL connection.
type Options struct {
	User     string
	Password string
	Host     string
	Port     string
	Name     string
	// MaxConns caps open and idle connections (default 25).
	MaxConns int
}

// DSN renders the options for the mysql driver.  parseTime maps DATETIME to
// time.Time and loc=UTC keeps those times consistent with the engine clock.
func (o Options) DSN() string {
	cfg := mysql.NewConfig()
	cfg.User = o.User
	cfg.Passwd = o.Password
	cfg.Net = "tcp"
	cfg.Addr = o.Host + ":" + o.Port
	cfg.DBName = o.Name
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg.FormatDSN()
}

// Open connects to MySQL and verifies the connection.
func Open(ctx context.Context, o Options) (*sql.DB, error) {
	const op = "database.Open"

	db, err := sql.Open("mysql", o.DSN())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	n := o.MaxConns
	if n <= 0 {
		n = 25
	}
	db.SetMaxOpenConns(n)
	db.SetMaxIdleConns(n)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return db, nil
}

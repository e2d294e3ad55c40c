package sqlschema

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/strata-db/strata/internal/retry"
)

type ConnectOptions struct {
	MaxAttempts int
	MaxTimeout  time.Duration
	Step        time.Duration
}

func NewDefaultConnectOptions() *ConnectOptions {
	return &ConnectOptions{
		MaxAttempts: 60,
		MaxTimeout:  60 * time.Second,
		Step:        1 * time.Second,
	}
}

// Connect opens a handle for the given driver and pings it with incremental
// backoff until the database is reachable or attempts run out; freshly
// started database containers take a while to accept connections.
func Connect(driver, dsn string, options *ConnectOptions, opts ...OptionFunc) (*Conn, error) {
	if options == nil {
		options = NewDefaultConnectOptions()
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open [%s] database", driver)
	}

	ctx, cancel := context.WithTimeout(context.Background(), options.MaxTimeout)
	defer cancel()

	if err := retry.Incremental(ctx, options.Step, options.MaxAttempts, func(attempt int) error {
		if pingErr := db.PingContext(ctx); pingErr != nil {
			return retry.Error(errors.Wrap(pingErr, "could not establish DB connection"), attempt)
		}

		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}

	switch driver {
	case "mysql":
		return NewMySQLConn(db, opts...), nil
	case "sqlite3":
		return NewSqliteConn(db, opts...), nil
	default:
		_ = db.Close()
		return nil, errors.Errorf("unsupported database driver [%s]", driver)
	}
}

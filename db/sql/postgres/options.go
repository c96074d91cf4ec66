package postgres

import "time"

// Options holds the user directory's connection and pool settings.
type Options struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type Option func(*Options)

// WithDSN sets the lib/pq connection string. Empty values are ignored.
func WithDSN(dsn string) Option {
	return func(o *Options) {
		if dsn != "" {
			o.DSN = dsn
		}
	}
}

// WithMaxOpenConns caps open connections. The idle pool shrinks to half of
// the cap when it would otherwise exceed it.
func WithMaxOpenConns(n int) Option {
	return func(o *Options) {
		if n <= 0 {
			return
		}
		o.MaxOpenConns = n
		if o.MaxIdleConns > n {
			o.MaxIdleConns = n / 2
		}
	}
}

func WithMaxIdleConns(n int) Option {
	return func(o *Options) {
		if n >= 0 {
			o.MaxIdleConns = n
		}
	}
}

func WithConnMaxLifetime(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.ConnMaxLifetime = d
		}
	}
}

// Directory lookups are short point queries, so a small pool is enough.
func defaultOptions() Options {
	return Options{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

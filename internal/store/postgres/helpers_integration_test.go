//go:build integration

package postgres_test

import "pseudonym-gateway/internal/platform/config"

func configFor(dsn string) config.Database {
	return config.Database{URL: dsn, MaxOpenConns: 2}
}

// Package persistence provides the durable result cache backing the
// widget's rehydration path. The same code runs against a local sqlite file
// or a remote libsql database, selected by driver name.
package persistence

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/miqyas/sizecore-go/internal/infrastructure/observability/logging"
	_ "github.com/mattn/go-sqlite3"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
)

// DB wraps the standard SQL connection.
type DB struct {
	*sql.DB
}

// NewConnection opens and pings a database connection for the configured
// driver. For libsql, a non-empty authToken is appended to the DSN.
func NewConnection(driverName, dataSourceName, authToken string, logger *logging.ChanneledLogger) (*DB, error) {
	start := time.Now()
	logger.Cache().Debug("Creating cache database connection", "driverName", driverName)

	if driverName == "libsql" && authToken != "" {
		dataSourceName = fmt.Sprintf("%s?authToken=%s", dataSourceName, authToken)
	}

	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		logger.Cache().Error("Failed to open cache database", "error", err.Error(), "driverName", driverName)
		return nil, err
	}

	if err = db.Ping(); err != nil {
		logger.Cache().Error("Cache database ping failed", "error", err.Error(), "driverName", driverName)
		db.Close()
		return nil, err
	}

	logger.Cache().Info("Cache database connection established",
		"driverName", driverName, "duration", time.Since(start))
	return &DB{db}, nil
}

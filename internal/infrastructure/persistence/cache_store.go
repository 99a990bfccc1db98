package persistence

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/miqyas/sizecore-go/internal/domain/widget"
	"github.com/miqyas/sizecore-go/internal/infrastructure/observability/logging"
)

const cacheSchema = `CREATE TABLE IF NOT EXISTS widget_cache (
	store_id TEXT PRIMARY KEY,
	key_type TEXT NOT NULL DEFAULT '',
	last_result TEXT,
	updated_at TIMESTAMP NOT NULL
)`

// ResultCache persists the last recommendation per store so a returning
// visitor sees their result without redoing the flow.
type ResultCache struct {
	db     *DB
	logger *logging.ChanneledLogger
}

// NewResultCache creates the cache table if needed and returns the store.
func NewResultCache(db *DB, logger *logging.ChanneledLogger) (*ResultCache, error) {
	if _, err := db.Exec(cacheSchema); err != nil {
		return nil, fmt.Errorf("failed to create widget_cache table: %w", err)
	}
	return &ResultCache{db: db, logger: logger}, nil
}

// Load returns the cached entry for a store, or (nil, nil) when no result
// is cached. A row with a null last_result counts as no result.
func (c *ResultCache) Load(storeID string) (*widget.PersistedCache, error) {
	var keyType string
	var lastResult sql.NullString
	err := c.db.QueryRow(
		`SELECT key_type, last_result FROM widget_cache WHERE store_id = ?`, storeID,
	).Scan(&keyType, &lastResult)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cached result: %w", err)
	}
	if !lastResult.Valid || lastResult.String == "" {
		return nil, nil
	}

	var result widget.RecommendationResult
	if err := json.Unmarshal([]byte(lastResult.String), &result); err != nil {
		c.logger.Cache().Warn("Discarding unreadable cached result",
			"storeId", storeID, "error", err.Error())
		return nil, nil
	}
	return &widget.PersistedCache{
		StoreID:    storeID,
		KeyType:    keyType,
		LastResult: &result,
	}, nil
}

// Save upserts the store's cached result.
func (c *ResultCache) Save(entry *widget.PersistedCache) error {
	payload, err := json.Marshal(entry.LastResult)
	if err != nil {
		return fmt.Errorf("failed to encode result for cache: %w", err)
	}
	_, err = c.db.Exec(
		`INSERT INTO widget_cache (store_id, key_type, last_result, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(store_id) DO UPDATE SET
		   key_type = excluded.key_type,
		   last_result = excluded.last_result,
		   updated_at = excluded.updated_at`,
		entry.StoreID, entry.KeyType, string(payload), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save cached result: %w", err)
	}
	c.logger.Cache().Debug("Cached result saved",
		"storeId", entry.StoreID, "keyType", entry.KeyType)
	return nil
}

// Clear drops the cached result but keeps the store row and key type, so a
// retake remembers which measurement key set the store uses.
func (c *ResultCache) Clear(storeID string) error {
	_, err := c.db.Exec(
		`UPDATE widget_cache SET last_result = NULL, updated_at = ? WHERE store_id = ?`,
		time.Now().UTC(), storeID,
	)
	if err != nil {
		return fmt.Errorf("failed to clear cached result: %w", err)
	}
	c.logger.Cache().Debug("Cached result cleared", "storeId", storeID)
	return nil
}

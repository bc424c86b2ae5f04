package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hpungsan/storysync/internal/errors"
)

// CacheEntry is a stored response in a named cache partition.
type CacheEntry struct {
	Partition string
	Key       string
	URL       string
	Status    int
	Header    http.Header
	Body      []byte
	StoredAt  time.Time
}

// PartitionInfo summarizes one cache partition.
type PartitionInfo struct {
	Name      string    `json:"name"`
	Entries   int       `json:"entries"`
	Bytes     int64     `json:"bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// EnsurePartition creates the partition if it does not exist.
func EnsurePartition(ctx context.Context, db *sql.DB, name string, now time.Time) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO cache_partitions (name, created_at) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
		name, now.UnixMilli(),
	)
	if err != nil {
		return errors.NewStoreFailed("ensure partition", err)
	}
	return nil
}

// ListPartitions returns all partitions with their entry counts and body sizes, ordered by name.
func ListPartitions(ctx context.Context, db *sql.DB) ([]PartitionInfo, error) {
	query := `
		SELECT p.name, p.created_at, COUNT(e.key), COALESCE(SUM(LENGTH(e.body)), 0)
		FROM cache_partitions p
		LEFT JOIN cache_entries e ON e.partition = p.name
		GROUP BY p.name, p.created_at
		ORDER BY p.name
	`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.NewStoreFailed("list partitions", err)
	}
	defer rows.Close()

	infos := []PartitionInfo{}
	for rows.Next() {
		var (
			info      PartitionInfo
			createdAt int64
		)
		if err := rows.Scan(&info.Name, &createdAt, &info.Entries, &info.Bytes); err != nil {
			return nil, errors.NewStoreFailed("list partitions", err)
		}
		info.CreatedAt = time.UnixMilli(createdAt).UTC()
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreFailed("list partitions", err)
	}
	return infos, nil
}

// DeletePartition removes a partition and all its entries.
// Deleting a missing partition is not an error.
func DeletePartition(ctx context.Context, db *sql.DB, name string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewStoreFailed("delete partition", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cache_entries WHERE partition = ?`, name); err != nil {
		return errors.NewStoreFailed("delete partition", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM cache_partitions WHERE name = ?`, name); err != nil {
		return errors.NewStoreFailed("delete partition", err)
	}
	if err := tx.Commit(); err != nil {
		return errors.NewStoreFailed("delete partition", err)
	}
	return nil
}

// PutEntry stores a response, replacing any entry with the same key (last write wins).
// The partition row is created on first use.
func PutEntry(ctx context.Context, db *sql.DB, e *CacheEntry) error {
	if err := EnsurePartition(ctx, db, e.Partition, e.StoredAt); err != nil {
		return err
	}

	var headersJSON sql.NullString
	if len(e.Header) > 0 {
		data, err := json.Marshal(e.Header)
		if err != nil {
			return errors.NewInternal(err)
		}
		headersJSON = sql.NullString{String: string(data), Valid: true}
	}

	query := `
		INSERT INTO cache_entries (partition, key, url, status, headers_json, body, stored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(partition, key) DO UPDATE SET
			url = excluded.url,
			status = excluded.status,
			headers_json = excluded.headers_json,
			body = excluded.body,
			stored_at = excluded.stored_at
	`
	_, err := db.ExecContext(ctx, query,
		e.Partition, e.Key, e.URL, e.Status, headersJSON, e.Body, e.StoredAt.UnixMilli(),
	)
	if err != nil {
		return errors.NewStoreFailed("put cache entry", err)
	}
	return nil
}

// MatchEntry looks up key in a single partition.
func MatchEntry(ctx context.Context, db *sql.DB, partition, key string) (*CacheEntry, bool, error) {
	query := `
		SELECT partition, key, url, status, headers_json, body, stored_at
		FROM cache_entries
		WHERE partition = ? AND key = ?
	`
	e, err := scanEntry(db.QueryRowContext(ctx, query, partition, key))
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.NewStoreFailed("match cache entry", err)
	}
	return e, true, nil
}

// MatchAny looks up key across every partition, preferring the most recently stored entry.
func MatchAny(ctx context.Context, db *sql.DB, key string) (*CacheEntry, bool, error) {
	query := `
		SELECT partition, key, url, status, headers_json, body, stored_at
		FROM cache_entries
		WHERE key = ?
		ORDER BY stored_at DESC
		LIMIT 1
	`
	e, err := scanEntry(db.QueryRowContext(ctx, query, key))
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.NewStoreFailed("match cache entry", err)
	}
	return e, true, nil
}

// TrimPartition deletes entries stored before olderThan, then the oldest entries beyond max.
// A zero olderThan skips expiry; max <= 0 skips the capacity bound.
// Returns the number of entries removed.
func TrimPartition(ctx context.Context, db *sql.DB, partition string, max int, olderThan time.Time) (int64, error) {
	var removed int64

	if !olderThan.IsZero() {
		result, err := db.ExecContext(ctx,
			`DELETE FROM cache_entries WHERE partition = ? AND stored_at < ?`,
			partition, olderThan.UnixMilli(),
		)
		if err != nil {
			return removed, errors.NewStoreFailed("trim partition", err)
		}
		n, _ := result.RowsAffected()
		removed += n
	}

	if max > 0 {
		query := `
			DELETE FROM cache_entries
			WHERE partition = ? AND key IN (
				SELECT key FROM cache_entries
				WHERE partition = ?
				ORDER BY stored_at DESC, key DESC
				LIMIT -1 OFFSET ?
			)
		`
		result, err := db.ExecContext(ctx, query, partition, partition, max)
		if err != nil {
			return removed, errors.NewStoreFailed("trim partition", err)
		}
		n, _ := result.RowsAffected()
		removed += n
	}

	return removed, nil
}

func scanEntry(row rowScanner) (*CacheEntry, error) {
	var (
		e           CacheEntry
		headersJSON sql.NullString
		storedAt    int64
	)
	if err := row.Scan(&e.Partition, &e.Key, &e.URL, &e.Status, &headersJSON, &e.Body, &storedAt); err != nil {
		return nil, err
	}
	if headersJSON.Valid && headersJSON.String != "" {
		if err := json.Unmarshal([]byte(headersJSON.String), &e.Header); err != nil {
			return nil, err
		}
	}
	if e.Header == nil {
		e.Header = http.Header{}
	}
	e.StoredAt = time.UnixMilli(storedAt).UTC()
	return &e, nil
}

// HasPartition reports whether a partition exists.
func HasPartition(ctx context.Context, db *sql.DB, name string) (bool, error) {
	var exists int
	err := db.QueryRowContext(ctx, `SELECT 1 FROM cache_partitions WHERE name = ?`, name).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.NewStoreFailed("check partition", err)
	}
	return true, nil
}

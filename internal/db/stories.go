package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/hpungsan/storysync/internal/errors"
	"github.com/hpungsan/storysync/internal/story"
)

// PutStory inserts a story or overwrites the row with the same id.
func PutStory(ctx context.Context, db *sql.DB, r *story.Record) error {
	var (
		photo     []byte
		photoName sql.NullString
		photoType sql.NullString
	)
	if r.Photo != nil {
		photo = r.Photo.Data
		photoName = toNullString(r.Photo.Filename)
		photoType = toNullString(r.Photo.ContentType)
	}

	query := `
		INSERT INTO stories (
			id, title, description, lat, lon,
			photo, photo_name, photo_type, photo_url,
			created_at, pending
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			lat = excluded.lat,
			lon = excluded.lon,
			photo = excluded.photo,
			photo_name = excluded.photo_name,
			photo_type = excluded.photo_type,
			photo_url = excluded.photo_url,
			created_at = excluded.created_at,
			pending = excluded.pending
	`

	_, err := db.ExecContext(ctx, query,
		r.ID, r.Name, r.Description, r.Lat, r.Lon,
		photo, photoName, photoType, toNullString(r.PhotoURL),
		r.CreatedAt.UnixMilli(), boolToInt(r.Pending),
	)
	if err != nil {
		return errors.NewStoreFailed("put story", err)
	}
	return nil
}

// ListStories returns every story, oldest first.
func ListStories(ctx context.Context, db *sql.DB) ([]story.Record, error) {
	query := `
		SELECT id, title, description, lat, lon,
			photo, photo_name, photo_type, photo_url,
			created_at, pending
		FROM stories
		ORDER BY created_at ASC, id ASC
	`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.NewStoreFailed("list stories", err)
	}
	defer rows.Close()

	records := []story.Record{}
	for rows.Next() {
		r, err := scanStory(rows)
		if err != nil {
			return nil, errors.NewStoreFailed("list stories", err)
		}
		records = append(records, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreFailed("list stories", err)
	}
	return records, nil
}

// GetStory retrieves a story by id.
func GetStory(ctx context.Context, db *sql.DB, id string) (*story.Record, error) {
	query := `
		SELECT id, title, description, lat, lon,
			photo, photo_name, photo_type, photo_url,
			created_at, pending
		FROM stories
		WHERE id = ?
	`

	r, err := scanStory(db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, errors.NewStoreFailed("get story", err)
	}
	return r, nil
}

// DeleteStory removes a story by id.
// Returns NOT_FOUND when no row matched.
func DeleteStory(ctx context.Context, db *sql.DB, id string) error {
	result, err := db.ExecContext(ctx, `DELETE FROM stories WHERE id = ?`, id)
	if err != nil {
		return errors.NewStoreFailed("delete story", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewStoreFailed("delete story", err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound(id)
	}
	return nil
}

// CountPending returns the number of stories waiting for reconciliation.
func CountPending(ctx context.Context, db *sql.DB) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM stories WHERE pending = 1`).Scan(&n); err != nil {
		return 0, errors.NewStoreFailed("count pending", err)
	}
	return n, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanStory(row rowScanner) (*story.Record, error) {
	var (
		r         story.Record
		photo     []byte
		photoName sql.NullString
		photoType sql.NullString
		photoURL  sql.NullString
		createdAt int64
		pending   int
	)

	err := row.Scan(
		&r.ID, &r.Name, &r.Description, &r.Lat, &r.Lon,
		&photo, &photoName, &photoType, &photoURL,
		&createdAt, &pending,
	)
	if err != nil {
		return nil, err
	}

	if photo != nil || photoName.Valid {
		r.Photo = &story.Photo{
			Filename:    photoName.String,
			ContentType: photoType.String,
			Size:        len(photo),
			Data:        photo,
		}
	}
	r.PhotoURL = photoURL.String
	r.CreatedAt = time.UnixMilli(createdAt).UTC()
	r.Pending = pending != 0

	return &r, nil
}

// toNullString maps "" to NULL.
func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

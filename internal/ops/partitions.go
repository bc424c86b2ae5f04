package ops

import (
	"context"
	"database/sql"
	"slices"
	"time"

	"github.com/hpungsan/storysync/internal/db"
)

// PartitionSummary describes one cache partition.
type PartitionSummary struct {
	Name       string    `json:"name"`
	Entries    int       `json:"entries"`
	Bytes      int64     `json:"bytes"`
	CreatedAt  time.Time `json:"created_at"`
	Recognized bool      `json:"recognized"`
}

// PartitionsOutput contains the result of the Partitions operation.
type PartitionsOutput struct {
	Items        []PartitionSummary `json:"items"`
	TotalEntries int                `json:"total_entries"`
	TotalBytes   int64              `json:"total_bytes"`
}

// Partitions lists cache partitions. Partitions outside recognized are evicted at the
// next activation.
func Partitions(ctx context.Context, database *sql.DB, recognized []string) (*PartitionsOutput, error) {
	parts, err := db.ListPartitions(ctx, database)
	if err != nil {
		return nil, err
	}

	out := &PartitionsOutput{Items: make([]PartitionSummary, 0, len(parts))}
	for _, p := range parts {
		out.Items = append(out.Items, PartitionSummary{
			Name:       p.Name,
			Entries:    p.Entries,
			Bytes:      p.Bytes,
			CreatedAt:  p.CreatedAt,
			Recognized: slices.Contains(recognized, p.Name),
		})
		out.TotalEntries += p.Entries
		out.TotalBytes += p.Bytes
	}
	return out, nil
}

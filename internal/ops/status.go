package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/storysync/internal/db"
)

// StatusInput carries the runtime state the store cannot answer for.
type StatusInput struct {
	State      string
	Version    string
	Online     bool
	Clients    int
	Armed      []string
	Recognized []string
}

// StatusOutput is the edge's health snapshot.
type StatusOutput struct {
	State      string             `json:"state"`
	Version    string             `json:"version"`
	Online     bool               `json:"online"`
	Clients    int                `json:"clients"`
	Armed      []string           `json:"armed"`
	Pending    int                `json:"pending"`
	Partitions []PartitionSummary `json:"partitions"`
}

// Status combines input with the pending count and partition listing.
func Status(ctx context.Context, database *sql.DB, input StatusInput) (*StatusOutput, error) {
	pending, err := db.CountPending(ctx, database)
	if err != nil {
		return nil, err
	}
	parts, err := Partitions(ctx, database, input.Recognized)
	if err != nil {
		return nil, err
	}
	armed := input.Armed
	if armed == nil {
		armed = []string{}
	}
	return &StatusOutput{
		State:      input.State,
		Version:    input.Version,
		Online:     input.Online,
		Clients:    input.Clients,
		Armed:      armed,
		Pending:    pending,
		Partitions: parts.Items,
	}, nil
}

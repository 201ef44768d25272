package primary

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/valueindex/pkg/postgres"
)

const loadNodesQuery = `
SELECT id, kind, COALESCE(value, '')
FROM nodes
WHERE document = $1
ORDER BY pre`

// LoadPostgres reads the node table of document, in structural order, into a
// MemTable. Persistent ids are taken from the id column. The whole read runs
// in one snapshot so concurrent writers cannot tear the table.
func LoadPostgres(ctx context.Context, client *postgres.Client, document string) (*MemTable, error) {
	var t *MemTable
	err := client.Snapshot(ctx, func(tx *sql.Tx) error {
		var err error
		t, err = scanNodes(ctx, tx, document)
		return err
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func scanNodes(ctx context.Context, tx *sql.Tx, document string) (*MemTable, error) {
	rows, err := tx.QueryContext(ctx, loadNodesQuery, document)
	if err != nil {
		return nil, fmt.Errorf("querying nodes of %s: %w", document, err)
	}
	defer rows.Close()

	t := NewMemTable()
	for rows.Next() {
		var (
			id    int
			kind  string
			value string
		)
		if err := rows.Scan(&id, &kind, &value); err != nil {
			return nil, fmt.Errorf("scanning node row: %w", err)
		}
		k, err := ParseKind(kind)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", id, err)
		}
		if err := t.AppendWithID(k, id, value); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating nodes of %s: %w", document, err)
	}
	return t, nil
}

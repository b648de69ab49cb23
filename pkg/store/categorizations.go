package store

import (
	"context"
	"fmt"

	"github.com/matzehuels/packscan/pkg/classify"
)

// SaveCategorization records id's category in the categorization table,
// replacing any previous entry.
func (s *Store) SaveCategorization(ctx context.Context, id int64, c classify.Category) error {
	const q = `
		INSERT INTO categorizations (id, category) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET category = excluded.category`
	return s.exec(ctx, fmt.Sprintf("save categorization %d", id), q, id, string(c))
}

// Categorizations returns the whole categorization table.
func (s *Store) Categorizations(ctx context.Context) (map[int64]classify.Category, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, category FROM categorizations")
	if err != nil {
		return nil, fmt.Errorf("store: categorizations: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]classify.Category)
	for rows.Next() {
		var id int64
		var c string
		if err := rows.Scan(&id, &c); err != nil {
			return nil, fmt.Errorf("store: scan categorization: %w", err)
		}
		out[id] = classify.Category(c)
	}
	return out, rows.Err()
}

// ClearCategorizations empties the categorization table.
func (s *Store) ClearCategorizations(ctx context.Context) error {
	return s.exec(ctx, "clear categorizations", "DELETE FROM categorizations")
}

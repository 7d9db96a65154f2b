package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rogers-f/clash-section-engine/internal/domain"
)

// SavedItemRepo handles persistence for saved viewpoint and selection-set
// tree entries.
type SavedItemRepo struct{}

const savedItemColumns = `item_id, tree, parent_id, kind, display_name, position, payload_json, created_at`

// CreateTx inserts an item within an existing transaction.
func (r *SavedItemRepo) CreateTx(ctx context.Context, tx *sql.Tx, item domain.SavedItem) error {
	const q = `INSERT INTO saved_items (` + savedItemColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q,
		item.ID,
		item.Tree,
		item.ParentID,
		string(item.Kind),
		item.DisplayName,
		item.Position,
		item.PayloadJSON,
		item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create saved item: %w", err)
	}
	return nil
}

// ShiftTx moves every child of parentID at or after position one slot down.
func (r *SavedItemRepo) ShiftTx(ctx context.Context, tx *sql.Tx, tree, parentID string, position int) error {
	const q = `UPDATE saved_items SET position = position + 1
WHERE tree = ? AND parent_id = ? AND position >= ?`
	if _, err := tx.ExecContext(ctx, q, tree, parentID, position); err != nil {
		return fmt.Errorf("shift saved items: %w", err)
	}
	return nil
}

// CountChildren returns the number of direct children of parentID. The empty
// parent ID is the tree's top level.
func (r *SavedItemRepo) CountChildren(ctx context.Context, q queryer, tree, parentID string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM saved_items WHERE tree = ? AND parent_id = ?`, tree, parentID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count saved items: %w", err)
	}
	return n, nil
}

// FindChild returns the first child of parentID with the given kind and
// exact display name, in position order. Returns nil if none exists.
func (r *SavedItemRepo) FindChild(ctx context.Context, q queryer, tree, parentID string, kind domain.SavedItemKind, name string) (*domain.SavedItem, error) {
	const query = `SELECT ` + savedItemColumns + `
FROM saved_items
WHERE tree = ? AND parent_id = ? AND kind = ? AND display_name = ?
ORDER BY position ASC
LIMIT 1`
	item, err := scanSavedItem(q.QueryRowContext(ctx, query, tree, parentID, string(kind), name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find saved item: %w", err)
	}
	return item, nil
}

// GetByID retrieves an item by its ID.
func (r *SavedItemRepo) GetByID(ctx context.Context, db *sql.DB, id string) (*domain.SavedItem, error) {
	const q = `SELECT ` + savedItemColumns + ` FROM saved_items WHERE item_id = ?`
	item, err := scanSavedItem(db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrItemNotFound
		}
		return nil, fmt.Errorf("get saved item: %w", err)
	}
	return item, nil
}

// ListChildren returns the direct children of parentID in position order.
func (r *SavedItemRepo) ListChildren(ctx context.Context, db *sql.DB, tree, parentID string) ([]domain.SavedItem, error) {
	const q = `SELECT ` + savedItemColumns + `
FROM saved_items
WHERE tree = ? AND parent_id = ?
ORDER BY position ASC`

	rows, err := db.QueryContext(ctx, q, tree, parentID)
	if err != nil {
		return nil, fmt.Errorf("list saved items: %w", err)
	}
	defer rows.Close()

	var items []domain.SavedItem
	for rows.Next() {
		item, err := scanSavedItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan saved item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSavedItem(s scanner) (*domain.SavedItem, error) {
	var item domain.SavedItem
	var kind string
	err := s.Scan(&item.ID, &item.Tree, &item.ParentID, &kind, &item.DisplayName,
		&item.Position, &item.PayloadJSON, &item.CreatedAt)
	if err != nil {
		return nil, err
	}
	item.Kind = domain.SavedItemKind(kind)
	return &item, nil
}

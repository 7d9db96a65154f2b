package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/rogers-f/clash-section-engine/internal/domain"
)

// SavedItemTree is one saved item tree of a document, such as the saved
// viewpoints or the selection sets.
type SavedItemTree struct {
	DB   *sql.DB
	Tree string

	repo SavedItemRepo
}

// NewSavedItemTree returns the tree with the given name in db.
func NewSavedItemTree(db *sql.DB, tree string) *SavedItemTree {
	return &SavedItemTree{DB: db, Tree: tree}
}

// FindTopLevelFolder looks for a top-level folder named exactly name.
func (t *SavedItemTree) FindTopLevelFolder(ctx context.Context, name string) (domain.FolderHandle, bool, error) {
	item, err := t.repo.FindChild(ctx, t.DB, t.Tree, "", domain.KindFolder, name)
	if err != nil {
		return domain.FolderHandle{}, false, domain.WrapEngineError(domain.ErrStoreQuery.Code, "find folder", err)
	}
	if item == nil {
		return domain.FolderHandle{}, false, nil
	}
	return t.handle(item), true, nil
}

// AppendFolder creates a top-level folder after the existing top-level items.
func (t *SavedItemTree) AppendFolder(ctx context.Context, name string) (domain.FolderHandle, error) {
	var created domain.SavedItem
	err := t.withTx(ctx, func(tx *sql.Tx) error {
		n, err := t.repo.CountChildren(ctx, tx, t.Tree, "")
		if err != nil {
			return err
		}
		created = domain.SavedItem{
			ID:          uuid.New().String(),
			Tree:        t.Tree,
			Kind:        domain.KindFolder,
			DisplayName: name,
			Position:    n,
			PayloadJSON: "{}",
			CreatedAt:   time.Now().Unix(),
		}
		return t.repo.CreateTx(ctx, tx, created)
	})
	if err != nil {
		return domain.FolderHandle{}, domain.WrapEngineError(domain.ErrFolderCreate.Code, domain.ErrFolderCreate.Message, err)
	}
	return t.handle(&created), nil
}

// ChildCount returns the number of direct children of folder.
func (t *SavedItemTree) ChildCount(ctx context.Context, folder domain.FolderHandle) (int, error) {
	n, err := t.repo.CountChildren(ctx, t.DB, t.Tree, folder.ID)
	if err != nil {
		return 0, domain.WrapEngineError(domain.ErrStoreQuery.Code, "count folder children", err)
	}
	return n, nil
}

// InsertInto places item in folder at index, shifting later siblings. An index
// past the end appends. The stored item is returned with its ID, tree, parent
// and position filled in.
func (t *SavedItemTree) InsertInto(ctx context.Context, folder domain.FolderHandle, index int, item domain.SavedItem) (domain.SavedItem, error) {
	if !folder.Valid() || folder.Tree != t.Tree {
		return domain.SavedItem{}, domain.ErrInvalidFolder
	}
	err := t.withTx(ctx, func(tx *sql.Tx) error {
		n, err := t.repo.CountChildren(ctx, tx, t.Tree, folder.ID)
		if err != nil {
			return err
		}
		if index < 0 || index > n {
			index = n
		}
		if index < n {
			if err := t.repo.ShiftTx(ctx, tx, t.Tree, folder.ID, index); err != nil {
				return err
			}
		}
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		if item.CreatedAt == 0 {
			item.CreatedAt = time.Now().Unix()
		}
		if item.PayloadJSON == "" {
			item.PayloadJSON = "{}"
		}
		item.Tree = t.Tree
		item.ParentID = folder.ID
		item.Position = index
		return t.repo.CreateTx(ctx, tx, item)
	})
	if err != nil {
		return domain.SavedItem{}, domain.WrapEngineError(domain.ErrInsertFailed.Code, domain.ErrInsertFailed.Message, err)
	}
	return item, nil
}

// Children lists the direct children of folder in order.
func (t *SavedItemTree) Children(ctx context.Context, folder domain.FolderHandle) ([]domain.SavedItem, error) {
	items, err := t.repo.ListChildren(ctx, t.DB, t.Tree, folder.ID)
	if err != nil {
		return nil, domain.WrapEngineError(domain.ErrStoreQuery.Code, "list folder", err)
	}
	return items, nil
}

// TopLevel lists the top-level items of the tree in order.
func (t *SavedItemTree) TopLevel(ctx context.Context) ([]domain.SavedItem, error) {
	return t.Children(ctx, domain.FolderHandle{Tree: t.Tree})
}

func (t *SavedItemTree) handle(item *domain.SavedItem) domain.FolderHandle {
	return domain.FolderHandle{ID: item.ID, Tree: t.Tree, Name: item.DisplayName}
}

func (t *SavedItemTree) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := t.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

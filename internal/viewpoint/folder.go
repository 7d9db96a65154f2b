// Package viewpoint files captured viewpoints and selection sets into named
// folders of a document's saved item trees.
package viewpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rogers-f/clash-section-engine/internal/domain"
	"github.com/rogers-f/clash-section-engine/internal/logging"
)

// Persistence is one saved item tree of the host document.
type Persistence interface {
	FindTopLevelFolder(ctx context.Context, name string) (domain.FolderHandle, bool, error)
	AppendFolder(ctx context.Context, name string) (domain.FolderHandle, error)
	ChildCount(ctx context.Context, folder domain.FolderHandle) (int, error)
	InsertInto(ctx context.Context, folder domain.FolderHandle, index int, item domain.SavedItem) (domain.SavedItem, error)
}

// FolderStore finds or creates folders and appends items to them.
type FolderStore struct {
	tree   Persistence
	logger *slog.Logger
}

// NewFolderStore creates a FolderStore over one saved item tree.
func NewFolderStore(tree Persistence, logger *slog.Logger) *FolderStore {
	return &FolderStore{tree: tree, logger: logging.Or(logger, "viewpoint")}
}

// GetOrCreateFolder returns the top-level folder named exactly name, creating
// it after the existing top-level items when absent. Calling it again with
// the same name returns the same folder.
func (s *FolderStore) GetOrCreateFolder(ctx context.Context, name string) (domain.FolderHandle, error) {
	if strings.TrimSpace(name) == "" {
		return domain.FolderHandle{}, domain.NewEngineError(domain.ErrFolderCreate.Code, "folder name is empty")
	}
	h, ok, err := s.tree.FindTopLevelFolder(ctx, name)
	if err != nil {
		return domain.FolderHandle{}, fmt.Errorf("find folder %q: %w", name, err)
	}
	if ok {
		s.logger.Debug("folder found", "folder", name, "id", h.ID)
		return h, nil
	}
	h, err = s.tree.AppendFolder(ctx, name)
	if err != nil {
		return domain.FolderHandle{}, fmt.Errorf("create folder %q: %w", name, err)
	}
	s.logger.Info("folder created", "folder", name, "id", h.ID)
	return h, nil
}

// InsertViewpoint appends snap to folder as its last child under name.
func (s *FolderStore) InsertViewpoint(ctx context.Context, folder domain.FolderHandle, snap domain.ViewpointSnapshot, name string) (domain.SavedItem, error) {
	payload, err := json.Marshal(snap)
	if err != nil {
		return domain.SavedItem{}, domain.WrapEngineError(domain.ErrInsertFailed.Code, "encode viewpoint", err)
	}
	return s.appendItem(ctx, folder, domain.SavedItem{
		Kind:        domain.KindViewpoint,
		DisplayName: name,
		PayloadJSON: string(payload),
		CreatedAt:   snap.CapturedAt,
	})
}

type selectionSetPayload struct {
	Elements []domain.ElementRef `json:"elements"`
}

// InsertSelectionSet appends a selection set of elems to folder under name.
func (s *FolderStore) InsertSelectionSet(ctx context.Context, folder domain.FolderHandle, elems []domain.ElementRef, name string) (domain.SavedItem, error) {
	payload, err := json.Marshal(selectionSetPayload{Elements: elems})
	if err != nil {
		return domain.SavedItem{}, domain.WrapEngineError(domain.ErrInsertFailed.Code, "encode selection set", err)
	}
	return s.appendItem(ctx, folder, domain.SavedItem{
		Kind:        domain.KindSelectionSet,
		DisplayName: name,
		PayloadJSON: string(payload),
	})
}

func (s *FolderStore) appendItem(ctx context.Context, folder domain.FolderHandle, item domain.SavedItem) (domain.SavedItem, error) {
	if !folder.Valid() {
		return domain.SavedItem{}, domain.ErrInvalidFolder
	}
	n, err := s.tree.ChildCount(ctx, folder)
	if err != nil {
		return domain.SavedItem{}, fmt.Errorf("insert %q: %w", item.DisplayName, err)
	}
	saved, err := s.tree.InsertInto(ctx, folder, n, item)
	if err != nil {
		return domain.SavedItem{}, fmt.Errorf("insert %q: %w", item.DisplayName, err)
	}
	return saved, nil
}

// DecodeViewpoint parses the payload of a saved viewpoint.
func DecodeViewpoint(item domain.SavedItem) (domain.ViewpointSnapshot, error) {
	var snap domain.ViewpointSnapshot
	if item.Kind != domain.KindViewpoint {
		return snap, fmt.Errorf("saved item %q is a %s, not a viewpoint", item.DisplayName, item.Kind)
	}
	if err := json.Unmarshal([]byte(item.PayloadJSON), &snap); err != nil {
		return snap, fmt.Errorf("decode viewpoint %q: %w", item.DisplayName, err)
	}
	return snap, nil
}

// DecodeSelectionSet parses the payload of a saved selection set.
func DecodeSelectionSet(item domain.SavedItem) ([]domain.ElementRef, error) {
	if item.Kind != domain.KindSelectionSet {
		return nil, fmt.Errorf("saved item %q is a %s, not a selection set", item.DisplayName, item.Kind)
	}
	var p selectionSetPayload
	if err := json.Unmarshal([]byte(item.PayloadJSON), &p); err != nil {
		return nil, fmt.Errorf("decode selection set %q: %w", item.DisplayName, err)
	}
	return p.Elements, nil
}

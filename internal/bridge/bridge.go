// Package bridge connects the clash export, the active view and the document
// store, coordinating test selection, folder setup, the batch run and its
// recorded history.
package bridge

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rogers-f/clash-section-engine/internal/batch"
	"github.com/rogers-f/clash-section-engine/internal/clash"
	"github.com/rogers-f/clash-section-engine/internal/config"
	"github.com/rogers-f/clash-section-engine/internal/domain"
	"github.com/rogers-f/clash-section-engine/internal/logging"
	"github.com/rogers-f/clash-section-engine/internal/pipeline"
	"github.com/rogers-f/clash-section-engine/internal/section"
	"github.com/rogers-f/clash-section-engine/internal/store"
	"github.com/rogers-f/clash-section-engine/internal/view"
	"github.com/rogers-f/clash-section-engine/internal/viewpoint"
)

// Options are the run settings taken from the configuration.
type Options struct {
	ViewpointFolder     string
	SelectionSetFolder  string
	CreateSelectionSets bool
	ClearRedlines       bool
	Statuses            []domain.ClashStatus
	HighlightColor      domain.RGB
	Backends            []section.Backend
}

// OptionsFromConfig converts a validated configuration.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	statuses, err := cfg.Statuses()
	if err != nil {
		return Options{}, err
	}
	backends, err := cfg.Backends()
	if err != nil {
		return Options{}, err
	}
	return Options{
		ViewpointFolder:     cfg.ViewpointFolder,
		SelectionSetFolder:  cfg.SelectionSetFolder,
		CreateSelectionSets: cfg.CreateSelectionSets,
		ClearRedlines:       cfg.ClearRedlines,
		Statuses:            statuses,
		HighlightColor:      cfg.Color(),
		Backends:            backends,
	}, nil
}

// Bridge is the integration layer between the clash data, the view and the
// document. It is not safe for concurrent Execute calls; the view must only
// be driven from one goroutine.
type Bridge struct {
	DB    *sql.DB
	View  view.ViewState
	Tests []domain.ClashTest

	opts    Options
	adapter *section.Adapter
	vTree   *store.SavedItemTree
	sTree   *store.SavedItemTree
	views   *viewpoint.FolderStore
	sets    *viewpoint.FolderStore
	runs    *store.RunRepo
	base    *slog.Logger
	logger  *slog.Logger
	now     func() time.Time
}

// NewBridge creates a Bridge with all required dependencies. v may be nil
// when no document is open.
func NewBridge(db *sql.DB, v view.ViewState, tests []domain.ClashTest, opts Options, logger *slog.Logger) *Bridge {
	if opts.Backends == nil {
		opts.Backends = section.DefaultBackends()
	}
	if opts.Statuses == nil {
		opts.Statuses = domain.DefaultEligibleStatuses
	}
	b := &Bridge{
		DB:      db,
		View:    v,
		Tests:   tests,
		opts:    opts,
		adapter: section.NewAdapter(logger, opts.Backends...),
		vTree:   store.NewSavedItemTree(db, domain.TreeViewpoints),
		sTree:   store.NewSavedItemTree(db, domain.TreeSelectionSets),
		runs:    &store.RunRepo{},
		base:    logger,
		logger:  logging.Or(logger, "bridge"),
		now:     time.Now,
	}
	b.views = viewpoint.NewFolderStore(b.vTree, logger)
	b.sets = viewpoint.NewFolderStore(b.sTree, logger)
	return b
}

// ExecuteRequest describes one command invocation.
type ExecuteRequest struct {
	// TestName selects a test by name. Empty means ask Chooser.
	TestName string
	Chooser  clash.Chooser
	// Statuses overrides the configured eligible statuses when non-empty.
	Statuses []domain.ClashStatus
	Cancel   batch.CancelSignal
	Progress batch.ProgressSink
	// RunID is used for the history row when set.
	RunID string
	// OnStart is called once the run row exists, before the first item.
	OnStart func(domain.RunRecord)
}

// ExecuteResult is the outcome of a completed or cancelled run.
type ExecuteResult struct {
	Run     domain.RunRecord
	Summary batch.Summary
}

// Execute selects a test, filters its records, prepares the folders and runs
// the batch. Fatal conditions are returned before any record is processed and
// leave no history row. Cancelling ctx during the batch stops it at the next
// item boundary, like req.Cancel.
func (b *Bridge) Execute(ctx context.Context, req ExecuteRequest) (ExecuteResult, error) {
	if b.View == nil {
		return ExecuteResult{}, domain.ErrNoDocument
	}
	if len(b.Tests) == 0 {
		return ExecuteResult{}, domain.ErrNoClashData
	}

	test, err := b.selectTest(req)
	if err != nil {
		return ExecuteResult{}, err
	}

	statuses := req.Statuses
	if len(statuses) == 0 {
		statuses = b.opts.Statuses
	}
	records := clash.Filter(test.Root, statuses)
	if len(records) == 0 {
		return ExecuteResult{}, domain.ErrNoEligibleClashes
	}

	folder, err := b.views.GetOrCreateFolder(ctx, b.opts.ViewpointFolder)
	if err != nil {
		return ExecuteResult{}, domain.WrapEngineError(domain.ErrInvalidFolder.Code, domain.ErrInvalidFolder.Message, err)
	}
	pcfg := pipeline.Config{
		HighlightColor: b.opts.HighlightColor,
		ClearRedlines:  b.opts.ClearRedlines,
	}
	if b.opts.CreateSelectionSets {
		setFolder, err := b.sets.GetOrCreateFolder(ctx, b.opts.SelectionSetFolder)
		if err != nil {
			return ExecuteResult{}, domain.WrapEngineError(domain.ErrInvalidFolder.Code, "no valid selection set folder", err)
		}
		pcfg.SelectionSets = b.sets
		pcfg.SelectionSetFolder = setFolder
	}

	run := domain.RunRecord{
		RunID:      req.RunID,
		TestName:   test.DisplayName,
		FolderName: folder.Name,
		Status:     domain.RunRunning,
		Total:      len(records),
		StartedAt:  b.now().Unix(),
	}
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if err := b.runs.Create(ctx, b.DB, run); err != nil {
		return ExecuteResult{}, domain.WrapEngineError(domain.ErrStoreWrite.Code, "record run", err)
	}
	if req.OnStart != nil {
		req.OnStart(run)
	}

	log := b.logger.With("run_id", run.RunID, "test", test.DisplayName)
	proc := pipeline.NewProcessor(b.adapter, b.views, pcfg, b.base)
	runner := batch.NewRunner(proc, b.adapter, b.base)

	// ctx is only polled between items. The item in flight and the final
	// row update run on a detached context so a cancelled run still ends
	// with its last item saved and its row marked cancelled.
	work := context.WithoutCancel(ctx)
	cancel := batch.AnySignal{req.Cancel, batch.ContextSignal{Ctx: ctx}}
	sum, runErr := runner.Run(work, b.View, records, folder, cancel, req.Progress)
	run.Succeeded = sum.Succeeded
	run.Failed = len(sum.Failed)
	run.FinishedAt = b.now().Unix()
	switch {
	case runErr != nil:
		run.Status = domain.RunAborted
	case sum.Cancelled:
		run.Status = domain.RunCancelled
	default:
		run.Status = domain.RunCompleted
	}

	if err := b.finish(work, run, sum.Failed); err != nil {
		log.Error("record run outcome", "error", err)
		if runErr == nil {
			runErr = domain.WrapEngineError(domain.ErrStoreWrite.Code, "record run outcome", err)
		}
	}
	return ExecuteResult{Run: run, Summary: sum}, runErr
}

func (b *Bridge) selectTest(req ExecuteRequest) (domain.ClashTest, error) {
	if req.TestName != "" {
		return clash.FindTest(b.Tests, req.TestName)
	}
	return clash.SelectTest(b.Tests, req.Chooser)
}

func (b *Bridge) finish(ctx context.Context, run domain.RunRecord, failures []domain.FailedItem) error {
	tx, err := b.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := b.runs.FinishTx(ctx, tx, run, failures); err != nil {
		return err
	}
	return tx.Commit()
}

// TestInfo summarizes one clash test of the export.
type TestInfo struct {
	Name     string `json:"name"`
	Total    int    `json:"total"`
	Eligible int    `json:"eligible"`
}

// TestInfos lists the loaded tests with their record counts.
func (b *Bridge) TestInfos() []TestInfo {
	out := make([]TestInfo, 0, len(b.Tests))
	for _, t := range b.Tests {
		out = append(out, TestInfo{
			Name:     t.DisplayName,
			Total:    clash.Count(t.Root),
			Eligible: len(clash.Filter(t.Root, b.opts.Statuses)),
		})
	}
	return out
}

// FolderItems returns the children of the top-level folder name in tree,
// in order. An unknown folder is ErrItemNotFound.
func (b *Bridge) FolderItems(ctx context.Context, tree, name string) ([]domain.SavedItem, error) {
	var t *store.SavedItemTree
	switch tree {
	case "", domain.TreeViewpoints:
		t = b.vTree
	case domain.TreeSelectionSets:
		t = b.sTree
	default:
		return nil, domain.NewEngineError(domain.ErrItemNotFound.Code, fmt.Sprintf("unknown tree %q", tree))
	}
	folder, ok, err := t.FindTopLevelFolder(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.NewEngineError(domain.ErrItemNotFound.Code, fmt.Sprintf("folder %q not found", name))
	}
	return t.Children(ctx, folder)
}

// Run returns a recorded run with its failures.
func (b *Bridge) Run(ctx context.Context, runID string) (*domain.RunRecord, []domain.FailedItem, error) {
	run, err := b.runs.GetByID(ctx, b.DB, runID)
	if err != nil {
		return nil, nil, err
	}
	failures, err := b.runs.ListFailures(ctx, b.DB, runID)
	if err != nil {
		return nil, nil, err
	}
	return run, failures, nil
}

// RecentRuns returns up to limit recorded runs, newest first.
func (b *Bridge) RecentRuns(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	return b.runs.ListRecent(ctx, b.DB, limit)
}

package batch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/rogers-f/clash-section-engine/internal/domain"
	"github.com/rogers-f/clash-section-engine/internal/host"
	"github.com/rogers-f/clash-section-engine/internal/logging"
	"github.com/rogers-f/clash-section-engine/internal/pipeline"
	"github.com/rogers-f/clash-section-engine/internal/section"
	"github.com/rogers-f/clash-section-engine/internal/store"
	"github.com/rogers-f/clash-section-engine/internal/view"
	"github.com/rogers-f/clash-section-engine/internal/viewpoint"
)

type testEnv struct {
	doc    *host.Document
	tree   *store.SavedItemTree
	views  *viewpoint.FolderStore
	folder domain.FolderHandle
	adapt  *section.Adapter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := store.NewDB(filepath.Join(t.TempDir(), "doc.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	env := &testEnv{
		doc:   host.NewDocument(),
		tree:  store.NewSavedItemTree(db, domain.TreeViewpoints),
		adapt: section.NewAdapter(logging.Discard()),
	}
	env.views = viewpoint.NewFolderStore(env.tree, logging.Discard())
	if env.folder, err = env.views.GetOrCreateFolder(context.Background(), "Clash Section Views"); err != nil {
		t.Fatalf("GetOrCreateFolder: %v", err)
	}
	return env
}

func (e *testEnv) processor(filer pipeline.ViewpointFiler) *pipeline.Processor {
	if filer == nil {
		filer = e.views
	}
	return pipeline.NewProcessor(e.adapt, filer, pipeline.Config{HighlightColor: domain.Red}, logging.Discard())
}

func (e *testEnv) runner(filer pipeline.ViewpointFiler) *Runner {
	return NewRunner(e.processor(filer), e.adapt, logging.Discard())
}

func (e *testEnv) savedNames(t *testing.T) []string {
	t.Helper()
	items, err := e.tree.Children(context.Background(), e.folder)
	if err != nil {
		t.Fatalf("Children: %v", err)
	}
	names := []string{}
	for _, it := range items {
		names = append(names, it.DisplayName)
	}
	return names
}

func records(zs ...float64) []domain.ClashRecord {
	out := make([]domain.ClashRecord, len(zs))
	for i, z := range zs {
		name := fmt.Sprintf("Clash%d", i+1)
		out[i] = domain.ClashRecord{
			ID:          name,
			DisplayName: name,
			Status:      domain.StatusActive,
			Center:      &domain.Point3{Z: z},
			Elements:    []domain.ElementRef{{ID: name + "-a"}, {ID: name + "-b"}},
		}
	}
	return out
}

func TestRun_ThreeRecordsInOrder(t *testing.T) {
	env := newTestEnv(t)
	var updates []domain.ProgressUpdate
	progress := ProgressFunc(func(u domain.ProgressUpdate) { updates = append(updates, u) })

	sum, err := env.runner(nil).Run(context.Background(), env.doc, records(1, 2, 3), env.folder, &CancelFlag{}, progress)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Succeeded != 3 || len(sum.Failed) != 0 || sum.Cancelled {
		t.Errorf("summary = %+v, want 3 succeeded", sum)
	}
	if diff := cmp.Diff([]string{"Clash1", "Clash2", "Clash3"}, env.savedNames(t)); diff != "" {
		t.Errorf("saved viewpoints mismatch (-want +got):\n%s", diff)
	}

	items, err := env.tree.Children(context.Background(), env.folder)
	if err != nil {
		t.Fatalf("Children: %v", err)
	}
	for i, it := range items {
		snap, err := viewpoint.DecodeViewpoint(it)
		if err != nil {
			t.Fatalf("DecodeViewpoint: %v", err)
		}
		if want := -float64(i + 1); !snap.Clip.Active() || snap.Clip.Planes[0].Distance != want {
			t.Errorf("%s clip = %+v, want plane at distance %v", it.DisplayName, snap.Clip, want)
		}
	}

	wantUpdates := []domain.ProgressUpdate{
		{Index: 0, Total: 3, ItemName: "Clash1"},
		{Index: 1, Total: 3, ItemName: "Clash2"},
		{Index: 2, Total: 3, ItemName: "Clash3"},
	}
	if diff := cmp.Diff(wantUpdates, updates); diff != "" {
		t.Errorf("progress mismatch (-want +got):\n%s", diff)
	}
	if !env.doc.IsClean() {
		t.Error("view not clean after run")
	}
}

// cancelAfter cancels its flag once n items have been processed.
type cancelAfter struct {
	inner ItemProcessor
	flag  *CancelFlag
	n     int
	calls int
}

func (c *cancelAfter) ProcessOne(ctx context.Context, v view.ViewState, rec domain.ClashRecord, folder domain.FolderHandle) (pipeline.Outcome, error) {
	out, err := c.inner.ProcessOne(ctx, v, rec, folder)
	c.calls++
	if c.calls == c.n {
		c.flag.Cancel()
	}
	return out, err
}

func TestRun_CancelAfterTwoOfFive(t *testing.T) {
	env := newTestEnv(t)
	flag := &CancelFlag{}
	proc := &cancelAfter{inner: env.processor(nil), flag: flag, n: 2}
	r := NewRunner(proc, env.adapt, logging.Discard())

	sum, err := r.Run(context.Background(), env.doc, records(1, 2, 3, 4, 5), env.folder, flag, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !sum.Cancelled || sum.Succeeded != 2 || sum.Processed != 2 {
		t.Errorf("summary = %+v, want cancelled after 2", sum)
	}
	if proc.calls != 2 {
		t.Errorf("processed %d items, want 2", proc.calls)
	}
	if diff := cmp.Diff([]string{"Clash1", "Clash2"}, env.savedNames(t)); diff != "" {
		t.Errorf("saved viewpoints mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(sum.Message(DefaultMaxFailureDetails), "Cancelled after 2 of 5") {
		t.Errorf("Message = %q", sum.Message(DefaultMaxFailureDetails))
	}
}

// failOn rejects the viewpoint with one name.
type failOn struct {
	inner pipeline.ViewpointFiler
	name  string
}

func (f failOn) InsertViewpoint(ctx context.Context, folder domain.FolderHandle, snap domain.ViewpointSnapshot, name string) (domain.SavedItem, error) {
	if name == f.name {
		return domain.SavedItem{}, domain.WrapEngineError(domain.ErrInsertFailed.Code, domain.ErrInsertFailed.Message, errors.New("constraint failed"))
	}
	return f.inner.InsertViewpoint(ctx, folder, snap, name)
}

func TestRun_FailureIsolation(t *testing.T) {
	env := newTestEnv(t)
	sum, err := env.runner(failOn{inner: env.views, name: "Clash3"}).Run(
		context.Background(), env.doc, records(1, 2, 3, 4, 5), env.folder, nil, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Succeeded != 4 {
		t.Errorf("Succeeded = %d, want 4", sum.Succeeded)
	}
	if len(sum.Failed) != 1 || sum.Failed[0].Name != "Clash3" {
		t.Fatalf("Failed = %+v, want [Clash3]", sum.Failed)
	}
	if !strings.HasPrefix(sum.Failed[0].Reason, domain.ErrInsertFailed.Message) {
		t.Errorf("Reason = %q, want it to start with %q", sum.Failed[0].Reason, domain.ErrInsertFailed.Message)
	}
	if diff := cmp.Diff([]string{"Clash1", "Clash2", "Clash4", "Clash5"}, env.savedNames(t)); diff != "" {
		t.Errorf("saved viewpoints mismatch (-want +got):\n%s", diff)
	}
	if !env.doc.IsClean() {
		t.Errorf("view not reset: selection=%v overrides=%v", env.doc.Selection(), env.doc.Overrides())
	}
}

func TestRun_FatalConditions(t *testing.T) {
	env := newTestEnv(t)
	r := env.runner(nil)
	if _, err := r.Run(context.Background(), nil, records(1), env.folder, nil, nil); !errors.Is(err, domain.ErrNoDocument) {
		t.Errorf("nil view err = %v, want ErrNoDocument", err)
	}
	if _, err := r.Run(context.Background(), env.doc, records(1), domain.FolderHandle{}, nil, nil); !errors.Is(err, domain.ErrInvalidFolder) {
		t.Errorf("invalid folder err = %v, want ErrInvalidFolder", err)
	}
	if env.doc.Mutations() != 0 {
		t.Errorf("Mutations = %d, want 0 after fatal errors", env.doc.Mutations())
	}
}

func TestRun_HousekeepingClearsLeftovers(t *testing.T) {
	env := newTestEnv(t)
	other := []domain.ElementRef{{ID: "left-over"}}
	_ = env.doc.SetSelection(other)
	_ = env.doc.OverrideColor(other, domain.RGB{B: 1})
	if _, err := env.adapt.ApplyCutPlane(env.doc, 9); err != nil {
		t.Fatalf("ApplyCutPlane: %v", err)
	}

	if _, err := env.runner(nil).Run(context.Background(), env.doc, nil, env.folder, nil, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !env.doc.IsClean() {
		t.Errorf("leftover state survived: selection=%v overrides=%v clip=%+v",
			env.doc.Selection(), env.doc.Overrides(), env.doc.ClipPlanes())
	}
}

func TestContextSignal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sig := ContextSignal{Ctx: ctx}
	if sig.Cancelled() {
		t.Fatal("Cancelled before cancel")
	}
	cancel()
	if !sig.Cancelled() {
		t.Error("not Cancelled after cancel")
	}
}

func TestAnySignal(t *testing.T) {
	flag := &CancelFlag{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := AnySignal{nil, flag, ContextSignal{Ctx: ctx}}
	if sig.Cancelled() {
		t.Fatal("Cancelled before any signal fired")
	}
	cancel()
	if !sig.Cancelled() {
		t.Error("not Cancelled after context cancel")
	}
	if (AnySignal{}).Cancelled() {
		t.Error("empty AnySignal reported cancelled")
	}
}

func TestSummary_Message(t *testing.T) {
	few := Summary{Total: 3, Processed: 3, Succeeded: 1, Failed: []domain.FailedItem{
		{Name: "A", Reason: "clash center is undefined"},
		{Name: "B", Reason: "failed to insert saved item"},
	}}
	msg := few.Message(5)
	for _, want := range []string{"Created 1 section viewpoints, 2 failed.", "- A: clash center is undefined", "- B: failed"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Message missing %q:\n%s", want, msg)
		}
	}

	many := Summary{Total: 10, Processed: 10, Succeeded: 4}
	for i := 0; i < 6; i++ {
		many.Failed = append(many.Failed, domain.FailedItem{Name: fmt.Sprintf("C%d", i), Reason: "x"})
	}
	msg = many.Message(5)
	if strings.Contains(msg, "C0") {
		t.Errorf("Message lists names above the limit:\n%s", msg)
	}
	if !strings.Contains(msg, "6 clashes failed") {
		t.Errorf("Message missing failure count:\n%s", msg)
	}

	clean := Summary{Total: 2, Processed: 2, Succeeded: 2, Degraded: 1}
	if got := clean.Message(5); got != "Created 2 section viewpoints.\n1 saved without a cut-plane." {
		t.Errorf("Message = %q", got)
	}
}

package dw_test

import (
	"context"
	"path/filepath"
	"testing"

	"docwatch/internal/database"
	"docwatch/internal/dw"
	"docwatch/internal/model"
	"docwatch/internal/testutil"
)

const watchDir = "/watch"

func at(name string) string {
	return filepath.Join(watchDir, name)
}

type harness struct {
	svc     *dw.Service
	catalog *database.SQLiteCatalog
	fs      *testutil.MockFilesystemManager
	p       *testutil.Pipeline
	clock   *testutil.StubClock
	sleeper *testutil.InstantSleeper
}

func newHarness(t *testing.T, configure ...func(*dw.Options)) *harness {
	t.Helper()
	h := &harness{
		catalog: testutil.NewTestCatalog(t),
		p:       testutil.NewPipeline(),
		clock:   testutil.FixedClock(),
		sleeper: &testutil.InstantSleeper{},
	}
	h.fs = h.p.FS
	h.svc = h.newService(configure...)
	return h
}

// newService builds another service over the same catalog and filesystem,
// as a restarted process would.
func (h *harness) newService(configure ...func(*dw.Options)) *dw.Service {
	opts := dw.DefaultOptions(watchDir)
	opts.LockRetry.Sleep = h.sleeper.Sleep
	opts.RenameRetry.Sleep = h.sleeper.Sleep
	opts.Workers = 2
	for _, fn := range configure {
		fn(&opts)
	}
	return dw.NewService(h.catalog, h.fs, h.p.Collaborators(), opts, dw.NopLogger{}, h.clock)
}

func conflictPolicy(o *dw.Options) { o.DuplicatePolicy = dw.DuplicateConflict }

func deletePolicy(o *dw.Options) { o.RemovalPolicy = dw.RemovalDelete }

func (h *harness) intake(t *testing.T, name string) dw.Outcome {
	t.Helper()
	outcome, err := h.svc.Intake(context.Background(), at(name), dw.ReasonWatch)
	if err != nil {
		t.Fatalf("Intake(%s) error = %v", name, err)
	}
	return outcome
}

func (h *harness) doc(t *testing.T, name string) *model.Document {
	t.Helper()
	d, err := h.catalog.GetDocument(context.Background(), name)
	if err != nil {
		t.Fatalf("GetDocument(%s) error = %v", name, err)
	}
	return d
}

func (h *harness) activeNames(t *testing.T) []string {
	t.Helper()
	docs, err := h.svc.ListActiveDocuments(context.Background())
	if err != nil {
		t.Fatalf("ListActiveDocuments() error = %v", err)
	}
	names := make([]string, 0, len(docs))
	for _, d := range docs {
		names = append(names, d.Filename)
	}
	return names
}

func (h *harness) pending(t *testing.T) []*model.Conflict {
	t.Helper()
	conflicts, err := h.svc.ListPendingConflicts(context.Background())
	if err != nil {
		t.Fatalf("ListPendingConflicts() error = %v", err)
	}
	return conflicts
}

func (h *harness) reconcile(t *testing.T, opts dw.ReconcileOptions) *dw.ReconcileReport {
	t.Helper()
	report, err := h.svc.Reconcile(context.Background(), opts)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	return report
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

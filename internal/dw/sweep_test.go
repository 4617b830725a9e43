package dw_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"docwatch/internal/dw"
	"docwatch/internal/model"
)

// gatedCatalog holds the first upsert until the first document listing has
// returned, so an intake commits between a sweep's two listings.
type gatedCatalog struct {
	dw.Catalog

	upserting chan struct{}
	listed    chan struct{}
	upsertOne sync.Once
	listOne   sync.Once
}

func newGatedCatalog(c dw.Catalog) *gatedCatalog {
	return &gatedCatalog{
		Catalog:   c,
		upserting: make(chan struct{}),
		listed:    make(chan struct{}),
	}
}

func (c *gatedCatalog) UpsertDocument(ctx context.Context, doc *model.Document) (dw.UpsertResult, error) {
	c.upsertOne.Do(func() { close(c.upserting) })
	<-c.listed
	return c.Catalog.UpsertDocument(ctx, doc)
}

func (c *gatedCatalog) ListDocuments(ctx context.Context, includeArchived bool) ([]*model.Document, error) {
	docs, err := c.Catalog.ListDocuments(ctx, includeArchived)
	c.listOne.Do(func() { close(c.listed) })
	return docs, err
}

func TestService_Sweep_KeepsArtifactsOfIntakeCommittedMidSweep(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	gated := newGatedCatalog(h.catalog)

	opts := dw.DefaultOptions(watchDir)
	opts.LockRetry.Sleep = h.sleeper.Sleep
	opts.RenameRetry.Sleep = h.sleeper.Sleep
	svc := dw.NewService(gated, h.fs, h.p.Collaborators(), opts, dw.NopLogger{}, h.clock)

	h.fs.AddFile(at("a.txt"), []byte("alpha"))
	done := make(chan error, 1)
	go func() {
		_, err := svc.Intake(ctx, at("a.txt"), dw.ReasonWatch)
		done <- err
	}()

	// The intake has rendered its artifacts and waits to commit.
	select {
	case <-gated.upserting:
	case <-time.After(5 * time.Second):
		t.Fatal("intake never reached the upsert")
	}

	swept, err := svc.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Intake() error = %v", err)
	}
	if swept != 0 {
		t.Errorf("Sweep() removed %d artifacts, want 0", swept)
	}

	d := h.doc(t, "a.txt")
	if d == nil || d.Archived {
		t.Fatalf("a.txt row = %+v, want active", d)
	}
	keys, err := h.p.Artifacts.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	have := make(map[string]bool, len(keys))
	for _, k := range keys {
		have[k] = true
	}
	for _, k := range []string{d.ThumbnailPath, d.PreviewPath} {
		if !have[k] {
			t.Errorf("artifact %s of committed document was swept", k)
		}
	}
}

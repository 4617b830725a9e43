package dw_test

import (
	"context"
	"errors"
	"testing"

	"docwatch/internal/dw"
	"docwatch/internal/model"
)

// variantConflict catalogs "Invoice ACME.pdf" and drops a second invoice
// whose suggested name collides with it.
func variantConflict(t *testing.T, h *harness) *model.Conflict {
	t.Helper()
	h.fs.AddFile(at("Invoice ACME.pdf"), []byte("march invoice"))
	h.p.Summarizer.Suggest("Invoice ACME.pdf", dw.Enrichment{
		Filename: "Invoice ACME", CommonName: "ACME March", Summary: "march", Keyword: "acme", Category: "Finance",
	})
	h.intake(t, "Invoice ACME.pdf")

	h.fs.AddFile(at("scan002.pdf"), []byte("april invoice"))
	h.p.Summarizer.Suggest("scan002.pdf", dw.Enrichment{
		Filename: "Invoice ACME", CommonName: "ACME April", Summary: "april", Keyword: "acme-april", Category: "Bills",
	})
	if got := h.intake(t, "scan002.pdf"); got != dw.OutcomeConflictRecorded {
		t.Fatalf("Intake() = %v, want conflict_recorded", got)
	}
	return h.pending(t)[0]
}

func duplicateConflict(t *testing.T, h *harness) *model.Conflict {
	t.Helper()
	h.fs.AddFile(at("invoice.pdf"), []byte("invoice 42"))
	h.fs.AddFile(at("invoice_copy.pdf"), []byte("invoice 42"))
	h.intake(t, "invoice.pdf")
	if got := h.intake(t, "invoice_copy.pdf"); got != dw.OutcomeConflictRecorded {
		t.Fatalf("Intake() = %v, want conflict_recorded", got)
	}
	return h.pending(t)[0]
}

func TestService_ResolveConflict(t *testing.T) {
	ctx := context.Background()

	t.Run("keep_old deletes the new file", func(t *testing.T) {
		h := newHarness(t, conflictPolicy)
		c := duplicateConflict(t, h)

		resolved, err := h.svc.ResolveConflict(ctx, c.ID, model.ActionKeepOld)
		if err != nil {
			t.Fatalf("ResolveConflict() error = %v", err)
		}
		if resolved.Status != model.ConflictResolved || resolved.ActionTaken != model.ActionKeepOld {
			t.Errorf("conflict = %s/%s", resolved.Status, resolved.ActionTaken)
		}
		if !resolved.ResolvedAt.Equal(h.clock.Now()) {
			t.Errorf("ResolvedAt = %v, want %v", resolved.ResolvedAt, h.clock.Now())
		}
		if h.fs.Exists(at("invoice_copy.pdf")) {
			t.Error("new file still on disk")
		}
		if names := h.activeNames(t); len(names) != 1 || names[0] != "invoice.pdf" {
			t.Errorf("active = %v", names)
		}
	})

	t.Run("replace copies the new enrichment onto the existing document", func(t *testing.T) {
		h := newHarness(t, conflictPolicy)
		c := variantConflict(t, h)

		if _, err := h.svc.ResolveConflict(ctx, c.ID, model.ActionReplace); err != nil {
			t.Fatalf("ResolveConflict() error = %v", err)
		}
		d := h.doc(t, "Invoice ACME.pdf")
		if d.Summary != "april" || d.Category != "Bills" || d.CommonName != "ACME April" || d.Keyword != "acme-april" {
			t.Errorf("document = %+v, want april enrichment", d)
		}
		if h.fs.Exists(at("scan002.pdf")) {
			t.Error("new file still on disk")
		}
		if len(h.activeNames(t)) != 1 {
			t.Errorf("active = %v", h.activeNames(t))
		}
	})

	t.Run("keep_both catalogs the new file under a timestamped name", func(t *testing.T) {
		h := newHarness(t, conflictPolicy)
		c := variantConflict(t, h)

		if _, err := h.svc.ResolveConflict(ctx, c.ID, model.ActionKeepBoth); err != nil {
			t.Fatalf("ResolveConflict() error = %v", err)
		}
		kept := "20240115T103000Z_scan002.pdf"
		if !h.fs.Exists(at(kept)) {
			t.Fatalf("kept file missing; files = %v", h.fs.Names(watchDir))
		}
		if h.fs.Exists(at("scan002.pdf")) {
			t.Error("original name still on disk")
		}
		names := h.activeNames(t)
		if len(names) != 2 || !contains(names, kept) || !contains(names, "Invoice ACME.pdf") {
			t.Errorf("active = %v, want both documents", names)
		}

		if again := h.reconcile(t, dw.ReconcileOptions{}); again.Mutations() != 0 {
			t.Errorf("reconcile after keep_both mutations = %d, want 0", again.Mutations())
		}
	})

	t.Run("keep_both is refused for identical content", func(t *testing.T) {
		h := newHarness(t, conflictPolicy)
		c := duplicateConflict(t, h)

		if _, err := h.svc.ResolveConflict(ctx, c.ID, model.ActionKeepBoth); !errors.Is(err, dw.ErrKeepBothIdentical) {
			t.Fatalf("ResolveConflict() error = %v, want ErrKeepBothIdentical", err)
		}
		if len(h.pending(t)) != 1 {
			t.Error("conflict no longer pending")
		}
		if !h.fs.Exists(at("invoice_copy.pdf")) {
			t.Error("new file touched")
		}
	})

	t.Run("second resolution is rejected", func(t *testing.T) {
		h := newHarness(t, conflictPolicy)
		c := duplicateConflict(t, h)

		if _, err := h.svc.ResolveConflict(ctx, c.ID, model.ActionKeepOld); err != nil {
			t.Fatalf("first ResolveConflict() error = %v", err)
		}
		h.fs.AddFile(at("invoice_copy.pdf"), []byte("invoice 42"))
		if _, err := h.svc.ResolveConflict(ctx, c.ID, model.ActionKeepOld); !errors.Is(err, dw.ErrConflictNotPending) {
			t.Fatalf("second ResolveConflict() error = %v, want ErrConflictNotPending", err)
		}
		if !h.fs.Exists(at("invoice_copy.pdf")) {
			t.Error("second resolution touched the filesystem")
		}
	})

	t.Run("filesystem failure leaves the conflict pending", func(t *testing.T) {
		h := newHarness(t, conflictPolicy)
		c := duplicateConflict(t, h)
		h.fs.FailRemove(at("invoice_copy.pdf"), errors.New("permission denied"))

		if _, err := h.svc.ResolveConflict(ctx, c.ID, model.ActionKeepOld); err == nil {
			t.Fatal("ResolveConflict() expected error")
		}
		got, err := h.svc.GetConflict(ctx, c.ID)
		if err != nil {
			t.Fatalf("GetConflict() error = %v", err)
		}
		if got.Status != model.ConflictPending || got.ActionTaken != model.ActionNone {
			t.Errorf("conflict = %s/%s, want pending/none", got.Status, got.ActionTaken)
		}

		h.fs.FailRemove(at("invoice_copy.pdf"), nil)
		if _, err := h.svc.ResolveConflict(ctx, c.ID, model.ActionKeepOld); err != nil {
			t.Fatalf("retry ResolveConflict() error = %v", err)
		}
	})

	t.Run("replace fails when the existing document is gone", func(t *testing.T) {
		h := newHarness(t, conflictPolicy)
		c := variantConflict(t, h)
		h.fs.DeleteFile(at("Invoice ACME.pdf"))
		if err := h.svc.HandleEvent(ctx, dw.Event{Op: dw.EventDeleted, Path: at("Invoice ACME.pdf")}); err != nil {
			t.Fatalf("HandleEvent() error = %v", err)
		}

		if _, err := h.svc.ResolveConflict(ctx, c.ID, model.ActionReplace); !errors.Is(err, dw.ErrReplaceTargetMissing) {
			t.Fatalf("ResolveConflict() error = %v, want ErrReplaceTargetMissing", err)
		}
		if !h.fs.Exists(at("scan002.pdf")) {
			t.Error("new file removed although replace failed")
		}
		if len(h.pending(t)) != 1 {
			t.Error("conflict no longer pending")
		}
	})

	t.Run("rejects unknown actions and conflicts", func(t *testing.T) {
		h := newHarness(t, conflictPolicy)
		c := duplicateConflict(t, h)

		for _, action := range []model.ConflictAction{model.ActionNone, "merge"} {
			if _, err := h.svc.ResolveConflict(ctx, c.ID, action); !errors.Is(err, dw.ErrInvalidAction) {
				t.Errorf("ResolveConflict(%q) error = %v, want ErrInvalidAction", action, err)
			}
		}
		if _, err := h.svc.ResolveConflict(ctx, 9999, model.ActionKeepOld); !errors.Is(err, dw.ErrConflictNotFound) {
			t.Errorf("ResolveConflict(9999) error = %v, want ErrConflictNotFound", err)
		}
	})
}

package output

import (
	"context"
	"path/filepath"
	"testing"
)

func TestSQLiteSink(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")

	sink, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	r := sampleReport()
	if err := sink.Save(ctx, r); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if n, err := sink.CellCount(ctx, r.ID); err != nil || n != 2 {
		t.Errorf("CellCount() = %d, %v, want 2", n, err)
	}

	var failures int
	if err := sink.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM failures WHERE sweep_id = ?`, r.ID).Scan(&failures); err != nil {
		t.Fatal(err)
	}
	if failures != 2 {
		t.Errorf("failures = %d, want 2", failures)
	}

	// Saving the same sweep twice violates the primary key and must leave no partial rows.
	if err := sink.Save(ctx, r); err == nil {
		t.Error("duplicate Save() succeeded")
	}
	if n, _ := sink.CellCount(ctx, r.ID); n != 2 {
		t.Errorf("CellCount() after failed save = %d, want 2", n)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// A second invocation appends to the same database.
	reopened, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()
	other := sampleReport()
	other.ID = "01JSECONDRUN"
	other.BaseSeed = ^uint64(0)
	if err := reopened.Save(ctx, other); err != nil {
		t.Fatalf("Save() second sweep error = %v", err)
	}
	var seed string
	if err := reopened.db.QueryRowContext(ctx, `SELECT base_seed FROM sweeps WHERE id = ?`, other.ID).Scan(&seed); err != nil {
		t.Fatal(err)
	}
	if seed != "18446744073709551615" {
		t.Errorf("base_seed = %q", seed)
	}
}

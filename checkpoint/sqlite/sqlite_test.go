package sqlite

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestCheckpointer(t *testing.T) *Checkpointer {
	t.Helper()
	c := New(filepath.Join(t.TempDir(), "sessions.db"))
	t.Cleanup(func() { c.Close() })
	if err := c.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	return c
}

func TestCheckpointerRoundTrip(t *testing.T) {
	c := newTestCheckpointer(t)
	ctx := context.Background()

	if _, ok, err := c.Load(ctx, "s1"); ok || err != nil {
		t.Fatalf("load before save: ok=%v err=%v", ok, err)
	}

	if err := c.Save(ctx, "s1", []byte(`{"summary":"x"}`)); err != nil {
		t.Fatal(err)
	}
	got, ok, err := c.Load(ctx, "s1")
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if string(got) != `{"summary":"x"}` {
		t.Fatalf("load = %q", got)
	}
}

func TestCheckpointerSaveReplaces(t *testing.T) {
	c := newTestCheckpointer(t)
	ctx := context.Background()

	c.Save(ctx, "s1", []byte("v1"))
	if err := c.Save(ctx, "s1", []byte("v2")); err != nil {
		t.Fatal(err)
	}
	got, _, _ := c.Load(ctx, "s1")
	if string(got) != "v2" {
		t.Fatalf("load = %q, want replacement", got)
	}
}

func TestCheckpointerDelete(t *testing.T) {
	c := newTestCheckpointer(t)
	ctx := context.Background()

	c.Save(ctx, "s1", []byte("state"))
	if err := c.Delete(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := c.Load(ctx, "s1"); ok {
		t.Fatal("checkpoint present after delete")
	}
	// Deleting an absent checkpoint is a no-op.
	if err := c.Delete(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
}

func TestCheckpointerSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions.db")
	ctx := context.Background()

	c := New(path)
	if err := c.Init(ctx); err != nil {
		t.Fatal(err)
	}
	if err := c.Save(ctx, "s1", []byte("durable state")); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	c = New(path)
	defer c.Close()
	if err := c.Init(ctx); err != nil {
		t.Fatal(err)
	}
	got, ok, err := c.Load(ctx, "s1")
	if err != nil || !ok {
		t.Fatalf("load after reopen: ok=%v err=%v", ok, err)
	}
	if string(got) != "durable state" {
		t.Fatalf("load = %q", got)
	}
}

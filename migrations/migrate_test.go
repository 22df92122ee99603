package migrations

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestLoadSortsByVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_b.sql": {Data: []byte("CREATE TABLE b (id INT);")},
		"0001_a.sql": {Data: []byte("CREATE TABLE a (id INT);")},
		"0010_c.sql": {Data: []byte("CREATE TABLE c (id INT);")},
		"README.md":  {Data: []byte("ignored")},
		"draft.sql":  {Data: []byte("ignored")},
	}

	got, err := NewFromFS(nil, fsys, nil).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d migrations, want 3", len(got))
	}
	for i, want := range []int{1, 2, 10} {
		if got[i].Version != want {
			t.Errorf("migration %d version = %d, want %d", i, got[i].Version, want)
		}
	}
	if got[0].SQL != "CREATE TABLE a (id INT);" {
		t.Errorf("unexpected SQL: %q", got[0].SQL)
	}
}

func TestLoadRejectsDuplicateVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"0001_a.sql":   {Data: []byte("SELECT 1;")},
		"0001_dup.sql": {Data: []byte("SELECT 2;")},
	}
	if _, err := NewFromFS(nil, fsys, nil).Load(); err == nil {
		t.Fatal("expected duplicate version error")
	}
}

func TestEmbeddedSchema(t *testing.T) {
	got, err := New(nil, nil).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) < 2 {
		t.Fatalf("got %d embedded migrations, want at least 2", len(got))
	}

	var all strings.Builder
	for _, m := range got {
		all.WriteString(m.SQL)
	}
	for _, table := range []string{"summary_events", "clinical_documents", "outbox", "inbox"} {
		if !strings.Contains(all.String(), "CREATE TABLE IF NOT EXISTS "+table+" ") {
			t.Errorf("schema missing table %s", table)
		}
	}
}

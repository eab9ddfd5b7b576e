package composer

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestFileHistory_RoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.json")

	h, err := OpenFileHistory(path)
	if err != nil {
		t.Fatalf("OpenFileHistory() error = %v", err)
	}
	c := New(h, seeded())
	first, err := c.SelectTemplate(ctx, "Alice")
	if err != nil {
		t.Fatalf("SelectTemplate() error = %v", err)
	}
	if _, err := c.SelectTemplate(ctx, "bob"); err != nil {
		t.Fatalf("SelectTemplate() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	var raw struct {
		SearchedHandles []string          `json:"searchedHandles"`
		RemixIndices    []json.RawMessage `json:"remixIndices"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("history file is not JSON: %v", err)
	}
	if len(raw.SearchedHandles) != 2 || raw.SearchedHandles[0] != "alice" || raw.SearchedHandles[1] != "bob" {
		t.Errorf("searchedHandles = %v, want [alice bob]", raw.SearchedHandles)
	}
	if len(raw.RemixIndices) != 2 {
		t.Fatalf("remixIndices = %s, want 2 pairs", data)
	}
	var pair []any
	if err := json.Unmarshal(raw.RemixIndices[0], &pair); err != nil || len(pair) != 2 || pair[0] != "alice" || pair[1] != float64(first) {
		t.Errorf("remixIndices[0] = %s, want [\"alice\", %d]", raw.RemixIndices[0], first)
	}

	reopened, err := OpenFileHistory(path)
	if err != nil {
		t.Fatalf("OpenFileHistory() reopen error = %v", err)
	}
	got, err := New(reopened).SelectTemplate(ctx, "ALICE")
	if err != nil {
		t.Fatalf("SelectTemplate() error = %v", err)
	}
	if want := (first + 1) % TemplateCount; got != want {
		t.Errorf("remix after reopen = %d, want %d", got, want)
	}
}

func TestOpenFileHistory_BrowserLayout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.json")
	content := `{"searchedHandles":["elonmusk"],"remixIndices":[["elonmusk",4]]}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	h, err := OpenFileHistory(path)
	if err != nil {
		t.Fatalf("OpenFileHistory() error = %v", err)
	}
	if seen, _ := h.HasSeen(ctx, "elonmusk"); !seen {
		t.Error("HasSeen(elonmusk) = false")
	}
	if idx, ok, _ := h.LastIndex(ctx, "elonmusk"); !ok || idx != 4 {
		t.Errorf("LastIndex = (%d, %v), want (4, true)", idx, ok)
	}
}

func TestOpenFileHistory_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"empty file", "", false},
		{"garbage", "{not json", true},
		{"bad pair", `{"searchedHandles":[],"remixIndices":[[1,"x"]]}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "history.json")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}
			_, err := OpenFileHistory(path)
			if (err != nil) != tt.wantErr {
				t.Errorf("OpenFileHistory() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if _, err := OpenFileHistory(filepath.Join(t.TempDir(), "missing.json")); err != nil {
		t.Errorf("missing file should be empty history, got %v", err)
	}
}

func TestRedisHistory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	h := NewRedisHistory(rdb, "client-1", time.Hour)
	other := NewRedisHistory(rdb, "client-2", 0)

	if _, ok, err := h.LastIndex(ctx, "alice"); err != nil || ok {
		t.Fatalf("LastIndex on empty = (%v, %v), want (false, nil)", ok, err)
	}

	c := New(h, seeded())
	first, err := c.SelectTemplate(ctx, "Alice")
	if err != nil {
		t.Fatalf("SelectTemplate() error = %v", err)
	}
	second, err := c.SelectTemplate(ctx, "alice")
	if err != nil {
		t.Fatalf("SelectTemplate() error = %v", err)
	}
	if second != (first+1)%TemplateCount {
		t.Errorf("remix = %d, want %d", second, (first+1)%TemplateCount)
	}

	if seen, _ := other.HasSeen(ctx, "alice"); seen {
		t.Error("history leaked across clients")
	}
	if ttl := mr.TTL("sitmon:history:client-1:searched"); ttl != time.Hour {
		t.Errorf("searched TTL = %v, want 1h", ttl)
	}
	if got := mr.HGet("sitmon:history:client-1:remix", "alice"); got != strconv.Itoa(second) {
		t.Errorf("stored remix index = %q, want %d", got, second)
	}
}

func TestRedisHistory_Unavailable(t *testing.T) {
	t.Parallel()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	if _, err := NewRedisHistory(rdb, "c", 0).HasSeen(context.Background(), "x"); err == nil {
		t.Error("HasSeen() expected error with redis down")
	}
}

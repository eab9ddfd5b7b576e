package composer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// HistoryStore remembers which handles a client has already seen and the last
// template shown for each. Keys are lower-cased handles.
type HistoryStore interface {
	HasSeen(ctx context.Context, key string) (bool, error)
	MarkSeen(ctx context.Context, key string) error
	LastIndex(ctx context.Context, key string) (int, bool, error)
	SetLastIndex(ctx context.Context, key string, index int) error
}

// MemoryHistory is a process-local HistoryStore.
type MemoryHistory struct {
	mu      sync.RWMutex
	seen    map[string]bool
	indices map[string]int
}

// NewMemoryHistory creates an empty in-memory history.
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{seen: make(map[string]bool), indices: make(map[string]int)}
}

func (m *MemoryHistory) HasSeen(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.seen[key], nil
}

func (m *MemoryHistory) MarkSeen(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[key] = true
	return nil
}

func (m *MemoryHistory) LastIndex(_ context.Context, key string) (int, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx, ok := m.indices[key]
	return idx, ok, nil
}

func (m *MemoryHistory) SetLastIndex(_ context.Context, key string, index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indices[key] = index
	return nil
}

// MemoryHistories hands out one MemoryHistory per client id. It backs
// server-side composition when Redis is not configured.
type MemoryHistories struct {
	mu      sync.Mutex
	clients map[string]*MemoryHistory
}

// NewMemoryHistories creates an empty per-client registry.
func NewMemoryHistories() *MemoryHistories {
	return &MemoryHistories{clients: make(map[string]*MemoryHistory)}
}

// For returns the history for clientID, creating it on first use.
func (m *MemoryHistories) For(clientID string) HistoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.clients[clientID]
	if !ok {
		h = NewMemoryHistory()
		m.clients[clientID] = h
	}
	return h
}

// historyFile mirrors the browser-storage layout: a list of handles and a list of [handle, index] pairs.
type historyFile struct {
	SearchedHandles []string `json:"searchedHandles"`
	RemixIndices    [][2]any `json:"remixIndices"`
}

// FileHistory persists history as JSON. The file is read once at open and
// rewritten atomically after every mutation.
type FileHistory struct {
	path string
	mem  *MemoryHistory
	// order keeps insertion order so the file stays stable across rewrites.
	seenOrder  []string
	indexOrder []string
	mu         sync.Mutex
}

// OpenFileHistory loads path, treating a missing file as empty history.
func OpenFileHistory(path string) (*FileHistory, error) {
	f := &FileHistory{path: path, mem: NewMemoryHistory()}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}
	if len(data) == 0 {
		return f, nil
	}

	var hf historyFile
	if err := json.Unmarshal(data, &hf); err != nil {
		return nil, fmt.Errorf("failed to parse history file %s: %w", path, err)
	}
	for _, key := range hf.SearchedHandles {
		if !f.mem.seen[key] {
			f.mem.seen[key] = true
			f.seenOrder = append(f.seenOrder, key)
		}
	}
	for _, pair := range hf.RemixIndices {
		key, ok := pair[0].(string)
		num, ok2 := pair[1].(float64)
		if !ok || !ok2 {
			return nil, fmt.Errorf("history file %s has a malformed remix entry %v", path, pair)
		}
		if _, exists := f.mem.indices[key]; !exists {
			f.indexOrder = append(f.indexOrder, key)
		}
		f.mem.indices[key] = int(num)
	}
	return f, nil
}

func (f *FileHistory) HasSeen(ctx context.Context, key string) (bool, error) {
	return f.mem.HasSeen(ctx, key)
}

func (f *FileHistory) LastIndex(ctx context.Context, key string) (int, bool, error) {
	return f.mem.LastIndex(ctx, key)
}

func (f *FileHistory) MarkSeen(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if seen, _ := f.mem.HasSeen(ctx, key); seen {
		return nil
	}
	_ = f.mem.MarkSeen(ctx, key)
	f.seenOrder = append(f.seenOrder, key)
	return f.flush()
}

func (f *FileHistory) SetLastIndex(ctx context.Context, key string, index int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists, _ := f.mem.LastIndex(ctx, key); !exists {
		f.indexOrder = append(f.indexOrder, key)
	}
	_ = f.mem.SetLastIndex(ctx, key, index)
	return f.flush()
}

// flush must be called with f.mu held.
func (f *FileHistory) flush() error {
	hf := historyFile{
		SearchedHandles: append([]string{}, f.seenOrder...),
		RemixIndices:    make([][2]any, 0, len(f.indexOrder)),
	}
	for _, key := range f.indexOrder {
		idx, _, _ := f.mem.LastIndex(context.Background(), key)
		hf.RemixIndices = append(hf.RemixIndices, [2]any{key, idx})
	}
	data, err := json.MarshalIndent(hf, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".history-*.json")
	if err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write history: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace history file: %w", err)
	}
	return nil
}

var (
	_ HistoryStore = (*MemoryHistory)(nil)
	_ HistoryStore = (*FileHistory)(nil)
)

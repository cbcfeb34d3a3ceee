package sync

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vonshlovens/spokesync/internal/hash"
)

// FileState represents the sync state of a single file
type FileState struct {
	Hash         string    `json:"hash"`
	LastSynced   time.Time `json:"last_synced"`
	LastModified time.Time `json:"last_modified"`
	SizeBytes    int64     `json:"size_bytes"`
	// DocumentID is set for notes once they have a row in the documents table
	DocumentID *int64 `json:"document_id,omitempty"`
}

// SyncState represents the local sync state
type SyncState struct {
	VaultPath    string                `json:"vault_path"`
	LastFullSync *time.Time            `json:"last_full_sync,omitempty"`
	Files        map[string]*FileState `json:"files"`
}

// StateTracker manages local sync state
type StateTracker struct {
	state    *SyncState
	filePath string
	mu       sync.RWMutex
	dirty    bool
}

// NewStateTracker creates a state tracker persisted under stateDir, one file per vault
func NewStateTracker(stateDir, vaultPath string) (*StateTracker, error) {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, err
	}
	filePath := filepath.Join(stateDir, "state-"+hash.Short(vaultPath)+".json")

	st := &StateTracker{
		filePath: filePath,
		state:    emptyState(vaultPath),
	}

	if err := st.load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("discarding unreadable sync state", "path", filePath, "error", err)
	}

	// State written for another vault that hashed to the same name
	if st.state.VaultPath != vaultPath {
		st.state = emptyState(vaultPath)
	}

	return st, nil
}

func emptyState(vaultPath string) *SyncState {
	return &SyncState{
		VaultPath: vaultPath,
		Files:     make(map[string]*FileState),
	}
}

// load reads state from disk
func (st *StateTracker) load() error {
	data, err := os.ReadFile(st.filePath)
	if err != nil {
		return err
	}

	state := &SyncState{}
	if err := json.Unmarshal(data, state); err != nil {
		return err
	}

	if state.Files == nil {
		state.Files = make(map[string]*FileState)
	}

	st.state = state
	return nil
}

// Save persists state to disk. The file is replaced atomically so a crash
// mid-write never leaves a truncated state behind.
func (st *StateTracker) Save() error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.dirty {
		return nil
	}

	data, err := json.MarshalIndent(st.state, "", "  ")
	if err != nil {
		return err
	}

	tmp := st.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, st.filePath); err != nil {
		os.Remove(tmp)
		return err
	}

	st.dirty = false
	return nil
}

// GetFileState returns the state for a specific file
func (st *StateTracker) GetFileState(path string) *FileState {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.state.Files[path]
}

// SetFileState updates the state for a specific file
func (st *StateTracker) SetFileState(path string, state *FileState) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.state.Files[path] = state
	st.dirty = true
}

// RemoveFileState removes state for a file
func (st *StateTracker) RemoveFileState(path string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.state.Files, path)
	st.dirty = true
}

// SetLastFullSync updates the last full sync time
func (st *StateTracker) SetLastFullSync(t time.Time) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.state.LastFullSync = &t
	st.dirty = true
}

// GetLastFullSync returns the last full sync time
func (st *StateTracker) GetLastFullSync() *time.Time {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.state.LastFullSync
}

// NeedsSync checks if a file needs to be synced based on hash comparison
func (st *StateTracker) NeedsSync(path string, currentHash string) bool {
	st.mu.RLock()
	defer st.mu.RUnlock()

	state, exists := st.state.Files[path]
	if !exists {
		return true
	}

	return state.Hash != currentHash
}

// Clear removes all state
func (st *StateTracker) Clear() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.state.Files = make(map[string]*FileState)
	st.state.LastFullSync = nil
	st.dirty = true
}

// FileCount returns the number of tracked files
func (st *StateTracker) FileCount() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.state.Files)
}

package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vonshlovens/spokesync/internal/domain"
)

type fakeLibrary struct {
	mu     sync.Mutex
	nextID int64
	bySrc  map[string]*domain.MediaItem
}

func newFakeLibrary() *fakeLibrary {
	return &fakeLibrary{nextID: 100, bySrc: make(map[string]*domain.MediaItem)}
}

func (f *fakeLibrary) GetMediaBySourceURL(_ context.Context, sourceURL string) (*domain.MediaItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if item, ok := f.bySrc[sourceURL]; ok {
		return item, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeLibrary) UpsertMediaBySourceURL(_ context.Context, item *domain.MediaItem) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.bySrc[item.SourceURL]; ok {
		return existing.ID, nil
	}
	f.nextID++
	item.ID = f.nextID
	f.bySrc[item.SourceURL] = item
	return item.ID, nil
}

// hubServer serves /media/{id} and fails for the ids in broken
func hubServer(t *testing.T, broken map[int64]bool, hits *int) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id int64
		if _, err := fmt.Sscanf(r.URL.Path, "/media/%d", &id); err != nil {
			http.NotFound(w, r)
			return
		}
		mu.Lock()
		*hits++
		mu.Unlock()
		if broken[id] {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="img-%d.png"`, id))
		_, _ = io.WriteString(w, fmt.Sprintf("png-bytes-%d", id))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestReconciler(store Store) *Reconciler {
	return NewReconciler(store, nil, Config{
		SiteURL:  "https://spoke.example",
		Timeout:  5 * time.Second,
		MaxBytes: 1 << 20,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestMaterialize_RoundTripWithOneFailure(t *testing.T) {
	hits := 0
	srv := hubServer(t, map[int64]bool{20: true}, &hits)
	lib := newFakeLibrary()
	r := newTestReconciler(lib)

	body := `[gallery ids="10,20,30"]<img class="wp-image-10" src="` + srv.URL + `/media/10">`
	ids := HarvestReferences(body)
	require.Equal(t, []int64{10, 20, 30}, ids)

	refs, failures := r.Materialize(context.Background(), ids, srv.URL)
	require.Len(t, refs, 2)
	require.Len(t, failures, 1)
	assert.Equal(t, int64(20), failures[0].ID)

	out := r.Rewrite(body, refs)

	id10 := refs[10].DestinationID
	id30 := refs[30].DestinationID
	assert.Contains(t, out, fmt.Sprintf(`[gallery ids="%d,20,%d"]`, id10, id30))
	assert.Contains(t, out, fmt.Sprintf(`class="wp-image-%d"`, id10))
	assert.Contains(t, out, fmt.Sprintf(`src="https://spoke.example/media/%d"`, id10))

	item := lib.bySrc[srv.URL+"/media/10"]
	require.NotNil(t, item)
	assert.Equal(t, "img-10.png", item.Filename)
	assert.Equal(t, "image/png", item.MimeType)
}

func TestMaterialize_ReusesPreviouslyFetched(t *testing.T) {
	hits := 0
	srv := hubServer(t, nil, &hits)
	lib := newFakeLibrary()
	r := newTestReconciler(lib)

	first, _ := r.Materialize(context.Background(), []int64{5}, srv.URL)
	second, _ := r.Materialize(context.Background(), []int64{5, 5}, srv.URL)

	assert.Equal(t, first[5].DestinationID, second[5].DestinationID)
	assert.Equal(t, 1, hits)
}

func TestMaterialize_SizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 2048))
	}))
	defer srv.Close()

	r := NewReconciler(newFakeLibrary(), nil, Config{SiteURL: "https://spoke.example", Timeout: time.Second, MaxBytes: 1024},
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	refs, failures := r.MaterializeRefs(context.Background(), []domain.MediaRef{{ID: 1, URL: srv.URL + "/big.bin"}})
	assert.Empty(t, refs)
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0].Error(), "exceeds")
}

package receiver

import (
	"context"
	"encoding/json"
	"errors"
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

	"github.com/vonshlovens/spokesync/internal/activity"
	"github.com/vonshlovens/spokesync/internal/domain"
	"github.com/vonshlovens/spokesync/internal/media"
	"github.com/vonshlovens/spokesync/internal/testutil"
)

func newTestReceiver(t *testing.T, store Store, mem *testutil.MemStore, cfg Config) *Receiver {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := media.NewReconciler(mem, nil, media.Config{
		SiteURL: "https://spoke.example", Timeout: 5 * time.Second, MaxBytes: 1 << 20,
	}, logger)

	if cfg.SiteURL == "" {
		cfg.SiteURL = "https://spoke.example"
	}
	if cfg.DefaultAuthor == "" {
		cfg.DefaultAuthor = "admin"
	}
	return New(store, rec, activity.New(mem, logger), cfg, logger)
}

func source() *domain.Connection {
	return &domain.Connection{
		ID:      "hub-1",
		BaseURL: "https://hub.example",
		Role:    domain.RoleInbound,
		Status:  domain.ConnectionActive,
		Sync:    domain.DefaultSyncSettings(),
	}
}

func payload(originID int64) *domain.Payload {
	return &domain.Payload{
		OriginURL:  "https://hub.example/",
		OriginID:   domain.NewFlexID(originID),
		Title:      "Hello",
		Content:    "<p>Body</p>",
		Status:     "published",
		Slug:       "hello",
		Author:     domain.Author{Name: "Ann", Email: "ann@hub.example", Login: "ann"},
		Categories: []string{"News"},
		Tags:       []string{"go"},
	}
}

func TestValidation_ReportsEveryField(t *testing.T) {
	store := testutil.NewMemStore()
	r := newTestReceiver(t, store, store, Config{})

	p := &domain.Payload{
		OriginURL: "not a url",
		OriginID:  "abc",
		Status:    "live",
		Author:    domain.Author{Email: "nope"},
		Gallery:   []domain.MediaRef{{ID: 0, URL: "x"}},
	}

	_, err := r.Create(context.Background(), source(), p)
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve), "want ValidationError, got %v", err)
	assert.ErrorIs(t, err, domain.ErrValidation)

	fields := map[string]bool{}
	for _, fe := range ve.Errors {
		fields[fe.Field] = true
		assert.NotEmpty(t, fe.Message)
	}
	for _, f := range []string{"origin_url", "origin_id", "title", "status", "author.email", "gallery[0].id", "gallery[0].url"} {
		assert.True(t, fields[f], "missing violation for %s in %v", f, ve.Errors)
	}
	assert.Zero(t, store.DocumentCount())
}

func TestValidation_ZeroOriginID(t *testing.T) {
	store := testutil.NewMemStore()
	r := newTestReceiver(t, store, store, Config{})

	p := payload(0)
	_, err := r.Update(context.Background(), source(), p)
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "origin_id", ve.Errors[0].Field)
}

func TestIdempotentReceipt(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemStore()
	r := newTestReceiver(t, store, store, Config{})

	first, err := r.Update(ctx, source(), payload(42))
	require.NoError(t, err)
	assert.True(t, first.Success)
	assert.True(t, first.Created)
	assert.Equal(t, 1, store.DocumentCount())

	second, err := r.Create(ctx, source(), payload(42))
	require.NoError(t, err)
	assert.Equal(t, first.PostID, second.PostID)
	assert.False(t, second.Created)

	third, err := r.Update(ctx, source(), payload(42))
	require.NoError(t, err)
	assert.Equal(t, first.PostID, third.PostID)
	assert.Equal(t, 1, store.DocumentCount())

	doc, err := store.GetDocumentByIdentity(ctx, domain.Identity{OriginURL: "https://hub.example", OriginID: 42})
	require.NoError(t, err)
	assert.Equal(t, "Hello", doc.Title)
	assert.Equal(t, []string{"News"}, doc.Categories)
	assert.Equal(t, "https://spoke.example/hello", first.PostURL)
}

func TestConcurrentCreatesProduceOneDocument(t *testing.T) {
	store := testutil.NewMemStore()
	r := newTestReceiver(t, store, store, Config{})

	var wg sync.WaitGroup
	ids := make(chan int64, 10)
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var (
				resp *domain.ReceiveResponse
				err  error
			)
			if i%2 == 0 {
				resp, err = r.Create(context.Background(), source(), payload(7))
			} else {
				resp, err = r.Update(context.Background(), source(), payload(7))
			}
			if assert.NoError(t, err) {
				ids <- resp.PostID
			}
		}()
	}
	wg.Wait()
	close(ids)

	assert.Equal(t, 1, store.DocumentCount())
	var first int64
	for id := range ids {
		if first == 0 {
			first = id
		}
		assert.Equal(t, first, id)
	}
}

// racyStore hides an existing identity from the first lookup, the way a
// concurrent insert by another process would
type racyStore struct {
	*testutil.MemStore
	mu     sync.Mutex
	misses int
}

func (s *racyStore) GetDocumentByIdentity(ctx context.Context, identity domain.Identity) (*domain.Document, error) {
	s.mu.Lock()
	miss := s.misses > 0
	if miss {
		s.misses--
	}
	s.mu.Unlock()
	if miss {
		return nil, domain.ErrNotFound
	}
	return s.MemStore.GetDocumentByIdentity(ctx, identity)
}

func TestCreate_UniqueViolationReroutesToUpdate(t *testing.T) {
	ctx := context.Background()
	mem := testutil.NewMemStore()
	store := &racyStore{MemStore: mem}
	r := newTestReceiver(t, store, mem, Config{})

	first, err := r.Create(ctx, source(), payload(5))
	require.NoError(t, err)

	store.misses = 1
	p := payload(5)
	p.Title = "Hello again"
	second, err := r.Create(ctx, source(), p)
	require.NoError(t, err)

	assert.Equal(t, first.PostID, second.PostID)
	assert.Equal(t, 1, mem.DocumentCount())
	doc, _ := mem.GetDocument(ctx, first.PostID)
	assert.Equal(t, "Hello again", doc.Title)
}

func TestAuthorResolution(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemStore()
	byEmail := store.AddAuthor("annie", "ANN@hub.example", "Ann")
	byLogin := store.AddAuthor("bob", "bob@spoke.example", "Bob")
	r := newTestReceiver(t, store, store, Config{DefaultAuthor: "editor"})

	tests := []struct {
		name   string
		author domain.Author
		want   func() int64
	}{
		{"email wins", domain.Author{Email: "ann@hub.example", Login: "bob"}, func() int64 { return byEmail.ID }},
		{"login fallback", domain.Author{Email: "unknown@hub.example", Login: "bob"}, func() int64 { return byLogin.ID }},
		{"default author", domain.Author{Login: "stranger"}, func() int64 {
			a, err := store.FindAuthorByLogin(ctx, "editor")
			require.NoError(t, err)
			return a.ID
		}},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := payload(int64(100 + i))
			p.Author = tt.author
			resp, err := r.Create(ctx, source(), p)
			require.NoError(t, err)

			doc, _ := store.GetDocument(ctx, resp.PostID)
			require.NotNil(t, doc.AuthorID)
			assert.Equal(t, tt.want(), *doc.AuthorID)
		})
	}
}

func TestAutoPublishDisabledStoresDraft(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemStore()
	r := newTestReceiver(t, store, store, Config{})

	src := source()
	src.Sync.AutoPublish = false
	resp, err := r.Create(ctx, src, payload(1))
	require.NoError(t, err)

	doc, _ := store.GetDocument(ctx, resp.PostID)
	assert.Equal(t, domain.StatusDraft, doc.Status)

	p := payload(2)
	p.Status = "scheduled"
	resp, err = r.Create(ctx, src, p)
	require.NoError(t, err)
	doc, _ = store.GetDocument(ctx, resp.PostID)
	assert.Equal(t, domain.StatusScheduled, doc.Status)
}

func TestAutoPublishDisabledKeepsLocallyPublished(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemStore()
	r := newTestReceiver(t, store, store, Config{})

	src := source()
	src.Sync.AutoPublish = false
	resp, err := r.Create(ctx, src, payload(1))
	require.NoError(t, err)

	// an update before the operator acts keeps the draft
	_, err = r.Update(ctx, src, payload(1))
	require.NoError(t, err)
	doc, _ := store.GetDocument(ctx, resp.PostID)
	require.Equal(t, domain.StatusDraft, doc.Status)

	// the operator publishes the copy
	doc.Status = domain.StatusPublished
	require.NoError(t, store.UpdateDocumentContent(ctx, doc))

	p := payload(1)
	p.Title = "Hello again"
	_, err = r.Update(ctx, src, p)
	require.NoError(t, err)
	doc, _ = store.GetDocument(ctx, resp.PostID)
	assert.Equal(t, "Hello again", doc.Title)
	assert.Equal(t, domain.StatusPublished, doc.Status)
}

func metaOf(t *testing.T, kv ...string) domain.Meta {
	t.Helper()
	var m domain.Meta
	for i := 0; i < len(kv); i += 2 {
		require.NoError(t, m.SetValue(kv[i], kv[i+1]))
	}
	return m
}

func metaValue(t *testing.T, m domain.Meta, key string) string {
	t.Helper()
	raw, ok := m.Get(key)
	if !ok {
		return ""
	}
	var s string
	require.NoError(t, json.Unmarshal(raw, &s))
	return s
}

func TestMetadataMergePolicy(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		global     bool
		connection bool
		wantTitle  string
		wantLayout string
	}{
		{"no override keeps local edits", false, false, "Local title", "local"},
		{"global toggle overrides", true, false, "Hub title", "local"},
		{"connection flag overrides", false, true, "Hub title", "local"},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testutil.NewMemStore()
			r := newTestReceiver(t, store, store, Config{AllowSEOOverride: tt.global})
			src := source()
			src.Sync.AllowSEOOverride = tt.connection

			id := int64(10 + i)
			resp, err := r.Create(ctx, src, payload(id))
			require.NoError(t, err)

			// operator edits on the spoke
			require.NoError(t, store.UpdateDocumentMeta(ctx, resp.PostID,
				metaOf(t, "title", "Local title", "robots", ""),
				metaOf(t, "layout", "local")))

			p := payload(id)
			p.SEOMeta = metaOf(t, "title", "Hub title", "robots", "noindex", "description", "Hub desc")
			p.ThemeMeta = metaOf(t, "layout", "hub", "sidebar", "left")
			_, err = r.Update(ctx, src, p)
			require.NoError(t, err)

			doc, _ := store.GetDocument(ctx, resp.PostID)
			assert.Equal(t, tt.wantTitle, metaValue(t, doc.SEOMeta, "title"))
			assert.Equal(t, "noindex", metaValue(t, doc.SEOMeta, "robots"), "empty local value is filled")
			assert.Equal(t, "Hub desc", metaValue(t, doc.SEOMeta, "description"))
			assert.Equal(t, tt.wantLayout, metaValue(t, doc.ThemeMeta, "layout"))
			assert.Equal(t, "left", metaValue(t, doc.ThemeMeta, "sidebar"))
		})
	}
}

func hubMedia(t *testing.T, broken map[int64]bool) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id int64
		if _, err := fmt.Sscanf(r.URL.Path, "/media/%d", &id); err != nil || broken[id] {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = fmt.Fprintf(w, "jpeg-%d", id)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGalleryMaterialization(t *testing.T) {
	ctx := context.Background()
	hub := hubMedia(t, map[int64]bool{20: true})
	store := testutil.NewMemStore()
	r := newTestReceiver(t, store, store, Config{DownloadImages: true})

	p := payload(1)
	p.Content = fmt.Sprintf(`[gallery ids="10,20,30"]<img class="wp-image-30" src="%s/media/30">`, hub.URL)
	for _, id := range []int64{10, 20, 30} {
		p.Gallery = append(p.Gallery, domain.MediaRef{ID: id, URL: domain.MediaURL(hub.URL, id)})
	}
	p.FeaturedImage = &domain.MediaRef{ID: 10, URL: domain.MediaURL(hub.URL, 10)}

	resp, err := r.Create(ctx, source(), p)
	require.NoError(t, err)
	assert.True(t, resp.Success)

	doc, _ := store.GetDocument(ctx, resp.PostID)
	require.Len(t, doc.Gallery, 2)
	id10, id30 := doc.Gallery[0].ID, doc.Gallery[1].ID
	assert.Contains(t, doc.Body, fmt.Sprintf(`[gallery ids="%d,20,%d"]`, id10, id30))
	assert.Contains(t, doc.Body, fmt.Sprintf(`class="wp-image-%d" src="https://spoke.example/media/%d"`, id30, id30))
	require.NotNil(t, doc.FeaturedMedia)
	assert.Equal(t, id10, doc.FeaturedMedia.ID)

	assert.Len(t, store.ActivityWith(domain.SeverityWarning), 1)
}

func TestSubStepFailureDoesNotRollBack(t *testing.T) {
	ctx := context.Background()
	hub := hubMedia(t, nil)
	store := testutil.NewMemStore()
	store.Fail["UpdateDocumentGallery"] = errors.New("disk full")
	r := newTestReceiver(t, store, store, Config{DownloadImages: true})

	p := payload(3)
	p.Gallery = []domain.MediaRef{{ID: 1, URL: domain.MediaURL(hub.URL, 1)}}
	p.SEOMeta = metaOf(t, "title", "SEO")

	resp, err := r.Create(ctx, source(), p)
	require.NoError(t, err)

	doc, err := store.GetDocument(ctx, resp.PostID)
	require.NoError(t, err)
	assert.Equal(t, []string{"go"}, doc.Tags)
	assert.Equal(t, "SEO", metaValue(t, doc.SEOMeta, "title"))
	assert.Empty(t, doc.Gallery)

	warnings := store.ActivityWith(domain.SeverityWarning)
	require.Len(t, warnings, 1)
	assert.Equal(t, "gallery failed", warnings[0].Message)
}

func TestDownloadImagesDisabledLeavesBody(t *testing.T) {
	ctx := context.Background()
	store := testutil.NewMemStore()
	r := newTestReceiver(t, store, store, Config{DownloadImages: false})

	p := payload(4)
	p.Content = `[gallery ids="1,2"]`
	p.Gallery = []domain.MediaRef{{ID: 1, URL: "https://hub.example/media/1"}}

	resp, err := r.Create(ctx, source(), p)
	require.NoError(t, err)
	doc, _ := store.GetDocument(ctx, resp.PostID)
	assert.Equal(t, `[gallery ids="1,2"]`, doc.Body)
}

func TestPermalink(t *testing.T) {
	r := &Receiver{cfg: Config{SiteURL: "https://spoke.example/"}}
	assert.Equal(t, "https://spoke.example/hello", r.Permalink(&domain.Document{ID: 3, Slug: "hello"}))
	assert.Equal(t, "https://spoke.example/?p=3", r.Permalink(&domain.Document{ID: 3}))
}

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	apierrors "github.com/SirClappington/brochure-backend/internal/errors"
	"github.com/SirClappington/brochure-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testBucket = "brochures.appspot.com"

type gcsObject struct {
	contentType string
	data        []byte
}

// fakeGCS implements the slice of the Cloud Storage JSON and XML APIs the
// bucket store uses. Reads are served on both the XML and JSON media paths.
type fakeGCS struct {
	mu        sync.Mutex
	objects   map[string]gcsObject
	failWrite map[string]bool
	globs     []string
}

func newFakeGCS() *fakeGCS {
	return &fakeGCS{objects: map[string]gcsObject{}, failWrite: map[string]bool{}}
}

func (f *fakeGCS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	listPath := "/storage/v1/b/" + testBucket + "/o"
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/upload"+listPath:
		f.upload(w, r)
	case r.Method == http.MethodGet && r.URL.Path == listPath:
		f.list(w, r)
	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, listPath+"/"):
		name := strings.TrimPrefix(r.URL.Path, listPath+"/")
		if _, ok := f.objects[name]; !ok {
			gcsError(w, http.StatusNotFound, "No such object")
			return
		}
		delete(f.objects, name)
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, listPath+"/"):
		f.read(w, strings.TrimPrefix(r.URL.Path, listPath+"/"))
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/"+testBucket+"/"):
		f.read(w, strings.TrimPrefix(r.URL.Path, "/"+testBucket+"/"))
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeGCS) read(w http.ResponseWriter, name string) {
	obj, ok := f.objects[name]
	if !ok {
		gcsError(w, http.StatusNotFound, "No such object")
		return
	}
	w.Header().Set("Content-Type", obj.contentType)
	w.Write(obj.data)
}

func (f *fakeGCS) upload(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if f.failWrite[name] {
		io.Copy(io.Discard, r.Body)
		gcsError(w, http.StatusForbidden, "write denied")
		return
	}

	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		gcsError(w, http.StatusBadRequest, err.Error())
		return
	}
	mr := multipart.NewReader(r.Body, params["boundary"])
	if _, err := mr.NextPart(); err != nil { // object metadata
		gcsError(w, http.StatusBadRequest, err.Error())
		return
	}
	media, err := mr.NextPart()
	if err != nil {
		gcsError(w, http.StatusBadRequest, err.Error())
		return
	}
	data, err := io.ReadAll(media)
	if err != nil {
		gcsError(w, http.StatusBadRequest, err.Error())
		return
	}

	obj := gcsObject{contentType: media.Header.Get("Content-Type"), data: data}
	f.objects[name] = obj
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"bucket":      testBucket,
		"name":        name,
		"contentType": obj.contentType,
		"size":        fmt.Sprint(len(data)),
	})
}

func (f *fakeGCS) list(w http.ResponseWriter, r *http.Request) {
	glob := r.URL.Query().Get("matchGlob")
	f.globs = append(f.globs, glob)

	suffix := strings.TrimPrefix(glob, "**")
	var names []string
	for name := range f.objects {
		if strings.HasSuffix(name, suffix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	items := make([]map[string]string, 0, len(names))
	for _, name := range names {
		items = append(items, map[string]string{"bucket": testBucket, "name": name})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"kind": "storage#objects", "items": items})
}

func gcsError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"code":%d,"message":%q}}`, code, message)
}

func (f *fakeGCS) object(name string) (gcsObject, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[name]
	return obj, ok
}

func (f *fakeGCS) listedGlobs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.globs...)
}

func newTestBucketStore(t *testing.T, fake *fakeGCS) *FirebaseService {
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	t.Setenv("STORAGE_EMULATOR_HOST", srv.URL)

	client, err := storage.NewClient(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return newBucketStore(client.Bucket(testBucket), zaptest.NewLogger(t))
}

func testBrochure(company string) *models.Brochure {
	return &models.Brochure{
		ID:        "brochure-1",
		Company:   company,
		URL:       "https://acme.com/",
		Markdown:  "# " + company,
		Model:     "gemma3:latest",
		CreatedAt: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestBucketStoreSaveAndGet(t *testing.T) {
	fake := newFakeGCS()
	store := newTestBucketStore(t, fake)

	brochure := testBrochure("Acme Furniture")
	require.NoError(t, store.Save(context.Background(), brochure))

	md, ok := fake.object("acme-furniture/brochure.md")
	require.True(t, ok)
	assert.Equal(t, "# Acme Furniture\n", string(md.data))
	assert.Equal(t, "text/markdown; charset=utf-8", md.contentType)

	meta, ok := fake.object("acme-furniture/brochure.json")
	require.True(t, ok)
	assert.Equal(t, "application/json", meta.contentType)

	got, err := store.Get(context.Background(), "acme furniture")
	require.NoError(t, err)
	assert.Equal(t, brochure, got)
}

func TestBucketStoreGetMissing(t *testing.T) {
	store := newTestBucketStore(t, newFakeGCS())

	_, err := store.Get(context.Background(), "Nobody")
	assert.True(t, apierrors.IsNotFound(err), "got %v", err)
	assert.ErrorContains(t, err, "no brochure stored for Nobody")
}

func TestBucketStoreList(t *testing.T) {
	fake := newFakeGCS()
	store := newTestBucketStore(t, fake)

	for _, company := range []string{"Zeta Labs", "Acme"} {
		require.NoError(t, store.Save(context.Background(), testBrochure(company)))
	}

	companies, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"acme", "zeta-labs"}, companies)
	assert.Equal(t, []string{"**/brochure.json"}, fake.listedGlobs())
}

func TestBucketStoreSaveRemovesMarkdownWhenMetadataFails(t *testing.T) {
	fake := newFakeGCS()
	fake.failWrite["acme/brochure.json"] = true
	store := newTestBucketStore(t, fake)

	err := store.Save(context.Background(), testBrochure("Acme"))
	apiErr, ok := apierrors.As(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, apierrors.ErrorTypeExternal, apiErr.Type)

	_, ok = fake.object("acme/brochure.md")
	assert.False(t, ok)
	_, err = store.Get(context.Background(), "Acme")
	assert.True(t, apierrors.IsNotFound(err))
}

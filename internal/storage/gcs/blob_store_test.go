package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

// newTestStore points a real client at an httptest server emulating the JSON API.
func newTestStore(t *testing.T, handler http.Handler) *BlobStore {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(client, Config{Bucket: "test-bucket", Prefix: "/harvest/"})
	require.NoError(t, err)
	return store
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	assert.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	defer client.Close() //nolint:errcheck // test cleanup
	_, err = New(client, Config{})
	assert.Error(t, err)
}

func TestPutUploadsUnderPrefix(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/test-bucket/o")
		assert.Equal(t, "harvest/articles/news_1.html", r.URL.Query().Get("name"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), "<html>story</html>")

		fmt.Fprintln(w, `{"name":"harvest/articles/news_1.html","bucket":"test-bucket"}`)
	})
	store := newTestStore(t, handler)

	uri, err := store.Put(context.Background(), "articles/news_1.html", "text/html", []byte("<html>story</html>"))
	require.NoError(t, err)
	assert.Equal(t, "gs://test-bucket/harvest/articles/news_1.html", uri)
}

func TestExistsMapsNotFound(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "present.html") {
			fmt.Fprintln(w, `{"name":"harvest/articles/present.html","bucket":"test-bucket"}`)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintln(w, `{"error":{"code":404,"message":"No such object"}}`)
	})
	store := newTestStore(t, handler)

	ok, err := store.Exists(context.Background(), "articles/present.html")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Exists(context.Background(), "articles/absent.html")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListStripsPrefix(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "harvest/articles/", r.URL.Query().Get("prefix"))
		fmt.Fprintln(w, `{"items":[{"name":"harvest/articles/a.html"},{"name":"harvest/articles/b.html"}]}`)
	})
	store := newTestStore(t, handler)

	keys, err := store.List(context.Background(), "articles/")
	require.NoError(t, err)
	assert.Equal(t, []string{"articles/a.html", "articles/b.html"}, keys)
}

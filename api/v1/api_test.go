package v1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync/atomic"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/prasetia/go-upload-cache/api/v1"
	"github.com/prasetia/go-upload-cache/cache"
	"github.com/prasetia/go-upload-cache/store"
	"github.com/prasetia/go-upload-cache/store/memory"
)

func newRouter(c v1.Controller) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/api/v1/files", c.Upload()).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/files/{file_id}", c.Head()).Methods(http.MethodHead)
	router.HandleFunc("/api/v1/files/{file_id}", c.Get()).Methods(http.MethodGet)
	return router
}

func multipartBody(t *testing.T, filename, mime string, data []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", mime)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUpload(t *testing.T) {
	t.Run("a multipart upload is persisted and answered with 201 and a Location header", func(t *testing.T) {
		s := memory.NewStore()
		ctrl := v1.NewController(s, cache.NewLookup(s))
		router := newRouter(ctrl)

		body, contentType := multipartBody(t, "a.txt", "text/plain", []byte{1, 2, 3})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/files", body)
		req.Header.Set("Content-Type", contentType)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, "/api/v1/files/1", w.Header().Get("Location"))

		var resp struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
			Mime string `json:"mime"`
			Size int64  `json:"size"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.EqualValues(t, 1, resp.ID)
		assert.Equal(t, "a.txt", resp.Name)
		assert.Equal(t, "text/plain", resp.Mime)
		assert.EqualValues(t, 3, resp.Size)

		f, err := s.Get(context.Background(), resp.ID)
		require.NoError(t, err)
		assert.Equal(t, []byte{1, 2, 3}, f.Data)
	})

	t.Run("a request without a file part is rejected with 400", func(t *testing.T) {
		s := memory.NewStore()
		ctrl := v1.NewController(s, cache.NewLookup(s))
		router := newRouter(ctrl)

		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField("name", "a.txt"))
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/files", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHead(t *testing.T) {
	t.Run("an uploaded file answers 204", func(t *testing.T) {
		s := memory.NewStore()
		f, err := s.Create(context.Background(), "a.txt", "text/plain", []byte{1})
		require.NoError(t, err)

		ctrl := v1.NewController(s, cache.NewLookup(s))
		router := newRouter(ctrl)

		req := httptest.NewRequest(http.MethodHead, "/api/v1/files/1", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.EqualValues(t, 1, f.ID)
	})

	t.Run("a missing file answers 404", func(t *testing.T) {
		s := memory.NewStore()
		ctrl := v1.NewController(s, cache.NewLookup(s))
		router := newRouter(ctrl)

		req := httptest.NewRequest(http.MethodHead, "/api/v1/files/42", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("a non-numeric id answers 404", func(t *testing.T) {
		s := memory.NewStore()
		ctrl := v1.NewController(s, cache.NewLookup(s))
		router := newRouter(ctrl)

		req := httptest.NewRequest(http.MethodHead, "/api/v1/files/abc", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestGetFile(t *testing.T) {
	t.Run("serves the stored payload with its content type and filename", func(t *testing.T) {
		s := memory.NewStore()
		_, err := s.Create(context.Background(), "a.txt", "text/plain", []byte{1, 2, 3})
		require.NoError(t, err)

		ctrl := v1.NewController(s, cache.NewLookup(s))
		router := newRouter(ctrl)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/files/1", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
		assert.Equal(t, `attachment; filename="a.txt"`, w.Header().Get("Content-Disposition"))
		assert.Equal(t, []byte{1, 2, 3}, w.Body.Bytes())
	})

	t.Run("a missing file answers 404 with a JSON error", func(t *testing.T) {
		s := memory.NewStore()
		ctrl := v1.NewController(s, cache.NewLookup(s))
		router := newRouter(ctrl)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/files/42", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		assert.JSONEq(t, `{"message":"file not found"}`, w.Body.String())
	})

	t.Run("a repeated fetch is served from the cache without a second store call", func(t *testing.T) {
		s := &countingStore{
			inner: memory.NewStore(),
		}
		_, err := s.Create(context.Background(), "a.txt", "text/plain", []byte{1, 2, 3})
		require.NoError(t, err)

		ctrl := v1.NewController(s, cache.NewLookup(s))
		router := newRouter(ctrl)

		for i := 0; i < 2; i++ {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/files/1", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, []byte{1, 2, 3}, w.Body.Bytes())
		}
		assert.EqualValues(t, 1, s.getCalls.Load())
	})
}

// countingStore decorates a real store with call counters.
type countingStore struct {
	inner    store.Store
	getCalls atomic.Int64
}

func (s *countingStore) Exists(ctx context.Context, id int64) (bool, error) {
	return s.inner.Exists(ctx, id)
}

func (s *countingStore) Get(ctx context.Context, id int64) (store.File, error) {
	s.getCalls.Add(1)
	return s.inner.Get(ctx, id)
}

func (s *countingStore) Create(ctx context.Context, name, mime string, data []byte) (store.File, error) {
	return s.inner.Create(ctx, name, mime, data)
}

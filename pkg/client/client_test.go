package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rmax-ai/readgraph/pkg/analytics"
	"github.com/rmax-ai/readgraph/pkg/viewer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Ping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/health", r.URL.Path)
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	st, err := NewClient(srv.URL).Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", st.Status)
}

func TestClient_OpenDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var req OpenRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 12, req.Layout.PageCount)
		json.NewEncoder(w).Encode(Document{OwnerID: req.OwnerID, DocumentID: req.DocumentID, SessionState: "idle"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.OpenDocument(context.Background(), OpenRequest{OwnerID: "alice"})
	assert.Error(t, err)

	d, err := c.OpenDocument(context.Background(), OpenRequest{
		OwnerID: "alice", DocumentID: "paper", Layout: viewer.Metrics{PageHeight: 800, PageCount: 12},
	})
	require.NoError(t, err)
	assert.Equal(t, "paper", d.DocumentID)
	assert.Equal(t, "idle", d.SessionState)
}

func TestClient_AnalyticsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch r.URL.Path {
		case "/v1/analytics/documents":
			assert.Equal(t, "a,b", q.Get("documents"))
			assert.Equal(t, "alice", q.Get("users"))
			w.Write([]byte(`{"documents":[{"documentId":"a","userCount":1}]}`))
		case "/v1/analytics/purposes":
			assert.Equal(t, "a", q.Get("document"))
			assert.Equal(t, "alice", q.Get("owner"))
			w.Write([]byte(`{"purposes":[{"purposeId":"p1","title":"Methods"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	sel := analytics.Selection{DocumentIDs: []string{"a", "b"}, UserIDs: []string{"alice"}}
	docs, err := c.Documents(context.Background(), sel)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, 1, docs[0].UserCount)

	ps, err := c.Purposes(context.Background(), "a", "alice", analytics.Selection{})
	require.NoError(t, err)
	require.Len(t, ps, 1)
	assert.Equal(t, "Methods", ps[0].Title)
}

func TestClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":"no_document_open","reason":"no document open"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).ExportArchive(context.Background(), true)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "no_document_open", apiErr.Code)
	assert.False(t, apiErr.Temporary())
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"timelines":[{"ownerId":"alice","documentId":"a","totalMs":500}]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	c.SetRetry(3, ConstantBackoff(time.Millisecond))
	tl, err := c.Timeline(context.Background(), analytics.Selection{})
	require.NoError(t, err)
	require.Len(t, tl, 1)
	assert.Equal(t, int64(500), tl[0].TotalMs)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	c.SetRetry(3, ConstantBackoff(time.Millisecond))
	_, err := c.Users(context.Background(), "", analytics.Selection{})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Bad Request", apiErr.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_ReportAndArchive(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/reports":
			assert.Equal(t, "users", r.URL.Query().Get("type"))
			assert.Equal(t, "a", r.URL.Query().Get("document"))
			w.Write([]byte("document_id,owner_id\na,alice\n"))
		case "/v1/archive":
			assert.Equal(t, "false", r.URL.Query().Get("document"))
			w.Write([]byte("PK"))
		case "/v1/archive/import":
			require.NoError(t, r.ParseMultipartForm(1<<20))
			files := r.MultipartForm.File["archives"]
			require.Len(t, files, 2)
			f, err := files[1].Open()
			require.NoError(t, err)
			data, _ := io.ReadAll(f)
			assert.Equal(t, "two", string(data))
			w.Write([]byte(`{"merged":{"highlights":4},"stats":[],"documentStored":true}`))
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	out, err := c.Report(context.Background(), ReportOptions{Type: "users", DocumentID: "a"})
	require.NoError(t, err)
	assert.Contains(t, string(out), "a,alice")

	var buf bytes.Buffer
	require.NoError(t, c.DownloadArchive(context.Background(), &buf, false))
	assert.Equal(t, "PK", buf.String())

	_, err = c.ImportArchives(context.Background())
	assert.Error(t, err)

	res, err := c.ImportArchives(context.Background(),
		ArchiveFile{Name: "one.zip", Data: []byte("one")},
		ArchiveFile{Name: "two.zip", Data: []byte("two")},
	)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Merged.Highlights)
	assert.True(t, res.DocumentStored)
}

func TestClient_Suggest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("refresh"))
		var req SuggestRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "abstract", req.Text)
		w.Write([]byte(`{"readingProgress":"start with the intro","readingGoals":[{"goalName":"Scope"}]}`))
	}))
	defer srv.Close()

	s, err := NewClient(srv.URL).Suggest(context.Background(), SuggestRequest{Text: "abstract"}, true)
	require.NoError(t, err)
	assert.Equal(t, "start with the intro", s.ReadingProgress)
	require.Len(t, s.ReadingGoals, 1)
	assert.Equal(t, "Scope", s.ReadingGoals[0].GoalName)
}

package client

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runClientCmd(t *testing.T, serverURL string, args ...string) (string, error) {
	t.Helper()
	useTempConfigDir(t)
	t.Setenv(envAPIKey, "")
	t.Setenv(envAPIURL, "")

	root := &cobra.Command{Use: "docingest", SilenceUsage: true, SilenceErrors: true}
	root.PersistentFlags().Bool("output", false, "Output as JSON")
	root.PersistentFlags().String("api-key", "", "API key")
	root.PersistentFlags().String("api-url", "", "API URL")
	root.AddCommand(UploadCmd(), ListCmd(), GetCmd(), ChunksCmd(), DownloadCmd(), DeleteCmd(), QueryCmd(), WhoamiCmd(), LoginCmd(), LogoutCmd())

	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append(args, "--api-key", testAPIKey, "--api-url", serverURL))

	err := root.Execute()
	return stdout.String(), err
}

func TestListCmd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeData(t, w, http.StatusOK, []Document{
			{ID: "doc-1", Filename: "handbook.pdf", FileType: ".pdf", SizeBytes: 2048, ChunkCount: 4, UploadedBy: "hr"},
		})
	}))
	defer srv.Close()

	t.Run("table", func(t *testing.T) {
		out, err := runClientCmd(t, srv.URL, "list")
		require.NoError(t, err)
		assert.Contains(t, out, "handbook.pdf")
		assert.Contains(t, out, "2.0 KiB")
		assert.Contains(t, out, "1 document(s)")
	})

	t.Run("json", func(t *testing.T) {
		out, err := runClientCmd(t, srv.URL, "list", "--output")
		require.NoError(t, err)

		var docs []Document
		require.NoError(t, json.Unmarshal([]byte(out), &docs))
		require.Len(t, docs, 1)
		assert.Equal(t, "doc-1", docs[0].ID)
	})
}

func TestListCmd_Empty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeData(t, w, http.StatusOK, []Document{})
	}))
	defer srv.Close()

	out, err := runClientCmd(t, srv.URL, "list", "--output")
	require.NoError(t, err)
	assert.JSONEq(t, "[]", out)
}

func TestUploadCmd_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.md")
	require.NoError(t, os.WriteFile(path, []byte("# Leave policy\n\nTwenty days."), 0o600))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "alice", r.FormValue("uploaded_by"))
		writeData(t, w, http.StatusCreated, Document{ID: "doc-9", Filename: "policy.md", FileType: ".md", ChunkCount: 1})
	}))
	defer srv.Close()

	out, err := runClientCmd(t, srv.URL, "upload", path, "--uploaded-by", "alice", "--output")
	require.NoError(t, err)

	var doc Document
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "doc-9", doc.ID)
}

func TestUploadCmd_MissingFile(t *testing.T) {
	_, err := runClientCmd(t, "http://127.0.0.1:0", "upload", filepath.Join(t.TempDir(), "missing.pdf"))
	assert.ErrorContains(t, err, "failed to stat file")
}

func TestChunksCmd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/documents/doc-1/chunks", r.URL.Path)
		writeData(t, w, http.StatusOK, []Chunk{
			{ID: "c0", ChunkIndex: 0, Text: "First   chunk\ntext", EmbeddingSource: "model"},
			{ID: "c1", ChunkIndex: 1, Text: "Second chunk", EmbeddingSource: "hash"},
		})
	}))
	defer srv.Close()

	out, err := runClientCmd(t, srv.URL, "chunks", "doc-1")
	require.NoError(t, err)
	assert.Contains(t, out, "[0] c0 (model)")
	assert.Contains(t, out, "First chunk text")
	assert.Contains(t, out, "[1] c1 (hash)")
}

func TestDeleteCmd(t *testing.T) {
	t.Run("deleted", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"message":"Document deleted successfully"}`))
		}))
		defer srv.Close()

		out, err := runClientCmd(t, srv.URL, "delete", "doc-1")
		require.NoError(t, err)
		assert.Contains(t, out, "Document deleted successfully")
	})

	t.Run("not found", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"Document not found"}`))
		}))
		defer srv.Close()

		_, err := runClientCmd(t, srv.URL, "rm", "doc-404")
		assert.EqualError(t, err, "document doc-404 not found")
	})
}

func TestQueryCmd(t *testing.T) {
	var got QueryRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeData(t, w, http.StatusOK, QueryResult{
			Answer:     "Employees get twenty days.",
			Confidence: 0.72,
			Sources:    []Source{{DocumentID: "doc-1", Filename: "handbook.pdf", ChunkIndex: 3, CombinedScore: 0.72}},
		})
	}))
	defer srv.Close()

	out, err := runClientCmd(t, srv.URL, "query", "how many", "vacation days?", "--doc", "doc-1", "--doc", "doc-2", "-k", "3")
	require.NoError(t, err)

	assert.Equal(t, "how many vacation days?", got.Question)
	assert.Equal(t, []string{"doc-1", "doc-2"}, got.DocumentIDs)
	assert.Equal(t, 3, got.TopK)
	assert.Contains(t, out, "Employees get twenty days.")
	assert.Contains(t, out, "0.72")
	assert.Contains(t, out, "handbook.pdf")
}

func TestQueryCmd_NegativeTopK(t *testing.T) {
	_, err := runClientCmd(t, "http://127.0.0.1:0", "query", "leave?", "--top-k", "-1")
	assert.ErrorContains(t, err, "--top-k")
}

func TestDownloadCmd(t *testing.T) {
	payload := []byte("original handbook bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/documents/doc-1":
			writeData(t, w, http.StatusOK, Document{ID: "doc-1", Filename: "handbook.txt", SizeBytes: int64(len(payload))})
		case "/api/documents/doc-1/download":
			_, _ = w.Write(payload)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "copy.txt")
	out, err := runClientCmd(t, srv.URL, "download", "doc-1", "-o", dest)
	require.NoError(t, err)
	assert.Contains(t, out, "Saved")

	saved, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, payload, saved)
}

func TestWhoamiCmd_JSON(t *testing.T) {
	out, err := runClientCmd(t, "http://hr.example.com", "whoami", "--output")
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "http://hr.example.com", got["api_url"])
	assert.Equal(t, string(SourceFlag), got["source"])
	assert.NotEqual(t, testAPIKey, got["api_key"])
	assert.Contains(t, got["api_key"], "hrk_0123")
}

func TestLoginCmd_SavesVerifiedCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeData(t, w, http.StatusOK, []Document{})
	}))
	defer srv.Close()

	_, err := runClientCmd(t, srv.URL, "login")
	require.NoError(t, err)

	cfg, err := LoadGlobalConfig()
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, testAPIKey, cfg.APIKey)
	assert.Equal(t, srv.URL, cfg.APIURL)
}

func TestLoginCmd_RejectedKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid API key"}`))
	}))
	defer srv.Close()

	_, err := runClientCmd(t, srv.URL, "login")
	assert.ErrorContains(t, err, "failed to verify credentials")

	cfg, err := LoadGlobalConfig()
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KiB", formatBytes(1536))
	assert.Equal(t, "3.0 MiB", formatBytes(3<<20))
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "a b c", snippet("a\n b\t c", 10))
	assert.Equal(t, "héllo…", snippet("héllo world", 5))
}

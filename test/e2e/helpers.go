//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/hrplatform/docingest/internal/api/handlers"
	"github.com/hrplatform/docingest/internal/embedding"
	"github.com/hrplatform/docingest/internal/extract"
	"github.com/hrplatform/docingest/internal/logging"
	"github.com/hrplatform/docingest/internal/openai"
	"github.com/hrplatform/docingest/internal/repository"
	"github.com/hrplatform/docingest/internal/server"
	"github.com/hrplatform/docingest/internal/service"
	"github.com/hrplatform/docingest/internal/storage"
	"github.com/hrplatform/docingest/internal/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
)

const maxUploadBytes = 5 << 20

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	PostgresC    *testutil.PostgresContainer
	RustFSC      *testutil.RustFSContainer
	Pool         *pgxpool.Pool
	Auth         *service.AuthService
	ServerURL    string
	ServerCloser func()
	BinaryDir    string
	CompanyID    string
	APIKey       string
	HTTPClient   *http.Client
}

// SetupE2EEnv starts Postgres and RustFS containers and an API server backed
// by them. Embeddings use the deterministic fallback, so no model is needed.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pgC)

	store, err := storage.NewS3Store(ctx, storage.S3Config{
		Endpoint:        s3C.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     testutil.RustFSAccessKey,
		SecretAccessKey: testutil.RustFSSecretKey,
		Bucket:          "e2e-documents",
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create S3 store: %v", err)
	}
	if err := store.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}

	auth := service.NewAuthService(repository.NewCompanyRepository(pool), repository.NewAPIKeyRepository(pool), &service.DefaultUUIDGenerator{})
	serverURL, serverCloser := startServer(t, pool, store, auth, port)

	return &E2ETestEnv{
		T:            t,
		Ctx:          ctx,
		PostgresC:    pgC,
		RustFSC:      s3C,
		Pool:         pool,
		Auth:         auth,
		ServerURL:    serverURL,
		ServerCloser: serverCloser,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.ServerCloser != nil {
		e.ServerCloser()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.RustFSC != nil {
		e.RustFSC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
	if e.BinaryDir != "" {
		os.RemoveAll(e.BinaryDir)
	}
}

// Bootstrap creates a company and API key the way `docingestd company create`
// and `docingestd apikey create` do.
func (e *E2ETestEnv) Bootstrap(name string) (companyID, apiKey string) {
	company, err := e.Auth.CreateCompany(e.Ctx, name)
	if err != nil {
		e.T.Fatalf("failed to create company: %v", err)
	}

	token, err := e.Auth.CreateAPIKey(e.Ctx, company.ID, "e2e")
	if err != nil {
		e.T.Fatalf("failed to create API key: %v", err)
	}

	if e.CompanyID == "" {
		e.CompanyID = company.ID
		e.APIKey = token
	}
	return company.ID, token
}

// BuildBinaries builds the docingest client binary.
func (e *E2ETestEnv) BuildBinaries() {
	tmpDir, err := os.MkdirTemp("", "docingest-e2e-*")
	if err != nil {
		e.T.Fatalf("failed to create temp dir: %v", err)
	}
	e.BinaryDir = tmpDir

	cmd := exec.Command("go", "build", "-o", filepath.Join(tmpDir, "docingest"), "./cmd/docingest")
	cmd.Dir = "../.."
	if out, err := cmd.CombinedOutput(); err != nil {
		e.T.Fatalf("failed to build docingest: %v\n%s", err, out)
	}
}

// RunCLI runs the docingest client against the test server.
func (e *E2ETestEnv) RunCLI(workDir string, args ...string) (string, error) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, "docingest"), args...)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("DOCINGEST_API_KEY=%s", e.APIKey),
		fmt.Sprintf("DOCINGEST_API_URL=%s", e.ServerURL),
		"XDG_CONFIG_HOME="+workDir,
		"HOME="+workDir,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		return stdout.String() + stderr.String(), err
	}
	return stdout.String(), nil
}

// APIResponse represents a standard API response
type APIResponse struct {
	StatusCode int
	Data       json.RawMessage `json:"data"`
	Message    string          `json:"message,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// Get performs a GET request
func (e *E2ETestEnv) Get(path, apiKey string) (*APIResponse, error) {
	return e.doRequest(http.MethodGet, path, nil, apiKey)
}

// Post performs a POST request with a JSON body
func (e *E2ETestEnv) Post(path string, body any, apiKey string) (*APIResponse, error) {
	return e.doRequest(http.MethodPost, path, body, apiKey)
}

// Delete performs a DELETE request
func (e *E2ETestEnv) Delete(path, apiKey string) (*APIResponse, error) {
	return e.doRequest(http.MethodDelete, path, nil, apiKey)
}

func (e *E2ETestEnv) doRequest(method, path string, body any, apiKey string) (*APIResponse, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, e.ServerURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return e.send(req, apiKey)
}

// Upload posts content as a multipart document upload.
func (e *E2ETestEnv) Upload(filename string, content []byte, uploadedBy, apiKey string) (*APIResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if uploadedBy != "" {
		if err := mw.WriteField("uploaded_by", uploadedBy); err != nil {
			return nil, err
		}
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(content); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, e.ServerURL+"/api/documents/upload", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	return e.send(req, apiKey)
}

func (e *E2ETestEnv) send(req *http.Request, apiKey string) (*APIResponse, error) {
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	apiResp := APIResponse{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		if resp.StatusCode >= 400 {
			return &apiResp, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
		}
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return &apiResp, fmt.Errorf("HTTP %d: %s", resp.StatusCode, apiResp.Error)
	}

	return &apiResp, nil
}

// Download fetches a URL, attaching the API key when one is given.
func (e *E2ETestEnv) Download(url, apiKey string) ([]byte, http.Header, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, err
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.Header, fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	return data, resp.Header, err
}

// SHA256Sum calculates SHA256 hash of data
func SHA256Sum(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

func startServer(t *testing.T, pool *pgxpool.Pool, store storage.FileStore, auth *service.AuthService, port int) (string, func()) {
	logger := logging.Discard()

	docRepo := repository.NewDocumentRepository(pool)
	chunkRepo := repository.NewChunkRepository(pool)
	embedder := embedding.NewFallbackEmbedder(nil, logger)

	ingestCfg := service.DefaultIngestionConfig()
	ingestCfg.MaxUploadBytes = maxUploadBytes
	ingestCfg.MinTextChars = 20

	ingestion := service.NewIngestionService(store, extract.New(), embedder, repository.NewTxRunner(pool),
		&service.DefaultUUIDGenerator{}, ingestCfg, logger)
	documents := service.NewDocumentService(docRepo, chunkRepo, store, logger)
	query := service.NewQueryService(docRepo, chunkRepo, embedder, nil, openai.NewEstimatingTokenCounter(),
		service.DefaultQueryConfig(), logger)

	router := server.NewRouter(server.RouterConfig{
		AuthValidator:   auth,
		DocumentHandler: handlers.NewDocumentHandler(documents, ingestion, query, logger),
		Logger:          logger,
		MaxUploadBytes:  maxUploadBytes,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.Logf("server error: %v", err)
		}
	}()

	serverURL := fmt.Sprintf("http://localhost:%d", port)
	waitForServer(t, serverURL, 10*time.Second)

	return serverURL, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server did not start within %v", timeout)
}

func getFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const (
	requestTimeout = 2 * time.Minute
	uploadTimeout  = 30 * time.Minute
)

type APIClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewAPIClientWithCmd resolves credentials from the command's --api-key and
// --api-url flags, then the environment (a .env file is loaded first), then
// the global config file.
func NewAPIClientWithCmd(cmd *cobra.Command) (*APIClient, error) {
	_ = godotenv.Load()

	var flagKey, flagURL string
	if cmd != nil {
		flagKey, _ = cmd.Flags().GetString("api-key")
		flagURL, _ = cmd.Flags().GetString("api-url")
	}

	creds, err := ResolveCredentials(flagKey, flagURL)
	if err != nil {
		return nil, err
	}
	if creds.APIKey == "" {
		return nil, fmt.Errorf("%s not set (run 'docingest login' or set the environment variable)", envAPIKey)
	}
	if !IsValidAPIKey(creds.APIKey) {
		return nil, errors.New("invalid API key format (expected hrk_<64 hex chars>)")
	}

	return NewAPIClientWithConfig(creds.APIKey, creds.APIURL), nil
}

// NewAPIClientWithConfig creates an APIClient with explicit credentials.
func NewAPIClientWithConfig(apiKey, baseURL string) *APIClient {
	return &APIClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
}

// APIResponse is the server's response envelope.
type APIResponse struct {
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Get performs a GET request.
func (c *APIClient) Get(ctx context.Context, path string) (*APIResponse, error) {
	return c.do(ctx, http.MethodGet, path, nil)
}

// Post performs a POST request with a JSON body.
func (c *APIClient) Post(ctx context.Context, path string, body any) (*APIResponse, error) {
	return c.do(ctx, http.MethodPost, path, body)
}

// Delete performs a DELETE request.
func (c *APIClient) Delete(ctx context.Context, path string) (*APIResponse, error) {
	return c.do(ctx, http.MethodDelete, path, nil)
}

func (c *APIClient) do(ctx context.Context, method, path string, body any) (*APIResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.send(req)
}

func (c *APIClient) send(req *http.Request) (*APIResponse, error) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var apiResp APIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		if resp.StatusCode >= 400 {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(respBody))}
		}
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if resp.StatusCode >= 400 {
		msg := apiResp.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	return &apiResp, nil
}

func decodeData[T any](resp *APIResponse) (T, error) {
	var out T
	if err := json.Unmarshal(resp.Data, &out); err != nil {
		return out, fmt.Errorf("failed to parse response: %w", err)
	}
	return out, nil
}

// ListDocuments returns the company's documents.
func (c *APIClient) ListDocuments(ctx context.Context) ([]Document, error) {
	resp, err := c.Get(ctx, "/api/documents")
	if err != nil {
		return nil, err
	}
	return decodeData[[]Document](resp)
}

// GetDocument returns a single document with its download link when available.
func (c *APIClient) GetDocument(ctx context.Context, id string) (*Document, error) {
	resp, err := c.Get(ctx, "/api/documents/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	return decodeData[*Document](resp)
}

// ListChunks returns a document's chunks in order.
func (c *APIClient) ListChunks(ctx context.Context, id string) ([]Chunk, error) {
	resp, err := c.Get(ctx, "/api/documents/"+url.PathEscape(id)+"/chunks")
	if err != nil {
		return nil, err
	}
	return decodeData[[]Chunk](resp)
}

// DeleteDocument deletes a document and returns the server's confirmation.
func (c *APIClient) DeleteDocument(ctx context.Context, id string) (string, error) {
	resp, err := c.Delete(ctx, "/api/documents/"+url.PathEscape(id))
	if err != nil {
		return "", err
	}
	return resp.Message, nil
}

// Query asks a question against the company's documents.
func (c *APIClient) Query(ctx context.Context, req QueryRequest) (*QueryResult, error) {
	resp, err := c.Post(ctx, "/api/documents/query", req)
	if err != nil {
		return nil, err
	}
	return decodeData[*QueryResult](resp)
}

// ProgressFunc reports bytes transferred so far.
type ProgressFunc func(current, total int64)

type progressReader struct {
	reader     io.Reader
	total      int64
	current    int64
	onProgress ProgressFunc
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	pr.current += int64(n)
	if pr.onProgress != nil && n > 0 {
		pr.onProgress(pr.current, pr.total)
	}
	return n, err
}

// UploadDocument streams the file at path as multipart/form-data without
// buffering it in memory.
func (c *APIClient) UploadDocument(ctx context.Context, path, uploadedBy string, onProgress ProgressFunc) (*Document, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if stat.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		body := &progressReader{reader: file, total: stat.Size(), onProgress: onProgress}
		pw.CloseWithError(writeUploadForm(mw, filepath.Base(path), uploadedBy, body))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/documents/upload", pr)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.send(req)
	// Unblocks the writer goroutine if the server answered before reading the body.
	pr.Close()
	if err != nil {
		return nil, err
	}
	return decodeData[*Document](resp)
}

func writeUploadForm(mw *multipart.Writer, filename, uploadedBy string, body io.Reader) error {
	if uploadedBy != "" {
		if err := mw.WriteField("uploaded_by", uploadedBy); err != nil {
			return err
		}
	}

	contentType := mime.TypeByExtension(filepath.Ext(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{
		"name":     "file",
		"filename": filename,
	}))
	h.Set("Content-Type", contentType)

	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, body); err != nil {
		return err
	}
	return mw.Close()
}

// DownloadDocument writes the original file to w.
func (c *APIClient) DownloadDocument(ctx context.Context, id string, w io.Writer, onProgress ProgressFunc) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/documents/"+url.PathEscape(id)+"/download", nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		var apiResp APIResponse
		msg := string(bytes.TrimSpace(body))
		if json.Unmarshal(body, &apiResp) == nil && apiResp.Error != "" {
			msg = apiResp.Error
		}
		return 0, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	var reader io.Reader = resp.Body
	if onProgress != nil {
		reader = &progressReader{reader: resp.Body, total: resp.ContentLength, onProgress: onProgress}
	}

	n, err := io.Copy(w, reader)
	if err != nil {
		return n, fmt.Errorf("failed to write file: %w", err)
	}
	return n, nil
}

// DownloadFilename extracts the attachment filename from a document, falling
// back to its id.
func DownloadFilename(doc *Document) string {
	if doc != nil && doc.Filename != "" {
		return filepath.Base(doc.Filename)
	}
	if doc != nil {
		return doc.ID
	}
	return "download"
}

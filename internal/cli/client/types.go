package client

// Document mirrors the server's document representation.
type Document struct {
	ID          string `json:"id"`
	CompanyID   string `json:"company_id"`
	Filename    string `json:"filename"`
	FileType    string `json:"file_type"`
	ContentType string `json:"content_type,omitempty"`
	SizeBytes   int64  `json:"size_bytes"`
	SHA256      string `json:"sha256"`
	UploadedBy  string `json:"uploaded_by"`
	ChunkCount  int    `json:"chunk_count"`
	CreatedAt   string `json:"created_at"`
	DownloadURL string `json:"download_url,omitempty"`
}

type Chunk struct {
	ID              string `json:"id"`
	ChunkIndex      int    `json:"chunk_index"`
	Text            string `json:"text"`
	EmbeddingSource string `json:"embedding_source"`
}

type QueryRequest struct {
	Question    string   `json:"question"`
	DocumentIDs []string `json:"document_ids,omitempty"`
	TopK        int      `json:"top_k,omitempty"`
}

type Source struct {
	DocumentID    string  `json:"document_id"`
	Filename      string  `json:"filename"`
	ChunkIndex    int     `json:"chunk_index"`
	Similarity    float64 `json:"similarity"`
	KeywordScore  float64 `json:"keyword_score"`
	CombinedScore float64 `json:"combined_score"`
}

type QueryResult struct {
	Answer     string   `json:"answer"`
	Sources    []Source `json:"sources"`
	Confidence float64  `json:"confidence"`
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/hrplatform/docingest/internal/domain"
	"github.com/hrplatform/docingest/internal/openai"
	"github.com/hrplatform/docingest/internal/telemetry"
)

const (
	semanticWeight = 0.7
	keywordWeight  = 0.3

	answerTemperature = 0.3
	// confidenceAnswerLength is the answer length that earns full confidence.
	confidenceAnswerLength = 200.0

	NoResultsAnswer = "No relevant information found in documents."

	answerSystemPrompt = "You are a helpful assistant that answers questions based on provided document context. " +
		"Always cite which document chunk you used. If the context doesn't contain the answer, say so clearly."
)

// AnswerClient generates chat completions. *openai.Client implements it.
type AnswerClient interface {
	Complete(ctx context.Context, messages []openai.Message, temperature float32) (string, error)
}

// TokenCounter measures and trims context. *openai.TokenCounter implements it.
type TokenCounter interface {
	Count(text string) int
	Truncate(text string, maxTokens int) string
}

type QueryConfig struct {
	TopK             int
	MaxContextTokens int
}

func DefaultQueryConfig() QueryConfig {
	return QueryConfig{TopK: 5, MaxContextTokens: 3000}
}

type QueryInput struct {
	CompanyID   string
	Question    string
	DocumentIDs []string
	TopK        int
}

// Source is one retrieved chunk cited by an answer.
type Source struct {
	DocumentID    string  `json:"document_id"`
	Filename      string  `json:"filename"`
	ChunkIndex    int     `json:"chunk_index"`
	Similarity    float64 `json:"similarity"`
	KeywordScore  float64 `json:"keyword_score"`
	CombinedScore float64 `json:"combined_score"`
}

type QueryOutput struct {
	Answer     string   `json:"answer"`
	Sources    []Source `json:"sources"`
	Confidence float64  `json:"confidence"`
}

type rankedChunk struct {
	match    *domain.ChunkMatch
	semantic bool
	keyword  float64
	combined float64
}

// QueryService answers questions from a company's documents.
type QueryService struct {
	docs     DocumentRepository
	chunks   ChunkRepository
	embedder ChunkEmbedder
	chat     AnswerClient
	tokens   TokenCounter
	cfg      QueryConfig
	logger   *slog.Logger
}

// NewQueryService builds a QueryService. chat may be nil, in which case
// answers report that AI is unavailable but sources are still returned.
func NewQueryService(
	docs DocumentRepository,
	chunks ChunkRepository,
	embedder ChunkEmbedder,
	chat AnswerClient,
	tokens TokenCounter,
	cfg QueryConfig,
	logger *slog.Logger,
) *QueryService {
	if logger == nil {
		logger = slog.Default()
	}
	if tokens == nil {
		tokens = openai.NewEstimatingTokenCounter()
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultQueryConfig().TopK
	}
	if cfg.MaxContextTokens <= 0 {
		cfg.MaxContextTokens = DefaultQueryConfig().MaxContextTokens
	}
	return &QueryService{
		docs:     docs,
		chunks:   chunks,
		embedder: embedder,
		chat:     chat,
		tokens:   tokens,
		cfg:      cfg,
		logger:   logger.With("component", "query"),
	}
}

func (s *QueryService) Ask(ctx context.Context, in QueryInput) (*QueryOutput, error) {
	ctx, span := telemetry.StartSpan(ctx, "QueryService.Ask", telemetry.SpanAttributes{
		CompanyID: in.CompanyID,
		Operation: "query",
	})
	defer span.End()

	question := strings.TrimSpace(in.Question)
	if question == "" {
		return nil, domain.ErrEmptyQuestion
	}
	topK := in.TopK
	if topK <= 0 {
		topK = s.cfg.TopK
	}

	started := time.Now()
	log := s.logger.With("company_id", in.CompanyID)

	docIDs := in.DocumentIDs
	if len(docIDs) > 0 {
		owned, err := s.docs.GetByIDs(ctx, in.CompanyID, docIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve document filter: %w", err)
		}
		if len(owned) == 0 {
			return noResults(), nil
		}
		docIDs = make([]string, len(owned))
		for i, d := range owned {
			docIDs[i] = d.ID
		}
	}

	ranked, err := s.search(ctx, in.CompanyID, question, docIDs, topK)
	if err != nil {
		return nil, err
	}
	if len(ranked) == 0 {
		log.Info("query returned no results", "elapsed_ms", time.Since(started).Milliseconds())
		return noResults(), nil
	}

	out := &QueryOutput{Sources: make([]Source, len(ranked))}
	for i, r := range ranked {
		out.Sources[i] = Source{
			DocumentID:    r.match.DocumentID,
			Filename:      r.match.Filename,
			ChunkIndex:    r.match.ChunkIndex,
			Similarity:    r.match.Similarity,
			KeywordScore:  r.keyword,
			CombinedScore: r.combined,
		}
	}

	out.Answer, out.Confidence = s.answer(ctx, question, s.buildContext(ranked))

	log.Info("query answered",
		"sources", len(out.Sources),
		"confidence", out.Confidence,
		"elapsed_ms", time.Since(started).Milliseconds(),
	)
	return out, nil
}

func noResults() *QueryOutput {
	return &QueryOutput{Answer: NoResultsAnswer, Sources: []Source{}, Confidence: 0}
}

// search merges semantic and keyword candidates into the top k chunks.
func (s *QueryService) search(ctx context.Context, companyID, question string, docIDs []string, topK int) ([]rankedChunk, error) {
	var queryVec []float32
	if results := s.embedder.EmbedWithSources(ctx, []string{question}); len(results) > 0 {
		queryVec = results[0].Vector
	}

	byID := make(map[string]*rankedChunk)
	var order []string

	if len(queryVec) == domain.EmbeddingDimensions {
		semantic, err := s.chunks.SearchSemantic(ctx, companyID, queryVec, docIDs, topK*2)
		if err != nil {
			return nil, fmt.Errorf("semantic search failed: %w", err)
		}
		for _, m := range semantic {
			if math.IsNaN(m.Similarity) || math.IsInf(m.Similarity, 0) {
				m.Similarity = 0
			}
			byID[m.ID] = &rankedChunk{match: m, semantic: true}
			order = append(order, m.ID)
		}
	}

	words := queryWords(question)
	keywordHits, err := s.chunks.SearchKeyword(ctx, companyID, words, docIDs, keywordCandidateLimit(topK))
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}
	for _, m := range keywordHits {
		if _, ok := byID[m.ID]; ok {
			continue
		}
		m.Similarity = 0
		byID[m.ID] = &rankedChunk{match: m}
		order = append(order, m.ID)
	}

	ranked := make([]rankedChunk, 0, len(order))
	for _, id := range order {
		r := byID[id]
		r.keyword = KeywordScore(words, r.match.Text)
		r.combined = semanticWeight*r.match.Similarity + keywordWeight*r.keyword
		// Keyword candidates come from a substring match; keep only real word hits.
		if !r.semantic && r.keyword == 0 {
			continue
		}
		ranked = append(ranked, *r)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].combined != ranked[j].combined {
			return ranked[i].combined > ranked[j].combined
		}
		return ranked[i].match.ChunkIndex < ranked[j].match.ChunkIndex
	})
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked, nil
}

func keywordCandidateLimit(topK int) int {
	return max(50, topK*10)
}

// queryWords returns the distinct lowercase whitespace-separated words of q.
func queryWords(q string) []string {
	seen := make(map[string]bool)
	var words []string
	for _, w := range strings.Fields(strings.ToLower(q)) {
		if !seen[w] {
			seen[w] = true
			words = append(words, w)
		}
	}
	return words
}

// KeywordScore is the fraction of query words that occur as whole
// whitespace-separated words of text, compared case-insensitively.
func KeywordScore(queryWords []string, text string) float64 {
	if len(queryWords) == 0 {
		return 0
	}
	chunkWords := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		chunkWords[w] = true
	}
	common := 0
	for _, w := range queryWords {
		if chunkWords[w] {
			common++
		}
	}
	return float64(common) / float64(len(queryWords))
}

// buildContext adds chunks in rank order while they fit the token budget.
// A first chunk larger than the budget is truncated rather than dropped.
func (s *QueryService) buildContext(ranked []rankedChunk) string {
	var (
		parts []string
		used  int
	)
	for i, r := range ranked {
		part := fmt.Sprintf("[Document Chunk %d]:\n%s", i+1, r.match.Text)
		n := s.tokens.Count(part)
		if used+n > s.cfg.MaxContextTokens {
			if len(parts) == 0 {
				parts = append(parts, s.tokens.Truncate(part, s.cfg.MaxContextTokens))
			}
			break
		}
		parts = append(parts, part)
		used += n
	}
	return strings.Join(parts, "\n\n")
}

func (s *QueryService) answer(ctx context.Context, question, contextText string) (string, float64) {
	if s.chat == nil {
		return domain.ErrAIDisabled.Message, 0
	}

	messages := []openai.Message{
		{Role: openai.RoleSystem, Content: answerSystemPrompt},
		{Role: openai.RoleUser, Content: fmt.Sprintf(
			"Context from documents:\n\n%s\n\nQuestion: %s\n\n"+
				"Provide a clear answer based on the context above. If the answer is not in the context, state that clearly.",
			contextText, question)},
	}

	answer, err := s.chat.Complete(ctx, messages, answerTemperature)
	if err != nil {
		if errors.Is(err, domain.ErrAIDisabled) {
			return domain.ErrAIDisabled.Message, 0
		}
		s.logger.Error("answer generation failed", "error", err)
		return fmt.Sprintf("Error generating answer: %v", err), 0
	}
	return answer, math.Min(1, float64(len(answer))/confidenceAnswerLength)
}

// Package pinecone grounds conversation answers in documents stored in a
// Pinecone index.
package pinecone

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/narrate/internal/logging"
	"github.com/aretw0/narrate/pkg/ports"
	"github.com/pinecone-io/go-pinecone/pinecone"
)

// Index is the part of a Pinecone index connection the knowledge base uses.
type Index interface {
	QueryByVectorValues(ctx context.Context, in *pinecone.QueryByVectorValuesRequest) (*pinecone.QueryVectorsResponse, error)
}

// Embedder turns a question into a query vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Knowledge implements ports.KnowledgeBase over a Pinecone index. Matches
// carry their source text in the "text" metadata field.
type Knowledge struct {
	index    Index
	embedder Embedder
	topK     int
	logger   *slog.Logger
}

var _ ports.KnowledgeBase = (*Knowledge)(nil)

// Option configures a Knowledge.
type Option func(*Knowledge)

// WithTopK sets how many matches are joined into the answer context. Default: 3.
func WithTopK(k int) Option {
	return func(kb *Knowledge) {
		if k > 0 {
			kb.topK = k
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(kb *Knowledge) { kb.logger = l }
}

// New creates a knowledge base over index.
func New(index Index, embedder Embedder, opts ...Option) *Knowledge {
	kb := &Knowledge{index: index, embedder: embedder, topK: 3, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(kb)
	}
	return kb
}

// Connect opens the index at host.
func Connect(apiKey, host, namespace string) (*pinecone.IndexConnection, error) {
	client, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create pinecone client: %w", err)
	}
	idx, err := client.Index(pinecone.NewIndexConnParams{Host: host, Namespace: namespace})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to index %s: %w", host, err)
	}
	return idx, nil
}

// Lookup returns the text of the closest matches, separated by blank lines.
func (k *Knowledge) Lookup(ctx context.Context, question string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", nil
	}
	vec, err := k.embedder.Embed(ctx, question)
	if err != nil {
		return "", fmt.Errorf("error vectorizing question: %w", err)
	}
	res, err := k.index.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vec,
		TopK:            uint32(k.topK),
		IncludeMetadata: true,
	})
	if err != nil {
		return "", fmt.Errorf("error querying pinecone index: %w", err)
	}

	var texts []string
	for _, m := range res.Matches {
		if m == nil || m.Vector == nil || m.Vector.Metadata == nil {
			continue
		}
		v, ok := m.Vector.Metadata.Fields["text"]
		if !ok {
			continue
		}
		if t := strings.TrimSpace(v.GetStringValue()); t != "" {
			texts = append(texts, t)
		}
	}
	k.logger.Debug("knowledge lookup", "matches", len(res.Matches), "used", len(texts))
	return strings.Join(texts, "\n\n"), nil
}

// HTTPEmbedder calls an OpenAI compatible embeddings endpoint.
type HTTPEmbedder struct {
	url    string
	model  string
	apiKey string
	client *http.Client
}

var _ Embedder = (*HTTPEmbedder)(nil)

// NewHTTPEmbedder creates an embedder posting to url.
func NewHTTPEmbedder(url, model, apiKey string, timeout time.Duration) *HTTPEmbedder {
	return &HTTPEmbedder{url: url, model: model, apiKey: apiKey, client: &http.Client{Timeout: timeout}}
}

// Embed implements Embedder.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(map[string]any{"input": text, "model": e.model})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embeddings endpoint returned status %d: %s", resp.StatusCode, raw)
	}
	var out struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode embeddings: %w", err)
	}
	if len(out.Data) == 0 || len(out.Data[0].Embedding) == 0 {
		return nil, errors.New("no embedding in response")
	}
	return out.Data[0].Embedding, nil
}

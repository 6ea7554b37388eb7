package pinecone

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
)

type fakeIndex struct {
	got *pinecone.QueryByVectorValuesRequest
	res *pinecone.QueryVectorsResponse
	err error
}

func (f *fakeIndex) QueryByVectorValues(_ context.Context, in *pinecone.QueryByVectorValuesRequest) (*pinecone.QueryVectorsResponse, error) {
	f.got = in
	return f.res, f.err
}

type staticEmbedder []float32

func (s staticEmbedder) Embed(context.Context, string) ([]float32, error) { return s, nil }

func match(t *testing.T, fields map[string]any) *pinecone.ScoredVector {
	t.Helper()
	md, err := structpb.NewStruct(fields)
	require.NoError(t, err)
	return &pinecone.ScoredVector{Vector: &pinecone.Vector{Id: "v", Metadata: md}}
}

func TestKnowledge_Lookup(t *testing.T) {
	idx := &fakeIndex{res: &pinecone.QueryVectorsResponse{Matches: []*pinecone.ScoredVector{
		match(t, map[string]any{"text": "The save button stores drafts."}),
		match(t, map[string]any{"title": "no text"}),
		{Vector: &pinecone.Vector{Id: "bare"}},
		match(t, map[string]any{"text": "Drafts sync every minute."}),
	}}}
	kb := New(idx, staticEmbedder{0.1, 0.2}, WithTopK(5))

	got, err := kb.Lookup(context.Background(), "How do I save?")
	require.NoError(t, err)
	assert.Equal(t, "The save button stores drafts.\n\nDrafts sync every minute.", got)
	assert.Equal(t, []float32{0.1, 0.2}, idx.got.Vector)
	assert.Equal(t, uint32(5), idx.got.TopK)
	assert.True(t, idx.got.IncludeMetadata)
}

func TestKnowledge_EmptyQuestion(t *testing.T) {
	idx := &fakeIndex{}
	got, err := New(idx, staticEmbedder{1}).Lookup(context.Background(), "  ")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Nil(t, idx.got)
}

func TestKnowledge_QueryError(t *testing.T) {
	idx := &fakeIndex{err: errors.New("unavailable")}
	_, err := New(idx, staticEmbedder{1}).Lookup(context.Background(), "Hi?")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unavailable")
}

func TestHTTPEmbedder(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "embed-small", body["model"])
		if body["input"] == "fail" {
			http.Error(w, "quota", http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"data":[{"embedding":[0.5,0.25]}]}`))
	}))
	defer ts.Close()

	e := NewHTTPEmbedder(ts.URL, "embed-small", "secret", time.Second)
	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.25}, vec)

	_, err = e.Embed(context.Background(), "fail")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

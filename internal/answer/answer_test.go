package answer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/fusion"
	"github.com/Adithya-Monish-Kumar-K/fusion-search/internal/retrieval"
	apperrors "github.com/Adithya-Monish-Kumar-K/fusion-search/pkg/errors"
)

type fakeModel struct {
	reply   string
	err     error
	prompt  string
	options llms.CallOptions
}

func (m *fakeModel) GenerateContent(_ context.Context, msgs []llms.MessageContent, opts ...llms.CallOption) (*llms.ContentResponse, error) {
	for _, o := range opts {
		o(&m.options)
	}
	for _, msg := range msgs {
		for _, part := range msg.Parts {
			if tp, ok := part.(llms.TextContent); ok {
				m.prompt += tp.Text
			}
		}
	}
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.reply}}}, nil
}

func (m *fakeModel) Call(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, opts...)
}

func output(path string, score float64, snippet string, chunks ...retrieval.Chunk) fusion.Output {
	return fusion.Output{Result: retrieval.Result{Path: path, Score: score, ContentSnippet: snippet, Chunks: chunks}}
}

func TestPrepareContextOrdersChunksAndNumbersThem(t *testing.T) {
	results := []fusion.Output{
		output("a.txt", 90, "", retrieval.Chunk{Content: "low", Score: 0.2}, retrieval.Chunk{Content: "high", Score: 0.9}),
		output("b.txt", 50, "snippet of b"),
	}

	text, used := PrepareContext(results, 2000)

	require.Len(t, used, 3)
	assert.Equal(t, "high", used[0].Content)
	assert.Equal(t, "low", used[1].Content)
	assert.Equal(t, UsedChunk{Content: "snippet of b", Score: 50, DocPath: "b.txt"}, used[2])
	assert.Equal(t,
		"[Chunk 1] (Score: 0.90)\nhigh\n\n[Chunk 2] (Score: 0.20)\nlow\n\n[Chunk 3] (Score: 50.00)\nsnippet of b\n",
		text)
}

func TestPrepareContextSkipsRepeatedPaths(t *testing.T) {
	results := []fusion.Output{
		output("a.txt", 90, "first"),
		output("a.txt", 80, "second"),
	}

	_, used := PrepareContext(results, 2000)

	require.Len(t, used, 1)
	assert.Equal(t, "first", used[0].Content)
}

func TestPrepareContextTruncatesWhenRoomRemains(t *testing.T) {
	big := strings.Repeat("x", 1500)
	results := []fusion.Output{
		output("a.txt", 90, "", retrieval.Chunk{Content: big, Score: 0.9}),
		output("b.txt", 80, "", retrieval.Chunk{Content: big, Score: 0.8}),
		output("c.txt", 70, "", retrieval.Chunk{Content: "tail", Score: 0.7}),
	}

	_, used := PrepareContext(results, 2000)

	require.Len(t, used, 2)
	assert.Len(t, used[1].Content, 500)
	assert.Equal(t, "b.txt", used[1].DocPath)
}

func TestPrepareContextSkipsTinyRemainder(t *testing.T) {
	results := []fusion.Output{
		output("a.txt", 90, "", retrieval.Chunk{Content: strings.Repeat("x", 1850), Score: 0.9}),
		output("b.txt", 80, "", retrieval.Chunk{Content: strings.Repeat("y", 400), Score: 0.8}),
	}

	_, used := PrepareContext(results, 2000)

	require.Len(t, used, 1)
	assert.Equal(t, "a.txt", used[0].DocPath)
}

func TestGenerateFormatsResponse(t *testing.T) {
	reply := strings.Repeat("a", 150)
	model := &fakeModel{reply: "  " + reply + "\n"}
	g := NewGenerator(model, Options{Temperature: 0.2, MaxTokens: 1000, ContextChars: 2000, Timeout: time.Second})
	results := []fusion.Output{
		output("a.txt", 90, "", retrieval.Chunk{Content: "alpha", Score: 0.9}, retrieval.Chunk{Content: "beta", Score: 0.5}),
		output("b.txt", 80, "bravo"),
		output("c.txt", 70, "charlie"),
		output("d.txt", 60, "delta"),
	}

	resp, err := g.Generate(context.Background(), "what is alpha?", results)

	require.NoError(t, err)
	assert.Nil(t, resp.Path)
	assert.Equal(t, "AI Response", resp.Name)
	assert.Equal(t, reply, resp.FullContent)
	assert.Equal(t, reply, resp.HighlightedContent)
	assert.Equal(t, strings.Repeat("a", 100)+"...", resp.ContentSnippet)
	assert.Equal(t, 150, resp.ContentLength)
	assert.Equal(t, []Source{{Path: "a.txt", Score: 0.9}, {Path: "b.txt", Score: 80}, {Path: "c.txt", Score: 70}}, resp.SourcesUsed)
	assert.Len(t, resp.UsedChunks, 4)

	assert.Contains(t, model.prompt, "User Query: what is alpha?")
	assert.Contains(t, model.prompt, "[Chunk 1] (Score: 0.90)\nalpha")
	assert.Contains(t, model.prompt, NoAnswerPhrase)
	assert.NotContains(t, model.prompt, "delta")
	assert.InDelta(t, 0.2, model.options.Temperature, 1e-9)
	assert.Equal(t, 1000, model.options.MaxTokens)
}

func TestGenerateShortReplyStillGetsEllipsis(t *testing.T) {
	g := NewGenerator(&fakeModel{reply: "Short."}, Options{})

	resp, err := g.Generate(context.Background(), "q", nil)

	require.NoError(t, err)
	assert.Equal(t, "Short....", resp.ContentSnippet)
	assert.Empty(t, resp.SourcesUsed)
	assert.NotNil(t, resp.UsedChunks)
}

func TestGenerateModelFailure(t *testing.T) {
	g := NewGenerator(&fakeModel{err: errors.New("quota exceeded")}, Options{})

	_, err := g.Generate(context.Background(), "q", []fusion.Output{output("a.txt", 90, "alpha")})

	assert.ErrorIs(t, err, apperrors.ErrProviderFailed)
}

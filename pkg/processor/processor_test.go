package processor_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/ragcore/pkg/processor"
)

const sentence = "Vector search finds chunks that are semantically close to the query. "

func TestSplitIntoChunks_MinimumLength(t *testing.T) {
	p := processor.New()

	inputs := []string{
		"",
		"Short. Tiny. Small.",
		strings.Repeat(sentence, 20),
		strings.Repeat("Ok. ", 300),
		strings.Repeat("A fairly long sentence without any punctuation at all ", 30),
		"검색 엔진은 문서를 청크로 나눕니다. " + strings.Repeat("임베딩은 고정 차원의 벡터입니다. ", 10),
	}

	for _, in := range inputs {
		for _, chunk := range p.SplitIntoChunks(in) {
			assert.GreaterOrEqual(t, utf8.RuneCountInString(chunk), 50, "chunk %q", chunk)
		}
	}
}

func TestSplitIntoChunks_GreedyPacking(t *testing.T) {
	p := processor.NewWithConfig(processor.ProcessorConfig{MaxSize: 160, MinLength: 50})

	text := strings.Repeat(sentence, 5)
	chunks := p.SplitIntoChunks(text)

	// 68 runes per sentence, two fit in 160 with the joining space
	require.Len(t, chunks, 3)
	assert.Equal(t, strings.TrimSpace(strings.Repeat(sentence, 2)), chunks[0])
	assert.Equal(t, chunks[0], chunks[1])
	assert.Equal(t, strings.TrimSpace(sentence), chunks[2])
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 160)
	}
}

func TestSplitIntoChunks_Deterministic(t *testing.T) {
	p := processor.New()
	text := strings.Repeat("Hybrid ranking merges lexical and semantic scores. Results are sorted by fused score! Why? ", 12)

	assert.Equal(t, p.SplitIntoChunks(text), p.SplitIntoChunks(text))
}

func TestSplitIntoChunks_KeepsDecimals(t *testing.T) {
	p := processor.New()
	text := "The similarity threshold defaults to 0.3 and the lexical weight is 0.6 in this deployment."

	chunks := p.SplitIntoChunks(text)
	require.Len(t, chunks, 1)
	assert.Equal(t, text, chunks[0])
}

func TestPreprocess(t *testing.T) {
	p := processor.New()

	long := "This paragraph is long enough to survive the noise filter,\n   and it wraps   across lines."
	text := "Too short.\n\n" + long + "\n \n\nAnother short one"

	paragraphs := p.Preprocess(text)
	require.Len(t, paragraphs, 1)
	assert.Equal(t, "This paragraph is long enough to survive the noise filter, and it wraps across lines.", paragraphs[0])
}

func TestChunk_ShortParagraphsYieldNothing(t *testing.T) {
	p := processor.New()

	text := strings.Repeat("x", 40) + "\n\n" + strings.Repeat("y", 40)
	assert.Empty(t, p.Chunk(text))
}

func TestChunk_ParagraphIndex(t *testing.T) {
	p := processor.New()

	first := strings.Repeat("First paragraph sentence with enough words in it. ", 2)
	second := strings.Repeat("Second paragraph sentence with enough words too. ", 2)

	pieces := p.Chunk(first + "\n\n" + second)
	require.Len(t, pieces, 2)
	assert.Equal(t, 0, pieces[0].ParagraphIndex)
	assert.Equal(t, 1, pieces[1].ParagraphIndex)
	assert.True(t, strings.HasPrefix(pieces[1].Content, "Second"))
}

func TestExtractKeywords(t *testing.T) {
	p := processor.New()

	text := "Embedding embedding embedding vectors vectors with search. The search engine."
	assert.Equal(t, []string{"embedding", "search", "vectors"}, p.ExtractKeywords(text, 3))
}

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, "ko", processor.DetectLanguage("문서를 참고하여 질문에 답변해주세요"))
	assert.Equal(t, "en", processor.DetectLanguage("Answer using the documents"))
}

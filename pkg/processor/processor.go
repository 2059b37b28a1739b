package processor

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultMaxSize   = 500
	DefaultMinLength = 50
)

var paragraphBreak = regexp.MustCompile(`\n\s*\n`)

type ProcessorConfig struct {
	MaxSize         int
	MinLength       int
	CustomStopwords []string
}

type Processor struct {
	config    ProcessorConfig
	stopwords map[string]struct{}
}

// Piece is a chunk body together with the paragraph it was cut from.
type Piece struct {
	Content        string
	ParagraphIndex int
}

func NewWithConfig(config ProcessorConfig) Processor {
	if config.MaxSize == 0 {
		config.MaxSize = DefaultMaxSize
	}
	if config.MinLength == 0 {
		config.MinLength = DefaultMinLength
	}

	stopwords := make(map[string]struct{})
	for _, w := range getStopwords() {
		stopwords[w] = struct{}{}
	}
	for _, w := range config.CustomStopwords {
		stopwords[strings.ToLower(w)] = struct{}{}
	}

	return Processor{
		config:    config,
		stopwords: stopwords,
	}
}

func New() Processor {
	return NewWithConfig(ProcessorConfig{})
}

// Chunk runs Preprocess and then packs every surviving paragraph into
// chunks. Output order follows the input text.
func (p *Processor) Chunk(text string) []Piece {
	var pieces []Piece
	for i, paragraph := range p.Preprocess(text) {
		for _, c := range p.SplitIntoChunks(paragraph) {
			pieces = append(pieces, Piece{Content: c, ParagraphIndex: i})
		}
	}
	return pieces
}

// Preprocess splits text on blank lines, collapses whitespace inside each
// paragraph and drops paragraphs shorter than the minimum length.
func (p *Processor) Preprocess(text string) []string {
	var paragraphs []string
	for _, raw := range paragraphBreak.Split(text, -1) {
		cleaned := cleanText(raw)
		if runeLen(cleaned) < p.config.MinLength {
			continue
		}
		paragraphs = append(paragraphs, cleaned)
	}
	return paragraphs
}

// SplitIntoChunks greedily packs sentences into chunks of at most MaxSize
// characters. A sentence longer than MaxSize becomes a chunk of its own.
// Chunks under MinLength are dropped.
func (p *Processor) SplitIntoChunks(text string) []string {
	var chunks []string

	current := strings.Builder{}
	currentLen := 0

	flush := func() {
		if currentLen >= p.config.MinLength {
			chunks = append(chunks, current.String())
		}
		current.Reset()
		currentLen = 0
	}

	for _, sentence := range splitIntoSentences(text) {
		sentenceLen := runeLen(sentence)

		if currentLen > 0 && currentLen+1+sentenceLen > p.config.MaxSize {
			flush()
		}

		if currentLen > 0 {
			current.WriteByte(' ')
			currentLen++
		}
		current.WriteString(sentence)
		currentLen += sentenceLen
	}

	if currentLen > 0 {
		flush()
	}

	return chunks
}

// ExtractKeywords returns the n most frequent non-stopword terms longer than
// three characters, most frequent first.
func (p *Processor) ExtractKeywords(text string, n int) []string {
	freq := make(map[string]int)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if runeLen(word) <= 3 {
			continue
		}
		if _, stop := p.stopwords[word]; stop {
			continue
		}
		freq[word]++
	}

	words := make([]string, 0, len(freq))
	for w := range freq {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if freq[words[i]] != freq[words[j]] {
			return freq[words[i]] > freq[words[j]]
		}
		return words[i] < words[j]
	})

	if len(words) > n {
		words = words[:n]
	}
	return words
}

// DetectLanguage is a rough script count: "ko" when Hangul outnumbers Latin
// letters, "en" otherwise.
func DetectLanguage(text string) string {
	var hangul, latin int
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Hangul, r):
			hangul++
		case r < unicode.MaxASCII && unicode.IsLetter(r):
			latin++
		}
	}
	if hangul > latin {
		return "ko"
	}
	return "en"
}

func cleanText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func splitIntoSentences(text string) []string {
	var sentences []string

	runes := []rune(text)
	start := 0
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		// "3.14" and "e.g.x" are not sentence ends
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if s := cleanText(string(runes[start : i+1])); s != "" {
			sentences = append(sentences, s)
		}
		start = i + 1
	}

	if s := cleanText(string(runes[start:])); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// Common English stopwords
func getStopwords() []string {
	return []string{
		"a", "an", "and", "are", "as", "at", "be", "by", "for",
		"from", "has", "he", "in", "is", "it", "its", "of", "on",
		"that", "the", "to", "was", "were", "will", "with",
		"this", "these", "those", "there", "their", "have", "been",
		"which", "when", "what", "also", "into", "than", "then",
	}
}

package rag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wwwzy/BizAgent/internal/llm"
	"github.com/xuri/excelize/v2"
	"pgregory.net/rapid"
)

// keywordEmbedder 是确定性的词袋向量：第 0 维恒为 1，其余维度统计关键词出现次数。
type keywordEmbedder struct {
	words []string
	texts atomic.Int64
	fail  error
}

func newKeywordEmbedder() *keywordEmbedder {
	return &keywordEmbedder{words: []string{"coupon", "delivery", "review", "쿠폰"}}
}

func (e *keywordEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	if e.fail != nil {
		return nil, e.fail
	}
	e.texts.Add(int64(len(texts)))
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v := make([]float64, len(e.words)+1)
		v[0] = 1
		for j, w := range e.words {
			v[j+1] = float64(strings.Count(t, w))
		}
		out[i] = v
	}
	return out, nil
}

type recordingGenerator struct {
	mu      sync.Mutex
	prompts []string
	reply   string
	err     error
}

func (g *recordingGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	return g.reply, g.err
}

func newTestEngine(t *testing.T, src Source, emb embedding.Embedder, gen llm.Generator) *Engine {
	t.Helper()
	e, err := NewEngine(Config{TopK: 4}, src, emb, gen)
	require.NoError(t, err)
	return e
}

var marketingDocs = StaticSource{
	{Source: "guide.pdf", Page: 2, Text: "coupon coupon stamp card raises revisit rate"},
	{Source: "delivery.txt", Text: "delivery app fees cut margins"},
	{Source: "reviews.md", Text: "review events drive new visitors"},
}

func mustSplit(t *testing.T, s *Splitter, text string) []string {
	t.Helper()
	got, err := s.Split(text)
	require.NoError(t, err)
	return got
}

func TestSplitterMergesWithOverlap(t *testing.T) {
	s := NewSplitter(10, 5)
	got := mustSplit(t, s, "aaaa bbbb cccc dddd")
	assert.Equal(t, []string{"aaaa bbbb", "bbbb cccc", "cccc dddd"}, got)
}

func TestSplitterShortTextAndParagraphs(t *testing.T) {
	s := NewSplitter(1000, 200)
	assert.Equal(t, []string{"짧은 문서"}, mustSplit(t, s, "  짧은 문서\n"))
	assert.Empty(t, mustSplit(t, s, "   \n\n  "))

	// 韩文按字符而非字节计长：8 个字符的段落不超过 10
	para := strings.Repeat("가", 8)
	s = NewSplitter(10, 0)
	assert.Equal(t, []string{para, para}, mustSplit(t, s, para+"\n\n"+para))
}

func TestSplitterChunkSizeProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		size := rapid.IntRange(5, 200).Draw(rt, "size")
		overlap := rapid.IntRange(0, size-1).Draw(rt, "overlap")
		words := rapid.SliceOf(rapid.SampledFrom([]string{
			"카페", "coupon", "\n", "\n\n", " ", "재방문율을", "supercalifragilistic",
		})).Draw(rt, "words")
		text := strings.Join(words, " ")

		chunks, err := NewSplitter(size, overlap).Split(text)
		if err != nil {
			rt.Fatalf("split: %v", err)
		}
		for _, c := range chunks {
			if n := utf8.RuneCountInString(c); n > size {
				rt.Fatalf("chunk %q has %d runes, limit %d", c, n, size)
			}
			if c == "" || strings.TrimSpace(c) != c {
				rt.Fatalf("chunk %q is not trimmed", c)
			}
		}
	})
}

func TestSplitDocumentsKeepsSource(t *testing.T) {
	chunks, err := NewSplitter(10, 0).SplitDocuments([]Document{
		{Source: "a.pdf", Page: 3, Text: "aaaa bbbb cccc"},
		{Source: "b.txt", Text: "dd"},
	})
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "a.pdf, 3페이지", chunks[0].Citation())
	assert.Equal(t, 1, chunks[1].Index)
	assert.Equal(t, "b.txt", chunks[2].Citation())

	ids := map[string]bool{}
	for _, c := range chunks {
		ids[c.ID] = true
	}
	assert.Len(t, ids, 3)
}

func TestDirectorySource(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	write("a.txt", "alpha")
	write("b.MD", "# beta")
	write("notes/c.txt", "gamma")
	write("ignore.csv", "x,y")
	write("broken.pdf", "not really a pdf")
	write(".hidden/d.txt", "delta")

	xlsx := excelize.NewFile()
	require.NoError(t, xlsx.SetCellValue("Sheet1", "A1", "월"))
	require.NoError(t, xlsx.SetCellValue("Sheet1", "B1", "매출"))
	require.NoError(t, xlsx.SetCellValue("Sheet1", "B2", 1200))
	require.NoError(t, xlsx.SaveAs(filepath.Join(dir, "sales.xlsx")))
	require.NoError(t, xlsx.Close())

	src := &DirectorySource{Dir: dir, Extensions: DefaultConfig().Extensions, Workers: 3}
	docs, err := src.Documents(context.Background())
	require.NoError(t, err)

	var sources []string
	for _, d := range docs {
		sources = append(sources, d.Source)
	}
	assert.Equal(t, []string{"a.txt", "b.MD", "notes/c.txt", "sales.xlsx"}, sources)
	assert.Contains(t, docs[3].Text, "B1: 매출")
	assert.Contains(t, docs[3].Text, "B2: 1200")

	src.Extensions = []string{"txt"}
	docs, err = src.Documents(context.Background())
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestDirectorySourceMissingDir(t *testing.T) {
	src := &DirectorySource{Dir: filepath.Join(t.TempDir(), "nope"), Extensions: []string{".txt"}}
	docs, err := src.Documents(context.Background())
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestColumnLetter(t *testing.T) {
	assert.Equal(t, "A", columnLetter(0))
	assert.Equal(t, "Z", columnLetter(25))
	assert.Equal(t, "AA", columnLetter(26))
	assert.Equal(t, "AZ", columnLetter(51))
}

func TestEngineBuildIsIdempotent(t *testing.T) {
	emb := newKeywordEmbedder()
	e := newTestEngine(t, marketingDocs, emb, &recordingGenerator{reply: "ok"})

	require.NoError(t, e.Build(context.Background()))
	first := e.Stats()
	embedded := emb.texts.Load()
	assert.True(t, first.Built)
	assert.Equal(t, 3, first.Documents)
	assert.Equal(t, 3, first.Chunks)
	assert.Equal(t, int64(3), embedded)

	require.NoError(t, e.Build(context.Background()))
	_, err := e.Retrieve(context.Background(), "coupon")
	require.NoError(t, err)

	assert.Equal(t, first, e.Stats())
	// 只多了查询本身的一次向量化
	assert.Equal(t, embedded+1, emb.texts.Load())
	assert.Equal(t, 3, e.index.Count())
}

func TestEngineRetrieveRanksAndClampsK(t *testing.T) {
	e := newTestEngine(t, marketingDocs, newKeywordEmbedder(), &recordingGenerator{})

	hits, err := e.Retrieve(context.Background(), "coupon")
	require.NoError(t, err)
	require.Len(t, hits, 3, "top_k larger than the index must be clamped")
	assert.Equal(t, "guide.pdf", hits[0].Chunk.Source)
	assert.Equal(t, 2, hits[0].Chunk.Page)
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}
}

func TestEngineAnswerUsesRankedContext(t *testing.T) {
	gen := &recordingGenerator{reply: "스탬프 쿠폰을 도입하세요 [근거: guide.pdf, 2페이지]"}
	e := newTestEngine(t, marketingDocs, newKeywordEmbedder(), gen)

	out, err := e.Answer(context.Background(), "coupon 아이디어")
	require.NoError(t, err)
	assert.Equal(t, gen.reply, out)

	require.Len(t, gen.prompts, 1)
	p := gen.prompts[0]
	assert.Contains(t, p, "coupon 아이디어")
	assert.Contains(t, p, "출처: guide.pdf, 2페이지\n\n내용: coupon coupon stamp card raises revisit rate")
	assert.Less(t, strings.Index(p, "guide.pdf"), strings.Index(p, "delivery.txt"))
	assert.Equal(t, 2, strings.Count(p, contextSeparator))
}

func TestEngineEmptyDirectoryAnswersUngrounded(t *testing.T) {
	emb := newKeywordEmbedder()
	emb.fail = errors.New("embedder must not be called for an empty index")
	gen := &recordingGenerator{reply: "일반적인 마케팅 조언입니다."}
	src := &DirectorySource{Dir: t.TempDir(), Extensions: []string{".pdf", ".txt"}}
	e := newTestEngine(t, src, emb, gen)

	hits, err := e.Retrieve(context.Background(), "대학가 카페")
	require.NoError(t, err)
	assert.Empty(t, hits)

	out, err := NewTool(e).Invoke(context.Background(), "대학가 카페")
	require.NoError(t, err)
	assert.NotEmpty(t, out)
	assert.Contains(t, gen.prompts[0], emptyContext)

	st := e.Stats()
	assert.True(t, st.Built)
	assert.Zero(t, st.Chunks)
}

type flakySource struct {
	calls int
}

func (s *flakySource) Documents(context.Context) ([]Document, error) {
	s.calls++
	if s.calls == 1 {
		return nil, errors.New("disk unavailable")
	}
	return marketingDocs, nil
}

func TestEngineFailedBuildIsRetried(t *testing.T) {
	src := &flakySource{}
	e := newTestEngine(t, src, newKeywordEmbedder(), &recordingGenerator{})

	err := e.Build(context.Background())
	require.Error(t, err)
	assert.False(t, e.Stats().Built)

	require.NoError(t, e.Build(context.Background()))
	assert.Equal(t, 3, e.Stats().Chunks)
	assert.Equal(t, 2, src.calls)
}

func TestEngineRebuild(t *testing.T) {
	docs := StaticSource{{Source: "a.txt", Text: "coupon"}}
	src := &mutableSource{docs: docs}
	emb := newKeywordEmbedder()
	e := newTestEngine(t, src, emb, &recordingGenerator{})

	require.NoError(t, e.Build(context.Background()))
	assert.Equal(t, 1, e.Stats().Chunks)

	src.docs = marketingDocs
	require.NoError(t, e.Build(context.Background()))
	assert.Equal(t, 1, e.Stats().Chunks)

	require.NoError(t, e.Rebuild(context.Background()))
	assert.Equal(t, 3, e.Stats().Chunks)

	emb.fail = errors.New("embedding quota")
	require.Error(t, e.Rebuild(context.Background()))
	assert.Equal(t, 3, e.Stats().Chunks, "failed rebuild keeps the previous index")
}

type mutableSource struct {
	docs []Document
}

func (s *mutableSource) Documents(context.Context) ([]Document, error) { return s.docs, nil }

func TestEngineGeneratorErrorPropagates(t *testing.T) {
	gen := &recordingGenerator{err: errors.New("model outage")}
	e := newTestEngine(t, marketingDocs, newKeywordEmbedder(), gen)

	_, err := e.Answer(context.Background(), "coupon")
	require.Error(t, err)
	assert.ErrorIs(t, err, gen.err)
}

func TestEngineConcurrentFirstUseBuildsOnce(t *testing.T) {
	emb := newKeywordEmbedder()
	e := newTestEngine(t, marketingDocs, emb, &recordingGenerator{reply: "ok"})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Answer(context.Background(), "review")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	// 3 个片段各向量化一次，再加 8 次查询
	assert.Equal(t, int64(3+8), emb.texts.Load())
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.ChunkOverlap = cfg.ChunkSize
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Extensions = []string{".pptx"}
	assert.Error(t, cfg.Validate())

	var zero Config
	zero.SetDefaults()
	assert.Equal(t, DefaultConfig().TopK, zero.TopK)
	assert.Equal(t, 4, zero.TopK)
}

func TestFloatConversionRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 64).Draw(rt, "n")
		in := make([]float32, n)
		for i := range in {
			in[i] = float32(rapid.Float64Range(-1e6, 1e6).Draw(rt, "x"))
		}
		back := Float64ToFloat32(Float32ToFloat64(in))
		if len(back) != n {
			rt.Fatalf("length %d != %d", len(back), n)
		}
		for i := range in {
			if in[i] != back[i] {
				rt.Fatalf("index %d: %v != %v", i, in[i], back[i])
			}
		}
	})
	assert.Nil(t, Float32ToFloat64(nil))
}

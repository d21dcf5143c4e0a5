package rag

import (
	"fmt"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"
)

// Chunk 是可检索的最小单元。
type Chunk struct {
	ID     string
	Source string
	Page   int
	// Index 为该片段在所属文档中的序号。
	Index int
	Text  string
}

func (c Chunk) Citation() string {
	return citation(c.Source, c.Page)
}

// Splitter 递归地按段落、换行、空格、单字符切分文本，再合并为不超过 Size 的块，
// 相邻块保留至多 Overlap 的重叠。长度按字符（rune）计算。
type Splitter struct {
	Size    int
	Overlap int

	rc textsplitter.RecursiveCharacter
}

func NewSplitter(size, overlap int) *Splitter {
	return &Splitter{
		Size:    size,
		Overlap: overlap,
		rc: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
			textsplitter.WithLenFunc(utf8.RuneCountInString),
		),
	}
}

// Split 切分一段文本，返回去除首尾空白后的非空片段。
func (s *Splitter) Split(text string) ([]string, error) {
	parts, err := s.rc.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("split text: %w", err)
	}
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}

// SplitDocuments 切分所有文档并生成片段，片段 ID 在一次构建内唯一。
func (s *Splitter) SplitDocuments(docs []Document) ([]Chunk, error) {
	var out []Chunk
	for _, d := range docs {
		parts, err := s.Split(d.Text)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", citation(d.Source, d.Page), err)
		}
		for i, text := range parts {
			out = append(out, Chunk{
				ID:     chunkID(len(out)),
				Source: d.Source,
				Page:   d.Page,
				Index:  i,
				Text:   text,
			})
		}
	}
	return out, nil
}

package rag

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"
)

// maxSheetCells 限制每个工作表抽取的单元格数量，避免超大表格撑爆索引。
const maxSheetCells = 1000

// extractFunc 抽取单个文件。source 为引用时使用的来源标识。
type extractFunc func(ctx context.Context, path, source string) ([]Document, error)

var extractors = map[string]extractFunc{
	".pdf":  extractPDF,
	".txt":  extractPlain,
	".md":   extractPlain,
	".docx": extractDocx,
	".xlsx": extractXlsx,
}

// extractPDF 按页抽取，每页一个 Document，页码从 1 开始。空白页跳过。
func extractPDF(ctx context.Context, path, source string) ([]Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	reader, err := pdf.NewReader(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("parse pdf: %w", err)
	}

	var docs []Document
	for n := 1; n <= reader.NumPage(); n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(n)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", n, err)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		docs = append(docs, Document{Source: source, Page: n, Text: text})
	}
	return docs, nil
}

func extractPlain(_ context.Context, path, source string) ([]Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return []Document{{Source: source, Text: string(data)}}, nil
}

func extractDocx(_ context.Context, path, source string) ([]Document, error) {
	doc, err := docx.ReadDocxFile(path)
	if err != nil {
		return nil, fmt.Errorf("parse docx: %w", err)
	}
	defer doc.Close()
	return []Document{{Source: source, Text: doc.Editable().GetContent()}}, nil
}

// extractXlsx 把所有工作表展开为 "A1: 值" 形式的文本，整本一个 Document。
func extractXlsx(ctx context.Context, path, source string) ([]Document, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("parse xlsx: %w", err)
	}
	defer f.Close()

	var parts []string
	for _, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("sheet %s: %w", sheet, err)
		}

		var b strings.Builder
		fmt.Fprintf(&b, "--- Sheet: %s ---\n", sheet)
		cells := 0
	rowLoop:
		for r, row := range rows {
			for c, cell := range row {
				if cells >= maxSheetCells {
					b.WriteString("... (truncated)\n")
					break rowLoop
				}
				if text := strings.TrimSpace(cell); text != "" {
					fmt.Fprintf(&b, "%s%d: %s\n", columnLetter(c), r+1, text)
					cells++
				}
			}
		}
		if cells > 0 {
			parts = append(parts, strings.TrimSpace(b.String()))
		}
	}
	return []Document{{Source: source, Text: strings.Join(parts, "\n\n")}}, nil
}

// columnLetter 把从 0 开始的列号转换为 Excel 列名（A..Z, AA..）。
func columnLetter(index int) string {
	result := ""
	for {
		result = string(rune('A'+index%26)) + result
		index = index/26 - 1
		if index < 0 {
			return result
		}
	}
}

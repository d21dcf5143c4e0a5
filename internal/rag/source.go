package rag

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Document 是抽取后的原始文本及其来源。Page 仅对分页格式（PDF）有效，0 表示不分页。
type Document struct {
	Source string
	Page   int
	Text   string
}

// Citation 返回引用时使用的来源标识，例如 "guide.pdf, 3페이지"。
func (d Document) Citation() string {
	return citation(d.Source, d.Page)
}

// Source 枚举待索引的文档。
type Source interface {
	Documents(ctx context.Context) ([]Document, error)
}

// DirectorySource 递归扫描目录，按扩展名选择抽取器，并发抽取。
// 目录不存在视为空；单个文件抽取失败只记警告并跳过。
type DirectorySource struct {
	Dir        string
	Extensions []string
	Workers    int
	Logger     *zap.Logger
}

func (s *DirectorySource) Documents(ctx context.Context) ([]Document, error) {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	paths, err := s.listFiles(logger)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, nil
	}

	results := make([][]Document, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	workers := s.Workers
	if workers <= 0 {
		workers = 1
	}
	g.SetLimit(workers)

	for i, path := range paths {
		g.Go(func() error {
			source := s.sourceID(path)
			extract := extractors[normalizeExt(filepath.Ext(path))]
			docs, err := safeExtract(gctx, extract, path, source)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				logger.Warn("skip unreadable document", zap.String("source", source), zap.Error(err))
				return nil
			}
			results[i] = docs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Document
	for _, docs := range results {
		out = append(out, docs...)
	}
	return out, nil
}

// listFiles 返回目录下受支持的文件，按路径排序以保证索引顺序稳定。
func (s *DirectorySource) listFiles(logger *zap.Logger) ([]string, error) {
	info, err := os.Stat(s.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn("docs dir does not exist, index will be empty", zap.String("dir", s.Dir))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, errors.New(s.Dir + " is not a directory")
	}

	allowed := make(map[string]bool, len(s.Extensions))
	for _, ext := range s.Extensions {
		allowed[normalizeExt(ext)] = true
	}

	var paths []string
	err = filepath.WalkDir(s.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != s.Dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		ext := normalizeExt(filepath.Ext(path))
		if _, ok := extractors[ext]; ok && allowed[ext] {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// sourceID 为相对文档目录的路径（统一使用 /），顶层文件即文件名。
func (s *DirectorySource) sourceID(path string) string {
	rel, err := filepath.Rel(s.Dir, path)
	if err != nil {
		return filepath.Base(path)
	}
	return filepath.ToSlash(rel)
}

// StaticSource 返回固定文档，测试和程序化使用。
type StaticSource []Document

func (s StaticSource) Documents(context.Context) ([]Document, error) {
	return s, nil
}

// safeExtract 把解析库内部的 panic（常见于损坏的 PDF）转换为错误。
func safeExtract(ctx context.Context, fn extractFunc, path, source string) (docs []Document, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("extract panicked: %v", p)
		}
	}()
	return fn(ctx, path, source)
}

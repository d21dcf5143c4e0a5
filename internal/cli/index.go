package cli

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	indexQuery  string
	indexAnswer bool
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "构建知识库索引并查看统计",
	Long: `读取 rag.docs_dir 下的文档，切分并向量化后输出索引统计。
指定 --query 时输出检索到的片段；再加 --answer 时输出 marketing_expert 的完整回答。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()

		engine, err := newEngine(ctx, cfg, logger)
		if err != nil {
			return err
		}
		if engine == nil {
			return errors.New("embedding.model 未配置，知识库不可用")
		}

		if err := engine.Build(ctx); err != nil {
			return fmt.Errorf("构建索引失败: %w", err)
		}

		out := cmd.OutOrStdout()
		st := engine.Stats()
		w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "Docs Dir\t"+cfg.RAG.DocsDir)
		fmt.Fprintf(w, "Documents\t%d\n", st.Documents)
		fmt.Fprintf(w, "Chunks\t%d\n", st.Chunks)
		fmt.Fprintf(w, "Build Time\t%s\n", st.Duration.Round(time.Millisecond))
		w.Flush()

		if strings.TrimSpace(indexQuery) == "" {
			return nil
		}

		if indexAnswer {
			answer, err := engine.Answer(ctx, indexQuery)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\n%s\n", answer)
			return nil
		}

		hits, err := engine.Retrieve(ctx, indexQuery)
		if err != nil {
			return err
		}
		if len(hits) == 0 {
			fmt.Fprintln(out, "\n(没有检索到相关片段)")
			return nil
		}
		for i, h := range hits {
			fmt.Fprintf(out, "\n#%d  score=%.4f  %s\n%s\n", i+1, h.Score, h.Chunk.Citation(), h.Chunk.Text)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.Flags().StringVarP(&indexQuery, "query", "q", "", "检索查询")
	indexCmd.Flags().BoolVar(&indexAnswer, "answer", false, "对 --query 生成有据回答")
}

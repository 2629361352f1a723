package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/hsn0918/dentalrag/internal/config"
	"github.com/hsn0918/dentalrag/internal/knowledge"
	"github.com/hsn0918/dentalrag/internal/profile"
	"github.com/hsn0918/dentalrag/internal/server"
)

var (
	embedAll bool
	embedIDs []int64

	profileUser  int64
	profileForce bool

	importPrefix string
	importEmbed  bool
)

// embeddingsCmd 生成知识条目向量
var embeddingsCmd = &cobra.Command{
	Use:   "embeddings",
	Short: "生成知识条目向量",
	Long:  `默认只处理还没有向量的启用条目；--all 重新生成全部启用条目；--ids 只处理指定条目。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var generator *knowledge.EmbeddingGenerator
		return runJob(func(ctx context.Context) error {
			report, err := generator.Generate(ctx, knowledge.GenerateRequest{ArticleIDs: embedIDs, All: embedAll})
			if err != nil {
				return fmt.Errorf("failed to generate embeddings: %w", err)
			}
			return printReport(fmt.Sprintf("选中 %d 条，更新 %d 条，失败 %d 条，耗时 %s",
				report.Selected, report.Updated, len(report.Failed), report.Duration), report)
		}, nil, &generator)
	},
}

// profilesCmd 刷新用户画像
var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "刷新用户画像",
	Long:  `不指定 --user 时刷新所有有预约记录的用户。一小时内更新过的画像会跳过，除非指定 --force。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var updater *profile.Updater
		return runJob(func(ctx context.Context) error {
			if profileUser > 0 {
				res, err := updater.UpdateUser(ctx, profileUser, profileForce)
				if err != nil {
					return fmt.Errorf("failed to update profile: %w", err)
				}
				status := "已更新"
				if res.Skipped {
					status = "已跳过（最近更新过）"
				}
				return printReport(fmt.Sprintf("用户 %d 画像%s", profileUser, status), res)
			}
			report, err := updater.UpdateAll(ctx, profileForce)
			if err != nil {
				return fmt.Errorf("failed to update profiles: %w", err)
			}
			return printReport(fmt.Sprintf("用户 %d 个，更新 %d 个，跳过 %d 个，失败 %d 个",
				report.Users, report.Updated, report.Skipped, len(report.Failed)), report)
		}, nil, &updater)
	},
}

// importCmd 从 MinIO 导入 markdown 知识条目
var importCmd = &cobra.Command{
	Use:   "import",
	Short: "从对象存储导入知识条目",
	Long:  `读取 bucket 中 --prefix 下的 markdown 文件，按标题新增或更新知识条目；--embed 为有变化的条目重新生成向量。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			importer *knowledge.Importer
			cfg      config.Config
		)
		return runJob(func(ctx context.Context) error {
			prefix := importPrefix
			if prefix == "" {
				prefix = cfg.MinIO.KnowledgePrefix
			}
			report, err := importer.Import(ctx, prefix, importEmbed)
			if err != nil {
				return fmt.Errorf("failed to import knowledge: %w", err)
			}
			return printReport(fmt.Sprintf("对象 %d 个，变更 %d 条，未变 %d 条，跳过 %d 个",
				report.Objects, len(report.Changed), report.Unchanged, len(report.Skipped)), report)
		}, []fx.Option{server.ImportModule}, &importer, &cfg)
	},
}

func init() {
	embeddingsCmd.Flags().BoolVar(&embedAll, "all", false, "重新生成全部启用条目")
	embeddingsCmd.Flags().Int64SliceVar(&embedIDs, "ids", nil, "只处理指定条目 id")

	profilesCmd.Flags().Int64Var(&profileUser, "user", 0, "只刷新指定用户")
	profilesCmd.Flags().BoolVar(&profileForce, "force", false, "忽略一小时刷新间隔")

	importCmd.Flags().StringVar(&importPrefix, "prefix", "", "对象前缀，默认使用 minio.knowledge_prefix")
	importCmd.Flags().BoolVar(&importEmbed, "embed", false, "为变更条目生成向量")

	rootCmd.AddCommand(embeddingsCmd, profilesCmd, importCmd)
}

// Command admin runs the out-of-band maintenance jobs: embedding
// generation, profile refresh and knowledge import.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/hsn0918/dentalrag/internal/logger"
	"github.com/hsn0918/dentalrag/internal/server"
)

var (
	jobTimeout time.Duration
	outputType string
)

var rootCmd = &cobra.Command{
	Use:           "admin",
	Short:         "牙科分诊服务管理命令",
	Long:          `生成知识库向量、刷新用户画像、从对象存储导入知识条目。配置读取当前目录的 config.yaml 和环境变量。`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().DurationVar(&jobTimeout, "timeout", 30*time.Minute, "任务超时时间")
	rootCmd.PersistentFlags().StringVarP(&outputType, "output", "o", "text", "输出格式: text 或 json")
}

func main() {
	defer logger.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "错误:", err)
		os.Exit(1)
	}
}

// runJob builds the dependency graph from modules, fills targets and runs
// job with a bounded context. The HTTP server is never started.
func runJob(job func(ctx context.Context) error, modules []fx.Option, targets ...any) error {
	opts := append([]fx.Option{
		server.InfrastructureModule,
		server.ClientsModule,
		server.ServicesModule,
		fx.NopLogger,
		fx.Populate(targets...),
	}, modules...)
	app := fx.New(opts...)
	if err := app.Err(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = app.Stop(context.Background()) }()
	return job(ctx)
}

// printReport 按 --output 输出任务结果
func printReport(text string, report any) error {
	if outputType == "json" {
		data, err := sonic.ConfigStd.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	fmt.Println(text)
	return nil
}

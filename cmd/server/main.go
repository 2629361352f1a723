package main

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/hsn0918/dentalrag/internal/logger"
	"github.com/hsn0918/dentalrag/internal/server"
)

func main() {
	defer logger.Sync()

	// 配置、存储、客户端、服务和 HTTP 服务器都由 server.Module 组装
	fx.New(
		server.Module,
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	).Run()
}

// cmd/server/main.go
package main

import (
	"log"

	"github.com/Corphon/HealthScriptMCP/internal/app"
	"github.com/Corphon/HealthScriptMCP/internal/config"
)

func main() {
	baseConfig, err := config.Load()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	if err := app.Initialize(baseConfig); err != nil {
		log.Fatalf("初始化应用失败: %v", err)
	}

	log.Printf("服务器启动在端口 %s", baseConfig.Port)
	if err := app.Run(); err != nil {
		log.Fatalf("%v", err)
	}
}

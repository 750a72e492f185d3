// cmd/server/main.go
package main

import (
	"log"
	"os"

	"github.com/Corphon/VogueVault/internal/app"
	"github.com/Corphon/VogueVault/internal/config"
	"github.com/Corphon/VogueVault/internal/di"
	"github.com/Corphon/VogueVault/internal/utils"
)

func main() {
	log.Println("🚀 启动 VogueVault 服务器...")

	// 1. 加载基础配置
	baseConfig, err := config.Load()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	log.Printf("✅ 基础配置加载完成，端口: %s", baseConfig.Port)

	// 2. 创建必要的目录
	for _, dir := range []string{baseConfig.DataDir, baseConfig.LogDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("创建目录失败 %s: %v", dir, err)
		}
	}

	// 3. 初始化日志
	logFile, err := utils.InitLogger(baseConfig.LogDir)
	if err != nil {
		log.Fatalf("初始化日志系统失败: %v", err)
	}
	if baseConfig.DebugMode {
		utils.GetLogger().SetLogLevel(utils.DEBUG)
	}
	log.Printf("✅ 日志写入 %s", logFile)

	// 4. 初始化配置系统
	if err := config.InitConfig(baseConfig); err != nil {
		log.Fatalf("初始化配置系统失败: %v", err)
	}
	log.Println("✅ 配置系统初始化完成")

	// 5. 初始化服务与路由
	if err := app.Initialize(baseConfig); err != nil {
		log.Fatalf("❌ %v", err)
	}
	log.Printf("✅ 所有服务初始化完成，服务数量: %d", len(di.GetContainer().GetNames()))

	// 6. 启动服务器，直到收到退出信号
	log.Printf("🌐 服务器启动在端口 %s", baseConfig.Port)
	log.Printf("🔗 访问地址: http://localhost:%s/api/health", baseConfig.Port)

	if err := app.Run(); err != nil {
		log.Fatalf("❌ %v", err)
	}
	log.Println("✅ 服务器优雅关闭完成")
}

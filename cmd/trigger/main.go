package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/joho/godotenv"

	"quote-trigger-go/internal/container"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	envFile := flag.String("env", ".env", "可选的环境变量文件，不存在时忽略")
	flag.Parse()

	// QT_* 覆盖项可以写在 .env 中
	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		log.Printf("加载 %s 失败: %v", *envFile, err)
	}

	c, err := container.New(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if err := c.Build(); err != nil {
		log.Fatalf("构建组件失败: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		log.Fatalf("启动失败: %v", err)
	}
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Printf("sd_notify ready: %v", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	cancel()
	if err := c.Stop(); err != nil {
		log.Printf("停止时出错: %v", err)
		os.Exit(1)
	}
}

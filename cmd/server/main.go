package main

import (
	"errors"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"callcoach-server-golang/internal/app/server"
	log "callcoach-server-golang/logger"
)

func main() {
	configFile := flag.String("c", "config/config.yaml", "配置文件路径")
	flag.Parse()

	if *configFile == "" {
		fmt.Println("配置文件路径不能为空")
		os.Exit(1)
	}

	cfg, err := Init(*configFile)
	if err != nil {
		os.Exit(1)
	}

	// 根据配置启动pprof服务
	if cfg.Server.Pprof.Enable {
		pprofPort := cfg.Server.Pprof.Port
		go func() {
			log.Infof("启动pprof服务，端口: %d", pprofPort)
			if err := http.ListenAndServe(fmt.Sprintf(":%d", pprofPort), nil); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorf("pprof服务启动失败: %v", err)
			}
		}()
		log.Infof("pprof地址: http://localhost:%d/debug/pprof/", pprofPort)
	} else {
		log.Info("pprof服务已禁用")
	}

	appInstance := server.NewApp(cfg)
	go func() {
		if err := appInstance.Run(); err != nil {
			log.Fatalf("HTTP服务启动失败: %v", err)
		}
	}()

	// 阻塞监听退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Info("服务器已启动，按 Ctrl+C 退出")
	<-quit

	log.Info("正在关闭服务器...")
	appInstance.Shutdown(10 * time.Second)
	log.Info("服务器已关闭")
}

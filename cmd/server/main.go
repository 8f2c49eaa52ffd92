package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aiwuxian/abyss-engine/internal/api"
	"github.com/aiwuxian/abyss-engine/internal/config"
	"github.com/aiwuxian/abyss-engine/internal/services"
	"github.com/aiwuxian/abyss-engine/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.yml", "配置文件路径")
	flag.Parse()

	// 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	// 初始化数据库
	store, err := storage.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("初始化数据库失败: %v", err)
	}
	defer store.Close()

	// 初始化服务
	ruleEngine := services.NewRuleEngine()
	var (
		decider   services.Decider
		generator services.WorldGenerator
	)
	if cfg.LLM.APIKey != "" {
		llmService := services.NewLLMService(cfg.LLM)
		decider, generator = llmService, llmService
		log.Printf("🤖 使用模型 %s 进行判定", cfg.LLM.Model)
	} else {
		decider = services.NewOfflineDecider(ruleEngine)
		log.Println("🎲 未配置API Key，使用离线D20判定")
	}

	broker := services.NewPromptBroker()
	engine := services.NewEngine(cfg.Game, decider, broker, ruleEngine, nil)
	worldService := services.NewWorldService(engine, generator)
	saveService := services.NewSaveService(store, engine)

	// 初始化API处理器
	handler := api.NewHandler(engine, worldService, saveService, broker)

	// 设置Gin路由
	r := gin.Default()

	// 静态文件
	r.Static("/web", "./web")
	r.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/web/index.html")
	})
	handler.Register(r)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("❌ 回合引擎退出: %v", err)
		}
	}()

	// 启动服务器
	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("🎮 Abyss Engine 启动成功！访问 http://localhost:%s", cfg.Server.Port)
	log.Printf("📖 回合引擎已就绪，等待导入世界...")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("启动服务器失败: %v", err)
	}
}

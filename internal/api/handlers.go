package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/aiwuxian/abyss-engine/internal/models"
	"github.com/aiwuxian/abyss-engine/internal/services"
	"github.com/aiwuxian/abyss-engine/internal/storage"
)

type Handler struct {
	engine       *services.Engine
	worldService *services.WorldService
	saveService  *services.SaveService
	broker       *services.PromptBroker
	hub          *Hub
}

func NewHandler(engine *services.Engine, worldService *services.WorldService,
	saveService *services.SaveService, broker *services.PromptBroker) *Handler {
	h := &Handler{
		engine:       engine,
		worldService: worldService,
		saveService:  saveService,
		broker:       broker,
		hub:          NewHub(engine, broker),
	}
	return h
}

// Register 注册所有路由
func (h *Handler) Register(r gin.IRouter) {
	apiGroup := r.Group("/api")
	{
		// 状态与推进
		apiGroup.GET("/state", h.GetState)
		apiGroup.POST("/step", h.Step)
		apiGroup.POST("/pause", h.Pause)
		apiGroup.POST("/resume", h.Resume)
		apiGroup.POST("/stop", h.Stop)
		apiGroup.POST("/order", h.SetManualOrder)
		apiGroup.PUT("/settings", h.UpdateSettings)

		// 玩家行动
		apiGroup.POST("/actions", h.QueueAction)
		apiGroup.GET("/actions/:actorId", h.ListActions)
		apiGroup.POST("/turn/commit", h.CommitTurn)

		// 历史
		apiGroup.POST("/history/:logId/rollback", h.Rollback)
		apiGroup.POST("/history/:logId/regenerate", h.Regenerate)

		// 玩家输入
		apiGroup.GET("/prompts", h.ListPrompts)
		apiGroup.POST("/prompts/:id/answer", h.AnswerPrompt)
		apiGroup.POST("/prompts/:id/cancel", h.CancelPrompt)

		// 世界编辑
		apiGroup.POST("/worlds/parse", h.ParseSegment)
		apiGroup.POST("/world/ingest", h.IngestWorld)
		apiGroup.PUT("/world/attributes", h.SetWorldAttribute)
		apiGroup.POST("/world/location", h.SetActiveLocation)
		apiGroup.POST("/actors", h.CreateActor)
		apiGroup.DELETE("/actors/:id", h.DeleteActor)
		apiGroup.PUT("/actors/:id/attributes", h.SetActorAttribute)
		apiGroup.POST("/pools", h.AddPrizePool)
		apiGroup.GET("/pools/:id/peek", h.PeekPrizePool)

		// 存档相关
		apiGroup.POST("/saves", h.SaveGame)
		apiGroup.GET("/saves", h.ListSaves)
		apiGroup.POST("/saves/load", h.LoadGame)
		apiGroup.DELETE("/saves/:id", h.DeleteSave)

		apiGroup.GET("/stream", h.Stream)
	}
}

// respondError 按错误类型返回状态码
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrInvalidAction):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrInsufficient), errors.Is(err, services.ErrBusy), errors.Is(err, services.ErrStaleSession):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		log.Printf("❌ [API] %s %s: %v\n", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// GetState 当前世界状态
func (h *Handler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Snapshot())
}

// Step 手动推进一个阶段步骤
func (h *Handler) Step(c *gin.Context) {
	progressed, err := h.engine.Step(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	w := h.engine.Snapshot()
	c.JSON(http.StatusOK, gin.H{"progressed": progressed, "round": w.Round})
}

func (h *Handler) Pause(c *gin.Context) {
	h.roundAction(c, h.engine.Pause())
}

func (h *Handler) Resume(c *gin.Context) {
	h.roundAction(c, h.engine.Resume())
}

// Stop 作废进行中的行动并暂停
func (h *Handler) Stop(c *gin.Context) {
	h.roundAction(c, h.engine.Stop())
}

// SetManualOrder 设置手动行动顺序
func (h *Handler) SetManualOrder(c *gin.Context) {
	var req struct {
		Order []string `json:"order" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数错误"})
		return
	}
	h.roundAction(c, h.engine.SetManualOrder(req.Order))
}

// UpdateSettings 修改回合开关
func (h *Handler) UpdateSettings(c *gin.Context) {
	var req services.RoundSettings
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数错误"})
		return
	}
	h.roundAction(c, h.engine.UpdateSettings(req))
}

func (h *Handler) roundAction(c *gin.Context, err error) {
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.engine.Snapshot().Round)
}

// QueueAction 玩家排队一个行动
func (h *Handler) QueueAction(c *gin.Context) {
	var req models.PendingAction
	if err := c.ShouldBindJSON(&req); err != nil || req.ActorID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数错误"})
		return
	}
	if err := h.engine.QueueAction(req); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"actions": h.engine.PendingActions(req.ActorID)})
}

func (h *Handler) ListActions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"actions": h.engine.PendingActions(c.Param("actorId"))})
}

// CommitTurn 玩家结束回合
func (h *Handler) CommitTurn(c *gin.Context) {
	var req struct {
		ActorID string `json:"actor_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数错误"})
		return
	}
	h.roundAction(c, h.engine.CommitTurn(req.ActorID))
}

// Rollback 回到指定日志
func (h *Handler) Rollback(c *gin.Context) {
	h.roundAction(c, h.engine.Rollback(c.Param("logId")))
}

// Regenerate 从指定日志重新生成
func (h *Handler) Regenerate(c *gin.Context) {
	h.roundAction(c, h.engine.Regenerate(c.Param("logId")))
}

func (h *Handler) ListPrompts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"prompts": h.broker.Pending()})
}

// AnswerPrompt 回应等待中的玩家输入
func (h *Handler) AnswerPrompt(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数错误"})
		return
	}
	if !h.broker.Answer(c.Param("id"), req.Text) {
		c.JSON(http.StatusNotFound, gin.H{"error": "请求不存在或已结束"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) CancelPrompt(c *gin.Context) {
	if !h.broker.Cancel(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "请求不存在或已结束"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ParseSegment 解析小说段落，生成世界
func (h *Handler) ParseSegment(c *gin.Context) {
	var req struct {
		SegmentText string `json:"segment_text" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "段落文本不能为空"})
		return
	}

	// 使用自定义LLM配置（如果有）
	worldService := h.worldService
	if custom := customLLMService(c); custom != nil {
		worldService = worldService.WithGenerator(custom)
	}

	batch, err := worldService.CreateWorldFromSegment(c.Request.Context(), req.SegmentText)
	if err != nil {
		respondError(c, err)
		return
	}
	h.saveService.ArchiveGenerated(req.SegmentText, batch)

	c.JSON(http.StatusOK, batch)
}

// customLLMService 从请求头获取自定义API配置
func customLLMService(c *gin.Context) *services.LLMService {
	apiKey := c.GetHeader("X-Custom-API-Key")
	if apiKey == "" {
		return nil
	}
	return services.NewLLMService(models.LLMConfig{
		Provider:    "openai",
		APIKey:      apiKey,
		APIBase:     c.GetHeader("X-Custom-API-Base"),
		Model:       c.GetHeader("X-Custom-API-Model"),
		Temperature: 0.7,
		MaxTokens:   2000,
	})
}

// IngestWorld 导入已生成的世界内容
func (h *Handler) IngestWorld(c *gin.Context) {
	var req services.GeneratedBatch
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数错误"})
		return
	}
	batch, err := h.worldService.Ingest(req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, batch)
}

func (h *Handler) SetWorldAttribute(c *gin.Context) {
	h.setAttribute(c, "")
}

func (h *Handler) SetActorAttribute(c *gin.Context) {
	h.setAttribute(c, c.Param("id"))
}

func (h *Handler) setAttribute(c *gin.Context, actorID string) {
	var req models.Attribute
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数错误"})
		return
	}
	if err := h.worldService.SetAttribute(actorID, req); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) SetActiveLocation(c *gin.Context) {
	var req struct {
		LocationID string `json:"location_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数错误"})
		return
	}
	h.roundAction(c, h.worldService.SetActiveLocation(req.LocationID))
}

// CreateActor 手动创建角色
func (h *Handler) CreateActor(c *gin.Context) {
	var req models.Actor
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数错误"})
		return
	}
	actor, err := h.worldService.CreateActor(req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, actor)
}

func (h *Handler) DeleteActor(c *gin.Context) {
	if err := h.worldService.DeleteActor(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handler) AddPrizePool(c *gin.Context) {
	var req models.PrizePool
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数错误"})
		return
	}
	pool, err := h.worldService.AddPrizePool(req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pool)
}

// PeekPrizePool 模拟抽奖，不修改奖池
func (h *Handler) PeekPrizePool(c *gin.Context) {
	count, err := strconv.Atoi(c.DefaultQuery("count", "1"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "count 必须是整数"})
		return
	}
	items, err := h.engine.LotteryPeek(c.Param("id"), count)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// SaveGame 保存游戏
func (h *Handler) SaveGame(c *gin.Context) {
	var req struct {
		Name        string `json:"name" binding:"required"`
		Description string `json:"description"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数错误"})
		return
	}

	save, err := h.saveService.CreateSaveGame(req.Name, req.Description)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, save)
}

// ListSaves 列出存档
func (h *Handler) ListSaves(c *gin.Context) {
	saves, err := h.saveService.ListSaveGames()
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"saves": saves})
}

// LoadGame 读取存档
func (h *Handler) LoadGame(c *gin.Context) {
	var req struct {
		SaveID string `json:"save_id" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数错误"})
		return
	}

	save, err := h.saveService.LoadSaveGame(req.SaveID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"save":  save,
		"state": h.engine.Snapshot(),
	})
}

func (h *Handler) DeleteSave(c *gin.Context) {
	if err := h.saveService.DeleteSaveGame(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

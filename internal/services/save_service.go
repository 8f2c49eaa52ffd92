package services

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/aiwuxian/abyss-engine/internal/models"
	"github.com/aiwuxian/abyss-engine/internal/storage"
)

// SaveService 存档与读档
type SaveService struct {
	storage *storage.Storage
	engine  *Engine
}

func NewSaveService(storage *storage.Storage, engine *Engine) *SaveService {
	return &SaveService{
		storage: storage,
		engine:  engine,
	}
}

// CreateSaveGame 创建存档
func (ss *SaveService) CreateSaveGame(name, description string) (*models.SaveGame, error) {
	world := ss.engine.Snapshot()

	if description == "" {
		description = fmt.Sprintf("第%d轮 - %s", world.Round.RoundNumber, actorName(world, world.Round.ActiveCharID))
		if world.Round.ActiveCharID == "" {
			description = fmt.Sprintf("第%d轮", world.Round.RoundNumber)
		}
	}

	save := &models.SaveGame{
		ID:          uuid.New().String(),
		Name:        name,
		Round:       world.Round.RoundNumber,
		Phase:       world.Round.Phase,
		Description: description,
		CreatedAt:   time.Now(),
	}

	if err := ss.storage.CreateSaveGame(save, world); err != nil {
		return nil, fmt.Errorf("创建存档失败: %w", err)
	}

	log.Printf("💾 [存档] 已创建存档: %s (第%d轮)\n", name, save.Round)

	return save, nil
}

// ListSaveGames 列出所有存档
func (ss *SaveService) ListSaveGames() ([]models.SaveGame, error) {
	return ss.storage.ListSaveGames()
}

// LoadSaveGame 读档：作废进行中的异步任务，以暂停状态恢复
func (ss *SaveService) LoadSaveGame(saveID string) (*models.SaveGame, error) {
	save, world, err := ss.storage.GetSaveGame(saveID)
	if err != nil {
		return nil, fmt.Errorf("读取存档失败: %w", err)
	}

	ss.engine.Restore(world)

	log.Printf("📂 [读档] 已加载存档: %s (第%d轮)\n", save.Name, save.Round)

	return save, nil
}

// DeleteSaveGame 删除存档
func (ss *SaveService) DeleteSaveGame(saveID string) error {
	return ss.storage.DeleteSaveGame(saveID)
}

// ArchiveGenerated 保存世界生成的原始结果
func (ss *SaveService) ArchiveGenerated(segmentText string, batch GeneratedBatch) {
	if err := ss.storage.CreateGeneratedWorld(uuid.New().String(), segmentText, batch); err != nil {
		// 归档失败不影响主流程
		log.Printf("⚠️ 保存生成结果失败: %v\n", err)
	}
}

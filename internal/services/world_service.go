package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/aiwuxian/abyss-engine/internal/models"
)

const defaultDriveWeight = 50

// GeneratedBatch 世界生成服务的输出
type GeneratedBatch struct {
	Locations  []models.Location  `json:"locations"`
	Actors     []models.Actor     `json:"actors"`
	Cards      []models.Card      `json:"cards"`
	PrizePools []models.PrizePool `json:"prize_pools,omitempty"`
}

// WorldGenerator 世界生成服务
type WorldGenerator interface {
	GenerateWorld(ctx context.Context, segment string) (GeneratedBatch, error)
}

// WorldService 世界内容的导入与手动编辑
type WorldService struct {
	engine    *Engine
	generator WorldGenerator
}

func NewWorldService(engine *Engine, generator WorldGenerator) *WorldService {
	return &WorldService{
		engine:    engine,
		generator: generator,
	}
}

// WithGenerator 使用另一个生成服务（例如请求头里的自定义模型）
func (ws *WorldService) WithGenerator(generator WorldGenerator) *WorldService {
	return &WorldService{engine: ws.engine, generator: generator}
}

// CreateWorldFromSegment 从小说段落生成世界并导入
func (ws *WorldService) CreateWorldFromSegment(ctx context.Context, segmentText string) (GeneratedBatch, error) {
	if ws.generator == nil {
		return GeneratedBatch{}, fmt.Errorf("没有配置世界生成服务: %w", ErrInvalidAction)
	}
	batch, err := ws.generator.GenerateWorld(ctx, segmentText)
	if err != nil {
		return GeneratedBatch{}, fmt.Errorf("生成世界失败: %w", err)
	}
	return ws.Ingest(batch)
}

// Ingest 导入生成结果：规范化卡牌、补全默认属性、分配ID
func (ws *WorldService) Ingest(batch GeneratedBatch) (GeneratedBatch, error) {
	var out GeneratedBatch
	err := ws.engine.commit(ws.engine.session.Begin(), func(w *models.WorldState) error {
		out = GeneratedBatch{}
		for _, loc := range batch.Locations {
			if strings.TrimSpace(loc.Name) == "" {
				continue
			}
			if loc.ID == "" {
				loc.ID = uuid.New().String()
			}
			if _, exists := w.Locations[loc.ID]; exists {
				log.Printf("⚠️ [导入] 地点 %s 已存在，跳过\n", loc.ID)
				continue
			}
			w.Locations[loc.ID] = loc
			out.Locations = append(out.Locations, loc)
		}

		for _, raw := range batch.Cards {
			var card models.Card
			w.Cards, card = models.AddCardToPool(w.Cards, raw)
			out.Cards = append(out.Cards, card)
		}

		for _, raw := range batch.Actors {
			actor, err := prepareActor(w, raw)
			if err != nil {
				return err
			}
			w.Actors[actor.ID] = actor
			out.Actors = append(out.Actors, actor)
		}

		for _, pool := range batch.PrizePools {
			pool = preparePrizePool(pool)
			w.PrizePools[pool.ID] = pool
			out.PrizePools = append(out.PrizePools, pool)
		}

		if w.Round.ActiveLocationID == "" {
			w.Round.ActiveLocationID = defaultLocation(w)
		}
		appendLogf(w, models.LogSystem, "🌍 世界生成：新增%d个地点、%d个角色、%d张卡牌",
			len(out.Locations), len(out.Actors), len(out.Cards))
		return nil
	})
	if err != nil {
		return GeneratedBatch{}, err
	}
	return out, nil
}

// CreateActor 手动添加角色
func (ws *WorldService) CreateActor(raw models.Actor) (models.Actor, error) {
	var actor models.Actor
	err := ws.engine.commit(ws.engine.session.Begin(), func(w *models.WorldState) error {
		var err error
		if actor, err = prepareActor(w, raw); err != nil {
			return err
		}
		if _, exists := w.Actors[actor.ID]; exists {
			return fmt.Errorf("角色ID %s 已存在: %w", actor.ID, ErrInvalidAction)
		}
		w.Actors[actor.ID] = actor
		appendLogf(w, models.LogSystem, "➕ %s加入了世界", actor.Name)
		return nil
	})
	return actor, err
}

// DeleteActor 删除角色；本轮顺序中的该角色会在轮到时被跳过
func (ws *WorldService) DeleteActor(actorID string) error {
	return ws.engine.commit(ws.engine.session.Begin(), func(w *models.WorldState) error {
		actor, ok := w.Actors[actorID]
		if !ok {
			return fmt.Errorf("角色 %s: %w", actorID, ErrNotFound)
		}
		delete(w.Actors, actorID)
		var order []string
		for _, id := range w.Round.DefaultOrder {
			if id != actorID {
				order = append(order, id)
			}
		}
		w.Round.DefaultOrder = order
		appendLogf(w, models.LogSystem, "➖ %s离开了世界", actor.Name)
		return nil
	})
}

// SetAttribute 修改角色或世界（actorID为空）的属性
func (ws *WorldService) SetAttribute(actorID string, attr models.Attribute) error {
	name := attr.ID
	if name == "" {
		name = attr.Name
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("属性名为空: %w", ErrInvalidAction)
	}

	return ws.engine.commit(ws.engine.session.Begin(), func(w *models.WorldState) error {
		attrs := w.Attributes
		owner := "世界"
		var actor models.Actor
		if actorID != "" {
			var ok bool
			if actor, ok = w.Actors[actorID]; !ok {
				return fmt.Errorf("角色 %s: %w", actorID, ErrNotFound)
			}
			attrs = actor.Attributes
			owner = actor.Name
		}

		if attr.Type == models.AttrText {
			models.SetText(attrs, name, attr.Text)
			appendLogf(w, models.LogSystem, "✏️ %s的%s设为「%s」", owner, name, attr.Text)
		} else {
			v := models.SetNumber(attrs, name, attr.Value)
			appendLogf(w, models.LogSystem, "✏️ %s的%s设为%.0f", owner, name, v)
		}
		if actorID != "" {
			w.Actors[actorID] = actor
		}
		return nil
	})
}

// AddPrizePool 添加或替换奖池
func (ws *WorldService) AddPrizePool(pool models.PrizePool) (models.PrizePool, error) {
	pool = preparePrizePool(pool)
	err := ws.engine.commit(ws.engine.session.Begin(), func(w *models.WorldState) error {
		for _, id := range pool.LocationIDs {
			if _, ok := w.Locations[id]; !ok {
				return fmt.Errorf("地点 %s: %w", id, ErrNotFound)
			}
		}
		w.PrizePools[pool.ID] = pool
		return nil
	})
	return pool, err
}

// SetActiveLocation 切换当前观察的地点，从下一轮起生效
func (ws *WorldService) SetActiveLocation(locationID string) error {
	return ws.engine.commit(ws.engine.session.Begin(), func(w *models.WorldState) error {
		loc, ok := w.Locations[locationID]
		if !ok {
			return fmt.Errorf("地点 %s: %w", locationID, ErrNotFound)
		}
		w.Round.ActiveLocationID = locationID
		appendLogf(w, models.LogSystem, "📍 镜头转向%s", loc.Name)
		return nil
	})
}

func prepareActor(w *models.WorldState, a models.Actor) (models.Actor, error) {
	a.Name = strings.TrimSpace(a.Name)
	if a.Name == "" {
		return models.Actor{}, fmt.Errorf("角色名为空: %w", ErrInvalidAction)
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a = a.Clone()

	attrs := models.DefaultActorAttributes()
	for key, attr := range a.Attributes {
		if k, ok := models.ResolveAttributeKey(attrs, key); ok {
			key = k
		}
		if attr.ID == "" {
			attr.ID = key
		}
		if attr.Type == "" {
			attr.Type = models.AttrNumber
		}
		if attr.Type == models.AttrNumber {
			attr.Value = models.ClampAttribute(key, attr.Value)
		}
		attrs[key] = attr
	}
	a.Attributes = attrs

	for i, skill := range a.Skills {
		skill = models.NormalizeCard(skill)
		if skill.ID == "" {
			skill.ID = uuid.New().String()
		}
		a.Skills[i] = skill
	}
	for i := range a.Conflicts {
		if a.Conflicts[i].ID == "" {
			a.Conflicts[i].ID = uuid.New().String()
		}
	}
	for i := range a.Drives {
		if a.Drives[i].ID == "" {
			a.Drives[i].ID = uuid.New().String()
		}
		if a.Drives[i].Weight <= 0 {
			a.Drives[i].Weight = defaultDriveWeight
		}
	}

	// 生成服务可能用地点名代替ID
	if _, ok := w.Locations[a.LocationID]; !ok && a.LocationID != "" {
		for id, loc := range w.Locations {
			if loc.Name == a.LocationID {
				a.LocationID = id
				break
			}
		}
	}
	if a.LocationID == "" {
		a.LocationID = w.Round.ActiveLocationID
	}

	var inventory []string
	for _, ref := range a.Inventory {
		if _, ok := models.FindCard(w.Cards, ref); ok {
			inventory = append(inventory, ref)
		} else if c, ok := models.FindCardByName(w.Cards, ref); ok {
			inventory = append(inventory, c.ID)
		}
	}
	a.Inventory = inventory
	return a, nil
}

func preparePrizePool(pool models.PrizePool) models.PrizePool {
	if pool.ID == "" {
		pool.ID = uuid.New().String()
	}
	items := make([]models.PrizeItem, 0, len(pool.Items))
	for _, item := range pool.Items {
		if item.ID == "" {
			item.ID = uuid.New().String()
		}
		if item.Weight <= 0 {
			item.Weight = 1
		}
		items = append(items, item)
	}
	pool.Items = items
	if pool.MinDraws <= 0 {
		pool.MinDraws = 1
	}
	if pool.MaxDraws > 0 && pool.MaxDraws < pool.MinDraws {
		pool.MaxDraws = pool.MinDraws
	}
	return pool
}

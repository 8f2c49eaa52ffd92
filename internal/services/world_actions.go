package services

import (
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/aiwuxian/abyss-engine/internal/models"
)

const (
	arrivalConflictReward = 5
	depositItemWeight     = 10
)

// Move 角色移动到相邻或任意已知地点，不改变当前观察的地点
func (e *Engine) Move(token uint64, actorID, locationID string) error {
	err := e.commit(token, func(w *models.WorldState) error {
		actor, ok := w.Actors[actorID]
		if !ok {
			return fmt.Errorf("角色 %s: %w", actorID, ErrNotFound)
		}
		loc, ok := w.Locations[locationID]
		if !ok {
			return fmt.Errorf("地点 %s: %w", locationID, ErrNotFound)
		}
		if actor.LocationID == locationID {
			return fmt.Errorf("%s已经在%s: %w", actor.Name, loc.Name, ErrInvalidAction)
		}
		if physique := actor.Number(models.AttrPhysique); !actor.IsEnvironment() && physique < float64(e.cfg.MoveMinPhysique) {
			return &ResourceError{ActorName: actor.Name, Resource: "体能", Need: float64(e.cfg.MoveMinPhysique), Have: physique}
		}

		actor.LocationID = locationID
		actor.Conflicts = append(actor.Conflicts, models.Conflict{
			ID:          uuid.New().String(),
			Description: fmt.Sprintf("刚到达%s，还不熟悉这里", loc.Name),
			Reward:      arrivalConflictReward,
		})
		models.AddNumber(actor.Attributes, models.AttrActive, e.cfg.ActivityPerAction)
		w.Actors[actorID] = actor
		appendLogf(w, models.LogAction, "🚶 %s来到了%s", actor.Name, loc.Name)
		return nil
	})
	return e.reportShortage(token, "移动", err)
}

// CreateCard 花费创造点创造新卡牌，出售价值为成本的一半
func (e *Engine) CreateCard(token uint64, actorID string, raw models.Card) (models.Card, error) {
	var created models.Card
	err := e.commit(token, func(w *models.WorldState) error {
		actor, ok := w.Actors[actorID]
		if !ok {
			return fmt.Errorf("角色 %s: %w", actorID, ErrNotFound)
		}
		card := models.NormalizeCard(raw)
		if card.Name == "" {
			return fmt.Errorf("卡牌名称为空: %w", ErrInvalidAction)
		}
		cost := float64(card.Cost)
		if have := actor.Number(models.AttrCP); have < cost {
			return &ResourceError{ActorName: actor.Name, Resource: "创造点", Need: cost, Have: have}
		}
		if err := e.spendActionPoint(w, actor); err != nil {
			return err
		}

		card.ID = ""
		card.Value = card.Cost / 2
		w.Cards, created = models.AddCardToPool(w.Cards, card)
		actor.Inventory = append(slices.Clone(actor.Inventory), created.ID)
		models.AddNumber(actor.Attributes, models.AttrCP, -cost)
		models.AddNumber(actor.Attributes, models.AttrActive, e.cfg.ActivityPerAction)
		w.Actors[actorID] = actor
		appendLogf(w, models.LogAction, "✨ %s花费%d创造点创造了「%s」", actor.Name, card.Cost, created.Name)
		return nil
	})
	return created, e.reportShortage(token, "创造卡牌", err)
}

// RedeemReward 用背包中的奖励卡换取一张新卡
func (e *Engine) RedeemReward(token uint64, actorID, cardID string, raw models.Card) (models.Card, error) {
	var redeemed models.Card
	err := e.commit(token, func(w *models.WorldState) error {
		actor, ok := w.Actors[actorID]
		if !ok {
			return fmt.Errorf("角色 %s: %w", actorID, ErrNotFound)
		}
		old, _ := models.FindCard(w.Cards, cardID)
		if !actor.RemoveInventoryOnce(cardID) {
			return fmt.Errorf("%s的背包里没有 %s: %w", actor.Name, cardID, ErrNotFound)
		}
		card := models.NormalizeCard(raw)
		if card.Name == "" {
			return fmt.Errorf("奖励卡牌名称为空: %w", ErrInvalidAction)
		}
		card.ID = ""
		w.Cards, redeemed = models.AddCardToPool(w.Cards, card)
		actor.Inventory = append(actor.Inventory, redeemed.ID)
		w.Actors[actorID] = actor
		appendLogf(w, models.LogAction, "🎁 %s用「%s」兑换了「%s」", actor.Name, old.Name, redeemed.Name)
		return nil
	})
	return redeemed, err
}

// LotteryDraw 按权重不放回抽奖，抽数受奖池上下限约束，抽中的奖品移出奖池
func (e *Engine) LotteryDraw(token uint64, actorID, poolID string, count int) ([]models.Card, error) {
	var drawn []models.Card
	err := e.commit(token, func(w *models.WorldState) error {
		actor, ok := w.Actors[actorID]
		if !ok {
			return fmt.Errorf("角色 %s: %w", actorID, ErrNotFound)
		}
		pool, ok := w.PrizePools[poolID]
		if !ok {
			return fmt.Errorf("奖池 %s: %w", poolID, ErrNotFound)
		}
		if len(pool.LocationIDs) > 0 && !slices.Contains(pool.LocationIDs, actor.LocationID) {
			return fmt.Errorf("%s不在奖池「%s」所在地点: %w", actor.Name, pool.Name, ErrInvalidAction)
		}
		if len(pool.Items) == 0 {
			return fmt.Errorf("奖池「%s」已经空了: %w", pool.Name, ErrInvalidAction)
		}
		if err := e.spendActionPoint(w, actor); err != nil {
			return err
		}

		picked := e.sampleItems(pool, count)
		items := make([]models.PrizeItem, 0, len(pool.Items)-len(picked))
		for i, item := range pool.Items {
			if !slices.Contains(picked, i) {
				items = append(items, item)
			}
		}

		for _, i := range picked {
			var card models.Card
			w.Cards, card = models.AddCardToPool(w.Cards, prizeToCard(pool.Items[i]))
			actor.Inventory = append(slices.Clone(actor.Inventory), card.ID)
			drawn = append(drawn, card)
		}
		pool.Items = items
		w.PrizePools[poolID] = pool
		w.Actors[actorID] = actor

		names := make([]string, len(drawn))
		for i, c := range drawn {
			names[i] = "「" + c.Name + "」"
		}
		appendLogf(w, models.LogAction, "🎰 %s在「%s」抽中了%s", actor.Name, pool.Name, strings.Join(names, "、"))
		return nil
	})
	return drawn, e.reportShortage(token, "抽奖", err)
}

// LotteryDeposit 把背包卡牌放回奖池
func (e *Engine) LotteryDeposit(token uint64, actorID, poolID string, cardIDs []string) error {
	return e.commit(token, func(w *models.WorldState) error {
		actor, ok := w.Actors[actorID]
		if !ok {
			return fmt.Errorf("角色 %s: %w", actorID, ErrNotFound)
		}
		pool, ok := w.PrizePools[poolID]
		if !ok {
			return fmt.Errorf("奖池 %s: %w", poolID, ErrNotFound)
		}
		for _, id := range cardIDs {
			card, ok := models.FindCard(w.Cards, id)
			if !ok || !actor.RemoveInventoryOnce(id) {
				return fmt.Errorf("%s的背包里没有 %s: %w", actor.Name, id, ErrNotFound)
			}
			pool.Items = append(slices.Clone(pool.Items), models.PrizeItem{
				ID:          uuid.New().String(),
				Name:        card.Name,
				Description: card.Description,
				Weight:      depositItemWeight,
				ItemType:    card.ItemType,
				TriggerType: card.TriggerType,
				Effects:     slices.Clone(card.Effects),
			})
			appendLogf(w, models.LogAction, "📦 %s把「%s」放入了「%s」", actor.Name, card.Name, pool.Name)
		}
		w.PrizePools[poolID] = pool
		w.Actors[actorID] = actor
		return nil
	})
}

// LotteryPeek 模拟一次抽奖，不修改奖池
func (e *Engine) LotteryPeek(poolID string, count int) ([]models.PrizeItem, error) {
	pool, ok := e.current().PrizePools[poolID]
	if !ok {
		return nil, fmt.Errorf("奖池 %s: %w", poolID, ErrNotFound)
	}
	var out []models.PrizeItem
	for _, i := range e.sampleItems(pool, count) {
		out = append(out, pool.Items[i])
	}
	return out, nil
}

// sampleItems 抽数裁剪到 [MinDraws, MaxDraws] 且不超过奖品数量
func (e *Engine) sampleItems(pool models.PrizePool, count int) []int {
	if floor := max(pool.MinDraws, 1); count < floor {
		count = floor
	}
	if pool.MaxDraws > 0 && count > pool.MaxDraws {
		count = pool.MaxDraws
	}
	weights := make([]float64, len(pool.Items))
	for i, item := range pool.Items {
		weights[i] = float64(item.Weight)
	}
	return e.rules.WeightedSample(weights, count)
}

// spendActionPoint 玩家的创造与抽奖消耗一点行动点
func (e *Engine) spendActionPoint(w *models.WorldState, actor models.Actor) error {
	if !actor.IsPlayer {
		return nil
	}
	if w.Round.ActionPoints < 1 {
		return &ResourceError{ActorName: actor.Name, Resource: "行动点", Need: 1, Have: float64(w.Round.ActionPoints)}
	}
	w.Round.ActionPoints--
	return nil
}

// reportShortage 资源不足时单独记录一条日志，原错误继续返回
func (e *Engine) reportShortage(token uint64, label string, err error) error {
	var re *ResourceError
	if !errors.As(err, &re) {
		return err
	}
	log.Printf("⚠️ [%s] %v\n", label, re)
	if lerr := e.logLine(token, models.LogSystem, fmt.Sprintf("%s失败：%v", label, re)); lerr != nil {
		return lerr
	}
	return err
}

func prizeToCard(item models.PrizeItem) models.Card {
	itemType := item.ItemType
	if itemType == "" {
		itemType = models.ItemConsumable
	}
	return models.Card{
		Name:        item.Name,
		Description: item.Description,
		ItemType:    itemType,
		TriggerType: item.TriggerType,
		Effects:     slices.Clone(item.Effects),
	}
}

package models

import (
	"strings"

	"github.com/google/uuid"
)

const (
	MaxEffectsPerCard = 2
	effectValueLimit  = 10
)

// NormalizeCard 规范化卡牌：补默认值、截断效果数量、裁剪效果数值。
// 纯函数，对已规范化的卡牌再次调用结果不变。
func NormalizeCard(raw Card) Card {
	card := raw
	card.Name = strings.TrimSpace(raw.Name)
	card.Description = strings.TrimSpace(raw.Description)

	switch raw.ItemType {
	case ItemSkill, ItemConsumable:
	default:
		card.ItemType = ItemSkill
	}

	switch raw.TriggerType {
	case TriggerActive, TriggerPassive, TriggerReaction, TriggerSettlement, TriggerHiddenSettlement:
	default:
		card.TriggerType = TriggerActive
	}

	if card.Cost < 0 {
		card.Cost = 0
	}
	if card.Value < 0 {
		card.Value = 0
	}

	n := len(raw.Effects)
	if n > MaxEffectsPerCard {
		n = MaxEffectsPerCard
	}
	card.Effects = make([]Effect, 0, n)
	for _, e := range raw.Effects[:n] {
		card.Effects = append(card.Effects, normalizeEffect(e))
	}
	return card
}

func normalizeEffect(e Effect) Effect {
	switch e.TargetType {
	case TargetSelf, TargetSpecificChar, TargetAIChoice, TargetHit, TargetWorld:
	default:
		e.TargetType = TargetHit
	}
	e.TargetAttribute = strings.TrimSpace(e.TargetAttribute)
	e.ConditionDescription = strings.TrimSpace(e.ConditionDescription)
	e.Value = ClampEffectValue(e.Value)
	return e
}

// FindCard 按ID查找卡池中的卡牌
func FindCard(pool []Card, id string) (Card, bool) {
	for _, c := range pool {
		if c.ID == id {
			return c, true
		}
	}
	return Card{}, false
}

// FindCardByIdentity 按名称+描述查找相同定义
func FindCardByIdentity(pool []Card, name, description string) (Card, bool) {
	name = strings.TrimSpace(name)
	description = strings.TrimSpace(description)
	for _, c := range pool {
		if c.Name == name && c.Description == description {
			return c, true
		}
	}
	return Card{}, false
}

// FindCardByName 按名称查找卡牌定义
func FindCardByName(pool []Card, name string) (Card, bool) {
	name = strings.TrimSpace(name)
	for _, c := range pool {
		if c.Name == name {
			return c, true
		}
	}
	return Card{}, false
}

// AddCardToPool 规范化卡牌并放入全局卡池；名称与描述相同的定义直接复用
func AddCardToPool(pool []Card, raw Card) ([]Card, Card) {
	card := NormalizeCard(raw)
	if existing, ok := FindCardByIdentity(pool, card.Name, card.Description); ok {
		return pool, existing
	}
	if card.ID == "" {
		card.ID = uuid.New().String()
	}
	return append(pool, card), card
}

// ClampEffectValue 单个效果数值限制在 ±10
func ClampEffectValue(v int) int {
	if v > effectValueLimit {
		return effectValueLimit
	}
	if v < -effectValueLimit {
		return -effectValueLimit
	}
	return v
}

package models

import (
	"slices"
	"strings"
)

// EnvironmentPrefix 环境角色ID前缀
const EnvironmentPrefix = "env_"

// IsEnvironment 是否为环境伪角色
func (a Actor) IsEnvironment() bool {
	return strings.HasPrefix(a.ID, EnvironmentPrefix)
}

// IsDead 健康值不大于0即视为死亡，环境角色不会死亡
func (a Actor) IsDead() bool {
	return !a.IsEnvironment() && GetNumber(a.Attributes, AttrHealth) <= 0
}

// Number 读取角色数值属性
func (a Actor) Number(name string) float64 {
	return GetNumber(a.Attributes, name)
}

// OwnedCards 返回角色的技能和背包卡牌（背包通过卡池解析）
func (a Actor) OwnedCards(pool []Card) []Card {
	cards := make([]Card, 0, len(a.Skills)+len(a.Inventory))
	cards = append(cards, a.Skills...)
	for _, id := range a.Inventory {
		if c, ok := FindCard(pool, id); ok {
			cards = append(cards, c)
		}
	}
	return cards
}

// RemoveInventoryOnce 从背包移除一个指定卡牌实例
func (a *Actor) RemoveInventoryOnce(cardID string) bool {
	idx := slices.Index(a.Inventory, cardID)
	if idx < 0 {
		return false
	}
	a.Inventory = slices.Delete(slices.Clone(a.Inventory), idx, idx+1)
	return true
}

// Clone 深拷贝角色
func (a Actor) Clone() Actor {
	out := a
	out.Attributes = cloneAttributes(a.Attributes)
	out.Skills = cloneCards(a.Skills)
	out.Inventory = slices.Clone(a.Inventory)
	out.Conflicts = slices.Clone(a.Conflicts)
	out.Drives = slices.Clone(a.Drives)
	return out
}

// Clone 深拷贝回合状态
func (r RoundState) Clone() RoundState {
	out := r
	out.CurrentOrder = slices.Clone(r.CurrentOrder)
	out.DefaultOrder = slices.Clone(r.DefaultOrder)
	return out
}

// Clone 深拷贝整个世界状态
func (w *WorldState) Clone() *WorldState {
	if w == nil {
		return nil
	}
	out := &WorldState{
		Cards:      cloneCards(w.Cards),
		Round:      w.Round.Clone(),
		Attributes: cloneAttributes(w.Attributes),
		Actors:     make(map[string]Actor, len(w.Actors)),
		PrizePools: make(map[string]PrizePool, len(w.PrizePools)),
		Locations:  make(map[string]Location, len(w.Locations)),
		History:    make([]LogEntry, len(w.History)),
	}
	for id, a := range w.Actors {
		out.Actors[id] = a.Clone()
	}
	for id, p := range w.PrizePools {
		p.LocationIDs = slices.Clone(p.LocationIDs)
		items := make([]PrizeItem, len(p.Items))
		for i, it := range p.Items {
			it.Effects = slices.Clone(it.Effects)
			items[i] = it
		}
		p.Items = items
		out.PrizePools[id] = p
	}
	for id, l := range w.Locations {
		l.Connections = slices.Clone(l.Connections)
		out.Locations[id] = l
	}
	for i, e := range w.History {
		if e.Snapshot != nil {
			snap := e.Snapshot.Clone()
			e.Snapshot = &snap
		}
		out.History[i] = e
	}
	return out
}

// NewWorldState 创建空世界
func NewWorldState() *WorldState {
	return &WorldState{
		Actors:     make(map[string]Actor),
		PrizePools: make(map[string]PrizePool),
		Locations:  make(map[string]Location),
		Attributes: make(map[string]Attribute),
		Round: RoundState{
			RoundNumber:  1,
			Phase:        PhaseInit,
			IsPaused:     true,
			ActionPoints: DefaultGameConfig().MaxActionPoints,
		},
	}
}

func cloneAttributes(in map[string]Attribute) map[string]Attribute {
	if in == nil {
		return make(map[string]Attribute)
	}
	out := make(map[string]Attribute, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneCards(in []Card) []Card {
	if in == nil {
		return nil
	}
	out := make([]Card, len(in))
	for i, c := range in {
		c.Effects = slices.Clone(c.Effects)
		out[i] = c
	}
	return out
}

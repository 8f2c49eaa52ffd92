package services

import (
	"math"
	"sort"
	"strings"

	"github.com/aiwuxian/abyss-engine/internal/models"
)

// ResolveTurnOrder 计算本轮行动顺序。返回空切片表示没有可行动的角色，调用方需要暂停。
func ResolveTurnOrder(w *models.WorldState, locationID string, cfg models.GameConfig, rules *RuleEngine) []string {
	var eligible []models.Actor
	for _, id := range sortedActorIDs(w) {
		a := w.Actors[id]
		if a.LocationID != locationID {
			continue
		}
		// 隐藏回合只保留环境角色和持有隐藏回合卡的角色
		if w.Round.IsHiddenRound && !a.IsEnvironment() && !holdsHiddenRoundCard(a, w.Cards, cfg.HiddenRoundCard) {
			continue
		}
		if a.IsDead() {
			continue
		}
		eligible = append(eligible, a)
	}

	var envs, players, npcs []models.Actor
	for _, a := range eligible {
		switch {
		case a.IsEnvironment():
			envs = append(envs, a)
		case a.IsPlayer:
			players = append(players, a)
		default:
			npcs = append(npcs, a)
		}
	}

	if w.Round.IsHiddenRound {
		normal := append(append([]models.Actor{}, players...), npcs...)
		sortByPhysique(normal)
		order := actorIDs(normal)
		for _, env := range envs {
			order = append(order, env.ID)
		}
		return order
	}

	participants := append([]models.Actor{}, players...)
	participants = append(participants, pickNPCs(npcs, cfg.MaxNPCsPerRound, rules)...)
	sortByPhysique(participants)
	order := actorIDs(participants)

	if len(envs) > 0 && rules.Chance(math.Min(1, float64(len(order))*0.2)) {
		order = append(order, envs[rules.Intn(len(envs))].ID)
	}
	return order
}

// pickNPCs 按 活跃+2 的权重不放回抽取候选，活跃最高者必定入选，其余以 (活跃+2)/100 的概率入选
func pickNPCs(npcs []models.Actor, limit int, rules *RuleEngine) []models.Actor {
	if limit <= 0 || len(npcs) == 0 {
		return nil
	}
	weights := make([]float64, len(npcs))
	for i, a := range npcs {
		weights[i] = math.Max(1, a.Number(models.AttrActive)+2)
	}
	idx := rules.WeightedSample(weights, limit)
	if len(idx) == 0 {
		return nil
	}

	best := idx[0]
	for _, i := range idx[1:] {
		if npcs[i].Number(models.AttrActive) > npcs[best].Number(models.AttrActive) {
			best = i
		}
	}

	var picked []models.Actor
	for _, i := range idx {
		if i == best || rules.Chance((npcs[i].Number(models.AttrActive)+2)/100) {
			picked = append(picked, npcs[i])
		}
	}
	return picked
}

func holdsHiddenRoundCard(a models.Actor, pool []models.Card, marker string) bool {
	if marker == "" {
		return false
	}
	for _, c := range a.OwnedCards(pool) {
		if strings.Contains(c.Name, marker) {
			return true
		}
	}
	return false
}

func sortByPhysique(actors []models.Actor) {
	sort.SliceStable(actors, func(i, j int) bool {
		return actors[i].Number(models.AttrPhysique) > actors[j].Number(models.AttrPhysique)
	})
}

func actorIDs(actors []models.Actor) []string {
	ids := make([]string, len(actors))
	for i, a := range actors {
		ids[i] = a.ID
	}
	return ids
}

// sortedActorIDs 固定遍历顺序，保证同一种子下结果可复现
func sortedActorIDs(w *models.WorldState) []string {
	ids := make([]string, 0, len(w.Actors))
	for id := range w.Actors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

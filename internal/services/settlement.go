package services

import (
	"context"
	"fmt"
	"log"
	"math"

	"github.com/aiwuxian/abyss-engine/internal/models"
)

// settle 回合边界：同步完成衰减与恢复并进入下一轮的 init，
// 矛盾和驱动力的判定随后在后台进行，不阻塞下一轮。
func (e *Engine) settle(token uint64, withAI bool) error {
	var (
		items []SettlementItem
		wctx  WorldContext
		round int
	)
	err := e.commit(token, func(w *models.WorldState) error {
		round = w.Round.RoundNumber
		if withAI {
			items = settlementItems(w)
			wctx = buildWorldContext(w)
		}
		e.applySettlementCards(w)
		e.decayActors(w)
		e.rollWeather(w)

		w.Round.RoundNumber++
		w.Round.ActionPoints = min(w.Round.ActionPoints+e.cfg.ActionPointRecovery, e.cfg.MaxActionPoints)
		w.Round.TurnIndex = 0
		w.Round.CurrentOrder = nil
		w.Round.ActiveCharID = ""
		w.Round.IsHiddenRound = false
		if err := e.phases.advance(w, evNextRound); err != nil {
			return err
		}
		appendLogf(w, models.LogSettlement, "━━━ 第%d轮结束 ━━━", round)
		return nil
	})
	if err != nil || len(items) == 0 {
		return err
	}

	log.Printf("⚖️ [结算] 第%d轮 待判定 %d 项\n", round, len(items))
	e.spawn(token, "结算评估", func(ctx context.Context) (func(*models.WorldState) error, error) {
		res, err := e.decider.EvaluateSettlement(ctx, SettlementRequest{Items: items, World: wctx})
		if err != nil {
			return nil, fmt.Errorf("第%d轮结算评估: %w", round, err)
		}
		return func(w *models.WorldState) error {
			applySettlementResult(w, items, res, round)
			return nil
		}, nil
	})
	return nil
}

// decayActors 快感×0.8，体能恢复到100差值的20%，活跃×0.8取整，驱动力权重-10并移除归零项
func (e *Engine) decayActors(w *models.WorldState) {
	for _, id := range sortedActorIDs(w) {
		actor := w.Actors[id]
		if actor.IsEnvironment() {
			continue
		}
		if models.HasAttribute(actor.Attributes, models.AttrPleasure) {
			models.SetNumber(actor.Attributes, models.AttrPleasure, actor.Number(models.AttrPleasure)*e.cfg.PleasureDecay)
		}
		if models.HasAttribute(actor.Attributes, models.AttrPhysique) {
			p := actor.Number(models.AttrPhysique)
			models.SetNumber(actor.Attributes, models.AttrPhysique, p+(100-p)*e.cfg.PhysiqueRecovery)
		}
		if models.HasAttribute(actor.Attributes, models.AttrActive) {
			models.SetNumber(actor.Attributes, models.AttrActive, math.Round(actor.Number(models.AttrActive)*e.cfg.ActivityDecay))
		}

		drives := actor.Drives[:0:0]
		for _, d := range actor.Drives {
			d.Weight -= e.cfg.DriveWeightDecay
			if d.Weight > 0 {
				drives = append(drives, d)
			}
		}
		actor.Drives = drives
		w.Actors[id] = actor
	}
}

// applySettlementCards 结算卡牌的效果无条件生效；隐藏结算卡只在隐藏回合生效
func (e *Engine) applySettlementCards(w *models.WorldState) {
	for _, id := range sortedActorIDs(w) {
		actor := w.Actors[id]
		if actor.IsDead() {
			continue
		}
		for _, card := range actor.OwnedCards(w.Cards) {
			fires := card.TriggerType == models.TriggerSettlement ||
				(card.TriggerType == models.TriggerHiddenSettlement && w.Round.IsHiddenRound)
			if !fires {
				continue
			}
			for _, eff := range card.Effects {
				recipient := id
				if eff.TargetType == models.TargetWorld {
					recipient = ""
				}
				e.applyEffect(w, recipient, eff.TargetAttribute, eff.Value, Verdict{Result: true})
			}
			appendLogf(w, models.LogSettlement, "⏳ %s的「%s」在结算时生效", actor.Name, card.Name)
		}
	}
}

func (e *Engine) rollWeather(w *models.WorldState) {
	if len(e.cfg.Weathers) == 0 || !e.rules.Chance(e.cfg.WeatherChangeChance) {
		return
	}
	current := models.GetText(w.Attributes, models.AttrWeather)
	next := e.cfg.Weathers[e.rules.Intn(len(e.cfg.Weathers))]
	if next == current {
		return
	}
	models.SetText(w.Attributes, models.AttrWeather, next)
	appendLogf(w, models.LogSettlement, "🌦 天气变为%s", next)
}

// settlementItems 收集存活角色未解决的矛盾和未满足的驱动力
func settlementItems(w *models.WorldState) []SettlementItem {
	var items []SettlementItem
	for _, id := range sortedActorIDs(w) {
		actor := w.Actors[id]
		if actor.IsEnvironment() || actor.IsDead() {
			continue
		}
		for _, c := range actor.Conflicts {
			if !c.Solved {
				items = append(items, SettlementItem{ID: settlementKey(id, c.ID), ActorID: id, Kind: "conflict", Description: c.Description})
			}
		}
		for _, d := range actor.Drives {
			if !d.Fulfilled {
				items = append(items, SettlementItem{ID: settlementKey(id, d.ID), ActorID: id, Kind: "drive", Description: d.Condition})
			}
		}
	}
	return items
}

// applySettlementResult 解决的矛盾与满足的驱动力发放创造点，已解决的不会重复发放
func applySettlementResult(w *models.WorldState, items []SettlementItem, res SettlementResult, round int) {
	for _, item := range items {
		reason, ok := res.Resolved[item.ID]
		if !ok {
			continue
		}
		actor, exists := w.Actors[item.ActorID]
		if !exists {
			continue
		}

		reward, changed := 0, false
		switch item.Kind {
		case "conflict":
			for i, c := range actor.Conflicts {
				if settlementKey(actor.ID, c.ID) == item.ID && !c.Solved {
					actor.Conflicts[i].Solved = true
					actor.Conflicts[i].SolvedRound = round
					reward, changed = c.Reward, true
				}
			}
		case "drive":
			for i, d := range actor.Drives {
				if settlementKey(actor.ID, d.ID) == item.ID && !d.Fulfilled {
					actor.Drives[i].Fulfilled = true
					reward, changed = d.Reward, true
				}
			}
		}
		if !changed {
			continue
		}
		if reward > 0 {
			models.AddNumber(actor.Attributes, models.AttrCP, float64(reward))
		}
		w.Actors[actor.ID] = actor
		appendLogf(w, models.LogSettlement, "🏆 %s：%s（+%d创造点）%s", actor.Name, item.Description, reward, reason)
	}
}

func settlementKey(actorID, itemID string) string {
	return actorID + "/" + itemID
}

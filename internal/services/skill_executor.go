package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/aiwuxian/abyss-engine/internal/models"
)

// SkillRequest 一次技能/道具使用
type SkillRequest struct {
	SourceID  string
	CardID    string
	TargetID  string
	Overrides map[int]int // 效果下标 -> 指定数值
	BurnLife  bool
}

// passiveSource 目标身上可能被触发的被动卡牌
type passiveSource struct {
	card models.Card
	// 请求ID，与 card.Effects 下标一一对应
	requestIDs []string
}

// effectOutcome 一次效果结算
type effectOutcome struct {
	actorID string
	attr    string
	delta   float64
}

// ExecuteSkill 技能/效果执行流水线：扣费、选目标、反应、条件评估、交易、效果结算、活跃度、消耗品、事后反应
func (e *Engine) ExecuteSkill(ctx context.Context, token uint64, req SkillRequest) error {
	w := e.current()
	source, ok := w.Actors[req.SourceID]
	if !ok {
		return fmt.Errorf("角色 %s: %w", req.SourceID, ErrNotFound)
	}
	card, ok := findOwnedCard(source, w.Cards, req.CardID)
	if !ok {
		return fmt.Errorf("%s没有卡牌 %s: %w", source.Name, req.CardID, ErrNotFound)
	}

	// 1. 扣除体能，不足部分扣健康
	if card.TriggerType == models.TriggerActive && !source.IsEnvironment() {
		if err := e.commit(token, func(w *models.WorldState) error {
			e.payCost(w, req.SourceID, req.BurnLife)
			return nil
		}); err != nil {
			return err
		}
	}

	// 2. 选择目标
	w = e.current()
	targetID := e.resolveTarget(w, source, card, req.TargetID)
	target := w.Actors[targetID]

	if err := e.logLine(token, models.LogAction, describeUse(source, target, card)); err != nil {
		return err
	}

	// 3. 反应
	var preReaction string
	if card.TriggerType == models.TriggerReaction && len(card.Effects) > 0 {
		text, err := e.solicitReaction(ctx, token, targetID,
			fmt.Sprintf("%s对你使用了「%s」", source.Name, card.Name), card.Description)
		if err != nil {
			return err
		}
		preReaction = text
	}
	if len(card.Effects) == 0 {
		// 纯扮演行动：只收集目标的反应
		return e.collectReactions(ctx, token, []string{targetID}, source, card)
	}

	// 4. 构建条件评估批次
	w = e.current()
	requests, passives := buildConditionBatch(w, source, target, card, preReaction)

	// 5. 批量评估；环境效果无条件成功
	var verdicts map[string]Verdict
	if card.Effects[0].TargetType == models.TargetWorld {
		verdicts = make(map[string]Verdict, len(requests))
		for _, r := range requests {
			verdicts[r.ID] = Verdict{Result: true, Reason: "环境效果"}
		}
	} else {
		var err error
		verdicts, err = e.decider.EvaluateBatch(ctx, requests, buildWorldContext(w))
		if err != nil {
			return fmt.Errorf("评估「%s」的条件: %w", card.Name, err)
		}
		if err := e.session.Check(token); err != nil {
			return err
		}
	}

	// 6. 交易
	if trade := verdicts[activeRequestID(0)].Trade; trade != nil {
		return e.settleTrade(token, req.SourceID, targetID, *trade)
	}

	// 7-9. 效果结算、活跃度、消耗品
	var outcomes []effectOutcome
	hit := verdicts[activeRequestID(0)].Result
	if err := e.commit(token, func(w *models.WorldState) error {
		outcomes = e.applyCard(w, req, card, targetID, verdicts, passives)
		return nil
	}); err != nil {
		return err
	}

	// 10. 事后反应
	affected := affectedActors(outcomes)
	if !hit {
		affected = appendUnique(affected, req.SourceID)
	}
	return e.collectReactions(ctx, token, affected, source, card)
}

// payCost 基础消耗20，燃命再加20；体能不足部分扣健康
func (e *Engine) payCost(w *models.WorldState, actorID string, burnLife bool) {
	actor := w.Actors[actorID]
	cost := float64(e.cfg.BaseSkillCost)
	if burnLife {
		cost += float64(e.cfg.BurnLifeCost)
	}

	physique := actor.Number(models.AttrPhysique)
	if physique >= cost {
		models.SetNumber(actor.Attributes, models.AttrPhysique, physique-cost)
		w.Actors[actorID] = actor
		return
	}

	shortfall := cost - maxFloat(physique, 0)
	models.SetNumber(actor.Attributes, models.AttrPhysique, 0)
	_, health := models.AddNumber(actor.Attributes, models.AttrHealth, -shortfall)
	w.Actors[actorID] = actor
	appendLogf(w, models.LogEffect, "🔥 %s体能不足，燃烧生命：健康 -%.0f（剩余%.0f）", actor.Name, shortfall, health)
	if health <= 0 && !actor.IsEnvironment() {
		appendLogf(w, models.LogDeath, "💀 %s倒下了", actor.Name)
	}
}

// resolveTarget 显式目标优先；第一个指向角色的效果没有静态目标时随机选同地点角色，否则回落到自己
func (e *Engine) resolveTarget(w *models.WorldState, source models.Actor, card models.Card, explicit string) string {
	if explicit != "" {
		if _, ok := w.Actors[explicit]; ok {
			return explicit
		}
	}
	for _, eff := range card.Effects {
		if eff.TargetType != models.TargetSpecificChar && eff.TargetType != models.TargetAIChoice {
			continue
		}
		if eff.TargetID != "" {
			if _, ok := w.Actors[eff.TargetID]; ok {
				return eff.TargetID
			}
		}
		var nearby []string
		for _, id := range sortedActorIDs(w) {
			a := w.Actors[id]
			if id != source.ID && a.LocationID == source.LocationID && !a.IsDead() {
				nearby = append(nearby, id)
			}
		}
		if len(nearby) == 0 {
			return source.ID
		}
		return nearby[e.rules.Intn(len(nearby))]
	}
	return source.ID
}

func buildConditionBatch(w *models.WorldState, source, target models.Actor, card models.Card, reaction string) ([]ConditionRequest, []passiveSource) {
	base := map[string]string{
		"source":      source.Name,
		"target":      target.Name,
		"card":        card.Name,
		"description": card.Description,
	}
	if reaction != "" {
		base["reaction"] = reaction
	}

	var requests []ConditionRequest
	for i, eff := range card.Effects {
		ctx := copyContext(base)
		ctx["attribute"] = eff.TargetAttribute
		ctx["role"] = "consequence"
		if i == 0 {
			ctx["role"] = "hit_check"
		}
		requests = append(requests, ConditionRequest{
			ID:                activeRequestID(i),
			Type:              RequestActive,
			Condition:         eff.ConditionDescription,
			Context:           ctx,
			NeedsDynamicValue: eff.DynamicValue,
		})
	}

	var passives []passiveSource
	if target.ID != source.ID {
		for ci, pc := range target.OwnedCards(w.Cards) {
			if pc.TriggerType != models.TriggerPassive || len(pc.Effects) == 0 {
				continue
			}
			ps := passiveSource{card: pc}
			for j, eff := range pc.Effects {
				id := fmt.Sprintf("passive-%d-%d", ci, j)
				ctx := copyContext(base)
				ctx["passive_card"] = pc.Name
				ctx["owner"] = target.Name
				ctx["attribute"] = eff.TargetAttribute
				requests = append(requests, ConditionRequest{
					ID:                id,
					Type:              RequestPassive,
					Condition:         eff.ConditionDescription,
					Context:           ctx,
					NeedsDynamicValue: eff.DynamicValue,
				})
				ps.requestIDs = append(ps.requestIDs, id)
			}
			passives = append(passives, ps)
		}
	}
	return requests, passives
}

// applyCard 在世界副本上结算主动与被动效果，返回实际生效的改变
func (e *Engine) applyCard(w *models.WorldState, req SkillRequest, card models.Card, targetID string,
	verdicts map[string]Verdict, passives []passiveSource) []effectOutcome {

	source := w.Actors[req.SourceID]
	var outcomes []effectOutcome

	if !verdicts[activeRequestID(0)].Result {
		appendLogf(w, models.LogEffect, "✖ %s的「%s」未能生效：%s", source.Name, card.Name, verdicts[activeRequestID(0)].Reason)
	} else {
		successes := 0
		for i, eff := range card.Effects {
			v := verdicts[activeRequestID(i)]
			if !v.Result {
				continue
			}
			recipient := effectRecipient(eff, req.SourceID, targetID)
			value := resolveEffectValue(eff, v, req.Overrides, i)
			if out, ok := e.applyEffect(w, recipient, eff.TargetAttribute, value, v); ok {
				outcomes = append(outcomes, out)
			}
			successes++
		}
		e.bumpActivity(w, req.SourceID, float64(successes)*e.cfg.ActivityPerEffect)
	}

	// 被动效果：拥有者为目标，命中类效果反指向使用者
	for _, ps := range passives {
		if !verdicts[ps.requestIDs[0]].Result {
			continue
		}
		appendLogf(w, models.LogEffect, "🛡 %s的被动「%s」被触发", actorName(w, targetID), ps.card.Name)
		for j, eff := range ps.card.Effects {
			v := verdicts[ps.requestIDs[j]]
			if !v.Result {
				continue
			}
			recipient := effectRecipient(eff, targetID, req.SourceID)
			value := resolveEffectValue(eff, v, nil, j)
			if out, ok := e.applyEffect(w, recipient, eff.TargetAttribute, value, v); ok {
				outcomes = append(outcomes, out)
			}
		}
	}

	if card.TriggerType == models.TriggerReaction {
		e.bumpActivity(w, req.SourceID, e.cfg.ActivityPerReaction)
	}
	for _, id := range affectedActors(outcomes) {
		if id != req.SourceID {
			e.bumpActivity(w, id, e.cfg.ActivityAffected)
		}
	}

	if card.ItemType == models.ItemConsumable {
		actor := w.Actors[req.SourceID]
		if actor.RemoveInventoryOnce(card.ID) {
			w.Actors[req.SourceID] = actor
		}
	}
	return outcomes
}

// applyEffect 修改单个属性；recipient 为空表示世界属性
func (e *Engine) applyEffect(w *models.WorldState, recipient, attr string, value int, v Verdict) (effectOutcome, bool) {
	if value == 0 || attr == "" {
		return effectOutcome{}, false
	}

	if recipient == "" {
		before, after := models.AddNumber(w.Attributes, attr, float64(value))
		appendLogf(w, models.LogEffect, "🌍 世界%s %+d（%.0f → %.0f）", attr, value, before, after)
		return effectOutcome{attr: attr, delta: after - before}, true
	}

	actor, ok := w.Actors[recipient]
	if !ok {
		return effectOutcome{}, false
	}
	if !models.HasAttribute(actor.Attributes, attr) && v.NewAttribute != nil {
		na := *v.NewAttribute
		if na.ID == "" {
			na.ID = models.CanonicalAttribute(attr)
		}
		if na.Type == "" {
			na.Type = models.AttrNumber
		}
		na.Value = models.ClampAttribute(na.ID, na.Value)
		actor.Attributes[na.ID] = na
	}
	if key, ok := models.ResolveAttributeKey(actor.Attributes, attr); ok && actor.Attributes[key].Type == models.AttrText {
		log.Printf("⚠️ [效果] %s的%s是文本属性，忽略数值效果\n", actor.Name, attr)
		return effectOutcome{}, false
	}

	before, after := models.AddNumber(actor.Attributes, attr, float64(value))
	w.Actors[recipient] = actor
	appendLogf(w, models.LogEffect, "%s的%s %+d（%.0f → %.0f）", actor.Name, attr, value, before, after)

	if models.IsHealth(attr) && !actor.IsEnvironment() && before > 0 && after <= 0 {
		appendLogf(w, models.LogDeath, "💀 %s倒下了", actor.Name)
	}
	return effectOutcome{actorID: recipient, attr: attr, delta: after - before}, true
}

func (e *Engine) bumpActivity(w *models.WorldState, actorID string, delta float64) {
	if delta == 0 {
		return
	}
	actor, ok := w.Actors[actorID]
	if !ok {
		return
	}
	models.AddNumber(actor.Attributes, models.AttrActive, delta)
	w.Actors[actorID] = actor
}

// settleTrade 交易子流程：检查付款方创造点，转移卡牌与货币
func (e *Engine) settleTrade(token uint64, sourceID, targetID string, trade TradeResult) error {
	buyerID, sellerID := sourceID, targetID
	if strings.EqualFold(trade.TransactionType, "sell") {
		buyerID, sellerID = targetID, sourceID
	}

	err := e.commit(token, func(w *models.WorldState) error {
		if trade.Price < 0 {
			return fmt.Errorf("价格不能为负(%d): %w", trade.Price, ErrInvalidAction)
		}
		if buyerID == sellerID {
			return fmt.Errorf("不能与自己交易: %w", ErrInvalidAction)
		}
		buyer, ok := w.Actors[buyerID]
		if !ok {
			return fmt.Errorf("交易方 %s: %w", buyerID, ErrInvalidAction)
		}
		seller, ok := w.Actors[sellerID]
		if !ok {
			return fmt.Errorf("交易方 %s: %w", sellerID, ErrInvalidAction)
		}
		price := float64(trade.Price)
		if have := buyer.Number(models.AttrCP); have < price {
			return &ResourceError{ActorName: buyer.Name, Resource: "创造点", Need: price, Have: have}
		}

		var cardID string
		for _, id := range seller.Inventory {
			if c, ok := models.FindCard(w.Cards, id); ok && c.Name == trade.ItemName {
				cardID = id
				break
			}
		}
		if cardID != "" {
			seller.RemoveInventoryOnce(cardID)
		} else if c, ok := models.FindCardByName(w.Cards, trade.ItemName); ok {
			cardID = c.ID
		} else {
			var card models.Card
			w.Cards, card = models.AddCardToPool(w.Cards, models.Card{
				Name:        trade.ItemName,
				Description: trade.ItemDescription,
				ItemType:    models.ItemConsumable,
				Value:       trade.Price,
			})
			cardID = card.ID
		}

		buyer.Inventory = append(append([]string(nil), buyer.Inventory...), cardID)
		models.AddNumber(buyer.Attributes, models.AttrCP, -price)
		models.AddNumber(seller.Attributes, models.AttrCP, price)
		w.Actors[buyerID] = buyer
		w.Actors[sellerID] = seller
		appendLogf(w, models.LogTrade, "💰 %s以%d创造点从%s处购得「%s」", buyer.Name, trade.Price, seller.Name, trade.ItemName)
		return nil
	})

	var re *ResourceError
	if errors.As(err, &re) || errors.Is(err, ErrInvalidAction) {
		if lerr := e.logLine(token, models.LogTrade, fmt.Sprintf("💰 交易失败：%v", err)); lerr != nil {
			return lerr
		}
	}
	return err
}

// solicitReaction 玩家弹出输入（除非开启自动反应），自主角色交给判定服务
func (e *Engine) solicitReaction(ctx context.Context, token uint64, actorID, title, prompt string) (string, error) {
	w := e.current()
	actor, ok := w.Actors[actorID]
	if !ok {
		return "", nil
	}

	var text string
	if actor.IsPlayer && !e.cfg.AutoReact && e.input != nil {
		reply, ok := e.input.RequestReaction(ctx, actorID, title, prompt)
		if !ok {
			if err := e.session.Check(token); err != nil {
				return "", err
			}
			return "", nil
		}
		text = reply
	} else {
		reply, err := e.decider.GenerateReaction(ctx, ReactionRequest{
			ActorID:     actorID,
			ActorName:   actor.Name,
			Description: actor.Description,
			Title:       title,
			Prompt:      prompt,
			World:       buildWorldContext(w),
		})
		if err != nil {
			return "", fmt.Errorf("生成%s的反应: %w", actor.Name, err)
		}
		text = reply
	}
	if err := e.session.Check(token); err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// collectReactions 逐个收集受影响角色的反应并记录
func (e *Engine) collectReactions(ctx context.Context, token uint64, actorIDs []string, source models.Actor, card models.Card) error {
	for _, id := range actorIDs {
		text, err := e.solicitReaction(ctx, token, id,
			fmt.Sprintf("%s使用了「%s」", source.Name, card.Name), card.Description)
		if err != nil {
			return err
		}
		name := actorName(e.current(), id)
		content := fmt.Sprintf("%s没有反应", name)
		if text != "" {
			content = fmt.Sprintf("%s：%s", name, text)
		}
		if err := e.logLine(token, models.LogReaction, content); err != nil {
			return err
		}
	}
	return nil
}

func findOwnedCard(actor models.Actor, pool []models.Card, cardID string) (models.Card, bool) {
	for _, c := range actor.OwnedCards(pool) {
		if c.ID == cardID {
			return c, true
		}
	}
	// 环境角色可以使用卡池中的任意卡牌
	if actor.IsEnvironment() {
		return models.FindCard(pool, cardID)
	}
	return models.Card{}, false
}

// effectRecipient self 指向使用者，world 指向世界（空串），其余指向目标
func effectRecipient(eff models.Effect, selfID, targetID string) string {
	switch eff.TargetType {
	case models.TargetSelf:
		return selfID
	case models.TargetWorld:
		return ""
	case models.TargetSpecificChar:
		if eff.TargetID != "" && eff.TargetID != selfID {
			return eff.TargetID
		}
		return targetID
	default:
		return targetID
	}
}

// resolveEffectValue 指定值 > 动态推导值 > 静态值
func resolveEffectValue(eff models.Effect, v Verdict, overrides map[int]int, idx int) int {
	val := eff.Value
	if o, ok := overrides[idx]; ok {
		val = o
	} else if eff.DynamicValue && v.DerivedValue != nil {
		val = *v.DerivedValue
	}
	return models.ClampEffectValue(val)
}

func affectedActors(outcomes []effectOutcome) []string {
	var ids []string
	for _, o := range outcomes {
		if o.actorID != "" && o.delta != 0 {
			ids = appendUnique(ids, o.actorID)
		}
	}
	sort.Strings(ids)
	return ids
}

func describeUse(source, target models.Actor, card models.Card) string {
	if target.ID == source.ID || target.ID == "" {
		return fmt.Sprintf("%s使用了「%s」", source.Name, card.Name)
	}
	return fmt.Sprintf("%s对%s使用了「%s」", source.Name, target.Name, card.Name)
}

func activeRequestID(i int) string {
	return fmt.Sprintf("active-%d", i)
}

func copyContext(in map[string]string) map[string]string {
	out := make(map[string]string, len(in)+3)
	for k, v := range in {
		out[k] = v
	}
	return out
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

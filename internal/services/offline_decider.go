package services

import (
	"context"
	"fmt"
	"log"

	"github.com/aiwuxian/abyss-engine/internal/models"
)

const (
	offlineEffectDC     = 10
	offlineSettlementDC = 15
)

var offlineReactions = []string{
	"%s皱了皱眉，没有说话。",
	"%s警惕地后退了一步。",
	"%s露出意味深长的笑容。",
	"%s深吸一口气，准备应对接下来的事。",
}

// OfflineDecider 没有配置模型时使用的判定服务：所有判断都由D20检定决定
type OfflineDecider struct {
	rules *RuleEngine
}

func NewOfflineDecider(rules *RuleEngine) *OfflineDecider {
	if rules == nil {
		rules = NewRuleEngine()
	}
	return &OfflineDecider{rules: rules}
}

func (d *OfflineDecider) EvaluateBatch(ctx context.Context, requests []ConditionRequest, world WorldContext) (map[string]Verdict, error) {
	verdicts := make(map[string]Verdict, len(requests))
	for _, r := range requests {
		if r.Condition == "" {
			verdicts[r.ID] = Verdict{Result: true, Reason: "无条件"}
			continue
		}
		check := d.rules.Check(0, offlineEffectDC)
		v := Verdict{
			Result: check.Success,
			Reason: fmt.Sprintf("D20=%d 对抗难度%d", check.Roll, check.Target),
		}
		if r.NeedsDynamicValue && check.Success {
			// 大成功数值翻倍
			derived := check.Roll / 4
			if check.Critical {
				derived *= 2
			}
			v.DerivedValue = &derived
		}
		verdicts[r.ID] = v
	}
	log.Printf("🎲 [离线判定] %d 条条件\n", len(requests))
	return verdicts, nil
}

func (d *OfflineDecider) GenerateReaction(ctx context.Context, req ReactionRequest) (string, error) {
	line := offlineReactions[d.rules.Intn(len(offlineReactions))]
	return fmt.Sprintf(line, req.ActorName), nil
}

// PlanTurn 随机选择一张主动卡牌，目标随机选择附近的角色
func (d *OfflineDecider) PlanTurn(ctx context.Context, req TurnPlanRequest) (TurnPlan, error) {
	var usable []models.Card
	for _, c := range req.Cards {
		if c.TriggerType == models.TriggerActive {
			usable = append(usable, c)
		}
	}
	if len(usable) == 0 {
		return TurnPlan{Narration: "观望着周围的动静"}, nil
	}

	card := usable[d.rules.Intn(len(usable))]
	action := PlannedAction{Kind: models.ActionSkill, CardID: card.ID}
	if len(req.Nearby) > 0 {
		action.TargetID = req.Nearby[d.rules.Intn(len(req.Nearby))].ID
	}
	return TurnPlan{Actions: []PlannedAction{action}}, nil
}

func (d *OfflineDecider) EvaluateSettlement(ctx context.Context, req SettlementRequest) (SettlementResult, error) {
	res := SettlementResult{Resolved: make(map[string]string)}
	for _, item := range req.Items {
		if check := d.rules.Check(0, offlineSettlementDC); check.Success {
			res.Resolved[item.ID] = fmt.Sprintf("D20=%d", check.Roll)
		}
	}
	return res, nil
}

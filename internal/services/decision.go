package services

import (
	"context"

	"github.com/aiwuxian/abyss-engine/internal/models"
)

// RequestType 条件评估请求类型
type RequestType string

const (
	RequestActive  RequestType = "active"
	RequestPassive RequestType = "passive"
)

// ConditionRequest 单条效果条件的评估请求
type ConditionRequest struct {
	ID                string            `json:"id"`
	Type              RequestType       `json:"type"`
	Condition         string            `json:"condition"`
	Context           map[string]string `json:"context"`
	NeedsDynamicValue bool              `json:"needs_dynamic_value"`
}

// TradeResult 交易描述
type TradeResult struct {
	TransactionType string `json:"transaction_type"` // buy: 使用者购买；sell: 使用者出售
	ItemName        string `json:"item_name"`
	ItemDescription string `json:"item_description"`
	Price           int    `json:"price"`
}

// Verdict 评估结论
type Verdict struct {
	Result       bool              `json:"result"`
	Reason       string            `json:"reason"`
	DerivedValue *int              `json:"derived_value,omitempty"`
	NewAttribute *models.Attribute `json:"new_attribute,omitempty"`
	Trade        *TradeResult      `json:"trade_result,omitempty"`
}

// WorldContext 评估时附带的世界信息
type WorldContext struct {
	Round    int               `json:"round"`
	Location string            `json:"location"`
	World    map[string]string `json:"world"`
	Recent   []string          `json:"recent"`
}

// ReactionRequest 自主角色的反应请求
type ReactionRequest struct {
	ActorID     string       `json:"actor_id"`
	ActorName   string       `json:"actor_name"`
	Description string       `json:"description"`
	Title       string       `json:"title"`
	Prompt      string       `json:"prompt"`
	World       WorldContext `json:"world"`
}

// PlannedAction 自主角色计划的行动
type PlannedAction struct {
	Kind       models.ActionKind `json:"kind"`
	CardID     string            `json:"card_id,omitempty"`
	TargetID   string            `json:"target_id,omitempty"`
	LocationID string            `json:"location_id,omitempty"`
	BurnLife   bool              `json:"burn_life,omitempty"`
}

// TurnPlanRequest 自主角色回合规划请求
type TurnPlanRequest struct {
	Actor     models.Actor      `json:"actor"`
	Cards     []models.Card     `json:"cards"`
	Nearby    []models.Actor    `json:"nearby"`
	Locations []models.Location `json:"locations"`
	World     WorldContext      `json:"world"`
}

// TurnPlan 自主角色回合规划结果
type TurnPlan struct {
	Narration string          `json:"narration"`
	Actions   []PlannedAction `json:"actions"`
}

// SettlementItem 结算阶段待判定的矛盾或驱动力
type SettlementItem struct {
	ID          string `json:"id"`
	ActorID     string `json:"actor_id"`
	Kind        string `json:"kind"` // conflict | drive
	Description string `json:"description"`
}

// SettlementRequest 结算评估请求
type SettlementRequest struct {
	Items []SettlementItem `json:"items"`
	World WorldContext     `json:"world"`
}

// SettlementResult 结算评估结果：已解决条目的ID
type SettlementResult struct {
	Resolved map[string]string `json:"resolved"` // id -> reason
}

// Decider 外部判定服务
type Decider interface {
	EvaluateBatch(ctx context.Context, requests []ConditionRequest, world WorldContext) (map[string]Verdict, error)
	GenerateReaction(ctx context.Context, req ReactionRequest) (string, error)
	PlanTurn(ctx context.Context, req TurnPlanRequest) (TurnPlan, error)
	EvaluateSettlement(ctx context.Context, req SettlementRequest) (SettlementResult, error)
}

// PlayerInput 玩家输入服务，取消时返回 ok=false
type PlayerInput interface {
	RequestReaction(ctx context.Context, actorID, title, prompt string) (string, bool)
}

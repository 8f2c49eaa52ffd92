package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/aiwuxian/abyss-engine/internal/models"
)

// LLMService 基于 OpenAI 兼容接口的判定服务与世界生成服务
type LLMService struct {
	client *openai.Client
	config models.LLMConfig
}

func NewLLMService(config models.LLMConfig) *LLMService {
	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.APIBase != "" {
		clientConfig.BaseURL = config.APIBase
	}
	if config.Model == "" {
		config.Model = openai.GPT3Dot5Turbo
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 2000
	}
	return &LLMService{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}
}

const judgeSystemPrompt = `你是一个回合制叙事游戏的裁判。根据角色、卡牌和世界信息，公正地判断效果条件是否成立。
只输出JSON，不要输出其他内容。`

// EvaluateBatch 一次调用评估一批条件
func (s *LLMService) EvaluateBatch(ctx context.Context, requests []ConditionRequest, world WorldContext) (map[string]Verdict, error) {
	payload, err := json.Marshal(map[string]any{"world": world, "requests": requests})
	if err != nil {
		return nil, fmt.Errorf("序列化评估请求失败: %w", err)
	}

	prompt := fmt.Sprintf(`请逐条判断以下条件是否成立：
%s

规则：
- role=hit_check 的条目决定整张卡是否命中
- needs_dynamic_value=true 时在 derived_value 给出 -10 到 10 的整数
- 目标没有该属性时可以在 new_attribute 中给出新属性 {"id","name","type":"NUMBER","value"}
- 卡牌描述的是买卖行为时，在第一条结果里给出 trade_result {"transaction_type":"buy|sell","item_name","item_description","price"}

返回格式：{"results": {"<id>": {"result": true, "reason": "..."}}}`, payload)

	var resp struct {
		Results map[string]Verdict `json:"results"`
	}
	if err := s.chatJSON(ctx, judgeSystemPrompt, prompt, &resp); err != nil {
		return nil, fmt.Errorf("评估条件失败: %w", err)
	}

	verdicts := make(map[string]Verdict, len(requests))
	for _, r := range requests {
		v, ok := resp.Results[r.ID]
		if !ok {
			v = Verdict{Result: false, Reason: "裁判没有给出结果"}
		}
		verdicts[r.ID] = v
	}
	return verdicts, nil
}

// GenerateReaction 为自主角色生成一句反应
func (s *LLMService) GenerateReaction(ctx context.Context, req ReactionRequest) (string, error) {
	prompt := fmt.Sprintf(`你扮演【%s】。%s
当前是第%d轮，地点：%s。
%s
%s
请用一两句话描述你的反应，只输出反应内容。`, req.ActorName, req.Description, req.World.Round, req.World.Location, req.Title, req.Prompt)

	text, err := s.chat(ctx, "你是一个角色扮演者，始终保持角色设定。", prompt, false)
	if err != nil {
		return "", fmt.Errorf("生成反应失败: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// PlanTurn 为自主角色规划本回合行动
func (s *LLMService) PlanTurn(ctx context.Context, req TurnPlanRequest) (TurnPlan, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return TurnPlan{}, fmt.Errorf("序列化回合请求失败: %w", err)
	}

	prompt := fmt.Sprintf(`以下是轮到行动的角色和周围环境：
%s

为该角色规划本回合的行动，最多两个。
kind 可选：skill（使用 cards 中的卡牌，给出 card_id 和可选的 target_id）、move（给出 location_id）。
返回格式：{"narration": "一句话描述角色的意图", "actions": [{"kind": "skill", "card_id": "...", "target_id": "..."}]}`, payload)

	var plan TurnPlan
	if err := s.chatJSON(ctx, "你是回合制叙事游戏中的角色导演。只输出JSON。", prompt, &plan); err != nil {
		return TurnPlan{}, fmt.Errorf("规划回合失败: %w", err)
	}
	return plan, nil
}

// EvaluateSettlement 判断哪些矛盾已解决、哪些驱动力已满足
func (s *LLMService) EvaluateSettlement(ctx context.Context, req SettlementRequest) (SettlementResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return SettlementResult{}, fmt.Errorf("序列化结算请求失败: %w", err)
	}

	prompt := fmt.Sprintf(`回合结束。根据最近发生的事件，判断以下矛盾(conflict)是否已经解决、驱动力(drive)是否已经满足：
%s

只列出已经解决或满足的条目。
返回格式：{"resolved": {"<id>": "理由"}}`, payload)

	var res SettlementResult
	if err := s.chatJSON(ctx, judgeSystemPrompt, prompt, &res); err != nil {
		return SettlementResult{}, fmt.Errorf("结算评估失败: %w", err)
	}
	if res.Resolved == nil {
		res.Resolved = map[string]string{}
	}
	return res, nil
}

// GenerateWorld 从小说段落生成地点、角色与卡牌
func (s *LLMService) GenerateWorld(ctx context.Context, segment string) (GeneratedBatch, error) {
	prompt := fmt.Sprintf(`阅读下面的小说段落，提取可以游玩的世界：
%s

返回格式：
{
  "locations": [{"id": "短英文id", "name": "...", "description": "...", "connections": ["其他地点id"]}],
  "actors": [{"name": "...", "description": "...", "is_player": false, "location_id": "地点id",
              "skills": [{"name": "...", "description": "...", "trigger_type": "active|passive|reaction",
                          "effects": [{"target_type": "hit_target|self|world", "target_attribute": "health",
                                       "value": -5, "condition_description": "..."}]}],
              "conflicts": [{"description": "...", "reward": 5}],
              "drives": [{"condition": "...", "reward": 5, "weight": 50}]}],
  "cards": [{"name": "...", "description": "...", "item_type": "consumable", "cost": 10}]
}
效果数值在 -10 到 10 之间，每张卡最多两个效果。`, segment)

	var batch GeneratedBatch
	if err := s.chatJSON(ctx, "你是一个无限流小说的世界设计师。只输出JSON。", prompt, &batch); err != nil {
		return GeneratedBatch{}, fmt.Errorf("解析段落失败: %w", err)
	}
	return batch, nil
}

func (s *LLMService) chat(ctx context.Context, system, user string, jsonMode bool) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: s.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: s.config.Temperature,
		MaxTokens:   s.config.MaxTokens,
	}
	if jsonMode && s.config.Provider == "openai" {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	start := time.Now()
	resp, err := s.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("模型没有返回内容")
	}
	log.Printf("🤖 [LLM] %s 用时 %v，消耗 %d tokens\n", s.config.Model, time.Since(start).Round(time.Millisecond), resp.Usage.TotalTokens)
	return resp.Choices[0].Message.Content, nil
}

func (s *LLMService) chatJSON(ctx context.Context, system, user string, out any) error {
	text, err := s.chat(ctx, system, user, true)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(extractJSON(text)), out); err != nil {
		log.Printf("⚠️ [LLM] 无法解析的返回: %s\n", text)
		return fmt.Errorf("解析模型返回的JSON失败: %w", err)
	}
	return nil
}

// extractJSON 去掉代码块标记，截取第一个 { 到最后一个 }
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return strings.TrimSpace(text)
	}
	return text[start : end+1]
}

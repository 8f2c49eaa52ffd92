package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aiwuxian/abyss-engine/internal/models"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"chatter", "好的，结果如下：{\"a\":{\"b\":2}} 希望有帮助", `{"a":{"b":2}}`},
		{"no object", "无法判断", "无法判断"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractJSON(tt.in); got != tt.want {
				t.Errorf("extractJSON(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// fakeCompletions 模拟 OpenAI 兼容接口，返回固定的回复内容
func fakeCompletions(t *testing.T, content string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-test",
			"object": "chat.completion",
			"model":  "test",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]string{"role": "assistant", "content": content},
			}},
			"usage": map[string]int{"prompt_tokens": 1, "completion_tokens": 1, "total_tokens": 2},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLLMServiceEvaluateBatch(t *testing.T) {
	srv := fakeCompletions(t, "```json\n{\"results\":{\"active-0\":{\"result\":true,\"reason\":\"命中\",\"derived_value\":-3}}}\n```")
	s := NewLLMService(models.LLMConfig{APIKey: "test", APIBase: srv.URL, Model: "test"})

	verdicts, err := s.EvaluateBatch(context.Background(), []ConditionRequest{
		{ID: "active-0", Type: RequestActive, Condition: "命中目标"},
		{ID: "passive-0-0", Type: RequestPassive, Condition: "反击"},
	}, WorldContext{})
	if err != nil {
		t.Fatalf("EvaluateBatch: %v", err)
	}
	hit := verdicts["active-0"]
	if !hit.Result || hit.DerivedValue == nil || *hit.DerivedValue != -3 {
		t.Errorf("active-0 = %+v", hit)
	}
	if missing := verdicts["passive-0-0"]; missing.Result {
		t.Error("a request without a verdict must fail")
	}
}

func TestLLMServiceGenerateWorld(t *testing.T) {
	srv := fakeCompletions(t, `{"locations":[{"id":"inn","name":"客栈"}],"actors":[{"name":"掌柜","location_id":"inn"}],"cards":[{"name":"酒","item_type":"consumable"}]}`)
	s := NewLLMService(models.LLMConfig{APIKey: "test", APIBase: srv.URL, Model: "test"})

	batch, err := s.GenerateWorld(context.Background(), "夜色中的客栈")
	if err != nil {
		t.Fatalf("GenerateWorld: %v", err)
	}
	if len(batch.Locations) != 1 || len(batch.Actors) != 1 || len(batch.Cards) != 1 {
		t.Errorf("batch = %+v", batch)
	}
}

func TestLLMServiceMalformedReply(t *testing.T) {
	srv := fakeCompletions(t, "我拒绝回答")
	s := NewLLMService(models.LLMConfig{APIKey: "test", APIBase: srv.URL, Model: "test"})

	if _, err := s.PlanTurn(context.Background(), TurnPlanRequest{}); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestOfflineDecider(t *testing.T) {
	d := NewOfflineDecider(NewRuleEngineWithSeed(2))

	verdicts, err := d.EvaluateBatch(context.Background(), []ConditionRequest{
		{ID: "free"},
		{ID: "checked", Condition: "命中", NeedsDynamicValue: true},
	}, WorldContext{})
	if err != nil {
		t.Fatal(err)
	}
	if !verdicts["free"].Result {
		t.Error("an empty condition always passes")
	}
	if v := verdicts["checked"]; v.Result && v.DerivedValue == nil {
		t.Error("a passing dynamic request needs a derived value")
	}

	plan, err := d.PlanTurn(context.Background(), TurnPlanRequest{
		Cards:  []models.Card{strikeCard("c1", -5), {ID: "p", TriggerType: models.TriggerPassive}},
		Nearby: []models.Actor{{ID: "b"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(plan.Actions) != 1 || plan.Actions[0].CardID != "c1" || plan.Actions[0].TargetID != "b" {
		t.Errorf("plan = %+v", plan)
	}

	idle, _ := d.PlanTurn(context.Background(), TurnPlanRequest{})
	if len(idle.Actions) != 0 || idle.Narration == "" {
		t.Errorf("idle plan = %+v", idle)
	}

	text, _ := d.GenerateReaction(context.Background(), ReactionRequest{ActorName: "小红"})
	if text == "" {
		t.Error("offline reaction is empty")
	}
}

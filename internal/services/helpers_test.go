package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aiwuxian/abyss-engine/internal/models"
)

// stubDecider 可编程的判定服务
type stubDecider struct {
	mu sync.Mutex

	verdict    func(r ConditionRequest) Verdict
	trade      *TradeResult
	reaction   string
	plan       TurnPlan
	settlement SettlementResult
	err        error
	// 非空时 EvaluateBatch 在返回前等待它被关闭
	gate    chan struct{}
	entered chan struct{}

	batches   [][]ConditionRequest
	reactions []string
	plans     int
}

func (d *stubDecider) EvaluateBatch(ctx context.Context, requests []ConditionRequest, world WorldContext) (map[string]Verdict, error) {
	d.mu.Lock()
	d.batches = append(d.batches, requests)
	gate, entered := d.gate, d.entered
	d.entered = nil
	d.mu.Unlock()

	if entered != nil {
		close(entered)
	}
	if gate != nil {
		<-gate
	}
	if err := d.failure(); err != nil {
		return nil, err
	}

	out := make(map[string]Verdict, len(requests))
	for _, r := range requests {
		v := Verdict{Result: true, Reason: "ok"}
		if d.verdict != nil {
			v = d.verdict(r)
		}
		out[r.ID] = v
	}
	if d.trade != nil {
		v := out[activeRequestID(0)]
		v.Trade = d.trade
		out[activeRequestID(0)] = v
	}
	return out, nil
}

func (d *stubDecider) GenerateReaction(ctx context.Context, req ReactionRequest) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reactions = append(d.reactions, req.ActorID)
	return d.reaction, nil
}

func (d *stubDecider) PlanTurn(ctx context.Context, req TurnPlanRequest) (TurnPlan, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.plans++
	return d.plan, d.err
}

func (d *stubDecider) EvaluateSettlement(ctx context.Context, req SettlementRequest) (SettlementResult, error) {
	return d.settlement, d.failure()
}

func (d *stubDecider) failure() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

func (d *stubDecider) setErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

func (d *stubDecider) planCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.plans
}

func (d *stubDecider) batchCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.batches)
}

func testConfig() models.GameConfig {
	cfg := models.DefaultGameConfig()
	cfg.AutoReact = true
	cfg.WeatherChangeChance = 0
	cfg.TickInterval = 10 * time.Millisecond
	return cfg
}

func newActor(id, name, location string) models.Actor {
	return models.Actor{
		ID:         id,
		Name:       name,
		LocationID: location,
		Attributes: models.DefaultActorAttributes(),
	}
}

func newTestWorld(actors ...models.Actor) *models.WorldState {
	w := models.NewWorldState()
	w.Locations["hall"] = models.Location{ID: "hall", Name: "大厅"}
	w.Locations["yard"] = models.Location{ID: "yard", Name: "庭院"}
	w.Round.ActiveLocationID = "hall"
	for _, a := range actors {
		w.Actors[a.ID] = a
	}
	return w
}

func newTestEngine(t *testing.T, d Decider, w *models.WorldState) *Engine {
	t.Helper()
	return NewEngine(testConfig(), d, nil, NewRuleEngineWithSeed(7), w)
}

func strikeCard(id string, value int) models.Card {
	return models.Card{
		ID:          id,
		Name:        "重击",
		Description: "用力一击",
		ItemType:    models.ItemSkill,
		TriggerType: models.TriggerActive,
		Effects: []models.Effect{{
			TargetType:           models.TargetHit,
			TargetAttribute:      models.AttrHealth,
			Value:                value,
			ConditionDescription: "命中目标",
		}},
	}
}

func hasLog(w *models.WorldState, fragment string) bool {
	for _, e := range w.History {
		if strings.Contains(e.Content, fragment) {
			return true
		}
	}
	return false
}

func mustStep(t *testing.T, e *Engine, wantProgress bool) {
	t.Helper()
	progressed, err := e.Step(context.Background())
	if err != nil {
		t.Fatalf("Step: %v (phase %s)", err, e.Snapshot().Round.Phase)
	}
	if progressed != wantProgress {
		t.Fatalf("Step progressed = %v, want %v (phase %s)", progressed, wantProgress, e.Snapshot().Round.Phase)
	}
}

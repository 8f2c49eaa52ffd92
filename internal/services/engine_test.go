package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aiwuxian/abyss-engine/internal/models"
)

// flowWorld 玩家阿明（体能100）与NPC小红（体能80）同在大厅
func flowWorld() *models.WorldState {
	p := newActor("p", "阿明", "hall")
	p.IsPlayer = true
	p.Skills = []models.Card{strikeCard("c1", -5)}
	n := newActor("n", "小红", "hall")
	models.SetNumber(n.Attributes, models.AttrPhysique, 80)
	n.Conflicts = []models.Conflict{{ID: "grudge", Description: "想要复仇", Reward: 3}}
	return newTestWorld(p, n)
}

func findEntry(t *testing.T, w *models.WorldState, fragment string) models.LogEntry {
	t.Helper()
	for _, e := range w.History {
		if strings.Contains(e.Content, fragment) {
			return e
		}
	}
	t.Fatalf("no log entry containing %q", fragment)
	return models.LogEntry{}
}

func TestEngineFullRound(t *testing.T) {
	d := &stubDecider{settlement: SettlementResult{Resolved: map[string]string{"n/grudge": "报了仇"}}}
	e := newTestEngine(t, d, flowWorld())

	// 暂停时不推进
	mustStep(t, e, false)
	if err := e.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}

	mustStep(t, e, true) // init -> order
	mustStep(t, e, true) // order -> turn_start
	got := e.Snapshot()
	if strings.Join(got.Round.CurrentOrder, ",") != "p,n" {
		t.Fatalf("order = %v, want [p n]", got.Round.CurrentOrder)
	}

	mustStep(t, e, true) // turn_start -> char_acting
	if got := e.Snapshot().Round; got.Phase != models.PhaseCharActing || got.ActiveCharID != "p" {
		t.Fatalf("round = %+v, want player acting", got)
	}

	// 玩家没有提交回合时不推进
	mustStep(t, e, false)
	if err := e.QueueAction(models.PendingAction{Kind: models.ActionSkill, ActorID: "p", CardID: "c1", TargetID: "n"}); err != nil {
		t.Fatalf("QueueAction: %v", err)
	}
	if n := len(e.PendingActions("p")); n != 1 {
		t.Fatalf("pending actions = %d, want 1", n)
	}
	if err := e.CommitTurn("p"); err != nil {
		t.Fatalf("CommitTurn: %v", err)
	}

	mustStep(t, e, true) // char_acting -> executing
	e.Flush()
	got = e.Snapshot()
	if got.Round.Phase != models.PhaseTurnStart || got.Round.TurnIndex != 1 {
		t.Fatalf("after player turn: phase %s index %d", got.Round.Phase, got.Round.TurnIndex)
	}
	if h := got.Actors["n"].Number(models.AttrHealth); h != 95 {
		t.Errorf("npc health = %v, want 95", h)
	}

	mustStep(t, e, true) // turn_start -> char_acting (npc)
	mustStep(t, e, true) // char_acting -> executing
	e.Flush()
	if d.plans != 1 {
		t.Errorf("npc planned %d times, want 1", d.plans)
	}

	mustStep(t, e, true) // turn_start -> settlement
	if phase := e.Snapshot().Round.Phase; phase != models.PhaseSettlement {
		t.Fatalf("phase = %s, want settlement", phase)
	}

	mustStep(t, e, true) // settlement -> init
	e.Flush()

	got = e.Snapshot()
	if got.Round.RoundNumber != 2 || got.Round.Phase != models.PhaseInit {
		t.Fatalf("round = %d phase = %s, want round 2 init", got.Round.RoundNumber, got.Round.Phase)
	}
	if v := got.Actors["p"].Number(models.AttrPleasure); v != 40 {
		t.Errorf("pleasure = %v, want 40", v)
	}
	n := got.Actors["n"]
	if cp := n.Number(models.AttrCP); cp != 3 {
		t.Errorf("npc cp = %v, want 3", cp)
	}
	if !n.Conflicts[0].Solved || n.Conflicts[0].SolvedRound != 1 {
		t.Errorf("conflict = %+v, want solved in round 1", n.Conflicts[0])
	}
	for _, frag := range []string{"第1轮开始", "行动顺序：阿明 → 小红", "轮到小红行动", "第1轮结束", "报了仇"} {
		if !hasLog(got, frag) {
			t.Errorf("missing log %q", frag)
		}
	}
}

func TestEngineCommitTurnOutOfTurn(t *testing.T) {
	e := newTestEngine(t, &stubDecider{}, flowWorld())
	if err := e.CommitTurn("p"); !errors.Is(err, ErrInvalidAction) {
		t.Fatalf("err = %v, want ErrInvalidAction", err)
	}
	if err := e.QueueAction(models.PendingAction{Kind: models.ActionMove, ActorID: "n"}); !errors.Is(err, ErrInvalidAction) {
		t.Fatalf("npc queue: err = %v, want ErrInvalidAction", err)
	}
}

func TestEngineStepBusy(t *testing.T) {
	e := newTestEngine(t, &stubDecider{}, flowWorld())
	e.processing.Store(true)
	if _, err := e.Step(context.Background()); !errors.Is(err, ErrBusy) {
		t.Fatalf("err = %v, want ErrBusy", err)
	}
}

func TestEngineStopDiscardsInFlightTurn(t *testing.T) {
	gate, entered := make(chan struct{}), make(chan struct{})
	d := &stubDecider{gate: gate, entered: entered}
	e := newTestEngine(t, d, flowWorld())
	if err := e.Resume(); err != nil {
		t.Fatal(err)
	}
	mustStep(t, e, true)
	mustStep(t, e, true)
	mustStep(t, e, true)
	if err := e.QueueAction(models.PendingAction{Kind: models.ActionSkill, ActorID: "p", CardID: "c1", TargetID: "n"}); err != nil {
		t.Fatal(err)
	}
	if err := e.CommitTurn("p"); err != nil {
		t.Fatal(err)
	}
	mustStep(t, e, true)

	<-entered
	if err := e.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	close(gate)
	e.Flush()

	got := e.Snapshot()
	if got.Round.Phase != models.PhaseCharActing || !got.Round.IsPaused {
		t.Fatalf("round = %+v, want paused char_acting", got.Round)
	}
	if h := got.Actors["n"].Number(models.AttrHealth); h != 100 {
		t.Errorf("npc health = %v, stale effect applied", h)
	}
	if got.Round.Error != "" {
		t.Errorf("stale result must not fail the phase: %s", got.Round.Error)
	}
	if !hasLog(got, "已停止") {
		t.Error("expected a stop log line")
	}
}

func TestEngineStopCancelsPlayerPrompts(t *testing.T) {
	broker := NewPromptBroker()
	opened := make(chan struct{}, 1)
	broker.Watch(func(_ Prompt, open bool) {
		if open {
			opened <- struct{}{}
		}
	})
	e := NewEngine(testConfig(), &stubDecider{}, broker, NewRuleEngineWithSeed(7), flowWorld())

	type reply struct {
		text string
		ok   bool
	}
	done := make(chan reply, 1)
	go func() {
		text, ok := broker.RequestReaction(context.Background(), "p", "小红看着你", "")
		done <- reply{text, ok}
	}()

	<-opened
	if err := e.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case r := <-done:
		if r.ok || r.text != "" {
			t.Errorf("reply = %+v, want cancelled", r)
		}
	case <-time.After(time.Second):
		t.Fatal("prompt was not cancelled")
	}
}

func TestEngineAutonomousTurnFailurePauses(t *testing.T) {
	d := &stubDecider{err: errors.New("服务不可用")}
	e := newTestEngine(t, d, newTestWorld(newActor("n", "小红", "hall")))
	if err := e.Resume(); err != nil {
		t.Fatal(err)
	}
	mustStep(t, e, true)
	mustStep(t, e, true)
	mustStep(t, e, true)
	mustStep(t, e, true)
	e.Flush()

	got := e.Snapshot()
	if !got.Round.IsPaused || !strings.Contains(got.Round.Error, "角色回合") {
		t.Fatalf("round = %+v, want paused with error", got.Round)
	}
	if got.Round.Phase != models.PhaseCharActing {
		t.Fatalf("phase = %s, want the failed turn reverted to char_acting", got.Round.Phase)
	}
	mustStep(t, e, false)

	d.setErr(nil)
	if err := e.Resume(); err != nil {
		t.Fatal(err)
	}
	if got := e.Snapshot().Round; got.Error != "" || got.IsPaused {
		t.Errorf("resume should clear the error: %+v", got)
	}

	for i := 0; i < 20 && e.Snapshot().Round.RoundNumber == 1; i++ {
		if _, err := e.Step(context.Background()); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		e.Flush()
	}
	got = e.Snapshot()
	if got.Round.RoundNumber != 2 {
		t.Fatalf("round = %+v, want the engine to recover and reach round 2", got.Round)
	}
	if n := d.planCount(); n != 2 {
		t.Errorf("plans = %d, want the turn re-run once", n)
	}
}

func TestEngineEmptyLocationPauses(t *testing.T) {
	e := newTestEngine(t, &stubDecider{}, newTestWorld(newActor("n", "小红", "yard")))
	if err := e.Resume(); err != nil {
		t.Fatal(err)
	}
	mustStep(t, e, true)
	mustStep(t, e, false)

	got := e.Snapshot()
	if !got.Round.IsPaused || got.Round.Phase != models.PhaseOrder {
		t.Fatalf("round = %+v, want paused in order phase", got.Round)
	}
}

func TestEngineManualOrder(t *testing.T) {
	e := newTestEngine(t, &stubDecider{}, flowWorld())
	manual := true
	if err := e.UpdateSettings(RoundSettings{UseManualTurnOrder: &manual}); err != nil {
		t.Fatal(err)
	}
	if err := e.Resume(); err != nil {
		t.Fatal(err)
	}
	mustStep(t, e, true)
	mustStep(t, e, false)
	if !e.Snapshot().Round.AwaitingManualOrder {
		t.Fatal("expected to wait for a manual order")
	}
	before := len(e.Snapshot().History)
	mustStep(t, e, false)
	if len(e.Snapshot().History) != before {
		t.Error("waiting must not log repeatedly")
	}

	if err := e.SetManualOrder([]string{"n", "ghost"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown actor: err = %v, want ErrNotFound", err)
	}
	if err := e.SetManualOrder([]string{"n", "p"}); err != nil {
		t.Fatalf("SetManualOrder: %v", err)
	}
	got := e.Snapshot().Round
	if got.Phase != models.PhaseTurnStart || strings.Join(got.CurrentOrder, ",") != "n,p" {
		t.Fatalf("round = %+v, want n,p in turn_start", got)
	}
}

func TestEngineAutoAdvanceUsesDefaultOrder(t *testing.T) {
	e := newTestEngine(t, &stubDecider{}, flowWorld())
	if err := e.SetManualOrder([]string{"n", "p"}); err != nil {
		t.Fatal(err)
	}
	manual, count := true, 1
	if err := e.UpdateSettings(RoundSettings{UseManualTurnOrder: &manual, AutoAdvanceCount: &count}); err != nil {
		t.Fatal(err)
	}
	if err := e.Resume(); err != nil {
		t.Fatal(err)
	}
	mustStep(t, e, true)
	mustStep(t, e, true)

	got := e.Snapshot().Round
	if strings.Join(got.CurrentOrder, ",") != "n,p" || got.AutoAdvanceCount != 0 {
		t.Fatalf("round = %+v, want default order and count consumed", got)
	}
}

func TestEngineSkipSettlementEndsRound(t *testing.T) {
	d := &stubDecider{settlement: SettlementResult{Resolved: map[string]string{"n/grudge": "报了仇"}}}
	w := flowWorld()
	w.Round.Phase = models.PhaseTurnStart
	w.Round.CurrentOrder = []string{"p", "n"}
	w.Round.TurnIndex = 2
	w.Round.IsPaused = false
	e := newTestEngine(t, d, w)
	skip := true
	if err := e.UpdateSettings(RoundSettings{SkipSettlement: &skip}); err != nil {
		t.Fatal(err)
	}

	mustStep(t, e, true)
	if phase := e.Snapshot().Round.Phase; phase != models.PhaseRoundEnd {
		t.Fatalf("phase = %s, want round_end", phase)
	}
	mustStep(t, e, true)
	e.Flush()

	got := e.Snapshot()
	if got.Round.RoundNumber != 2 {
		t.Fatalf("round = %d, want 2", got.Round.RoundNumber)
	}
	if got.Actors["n"].Conflicts[0].Solved {
		t.Error("skipped settlement must not evaluate conflicts")
	}
	if v := got.Actors["p"].Number(models.AttrPleasure); v != 40 {
		t.Errorf("decay still applies, pleasure = %v", v)
	}
}

func TestEngineRollbackAndRegenerate(t *testing.T) {
	e := newTestEngine(t, &stubDecider{}, flowWorld())
	if err := e.Resume(); err != nil {
		t.Fatal(err)
	}
	mustStep(t, e, true)
	mustStep(t, e, true)
	mustStep(t, e, true)

	w := e.Snapshot()
	orderEntry := findEntry(t, w, "行动顺序")
	turnEntry := findEntry(t, w, "轮到阿明行动")

	if err := e.Regenerate(turnEntry.ID); err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	got := e.Snapshot()
	if hasLog(got, "轮到阿明行动") {
		t.Error("regenerate should drop the chosen entry")
	}
	if got.Round.Phase != models.PhaseCharActing || got.Round.ActiveCharID != "p" || !got.Round.IsPaused {
		t.Errorf("round = %+v, want paused char_acting for p", got.Round)
	}

	if err := e.Rollback(orderEntry.ID); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	got = e.Snapshot()
	if last := got.History[len(got.History)-1]; last.ID != orderEntry.ID {
		t.Errorf("last entry = %q, rollback should keep the chosen entry", last.Content)
	}
	if got.Round.Phase != models.PhaseTurnStart || got.Round.TurnIndex != 0 {
		t.Errorf("round = %+v, want turn_start at index 0", got.Round)
	}

	if err := e.Rollback("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestEngineRollbackReconstructsLegacyHistory(t *testing.T) {
	w := newTestWorld(newActor("a", "阿明", "hall"), newActor("b", "小红", "hall"))
	w.Round.RoundNumber = 5
	for _, content := range []string{"━━━ 第3轮开始 ━━━", "第3轮 行动顺序：阿明 → 小红", "轮到小红行动", "小红挥了挥手"} {
		w.History = append(w.History, models.LogEntry{ID: content, Content: content})
	}
	e := newTestEngine(t, &stubDecider{}, w)

	if err := e.Rollback("轮到小红行动"); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	got := e.Snapshot().Round
	if got.RoundNumber != 3 {
		t.Errorf("round = %d, want 3", got.RoundNumber)
	}
	if strings.Join(got.CurrentOrder, ",") != "a,b" {
		t.Errorf("order = %v, want [a b]", got.CurrentOrder)
	}
	if got.ActiveCharID != "b" || got.TurnIndex != 1 || got.Phase != models.PhaseCharActing {
		t.Errorf("round = %+v, want b acting at index 1", got)
	}
	if !got.IsPaused {
		t.Error("rollback must pause")
	}
}

func TestReconstructLegacyRoundSettlement(t *testing.T) {
	entries := []models.LogEntry{
		{Content: "第2轮 行动顺序：阿明，小红"},
		{Content: "第2轮结算"},
	}
	rs := reconstructLegacyRound(entries, models.RoundState{ActiveLocationID: "hall"})
	if rs.Phase != models.PhaseSettlement || rs.RoundNumber != 2 {
		t.Errorf("round = %+v, want settlement of round 2", rs)
	}
	if rs.ActiveLocationID != "hall" {
		t.Errorf("location = %s, want carried over", rs.ActiveLocationID)
	}
}

func TestEngineRestorePausesAndInvalidates(t *testing.T) {
	e := newTestEngine(t, &stubDecider{}, flowWorld())
	before := e.Session().Begin()

	w := flowWorld()
	w.Round.Phase = models.PhaseExecuting
	w.Round.IsPaused = false
	e.Restore(w)

	if e.Session().IsCurrent(before) {
		t.Error("restore should invalidate the session")
	}
	got := e.Snapshot().Round
	if got.Phase != models.PhaseCharActing || !got.IsPaused {
		t.Errorf("round = %+v, want paused char_acting", got)
	}
}

func TestEngineRunDrivesPhases(t *testing.T) {
	e := newTestEngine(t, &stubDecider{}, newTestWorld(newActor("n", "小红", "hall")))
	if err := e.Resume(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for e.Snapshot().Round.RoundNumber < 2 {
		select {
		case <-deadline:
			cancel()
			t.Fatalf("engine stuck in %s", e.Snapshot().Round.Phase)
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v", err)
	}
}

func TestEngineOnLogObservesCommits(t *testing.T) {
	e := newTestEngine(t, &stubDecider{}, flowWorld())
	var seen []string
	e.OnLog(func(entry models.LogEntry) { seen = append(seen, entry.Content) })

	if err := e.Resume(); err != nil {
		t.Fatal(err)
	}
	mustStep(t, e, true)
	if len(seen) != 1 || !strings.Contains(seen[0], "第1轮开始") {
		t.Errorf("observed %v", seen)
	}
}

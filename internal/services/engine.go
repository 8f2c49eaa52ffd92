package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aiwuxian/abyss-engine/internal/models"
)

var (
	// ErrBusy 另一个阶段步骤正在执行
	ErrBusy = errors.New("引擎正在处理中")
	// ErrNotFound 实体不存在
	ErrNotFound = errors.New("实体不存在")
	// ErrInsufficient 资源不足
	ErrInsufficient = errors.New("资源不足")
	// ErrInvalidAction 当前阶段不允许该操作
	ErrInvalidAction = errors.New("当前不允许该操作")
)

// ResourceError 资源不足的详细信息
type ResourceError struct {
	ActorName string
	Resource  string
	Need      float64
	Have      float64
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("%s的%s不足（需要%.0f，当前%.0f）", e.ActorName, e.Resource, e.Need, e.Have)
}

func (e *ResourceError) Unwrap() error { return ErrInsufficient }

// completion 后台任务完成后送回主循环的消息
type completion struct {
	token uint64
	label string
	err   error
	apply func(w *models.WorldState) error
}

// Engine 独占世界状态的回合引擎。
// 所有修改都在世界副本上进行，令牌仍有效时整体替换（写时复制）。
type Engine struct {
	cfg     models.GameConfig
	decider Decider
	input   PlayerInput
	session *SessionController
	rules   *RuleEngine
	phases  *phaseMachine

	mu    sync.RWMutex
	world *models.WorldState

	processing atomic.Bool

	pendingMu sync.Mutex
	pending   map[string][]models.PendingAction
	committed map[string]bool

	bgCtx       context.Context
	completions chan completion
	wake        chan struct{}
	tasks       sync.WaitGroup

	obsMu     sync.Mutex
	observers []func(models.LogEntry)
}

// NewEngine 创建引擎；world 为空时创建新世界
func NewEngine(cfg models.GameConfig, decider Decider, input PlayerInput, rules *RuleEngine, world *models.WorldState) *Engine {
	if world == nil {
		world = models.NewWorldState()
	}
	if rules == nil {
		rules = NewRuleEngine()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = models.DefaultGameConfig().TickInterval
	}
	e := &Engine{
		cfg:         cfg,
		decider:     decider,
		input:       input,
		session:     NewSessionController(),
		rules:       rules,
		phases:      newPhaseMachine(),
		world:       world.Clone(),
		pending:     make(map[string][]models.PendingAction),
		committed:   make(map[string]bool),
		bgCtx:       context.Background(),
		completions: make(chan completion, 64),
		wake:        make(chan struct{}, 1),
	}
	if c, ok := input.(interface{ CancelAll() }); ok {
		e.session.OnInvalidate(c.CancelAll)
	}
	return e
}

// Session 会话控制器
func (e *Engine) Session() *SessionController { return e.session }

// Config 平衡参数
func (e *Engine) Config() models.GameConfig { return e.cfg }

// OnLog 订阅新增日志
func (e *Engine) OnLog(fn func(models.LogEntry)) {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()
	e.observers = append(e.observers, fn)
}

// Snapshot 返回世界状态的深拷贝
func (e *Engine) Snapshot() *models.WorldState {
	return e.current().Clone()
}

// current 返回当前世界（只读，禁止修改）
func (e *Engine) current() *models.WorldState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.world
}

// commit 在副本上执行fn；令牌有效且fn成功时替换世界状态
func (e *Engine) commit(token uint64, fn func(w *models.WorldState) error) error {
	e.mu.Lock()
	if !e.session.IsCurrent(token) {
		e.mu.Unlock()
		return ErrStaleSession
	}
	next := e.world.Clone()
	start := len(next.History)
	if err := fn(next); err != nil {
		e.mu.Unlock()
		return err
	}
	e.world = next
	var added []models.LogEntry
	if len(next.History) > start {
		added = append(added, next.History[start:]...)
	}
	e.mu.Unlock()

	e.publish(added)
	e.notify()
	return nil
}

// logLine 单独提交一条日志
func (e *Engine) logLine(token uint64, typ models.LogType, content string) error {
	return e.commit(token, func(w *models.WorldState) error {
		appendLog(w, typ, content)
		return nil
	})
}

func (e *Engine) publish(entries []models.LogEntry) {
	if len(entries) == 0 {
		return
	}
	e.obsMu.Lock()
	observers := append([]func(models.LogEntry){}, e.observers...)
	e.obsMu.Unlock()
	for _, entry := range entries {
		for _, fn := range observers {
			fn(entry)
		}
	}
}

func (e *Engine) notify() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// spawn 启动后台任务，完成后把结果送回主循环
func (e *Engine) spawn(token uint64, label string, run func(ctx context.Context) (func(w *models.WorldState) error, error)) {
	e.tasks.Add(1)
	go func() {
		defer e.tasks.Done()
		apply, err := run(e.bgCtx)
		e.completions <- completion{token: token, label: label, err: err, apply: apply}
	}()
}

// applyCompletion 在主循环上应用后台结果，令牌失效则丢弃
func (e *Engine) applyCompletion(c completion) {
	if !e.session.IsCurrent(c.token) || errors.Is(c.err, ErrStaleSession) {
		log.Printf("🗑️ [丢弃] 过期的后台结果: %s\n", c.label)
		return
	}
	if c.err != nil {
		e.failPhase(c.token, c.label, c.err)
		return
	}
	if c.apply == nil {
		return
	}
	if err := e.commit(c.token, c.apply); err != nil && !errors.Is(err, ErrStaleSession) {
		e.failPhase(c.token, c.label, err)
	}
}

// failPhase 外部服务失败：暂停并把错误挂到回合状态上，等待手动恢复
func (e *Engine) failPhase(token uint64, label string, err error) {
	log.Printf("❌ [%s] %v\n", label, err)
	_ = e.commit(token, func(w *models.WorldState) error {
		w.Round.IsPaused = true
		w.Round.Error = fmt.Sprintf("%s: %v", label, err)
		// 没有后台任务会再结束 executing，退回 char_acting 以便恢复后重跑本回合
		if w.Round.Phase == models.PhaseExecuting {
			if err := e.phases.advance(w, evInterrupt); err != nil {
				return err
			}
		}
		appendLogf(w, models.LogError, "⚠️ %s失败，已暂停：%v", label, err)
		return nil
	})
}

// Run 宿主循环：定时推进阶段，并在主循环上应用后台任务结果
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c := <-e.completions:
			e.applyCompletion(c)
		case <-e.wake:
			e.drive(ctx)
		case <-ticker.C:
			e.drive(ctx)
		}
	}
}

func (e *Engine) drive(ctx context.Context) {
	for i := 0; i < 64; i++ {
		progressed, err := e.Step(ctx)
		if err != nil || !progressed {
			return
		}
	}
}

// Flush 等待所有后台任务结束并应用它们的结果
func (e *Engine) Flush() {
	done := make(chan struct{})
	go func() {
		e.tasks.Wait()
		close(done)
	}()
	for {
		select {
		case c := <-e.completions:
			e.applyCompletion(c)
		case <-done:
			for {
				select {
				case c := <-e.completions:
					e.applyCompletion(c)
				default:
					return
				}
			}
		}
	}
}

// Step 执行一个阶段步骤。返回是否有进展；暂停或等待输入时返回false。
func (e *Engine) Step(ctx context.Context) (bool, error) {
	if !e.processing.CompareAndSwap(false, true) {
		return false, ErrBusy
	}
	defer e.processing.Store(false)

	w := e.current()
	if w.Round.IsPaused {
		return false, nil
	}
	token := e.session.Begin()

	var err error
	progressed := true
	switch w.Round.Phase {
	case models.PhaseInit:
		err = e.stepInit(token)
	case models.PhaseOrder:
		progressed, err = e.stepOrder(token, w)
	case models.PhaseTurnStart:
		err = e.stepTurnStart(token, w)
	case models.PhaseCharActing:
		progressed, err = e.stepCharActing(token, w)
	case models.PhaseExecuting:
		progressed = false
	case models.PhaseSettlement:
		err = e.settle(token, true)
	case models.PhaseRoundEnd:
		err = e.settle(token, false)
	default:
		err = fmt.Errorf("未知阶段: %s", w.Round.Phase)
	}

	if errors.Is(err, ErrStaleSession) {
		return false, nil
	}
	if err != nil {
		e.failPhase(token, "阶段推进", err)
		return false, err
	}
	return progressed, nil
}

func (e *Engine) stepInit(token uint64) error {
	return e.commit(token, func(w *models.WorldState) error {
		if w.Round.ActiveLocationID == "" {
			w.Round.ActiveLocationID = defaultLocation(w)
		}
		w.Round.Error = ""
		w.Round.AwaitingManualOrder = false
		w.Round.TurnIndex = 0
		w.Round.ActiveCharID = ""
		if err := e.phases.advance(w, evOrder); err != nil {
			return err
		}
		appendLogf(w, models.LogSystem, "━━━ 第%d轮开始 ━━━", w.Round.RoundNumber)
		return nil
	})
}

func (e *Engine) stepOrder(token uint64, w *models.WorldState) (bool, error) {
	var order []string
	if w.Round.UseManualTurnOrder {
		if w.Round.AutoAdvanceCount <= 0 || len(w.Round.DefaultOrder) == 0 {
			if w.Round.AwaitingManualOrder {
				return false, nil
			}
			err := e.commit(token, func(w *models.WorldState) error {
				w.Round.AwaitingManualOrder = true
				appendLog(w, models.LogSystem, "等待手动设置行动顺序")
				return nil
			})
			return false, err
		}
		order = aliveOrder(w, w.Round.DefaultOrder)
	} else {
		order = ResolveTurnOrder(w, w.Round.ActiveLocationID, e.cfg, e.rules)
	}

	if len(order) == 0 {
		err := e.commit(token, func(w *models.WorldState) error {
			w.Round.IsPaused = true
			w.Round.Error = "当前地点没有可行动的角色"
			appendLog(w, models.LogSystem, "当前地点没有可行动的角色，已暂停")
			return nil
		})
		return false, err
	}

	manual := w.Round.UseManualTurnOrder
	log.Printf("🎲 [行动顺序] 第%d轮: %v\n", w.Round.RoundNumber, order)
	return true, e.commit(token, func(w *models.WorldState) error {
		if manual {
			w.Round.AutoAdvanceCount--
		}
		return e.startOrder(w, order)
	})
}

// startOrder 写入本轮顺序并进入 turn_start
func (e *Engine) startOrder(w *models.WorldState, order []string) error {
	w.Round.CurrentOrder = order
	w.Round.TurnIndex = 0
	w.Round.AwaitingManualOrder = false
	if err := e.phases.advance(w, evOrdered); err != nil {
		return err
	}
	appendLogf(w, models.LogSystem, "第%d轮 行动顺序：%s", w.Round.RoundNumber, strings.Join(actorNames(w, order), " → "))
	return nil
}

func (e *Engine) stepTurnStart(token uint64, w *models.WorldState) error {
	return e.commit(token, func(w *models.WorldState) error {
		if w.Round.TurnIndex >= len(w.Round.CurrentOrder) {
			w.Round.ActiveCharID = ""
			if w.Round.SkipSettlement {
				return e.phases.advance(w, evEndRound)
			}
			if err := e.phases.advance(w, evSettle); err != nil {
				return err
			}
			appendLogf(w, models.LogSettlement, "第%d轮结算", w.Round.RoundNumber)
			return nil
		}

		id := w.Round.CurrentOrder[w.Round.TurnIndex]
		actor, ok := w.Actors[id]
		if !ok || actor.IsDead() {
			w.Round.TurnIndex++
			return nil
		}
		w.Round.ActiveCharID = id
		if err := e.phases.advance(w, evAct); err != nil {
			return err
		}
		appendLogf(w, models.LogSystem, "轮到%s行动", actor.Name)
		return nil
	})
}

func (e *Engine) stepCharActing(token uint64, w *models.WorldState) (bool, error) {
	id := w.Round.ActiveCharID
	actor, ok := w.Actors[id]
	if !ok || actor.IsDead() {
		return true, e.commit(token, e.finishTurn)
	}

	switch {
	case actor.IsEnvironment():
		// 环境角色的回合先提交转换，再在后台独立执行
		if err := e.commit(token, e.finishTurn); err != nil {
			return false, err
		}
		e.spawn(token, "环境回合", func(ctx context.Context) (func(*models.WorldState) error, error) {
			return nil, e.runAutonomousTurn(ctx, token, id)
		})
		return true, nil

	case actor.IsPlayer:
		actions, ready := e.takeCommitted(id)
		if !ready {
			return false, nil
		}
		if err := e.commit(token, func(w *models.WorldState) error {
			return e.phases.advance(w, evExecute)
		}); err != nil {
			return false, err
		}
		e.spawn(token, "玩家回合", func(ctx context.Context) (func(*models.WorldState) error, error) {
			if err := e.runPendingActions(ctx, token, actions); err != nil {
				return nil, err
			}
			return e.finishExecuting, nil
		})
		return true, nil

	default:
		if err := e.commit(token, func(w *models.WorldState) error {
			return e.phases.advance(w, evExecute)
		}); err != nil {
			return false, err
		}
		e.spawn(token, "角色回合", func(ctx context.Context) (func(*models.WorldState) error, error) {
			if err := e.runAutonomousTurn(ctx, token, id); err != nil {
				return nil, err
			}
			return e.finishExecuting, nil
		})
		return true, nil
	}
}

// finishTurn 结束当前角色回合
func (e *Engine) finishTurn(w *models.WorldState) error {
	if err := e.phases.advance(w, evFinishTurn); err != nil {
		return err
	}
	w.Round.TurnIndex++
	w.Round.ActiveCharID = ""
	return nil
}

// finishExecuting 执行完成的回调；阶段已被其他操作改变时什么也不做
func (e *Engine) finishExecuting(w *models.WorldState) error {
	if w.Round.Phase != models.PhaseExecuting {
		return nil
	}
	return e.finishTurn(w)
}

// runPendingActions 按提交顺序依次执行玩家行动
func (e *Engine) runPendingActions(ctx context.Context, token uint64, actions []models.PendingAction) error {
	for _, a := range actions {
		if err := e.session.Check(token); err != nil {
			return err
		}
		err := e.Dispatch(ctx, token, a)
		switch {
		case err == nil, errors.Is(err, ErrInsufficient):
			// 资源不足已经记录在日志里
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidAction):
			if err := e.logLine(token, models.LogSystem, fmt.Sprintf("行动无效：%v", err)); err != nil {
				return err
			}
		default:
			return err
		}
	}
	return nil
}

// runAutonomousTurn 由判定服务规划行动并执行
func (e *Engine) runAutonomousTurn(ctx context.Context, token uint64, actorID string) error {
	w := e.current()
	actor, ok := w.Actors[actorID]
	if !ok {
		return nil
	}

	req := TurnPlanRequest{
		Actor: actor,
		Cards: actor.OwnedCards(w.Cards),
		World: buildWorldContext(w),
	}
	for _, id := range sortedActorIDs(w) {
		other := w.Actors[id]
		if id != actorID && other.LocationID == actor.LocationID && !other.IsDead() {
			req.Nearby = append(req.Nearby, other)
		}
	}
	for _, loc := range w.Locations {
		req.Locations = append(req.Locations, loc)
	}
	sort.Slice(req.Locations, func(i, j int) bool { return req.Locations[i].ID < req.Locations[j].ID })

	plan, err := e.decider.PlanTurn(ctx, req)
	if err != nil {
		return fmt.Errorf("规划%s的行动: %w", actor.Name, err)
	}
	if err := e.session.Check(token); err != nil {
		return err
	}

	if plan.Narration != "" {
		if err := e.logLine(token, models.LogAction, fmt.Sprintf("%s：%s", actor.Name, plan.Narration)); err != nil {
			return err
		}
	}
	actions := make([]models.PendingAction, 0, len(plan.Actions))
	for _, p := range plan.Actions {
		actions = append(actions, models.PendingAction{
			Kind:       p.Kind,
			ActorID:    actorID,
			CardID:     p.CardID,
			TargetID:   p.TargetID,
			LocationID: p.LocationID,
			BurnLife:   p.BurnLife,
		})
	}
	return e.runPendingActions(ctx, token, actions)
}

// Dispatch 执行单个行动
func (e *Engine) Dispatch(ctx context.Context, token uint64, a models.PendingAction) error {
	var err error
	switch a.Kind {
	case models.ActionSkill:
		err = e.ExecuteSkill(ctx, token, SkillRequest{
			SourceID:  a.ActorID,
			CardID:    a.CardID,
			TargetID:  a.TargetID,
			Overrides: a.Overrides,
			BurnLife:  a.BurnLife,
		})
	case models.ActionMove:
		err = e.Move(token, a.ActorID, a.LocationID)
	case models.ActionCreate:
		if a.NewCard == nil {
			return fmt.Errorf("创造卡牌: %w", ErrInvalidAction)
		}
		_, err = e.CreateCard(token, a.ActorID, *a.NewCard)
	case models.ActionRedeem:
		if a.NewCard == nil {
			return fmt.Errorf("兑换奖励: %w", ErrInvalidAction)
		}
		_, err = e.RedeemReward(token, a.ActorID, a.CardID, *a.NewCard)
	case models.ActionDraw:
		_, err = e.LotteryDraw(token, a.ActorID, a.PoolID, a.Count)
	case models.ActionDeposit:
		err = e.LotteryDeposit(token, a.ActorID, a.PoolID, a.CardIDs)
	default:
		return fmt.Errorf("未知行动类型 %q: %w", a.Kind, ErrInvalidAction)
	}
	return err
}

// QueueAction 玩家在提交回合前排队行动
func (e *Engine) QueueAction(a models.PendingAction) error {
	w := e.current()
	actor, ok := w.Actors[a.ActorID]
	if !ok {
		return fmt.Errorf("角色 %s: %w", a.ActorID, ErrNotFound)
	}
	if !actor.IsPlayer {
		return fmt.Errorf("%s不是玩家角色: %w", actor.Name, ErrInvalidAction)
	}

	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	e.pending[a.ActorID] = append(e.pending[a.ActorID], a)
	return nil
}

// PendingActions 返回玩家已排队的行动
func (e *Engine) PendingActions(actorID string) []models.PendingAction {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	return append([]models.PendingAction(nil), e.pending[actorID]...)
}

// CommitTurn 玩家提交回合
func (e *Engine) CommitTurn(actorID string) error {
	w := e.current()
	if w.Round.Phase != models.PhaseCharActing || w.Round.ActiveCharID != actorID {
		return fmt.Errorf("现在不是%s的回合: %w", actorID, ErrInvalidAction)
	}
	e.pendingMu.Lock()
	e.committed[actorID] = true
	e.pendingMu.Unlock()
	e.notify()
	return nil
}

func (e *Engine) takeCommitted(actorID string) ([]models.PendingAction, bool) {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	if !e.committed[actorID] {
		return nil, false
	}
	actions := e.pending[actorID]
	delete(e.pending, actorID)
	delete(e.committed, actorID)
	return actions, true
}

func (e *Engine) clearPending() {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	e.pending = make(map[string][]models.PendingAction)
	e.committed = make(map[string]bool)
}

// Pause 暂停
func (e *Engine) Pause() error {
	return e.commit(e.session.Begin(), func(w *models.WorldState) error {
		w.Round.IsPaused = true
		return nil
	})
}

// Resume 恢复运行并清除错误
func (e *Engine) Resume() error {
	return e.commit(e.session.Begin(), func(w *models.WorldState) error {
		w.Round.IsPaused = false
		w.Round.Error = ""
		return nil
	})
}

// Stop 作废所有进行中的异步评估，强制结束等待中的玩家输入，并暂停
func (e *Engine) Stop() error {
	token := e.session.Invalidate()
	e.clearPending()
	log.Println("⏹️ [停止] 会话已作废")
	return e.commit(token, func(w *models.WorldState) error {
		w.Round.IsPaused = true
		if w.Round.Phase == models.PhaseExecuting {
			if err := e.phases.advance(w, evInterrupt); err != nil {
				return err
			}
		}
		appendLog(w, models.LogSystem, "⏹ 已停止，进行中的行动已作废")
		return nil
	})
}

// SetManualOrder 提交手动行动顺序
func (e *Engine) SetManualOrder(order []string) error {
	return e.commit(e.session.Begin(), func(w *models.WorldState) error {
		for _, id := range order {
			if _, ok := w.Actors[id]; !ok {
				return fmt.Errorf("角色 %s: %w", id, ErrNotFound)
			}
		}
		w.Round.DefaultOrder = append([]string(nil), order...)
		if w.Round.Phase == models.PhaseOrder && w.Round.AwaitingManualOrder {
			alive := aliveOrder(w, order)
			if len(alive) == 0 {
				return fmt.Errorf("行动顺序中没有存活角色: %w", ErrInvalidAction)
			}
			return e.startOrder(w, alive)
		}
		return nil
	})
}

// RoundSettings 回合开关
type RoundSettings struct {
	UseManualTurnOrder *bool `json:"use_manual_turn_order,omitempty"`
	SkipSettlement     *bool `json:"skip_settlement,omitempty"`
	IsHiddenRound      *bool `json:"is_hidden_round,omitempty"`
	AutoAdvanceCount   *int  `json:"auto_advance_count,omitempty"`
}

// UpdateSettings 修改回合开关
func (e *Engine) UpdateSettings(s RoundSettings) error {
	return e.commit(e.session.Begin(), func(w *models.WorldState) error {
		if s.UseManualTurnOrder != nil {
			w.Round.UseManualTurnOrder = *s.UseManualTurnOrder
		}
		if s.SkipSettlement != nil {
			w.Round.SkipSettlement = *s.SkipSettlement
		}
		if s.IsHiddenRound != nil {
			w.Round.IsHiddenRound = *s.IsHiddenRound
		}
		if s.AutoAdvanceCount != nil {
			w.Round.AutoAdvanceCount = *s.AutoAdvanceCount
		}
		return nil
	})
}

// Rollback 回到指定日志（保留该条），回合状态取最近的快照
func (e *Engine) Rollback(logID string) error {
	return e.rewind(logID, true)
}

// Regenerate 删除指定日志及之后的内容，从它的快照重新开始
func (e *Engine) Regenerate(logID string) error {
	return e.rewind(logID, false)
}

func (e *Engine) rewind(logID string, keep bool) error {
	token := e.session.Invalidate()
	e.clearPending()
	return e.commit(token, func(w *models.WorldState) error {
		idx := findLog(w, logID)
		if idx < 0 {
			return fmt.Errorf("日志 %s: %w", logID, ErrNotFound)
		}
		restoreRound(w, idx)
		if keep {
			w.History = w.History[:idx+1]
		} else {
			w.History = w.History[:idx]
		}
		log.Printf("⏪ [回溯] 已回到第%d轮 阶段%s\n", w.Round.RoundNumber, w.Round.Phase)
		return nil
	})
}

// Restore 载入存档：作废旧会话并以暂停状态恢复
func (e *Engine) Restore(world *models.WorldState) {
	e.session.Invalidate()
	e.clearPending()
	next := world.Clone()
	next.Round.IsPaused = true
	if next.Round.Phase == models.PhaseExecuting {
		next.Round.Phase = models.PhaseCharActing
	}
	e.mu.Lock()
	e.world = next
	e.mu.Unlock()
	e.notify()
}

func buildWorldContext(w *models.WorldState) WorldContext {
	ctx := WorldContext{
		Round: w.Round.RoundNumber,
		World: make(map[string]string),
	}
	if loc, ok := w.Locations[w.Round.ActiveLocationID]; ok {
		ctx.Location = loc.Name
	}
	for key, attr := range w.Attributes {
		if attr.Type == models.AttrText {
			ctx.World[key] = attr.Text
		} else {
			ctx.World[key] = fmt.Sprintf("%.0f", attr.Value)
		}
	}
	start := len(w.History) - 10
	if start < 0 {
		start = 0
	}
	for _, entry := range w.History[start:] {
		ctx.Recent = append(ctx.Recent, entry.Content)
	}
	return ctx
}

func aliveOrder(w *models.WorldState, order []string) []string {
	var out []string
	for _, id := range order {
		if a, ok := w.Actors[id]; ok && !a.IsDead() {
			out = append(out, id)
		}
	}
	return out
}

func actorNames(w *models.WorldState, ids []string) []string {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = actorName(w, id)
	}
	return names
}

func actorName(w *models.WorldState, id string) string {
	if a, ok := w.Actors[id]; ok && a.Name != "" {
		return a.Name
	}
	return id
}

// defaultLocation 优先取玩家所在地点
func defaultLocation(w *models.WorldState) string {
	for _, id := range sortedActorIDs(w) {
		if a := w.Actors[id]; a.IsPlayer && a.LocationID != "" {
			return a.LocationID
		}
	}
	for _, id := range sortedActorIDs(w) {
		if loc := w.Actors[id].LocationID; loc != "" {
			return loc
		}
	}
	return ""
}

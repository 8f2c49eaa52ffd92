package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/looplab/fsm"

	"github.com/aiwuxian/abyss-engine/internal/models"
)

// 阶段事件
const (
	evOrder      = "order"
	evOrdered    = "ordered"
	evAct        = "act"
	evExecute    = "execute"
	evFinishTurn = "finish_turn"
	evSettle     = "settle"
	evEndRound   = "end_round"
	evNextRound  = "next_round"
	evInterrupt  = "interrupt"
)

// phaseMachine 阶段转换表。RoundState.Phase 才是权威状态，
// 每次转换前把状态机拨到当前阶段，只用它校验转换是否合法。
type phaseMachine struct {
	mu  sync.Mutex
	fsm *fsm.FSM
}

func newPhaseMachine() *phaseMachine {
	return &phaseMachine{
		fsm: fsm.NewFSM(
			string(models.PhaseInit),
			fsm.Events{
				{Name: evOrder, Src: []string{string(models.PhaseInit)}, Dst: string(models.PhaseOrder)},
				{Name: evOrdered, Src: []string{string(models.PhaseOrder)}, Dst: string(models.PhaseTurnStart)},
				{Name: evAct, Src: []string{string(models.PhaseTurnStart)}, Dst: string(models.PhaseCharActing)},
				{Name: evExecute, Src: []string{string(models.PhaseCharActing)}, Dst: string(models.PhaseExecuting)},
				{Name: evFinishTurn, Src: []string{string(models.PhaseCharActing), string(models.PhaseExecuting)}, Dst: string(models.PhaseTurnStart)},
				{Name: evSettle, Src: []string{string(models.PhaseTurnStart)}, Dst: string(models.PhaseSettlement)},
				{Name: evEndRound, Src: []string{string(models.PhaseTurnStart)}, Dst: string(models.PhaseRoundEnd)},
				{Name: evNextRound, Src: []string{string(models.PhaseSettlement), string(models.PhaseRoundEnd)}, Dst: string(models.PhaseInit)},
				{Name: evInterrupt, Src: []string{string(models.PhaseExecuting)}, Dst: string(models.PhaseCharActing)},
			},
			fsm.Callbacks{},
		),
	}
}

// transition 校验并返回目标阶段
func (m *phaseMachine) transition(from models.Phase, event string) (models.Phase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.fsm.SetState(string(from))
	if err := m.fsm.Event(context.Background(), event); err != nil {
		return from, fmt.Errorf("阶段 %s 不能执行 %s: %w", from, event, err)
	}
	return models.Phase(m.fsm.Current()), nil
}

// advance 在世界副本上执行阶段转换
func (m *phaseMachine) advance(w *models.WorldState, event string) error {
	next, err := m.transition(w.Round.Phase, event)
	if err != nil {
		return err
	}
	w.Round.Phase = next
	return nil
}

package services

import (
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aiwuxian/abyss-engine/internal/models"
)

// appendLog 追加一条日志并保存当前回合状态的深拷贝
func appendLog(w *models.WorldState, typ models.LogType, content string) models.LogEntry {
	snap := w.Round.Clone()
	entry := models.LogEntry{
		ID:        uuid.New().String(),
		Round:     w.Round.RoundNumber,
		TurnIndex: w.Round.TurnIndex,
		Content:   content,
		Timestamp: time.Now(),
		Type:      typ,
		Snapshot:  &snap,
	}
	w.History = append(w.History, entry)
	return entry
}

func appendLogf(w *models.WorldState, typ models.LogType, format string, args ...any) models.LogEntry {
	return appendLog(w, typ, fmt.Sprintf(format, args...))
}

func findLog(w *models.WorldState, logID string) int {
	for i, e := range w.History {
		if e.ID == logID {
			return i
		}
	}
	return -1
}

// restoreRound 从第idx条日志向前找最近的快照并原样恢复（强制暂停）
func restoreRound(w *models.WorldState, idx int) {
	for i := idx; i >= 0; i-- {
		if snap := w.History[i].Snapshot; snap != nil {
			w.Round = snap.Clone()
			w.Round.IsPaused = true
			return
		}
	}

	log.Println("⚠️ [回溯] 日志中没有快照，按日志文本推断回合状态（降级模式）")
	w.Round = reconstructLegacyRound(w.History[:idx+1], w.Round)
	w.Round.CurrentOrder = resolveActorRefs(w, w.Round.CurrentOrder)
	w.Round.DefaultOrder = resolveActorRefs(w, w.Round.DefaultOrder)
	if refs := resolveActorRefs(w, []string{w.Round.ActiveCharID}); len(refs) == 1 {
		w.Round.ActiveCharID = refs[0]
	}
	w.Round.IsPaused = true
}

// resolveActorRefs 旧日志里记录的是角色名，尽量映射回ID
func resolveActorRefs(w *models.WorldState, refs []string) []string {
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		if _, ok := w.Actors[ref]; ok {
			out = append(out, ref)
			continue
		}
		for _, id := range sortedActorIDs(w) {
			if w.Actors[id].Name == ref {
				ref = id
				break
			}
		}
		out = append(out, ref)
	}
	return out
}

// 旧存档的日志文本格式
var (
	legacyRoundRe = regexp.MustCompile(`第\s*(\d+)\s*轮`)
	legacyOrderRe = regexp.MustCompile(`行动顺序[：:]\s*(.+)$`)
	legacyTurnRe  = regexp.MustCompile(`轮到\s*(\S+?)\s*行动`)
)

// reconstructLegacyRound 降级模式：没有快照的旧数据只能从日志文本推断轮次、顺序和阶段，
// 结果是尽力而为，可能误判阶段边界。
func reconstructLegacyRound(entries []models.LogEntry, current models.RoundState) models.RoundState {
	rs := models.RoundState{
		RoundNumber:        1,
		Phase:              models.PhaseInit,
		ActiveLocationID:   current.ActiveLocationID,
		UseManualTurnOrder: current.UseManualTurnOrder,
		ActionPoints:       current.ActionPoints,
	}

	roundFound := false
	for i := len(entries) - 1; i >= 0; i-- {
		content := entries[i].Content
		if !roundFound {
			if m := legacyRoundRe.FindStringSubmatch(content); m != nil {
				if n, err := strconv.Atoi(m[1]); err == nil {
					rs.RoundNumber = n
					roundFound = true
				}
			} else if entries[i].Round > 0 {
				rs.RoundNumber = entries[i].Round
				roundFound = true
			}
		}
		if rs.CurrentOrder == nil {
			if m := legacyOrderRe.FindStringSubmatch(content); m != nil {
				rs.CurrentOrder = splitLegacyOrder(m[1])
			}
		}
		if rs.ActiveCharID == "" {
			if m := legacyTurnRe.FindStringSubmatch(content); m != nil {
				rs.ActiveCharID = m[1]
			}
		}
	}

	if len(rs.CurrentOrder) > 0 {
		rs.Phase = models.PhaseTurnStart
		for i, id := range rs.CurrentOrder {
			if id == rs.ActiveCharID {
				rs.TurnIndex = i
				rs.Phase = models.PhaseCharActing
			}
		}
	}
	if n := len(entries); n > 0 && strings.Contains(entries[n-1].Content, "结算") {
		rs.Phase = models.PhaseSettlement
	}
	rs.DefaultOrder = append([]string(nil), rs.CurrentOrder...)
	return rs
}

func splitLegacyOrder(s string) []string {
	var ids []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool {
		return r == '→' || r == ',' || r == '，' || r == '>'
	}) {
		part = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(part), "-"))
		if part != "" {
			ids = append(ids, part)
		}
	}
	return ids
}

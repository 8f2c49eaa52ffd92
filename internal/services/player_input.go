package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Prompt 等待玩家回应的请求
type Prompt struct {
	ID        string    `json:"id"`
	ActorID   string    `json:"actor_id"`
	Title     string    `json:"title"`
	Prompt    string    `json:"prompt"`
	CreatedAt time.Time `json:"created_at"`
}

type pendingPrompt struct {
	Prompt
	once  sync.Once
	reply chan promptReply
}

type promptReply struct {
	text string
	ok   bool
}

func (p *pendingPrompt) resolve(text string, ok bool) bool {
	resolved := false
	p.once.Do(func() {
		p.reply <- promptReply{text: text, ok: ok}
		resolved = true
	})
	return resolved
}

// PromptBroker 玩家输入服务：每个请求只会被解决一次（回答、取消或上下文结束）
type PromptBroker struct {
	mu       sync.Mutex
	pending  map[string]*pendingPrompt
	watchers []func(p Prompt, open bool)
}

func NewPromptBroker() *PromptBroker {
	return &PromptBroker{pending: make(map[string]*pendingPrompt)}
}

// Watch 订阅请求开启/关闭事件
func (b *PromptBroker) Watch(fn func(p Prompt, open bool)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.watchers = append(b.watchers, fn)
}

// RequestReaction 阻塞直到玩家回应；取消时返回 ("", false)
func (b *PromptBroker) RequestReaction(ctx context.Context, actorID, title, prompt string) (string, bool) {
	p := &pendingPrompt{
		Prompt: Prompt{
			ID:        uuid.New().String(),
			ActorID:   actorID,
			Title:     title,
			Prompt:    prompt,
			CreatedAt: time.Now(),
		},
		reply: make(chan promptReply, 1),
	}

	b.mu.Lock()
	b.pending[p.ID] = p
	b.mu.Unlock()
	b.notify(p.Prompt, true)

	defer func() {
		b.mu.Lock()
		delete(b.pending, p.ID)
		b.mu.Unlock()
		b.notify(p.Prompt, false)
	}()

	select {
	case r := <-p.reply:
		return r.text, r.ok
	case <-ctx.Done():
		p.resolve("", false)
		return "", false
	}
}

// Answer 回应请求，请求不存在或已解决时返回false
func (b *PromptBroker) Answer(id, text string) bool {
	b.mu.Lock()
	p, ok := b.pending[id]
	b.mu.Unlock()
	if !ok {
		return false
	}
	return p.resolve(text, true)
}

// Cancel 取消单个请求
func (b *PromptBroker) Cancel(id string) bool {
	b.mu.Lock()
	p, ok := b.pending[id]
	b.mu.Unlock()
	if !ok {
		return false
	}
	return p.resolve("", false)
}

// CancelAll 以空结果结束所有等待中的请求
func (b *PromptBroker) CancelAll() {
	b.mu.Lock()
	all := make([]*pendingPrompt, 0, len(b.pending))
	for _, p := range b.pending {
		all = append(all, p)
	}
	b.mu.Unlock()

	for _, p := range all {
		p.resolve("", false)
	}
}

// Pending 列出等待中的请求
func (b *PromptBroker) Pending() []Prompt {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Prompt, 0, len(b.pending))
	for _, p := range b.pending {
		out = append(out, p.Prompt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (b *PromptBroker) notify(p Prompt, open bool) {
	b.mu.Lock()
	watchers := append([]func(Prompt, bool){}, b.watchers...)
	b.mu.Unlock()
	for _, w := range watchers {
		w(p, open)
	}
}

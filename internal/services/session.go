package services

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrStaleSession 会话令牌已过期，结果必须丢弃
var ErrStaleSession = errors.New("会话已失效")

// SessionController 单调递增的会话令牌。
// 所有异步评估在开始前取得令牌，在每次等待之后和写回结果之前重新校验。
type SessionController struct {
	token atomic.Uint64

	mu    sync.Mutex
	hooks []func()
}

func NewSessionController() *SessionController {
	return &SessionController{}
}

// Begin 返回当前令牌
func (s *SessionController) Begin() uint64 {
	return s.token.Load()
}

// IsCurrent 令牌是否仍然有效
func (s *SessionController) IsCurrent(token uint64) bool {
	return s.token.Load() == token
}

// Check 令牌失效时返回 ErrStaleSession
func (s *SessionController) Check(token uint64) error {
	if !s.IsCurrent(token) {
		return ErrStaleSession
	}
	return nil
}

// OnInvalidate 注册失效回调（用于强制结束等待中的玩家输入）
func (s *SessionController) OnInvalidate(hook func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hook)
}

// Invalidate 令牌加一并触发回调，返回新令牌
func (s *SessionController) Invalidate() uint64 {
	next := s.token.Add(1)

	s.mu.Lock()
	hooks := append([]func(){}, s.hooks...)
	s.mu.Unlock()

	for _, hook := range hooks {
		hook()
	}
	return next
}

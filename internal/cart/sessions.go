package cart

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrSessionNotFound 会话 ID 无效或已被移除。
var ErrSessionNotFound = errors.New("cart session not found")

// Sessions 管理活跃购物车会话：uuid → *Cart。
// 纯进程内状态，重启即清空——购物车本来就不落盘。
type Sessions struct {
	mu    sync.Mutex
	carts map[string]*Cart
}

func NewSessions() *Sessions {
	return &Sessions{carts: make(map[string]*Cart)}
}

// Open 新建会话，返回会话 ID。
func (s *Sessions) Open() string {
	id := uuid.New().String()
	s.mu.Lock()
	s.carts[id] = New()
	s.mu.Unlock()
	return id
}

// Get 按会话 ID 取购物车。
func (s *Sessions) Get(id string) (*Cart, error) {
	s.mu.Lock()
	c, ok := s.carts[id]
	s.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	return c, nil
}

// Close 移除会话（结账成功或终端放弃后调用）。
func (s *Sessions) Close(id string) {
	s.mu.Lock()
	delete(s.carts, id)
	s.mu.Unlock()
}

package feed

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/iabetor/feedwatch/internal/logger"
)

// Manager 管理全部订阅源的生命周期，每个订阅源对应一个 Coordinator。
// 所有 Coordinator 共享同一个 SeenStore 和 Fetcher。
// 单个订阅源的失败不影响其他订阅源。
type Manager struct {
	mu      sync.Mutex
	fetcher *Fetcher
	store   *SeenStore
	handler Handler
	onError ErrorHandler
	coords  map[string]*Coordinator // key: 订阅源 URL
}

// NewManager 创建订阅源管理器。
func NewManager(store *SeenStore, fetcher *Fetcher, handler Handler, onError ErrorHandler) *Manager {
	return &Manager{
		fetcher: fetcher,
		store:   store,
		handler: handler,
		onError: onError,
		coords:  make(map[string]*Coordinator),
	}
}

// Add 注册并启动一个订阅源。URL 已存在时返回错误。
// ID 为空时自动分配。
func (m *Manager) Add(ctx context.Context, sub Subscription) error {
	if sub.URL == "" {
		return fmt.Errorf("订阅源 URL 不能为空")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.coords[sub.URL]; ok {
		return fmt.Errorf("该订阅源已存在: %s", sub.URL)
	}
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}

	c := NewCoordinator(sub, m.fetcher, m.store, m.handler, m.onError)
	m.coords[sub.URL] = c
	c.Start(ctx)

	logger.Infof("[feed] 订阅源已启动: %s (间隔 %s)", sub.URL, c.Sub().Interval)
	return nil
}

// Remove 停止并移除订阅源，同时清除其去重状态。
// 在途周期允许跑完，但其结果不再参与后续调度。
func (m *Manager) Remove(feedURL string) bool {
	m.mu.Lock()
	c, ok := m.coords[feedURL]
	if ok {
		delete(m.coords, feedURL)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	c.Stop()
	m.store.Forget(feedURL)
	logger.Infof("[feed] 订阅源已移除: %s", feedURL)
	return true
}

// List 返回当前所有订阅源的副本。
func (m *Manager) List() []Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs := make([]Subscription, 0, len(m.coords))
	for _, c := range m.coords {
		subs = append(subs, c.Sub())
	}
	return subs
}

// Close 停止全部订阅源，保留去重状态供下次启动使用。
func (m *Manager) Close() {
	m.mu.Lock()
	coords := make([]*Coordinator, 0, len(m.coords))
	for _, c := range m.coords {
		coords = append(coords, c)
	}
	m.coords = make(map[string]*Coordinator)
	m.mu.Unlock()

	for _, c := range coords {
		c.Stop()
	}
}

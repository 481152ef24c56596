package feed

import (
	"context"
	"time"

	"github.com/iabetor/feedwatch/internal/logger"
)

const (
	defaultPollInterval = time.Hour
	defaultMaxEntries   = 20
)

// Subscription 一个被轮询的订阅源及其参数。URL 是订阅源的唯一标识。
type Subscription struct {
	ID         string
	Name       string
	URL        string
	Interval   time.Duration // 轮询间隔
	MaxEntries int           // 已知指纹集上限
}

// PollResult 一次成功轮询的产出。
type PollResult struct {
	Sub       Subscription
	FeedTitle string
	// Entries 本次新观察到的条目，保持源文档内的相对顺序，可能为空。
	Entries []Entry
	// FirstPoll 是否为该订阅源的首次轮询。
	// 调用方可据此抑制初始积压条目的通知，避免刷屏。
	FirstPoll bool
}

// Handler 消费新条目的回调，在轮询协程内同步调用。
type Handler func(PollResult)

// ErrorHandler 接收抓取/解析失败通知的回调。
type ErrorHandler func(sub Subscription, err error)

// Coordinator 驱动单个订阅源的轮询周期：
// 定时触发 → 抓取 → 分类 → 提交 → 通知 → 回到空闲。
// 同一订阅源的周期严格串行，上一周期未结束时新的触发被跳过。
type Coordinator struct {
	sub     Subscription
	fetcher *Fetcher
	store   *SeenStore
	handler Handler
	onError ErrorHandler

	sm     *StateMachine
	cancel context.CancelFunc
	done   chan struct{}
}

// NewCoordinator 创建订阅源协调器。所有协调器共享同一个 store 和 fetcher。
func NewCoordinator(sub Subscription, fetcher *Fetcher, store *SeenStore, handler Handler, onError ErrorHandler) *Coordinator {
	if sub.Interval <= 0 {
		sub.Interval = defaultPollInterval
	}
	if sub.MaxEntries <= 0 {
		sub.MaxEntries = defaultMaxEntries
	}
	return &Coordinator{
		sub:     sub,
		fetcher: fetcher,
		store:   store,
		handler: handler,
		onError: onError,
		sm:      NewStateMachine(),
		done:    make(chan struct{}),
	}
}

// Sub 返回协调器对应的订阅源。
func (c *Coordinator) Sub() Subscription {
	return c.sub
}

// State 返回当前轮询状态。
func (c *Coordinator) State() State {
	return c.sm.Current()
}

// Start 启动定时轮询。首次轮询立即执行，之后按固定间隔触发。
func (c *Coordinator) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	go c.run(ctx)
}

// Stop 取消定时器并等待在途周期结束。未 Start 过的协调器 Stop 是空操作。
func (c *Coordinator) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	<-c.done
}

func (c *Coordinator) run(ctx context.Context) {
	defer close(c.done)

	_ = c.Poll(ctx)

	ticker := time.NewTicker(c.sub.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// 失败已在 Poll 内上报，固定间隔无条件重试
			_ = c.Poll(ctx)
		}
	}
}

// Poll 执行一次完整的轮询周期。
// 上一周期尚未结束时直接跳过（不排队），等待下一次定时触发。
// 抓取或解析失败不触及已知指纹集。
func (c *Coordinator) Poll(ctx context.Context) error {
	if !c.sm.Transition(StateFetching) {
		logger.Debugf("[feed] %s 上一周期仍在进行，跳过本次触发", c.sub.URL)
		return nil
	}
	defer c.sm.ForceIdle()

	res, err := c.fetcher.Fetch(ctx, c.sub.URL, c.store.Conditional(c.sub.URL))
	if err != nil {
		logger.Warnf("[feed] 轮询 %s 失败: %v", c.sub.URL, err)
		if c.onError != nil {
			c.onError(c.sub, err)
		}
		return err
	}

	c.sm.Transition(StateClassifying)

	if res.NotModified {
		logger.Debugf("[feed] %s 内容未变化", c.sub.URL)
		return nil
	}

	// 每轮至多处理上限数量的条目，超出部分按文档顺序截断，
	// 保证未变化的长订阅源不会反复把尾部条目当作新条目
	entries := res.Entries
	if len(entries) > c.sub.MaxEntries {
		entries = entries[:c.sub.MaxEntries]
	}

	first := !c.store.HasRecord(c.sub.URL)
	news, updated := c.store.Classify(c.sub.URL, entries, c.sub.MaxEntries)
	c.store.Commit(c.sub.URL, updated, Conditional{
		ETag:         res.Meta.ETag,
		LastModified: res.Meta.LastModified,
	})

	logger.Infof("[feed] %s 本次共 %d 条，新条目 %d 条", c.sub.URL, len(res.Entries), len(news))
	if c.handler != nil {
		c.handler(PollResult{
			Sub:       c.sub,
			FeedTitle: res.Meta.Title,
			Entries:   news,
			FirstPoll: first,
		})
	}
	return nil
}

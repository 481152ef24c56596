package feed

import (
	"sync"

	"github.com/iabetor/feedwatch/internal/logger"
)

// State 表示单个订阅源轮询周期所处的阶段。
type State int

const (
	// StateIdle — 空闲，等待下一次定时触发。
	StateIdle State = iota
	// StateFetching — 正在抓取远端文档。
	StateFetching
	// StateClassifying — 正在分类条目并提交指纹集。
	StateClassifying
)

var stateNames = [...]string{
	"Idle",
	"Fetching",
	"Classifying",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

// StateMachine 管理线程安全的轮询状态转换。
type StateMachine struct {
	mu       sync.RWMutex
	current  State
	onChange func(from, to State)
}

// NewStateMachine 创建一个初始状态为 Idle 的状态机。
func NewStateMachine() *StateMachine {
	return &StateMachine{
		current: StateIdle,
	}
}

// SetOnChange 注册状态变化时的回调函数。
func (sm *StateMachine) SetOnChange(fn func(from, to State)) {
	sm.mu.Lock()
	sm.onChange = fn
	sm.mu.Unlock()
}

// Current 返回当前状态。
func (sm *StateMachine) Current() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}

// Transition 尝试切换状态。只有合法的转换才会生效：
//
//	Idle        → Fetching     （定时触发，开始抓取）
//	Fetching    → Classifying  （抓取成功，开始分类）
//	Classifying → Idle         （提交完成，等待下次触发）
//
// 任何状态都可以转换到 Idle（用于失败恢复）。
// 返回 false 表示转换未发生，调用方应跳过本次触发。
func (sm *StateMachine) Transition(to State) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !validTransition(sm.current, to) {
		logger.Debugf("[feed] 非法状态转换 %s → %s", sm.current, to)
		return false
	}

	from := sm.current
	sm.current = to

	if sm.onChange != nil {
		sm.onChange(from, to)
	}
	return true
}

// ForceIdle 无条件重置状态为 Idle。
func (sm *StateMachine) ForceIdle() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	from := sm.current
	sm.current = StateIdle
	if from != StateIdle && sm.onChange != nil {
		sm.onChange(from, StateIdle)
	}
}

// validTransition 检查状态转换是否合法。
func validTransition(from, to State) bool {
	// 始终允许重置到 Idle（用于失败恢复）
	if to == StateIdle {
		return true
	}
	switch from {
	case StateIdle:
		return to == StateFetching
	case StateFetching:
		return to == StateClassifying
	}
	return false
}

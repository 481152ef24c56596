package feed

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/iabetor/feedwatch/internal/logger"
)

const seenFileName = "seen.json"

// feedRecord 单个订阅源的持久化去重状态。
type feedRecord struct {
	// Fingerprints 按观察先后排列，最新的在末尾，长度受 max-entries 约束。
	Fingerprints []string    `json:"fingerprints"`
	Conditional  Conditional `json:"conditional,omitempty"`
}

// SeenStore 进程级共享的去重存储，按订阅源 URL 分键。
// 启动时加载一次，提交后异步落盘。
// 持久化文件缺失或损坏时以空状态启动，不视为致命错误。
type SeenStore struct {
	mu       sync.RWMutex
	filePath string
	records  map[string]feedRecord

	flushMu sync.Mutex // 串行化磁盘写入
}

// NewSeenStore 创建去重存储并从 dataDir 下的持久化文件加载历史状态。
func NewSeenStore(dataDir string) (*SeenStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	s := &SeenStore{
		filePath: filepath.Join(dataDir, seenFileName),
		records:  make(map[string]feedRecord),
	}
	if err := s.load(); err != nil {
		logger.Warnf("[feed] 加载去重状态失败（将以空状态启动）: %v", err)
		s.records = make(map[string]feedRecord)
	}
	return s, nil
}

func (s *SeenStore) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, &s.records)
}

// HasRecord 报告该订阅源是否已有去重记录。
// 首次轮询前记录不存在，调用方可据此决定是否抑制积压条目的通知。
func (s *SeenStore) HasRecord(feedURL string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[feedURL]
	return ok
}

// Known 返回该订阅源当前已知指纹的副本，按观察先后排列。
func (s *SeenStore) Known(feedURL string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	known := s.records[feedURL].Fingerprints
	result := make([]string, len(known))
	copy(result, known)
	return result
}

// Conditional 返回该订阅源上次记录的条件请求标记。
func (s *SeenStore) Conditional(feedURL string) Conditional {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.records[feedURL].Conditional
}

// Classify 按抓取顺序对条目分类。
// 返回其中的新条目（保持原始相对顺序），以及按观察新近度重排后的指纹集：
// 本批次观察到的指纹（无论新旧）移到末尾，未出现的旧指纹保持在前，
// 超出上限时从最前面淘汰。同一批次内指纹重复的条目只记一次。
// 本方法不修改共享状态，更新由调用方通过 Commit 提交。
func (s *SeenStore) Classify(feedURL string, entries []Entry, maxEntries int) (news []Entry, updated []string) {
	s.mu.RLock()
	known := s.records[feedURL].Fingerprints
	s.mu.RUnlock()

	knownSet := make(map[string]struct{}, len(known))
	for _, fp := range known {
		knownSet[fp] = struct{}{}
	}

	// 批次内按抓取顺序去重，并识别新条目
	batch := make([]string, 0, len(entries))
	batchSet := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		fp := e.Fingerprint()
		if _, ok := batchSet[fp]; ok {
			continue
		}
		batchSet[fp] = struct{}{}
		batch = append(batch, fp)
		if _, ok := knownSet[fp]; !ok {
			news = append(news, e)
		}
	}

	// 最近观察到的在末尾：再次出现的已知指纹也移到末尾，避免被提前淘汰
	updated = make([]string, 0, len(known)+len(batch))
	for _, fp := range known {
		if _, ok := batchSet[fp]; !ok {
			updated = append(updated, fp)
		}
	}
	updated = append(updated, batch...)

	// 超出上限时淘汰最旧的指纹
	if maxEntries > 0 && len(updated) > maxEntries {
		updated = updated[len(updated)-maxEntries:]
	}
	return news, updated
}

// Commit 原子替换该订阅源的指纹集与条件标记，并调度一次异步落盘。
// Classify 加 Commit 是唯一能让指纹变为"已知"的路径。
func (s *SeenStore) Commit(feedURL string, updated []string, cond Conditional) {
	s.mu.Lock()
	s.records[feedURL] = feedRecord{Fingerprints: updated, Conditional: cond}
	s.mu.Unlock()

	go func() {
		if err := s.Flush(); err != nil {
			logger.Warnf("[feed] 保存去重状态失败（下次提交时重试）: %v", err)
		}
	}()
}

// Forget 删除该订阅源的全部去重状态，订阅源被移除时调用。
func (s *SeenStore) Forget(feedURL string) {
	s.mu.Lock()
	delete(s.records, feedURL)
	s.mu.Unlock()

	go func() {
		if err := s.Flush(); err != nil {
			logger.Warnf("[feed] 保存去重状态失败: %v", err)
		}
	}()
}

// Flush 将当前内存状态持久化到磁盘。
// 可与 Commit 并发调用：序列化在写入锁内进行，总是捕获最新状态；
// 落盘期间到达的提交会体现在下一次 Flush 中，不会丢失。
func (s *SeenStore) Flush() error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.RLock()
	data, err := json.MarshalIndent(s.records, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return err
	}

	// 先写临时文件再原子替换，崩溃时上一份快照不受影响
	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.filePath)
}

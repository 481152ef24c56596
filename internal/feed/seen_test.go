package feed

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func entry(guid, title string) Entry {
	return Entry{GUID: guid, Title: title}
}

func TestClassifyAllNewOnEmptyStore(t *testing.T) {
	store, err := NewSeenStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewSeenStore 失败: %v", err)
	}

	entries := []Entry{entry("a", "A"), entry("b", "B")}
	news, updated := store.Classify("https://example.com/feed", entries, 10)

	if len(news) != 2 {
		t.Fatalf("空状态下全部条目应为新条目，得到 %d 条", len(news))
	}
	if len(updated) != 2 || updated[0] != "a" || updated[1] != "b" {
		t.Errorf("更新后的指纹集不符: %v", updated)
	}
}

func TestClassifyDoesNotMutateSharedState(t *testing.T) {
	store, _ := NewSeenStore(t.TempDir())
	const url = "https://example.com/feed"

	store.Classify(url, []Entry{entry("a", "A")}, 10)

	// 未 Commit 时再次分类，仍应全部视为新条目
	news, _ := store.Classify(url, []Entry{entry("a", "A")}, 10)
	if len(news) != 1 {
		t.Fatal("Classify 不应自行修改共享状态，提交前重复分类结果应一致")
	}
	if store.HasRecord(url) {
		t.Error("提交前不应存在去重记录")
	}
}

func TestClassifyIdempotentAfterCommit(t *testing.T) {
	store, _ := NewSeenStore(t.TempDir())
	const url = "https://example.com/feed"
	entries := []Entry{entry("a", "A"), entry("b", "B")}

	_, updated := store.Classify(url, entries, 10)
	store.Commit(url, updated, Conditional{})

	news, _ := store.Classify(url, entries, 10)
	if len(news) != 0 {
		t.Fatalf("提交后重复分类同一批条目应得到 0 条新条目，得到 %d 条", len(news))
	}
}

func TestClassifyOrderPreserved(t *testing.T) {
	store, _ := NewSeenStore(t.TempDir())
	const url = "https://example.com/feed"

	_, updated := store.Classify(url, []Entry{entry("b", "B")}, 10)
	store.Commit(url, updated, Conditional{})

	// b 已知，新条目应保持 a、c、d 的相对顺序
	news, _ := store.Classify(url, []Entry{entry("a", "A"), entry("b", "B"), entry("c", "C"), entry("d", "D")}, 10)
	if len(news) != 3 {
		t.Fatalf("期望 3 条新条目，得到 %d 条", len(news))
	}
	for i, want := range []string{"a", "c", "d"} {
		if news[i].GUID != want {
			t.Errorf("新条目顺序不符: 位置 %d 期望 %s 得到 %s", i, want, news[i].GUID)
		}
	}
}

func TestClassifyBatchDuplicate(t *testing.T) {
	store, _ := NewSeenStore(t.TempDir())

	// 同一批次内重复出现的条目只记一次
	news, updated := store.Classify("https://example.com/feed",
		[]Entry{entry("a", "A"), entry("a", "A 重发")}, 10)
	if len(news) != 1 {
		t.Fatalf("批次内重复指纹只应产生 1 条新条目，得到 %d 条", len(news))
	}
	if len(updated) != 1 {
		t.Fatalf("指纹集应去重，得到 %v", updated)
	}
}

func TestClassifyBoundedEviction(t *testing.T) {
	store, _ := NewSeenStore(t.TempDir())
	const url = "https://example.com/feed"
	const max = 2

	// 第 1 轮: [A, B] → 全部新，指纹集 [a, b]
	news, updated := store.Classify(url, []Entry{entry("a", "A"), entry("b", "B")}, max)
	if len(news) != 2 {
		t.Fatalf("第 1 轮期望 2 条新条目，得到 %d", len(news))
	}
	store.Commit(url, updated, Conditional{})

	// 第 2 轮: [B, C] → 只有 C 新，a 被淘汰，指纹集 [b, c]
	news, updated = store.Classify(url, []Entry{entry("b", "B"), entry("c", "C")}, max)
	if len(news) != 1 || news[0].GUID != "c" {
		t.Fatalf("第 2 轮只应有 c 是新条目，得到 %v", news)
	}
	if len(updated) != max || updated[0] != "b" || updated[1] != "c" {
		t.Fatalf("第 2 轮后指纹集应为 [b c]，得到 %v", updated)
	}
	store.Commit(url, updated, Conditional{})

	// 第 3 轮: [A, C] → a 已被淘汰，重新视为新条目（有界内存的既定取舍）
	news, updated = store.Classify(url, []Entry{entry("a", "A"), entry("c", "C")}, max)
	if len(news) != 1 || news[0].GUID != "a" {
		t.Fatalf("第 3 轮被淘汰的 a 应重新视为新条目，得到 %v", news)
	}
	if len(updated) != max {
		t.Fatalf("指纹集长度不应超过上限 %d: %v", max, updated)
	}
}

func TestClassifyReobservedMovesToTail(t *testing.T) {
	store, _ := NewSeenStore(t.TempDir())
	const url = "https://example.com/feed"
	const max = 2

	// 置顶条目 pin 每轮都出现，轮换条目 x1/x2/x3 依次替换
	_, updated := store.Classify(url, []Entry{entry("pin", "置顶"), entry("x1", "轮换1")}, max)
	store.Commit(url, updated, Conditional{})

	news, updated := store.Classify(url, []Entry{entry("pin", "置顶"), entry("x2", "轮换2")}, max)
	if len(news) != 1 || news[0].GUID != "x2" {
		t.Fatalf("第 2 轮只应有 x2 是新条目，得到 %v", news)
	}
	// 再次观察到的 pin 应移到末尾，被淘汰的是不再出现的 x1
	if len(updated) != max || updated[0] != "pin" || updated[1] != "x2" {
		t.Fatalf("第 2 轮后指纹集应为 [pin x2]，得到 %v", updated)
	}
	store.Commit(url, updated, Conditional{})

	news, updated = store.Classify(url, []Entry{entry("pin", "置顶"), entry("x3", "轮换3")}, max)
	if len(news) != 1 || news[0].GUID != "x3" {
		t.Fatalf("每轮都出现的 pin 不应被重新视为新条目，得到 %v", news)
	}
	if updated[0] != "pin" || updated[1] != "x3" {
		t.Fatalf("第 3 轮后指纹集应为 [pin x3]，得到 %v", updated)
	}
}

func TestClassifyBoundNeverExceeded(t *testing.T) {
	store, _ := NewSeenStore(t.TempDir())
	const url = "https://example.com/feed"
	const max = 5

	batch := func(prefix string, n int) []Entry {
		entries := make([]Entry, 0, n)
		for i := 0; i < n; i++ {
			entries = append(entries, entry(prefix+string(rune('0'+i)), "条目"))
		}
		return entries
	}

	for _, prefix := range []string{"x", "y", "z"} {
		_, updated := store.Classify(url, batch(prefix, 8), max)
		if len(updated) > max {
			t.Fatalf("任何提交后指纹集都不应超过 %d，得到 %d", max, len(updated))
		}
		store.Commit(url, updated, Conditional{})
	}

	if got := len(store.Known(url)); got > max {
		t.Fatalf("多轮提交后指纹集仍不应超过 %d，得到 %d", max, got)
	}
}

func TestFlushAndReloadRestartSafety(t *testing.T) {
	dir := t.TempDir()
	const url = "https://example.com/feed"
	entries := []Entry{entry("a", "A"), entry("b", "B")}

	store1, _ := NewSeenStore(dir)
	_, updated := store1.Classify(url, entries, 10)
	store1.Commit(url, updated, Conditional{ETag: `"v1"`})
	if err := store1.Flush(); err != nil {
		t.Fatalf("Flush 失败: %v", err)
	}

	// 模拟重启：从同一目录重新加载
	store2, _ := NewSeenStore(dir)
	news, _ := store2.Classify(url, entries, 10)
	if len(news) != 0 {
		t.Fatalf("重启后同一批条目应全部视为已知，得到 %d 条新条目", len(news))
	}
	if cond := store2.Conditional(url); cond.ETag != `"v1"` {
		t.Errorf("条件标记应随状态持久化，得到 %q", cond.ETag)
	}
}

func TestLoadMissingFileStartsEmpty(t *testing.T) {
	store, err := NewSeenStore(t.TempDir())
	if err != nil {
		t.Fatalf("文件不存在时 NewSeenStore 不应报错: %v", err)
	}
	if store.HasRecord("https://example.com/feed") {
		t.Error("空存储不应有任何记录")
	}
}

func TestLoadCorruptFileStartsEmpty(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, seenFileName), []byte("not json{{{"), 0644); err != nil {
		t.Fatalf("写入损坏文件失败: %v", err)
	}

	store, err := NewSeenStore(dir)
	if err != nil {
		t.Fatalf("文件损坏时 NewSeenStore 不应报错: %v", err)
	}

	news, _ := store.Classify("https://example.com/feed", []Entry{entry("a", "A")}, 10)
	if len(news) != 1 {
		t.Error("损坏文件应降级为空状态，条目重新视为新条目")
	}
}

func TestForgetRemovesRecord(t *testing.T) {
	store, _ := NewSeenStore(t.TempDir())
	const url = "https://example.com/feed"

	_, updated := store.Classify(url, []Entry{entry("a", "A")}, 10)
	store.Commit(url, updated, Conditional{})
	if !store.HasRecord(url) {
		t.Fatal("提交后应存在记录")
	}

	store.Forget(url)
	if store.HasRecord(url) {
		t.Fatal("Forget 后记录应被删除")
	}
}

func TestCommitIsolatedPerFeed(t *testing.T) {
	store, _ := NewSeenStore(t.TempDir())

	_, updated := store.Classify("https://a.example.com/feed", []Entry{entry("x", "X")}, 10)
	store.Commit("https://a.example.com/feed", updated, Conditional{})

	news, _ := store.Classify("https://b.example.com/feed", []Entry{entry("x", "X")}, 10)
	if len(news) != 1 {
		t.Error("不同订阅源的指纹集应互相独立")
	}
}

func TestFlushConcurrentWithCommit(t *testing.T) {
	store, _ := NewSeenStore(t.TempDir())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			url := "https://example.com/feed" + string(rune('0'+i))
			_, updated := store.Classify(url, []Entry{entry("a", "A")}, 10)
			store.Commit(url, updated, Conditional{})
		}(i)
	}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Flush()
		}()
	}
	wg.Wait()

	if err := store.Flush(); err != nil {
		t.Fatalf("并发提交后 Flush 失败: %v", err)
	}

	// 最终快照应包含全部提交
	store2, _ := NewSeenStore(filepath.Dir(store.filePath))
	for i := 0; i < 10; i++ {
		url := "https://example.com/feed" + string(rune('0'+i))
		if !store2.HasRecord(url) {
			t.Errorf("重新加载后缺少 %s 的记录", url)
		}
	}
}

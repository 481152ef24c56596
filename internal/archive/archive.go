// Package archive 将已通知的条目持久化到 SQLite，供查询历史内容。
package archive

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/iabetor/feedwatch/internal/feed"
	"github.com/iabetor/feedwatch/internal/logger"
	_ "modernc.org/sqlite"
)

// Archive 条目归档数据库。
type Archive struct {
	db   *sql.DB
	path string
}

// Open 打开或创建归档数据库。
func Open(dbPath string) (*Archive, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("归档数据库路径不能为空")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("创建归档目录失败: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("打开归档数据库失败: %w", err)
	}

	// 设置 WAL 模式（更好的并发性能）
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("设置 WAL 模式失败: %w", err)
	}

	logger.Infof("[archive] 归档数据库已打开: %s", dbPath)

	return &Archive{db: db, path: dbPath}, nil
}

// Path 返回数据库文件路径。
func (a *Archive) Path() string {
	return a.path
}

// Migrate 创建归档表结构。
func (a *Archive) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			feed_url TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			title TEXT DEFAULT '',
			link TEXT DEFAULT '',
			summary TEXT DEFAULT '',
			published TEXT DEFAULT '',
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now')),
			UNIQUE(feed_url, fingerprint)
		)`,
	}

	for _, m := range migrations {
		if _, err := a.db.Exec(m); err != nil {
			return fmt.Errorf("归档数据库迁移失败: %w", err)
		}
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_entries_feed_url ON entries(feed_url)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_created_at ON entries(created_at)`,
	}
	for _, idx := range indexes {
		if _, err := a.db.Exec(idx); err != nil {
			logger.Warnf("[archive] 创建索引失败: %v", err)
		}
	}

	return nil
}

// Save 归档一批条目。重复条目（同订阅源同指纹）静默忽略，保证可重复调用。
func (a *Archive) Save(feedURL string, entries []feed.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := a.db.Begin()
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO entries
		(feed_url, fingerprint, title, link, summary, published)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("准备归档语句失败: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		var published string
		if e.Published != nil {
			published = e.Published.UTC().Format(time.RFC3339)
		}
		if _, err := stmt.Exec(feedURL, e.Fingerprint(), e.Title, e.Link, e.Summary, published); err != nil {
			tx.Rollback()
			return fmt.Errorf("写入归档失败: %w", err)
		}
	}

	return tx.Commit()
}

// StoredEntry 归档中的一条记录。
type StoredEntry struct {
	FeedURL     string
	Fingerprint string
	Title       string
	Link        string
	Summary     string
	Published   *time.Time
	CreatedAt   time.Time
}

// Recent 返回某订阅源最近归档的条目，按归档先后倒序。
func (a *Archive) Recent(feedURL string, limit int) ([]StoredEntry, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := a.db.Query(`SELECT feed_url, fingerprint, title, link, summary, published, created_at
		FROM entries WHERE feed_url = ? ORDER BY id DESC LIMIT ?`, feedURL, limit)
	if err != nil {
		return nil, fmt.Errorf("查询归档失败: %w", err)
	}
	defer rows.Close()

	var result []StoredEntry
	for rows.Next() {
		var e StoredEntry
		var published, createdAt string
		if err := rows.Scan(&e.FeedURL, &e.Fingerprint, &e.Title, &e.Link, &e.Summary, &published, &createdAt); err != nil {
			return nil, fmt.Errorf("读取归档记录失败: %w", err)
		}
		if published != "" {
			if t, err := time.Parse(time.RFC3339, published); err == nil {
				e.Published = &t
			}
		}
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			e.CreatedAt = t
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// Count 返回某订阅源已归档的条目数。
func (a *Archive) Count(feedURL string) (int, error) {
	var count int
	err := a.db.QueryRow(`SELECT COUNT(*) FROM entries WHERE feed_url = ?`, feedURL).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("统计归档条目失败: %w", err)
	}
	return count, nil
}

// Close 关闭数据库连接。
func (a *Archive) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

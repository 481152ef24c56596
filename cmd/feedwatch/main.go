package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iabetor/feedwatch/internal/archive"
	"github.com/iabetor/feedwatch/internal/config"
	"github.com/iabetor/feedwatch/internal/feed"
	"github.com/iabetor/feedwatch/internal/logger"
)

func main() {
	configPath := flag.String("config", "configs/feedwatch.yaml", "配置文件路径")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{Level: cfg.Log.Level, File: cfg.Log.File}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Infof("[main] feedwatch 启动中 (订阅源 %d 个)", len(cfg.Feeds))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 监听系统信号，优雅关闭
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Infof("[main] 收到信号 %v，正在关闭...", sig)
		cancel()
	}()

	store, err := feed.NewSeenStore(cfg.DataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化去重存储失败: %v\n", err)
		os.Exit(1)
	}

	var arch *archive.Archive
	if cfg.Archive.Enabled {
		arch, err = archive.Open(cfg.Archive.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "打开归档数据库失败: %v\n", err)
			os.Exit(1)
		}
		defer arch.Close()
		if err := arch.Migrate(); err != nil {
			fmt.Fprintf(os.Stderr, "归档数据库迁移失败: %v\n", err)
			os.Exit(1)
		}
	}

	handler := func(res feed.PollResult) {
		if arch != nil {
			if err := arch.Save(res.Sub.URL, res.Entries); err != nil {
				logger.Warnf("[main] 归档 %s 的条目失败: %v", res.Sub.URL, err)
			}
		}
		if res.FirstPoll {
			// 首次轮询只记录积压条目，不逐条通知
			logger.Infof("[main] %s 首次轮询，已记录 %d 条历史条目", res.Sub.URL, len(res.Entries))
			return
		}
		for _, e := range res.Entries {
			logger.Infof("[main] 新条目 [%s] %s %s", res.FeedTitle, e.Title, e.Link)
		}
	}
	onError := func(sub feed.Subscription, err error) {
		logger.Warnf("[main] 订阅源 %s 本轮失败: %v", sub.URL, err)
	}

	fetcher := feed.NewFetcher(time.Duration(cfg.Poll.TimeoutSeconds) * time.Second)
	manager := feed.NewManager(store, fetcher, handler, onError)

	for _, fc := range cfg.Feeds {
		sub := feed.Subscription{
			Name:       fc.Name,
			URL:        fc.URL,
			Interval:   time.Duration(fc.IntervalSeconds) * time.Second,
			MaxEntries: fc.MaxEntries,
		}
		if err := manager.Add(ctx, sub); err != nil {
			logger.Warnf("[main] 添加订阅源 %s 失败: %v", fc.URL, err)
		}
	}

	<-ctx.Done()
	manager.Close()
	if err := store.Flush(); err != nil {
		logger.Warnf("[main] 退出前保存去重状态失败: %v", err)
	}
	logger.Info("[main] feedwatch 已停止")
}

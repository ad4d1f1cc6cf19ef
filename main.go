package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/chaos-io/topograph/api"
	"github.com/chaos-io/topograph/backend"
	"github.com/chaos-io/topograph/config"
	"github.com/chaos-io/topograph/logging"
)

func main() {
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFile)
	defer log.Sync()

	gen, err := newGenerator(cfg, log)
	if err != nil {
		log.Fatal("init generator backend", zap.Error(err))
	}

	// 定时清理过期的临时工作区
	janitor := cron.New()
	if _, err := janitor.AddFunc("@every 10m", func() {
		sweepExpired(cfg.WorkDir, cfg.TempTTL, log)
	}); err != nil {
		log.Fatal("register janitor", zap.Error(err))
	}
	janitor.Start()
	defer janitor.Stop()

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: api.NewServer(cfg, gen, log).Router(),
	}

	go func() {
		log.Info("listening", zap.String("addr", cfg.Addr), zap.String("backend", cfg.BackendMode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("serve", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown", zap.Error(err))
	}
	log.Info("server stopped")
}

func newGenerator(cfg *config.Config, log *zap.Logger) (backend.Generator, error) {
	switch cfg.BackendMode {
	case "script":
		return backend.NewScriptBackend(cfg.PythonBin, cfg.ScriptDir, cfg.WorkDir, log), nil
	case "remote":
		return backend.NewRemoteBackend(cfg.RemoteURL), nil
	default:
		return nil, errors.New("unknown backend mode: " + cfg.BackendMode)
	}
}

// sweepExpired 删除 dir 下修改时间早于 ttl 的条目
func sweepExpired(dir string, ttl time.Duration, log *zap.Logger) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("janitor read dir", zap.String("dir", dir), zap.Error(err))
		}
		return
	}

	deadline := time.Now().Add(-ttl)
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(deadline) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			log.Warn("janitor remove", zap.String("path", path), zap.Error(err))
			continue
		}
		log.Info("janitor removed expired workspace", zap.String("path", path))
	}
}

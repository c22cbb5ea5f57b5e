// Package servers 组装并运行HTTP服务
package servers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"mjml_stream/internal/config"
	"mjml_stream/internal/handlers"
	"mjml_stream/internal/middleware"
	"mjml_stream/internal/routes"
	"mjml_stream/internal/services"
	"mjml_stream/internal/session"
)

// NewEngine 创建带中间件和路由的gin引擎
func NewEngine(relay *services.RelayService, wsConfig config.WebSocketConfig) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	middleware.Setup(r)
	routes.RegisterRoutes(r, handlers.NewGenerateHandler(relay, wsConfig))
	return r
}

// NewStore 按配置创建会话存储，返回的关闭函数释放底层资源
func NewStore(cfg *config.Config) (session.Store, func() error, error) {
	switch cfg.Session.Backend {
	case config.SessionBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, errors.Wrapf(err, "连接Redis %s 失败", cfg.Redis.Addr())
		}
		store := session.NewRedisStore(client, session.RedisConfig{
			KeyPrefix:  cfg.Redis.KeyPrefix,
			MaxHistory: cfg.Session.MaxHistory,
			TTL:        cfg.Session.IdleTTL,
		})
		return store, client.Close, nil
	default:
		var opts []session.MemoryOption
		if cfg.Session.IdleTTL > 0 {
			opts = append(opts, session.WithIdleTTL(cfg.Session.IdleTTL, cfg.Session.SweepInterval))
		}
		store := session.NewMemoryStore(cfg.Session.MaxHistory, opts...)
		return store, store.Close, nil
	}
}

// HTTPServer 生成服务
type HTTPServer struct {
	cfg     *config.Config
	server  *http.Server
	cleanup func() error
}

// NewHTTPServer 根据配置组装服务
func NewHTTPServer(cfg *config.Config) (*HTTPServer, error) {
	store, cleanup, err := NewStore(cfg)
	if err != nil {
		return nil, err
	}

	generator, err := services.NewGenerator(cfg)
	if err != nil {
		cleanup()
		return nil, err
	}

	relay := services.NewRelayService(store, generator, cfg.LLM.SystemPrompt)
	engine := NewEngine(relay, cfg.WebSocket)

	log.Info().
		Str("provider", generator.Name()).
		Str("session_backend", cfg.Session.Backend).
		Int("max_history", cfg.Session.MaxHistory).
		Msg("服务组装完成")

	return &HTTPServer{
		cfg: cfg,
		server: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
		cleanup: cleanup,
	}, nil
}

// Addr 监听地址
func (s *HTTPServer) Addr() string {
	return s.server.Addr
}

// Run 启动服务，ctx 结束后优雅关闭
func (s *HTTPServer) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", s.server.Addr).Msg("HTTP服务启动")
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		s.cleanup()
		if ok {
			return errors.Wrap(err, "HTTP服务异常退出")
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("正在关闭HTTP服务")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	err := s.server.Shutdown(shutdownCtx)
	if cerr := s.cleanup(); cerr != nil {
		log.Warn().Err(cerr).Msg("释放会话存储失败")
	}
	if err != nil {
		return errors.Wrap(err, "关闭HTTP服务失败")
	}
	return nil
}

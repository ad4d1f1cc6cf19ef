// Package api 编排层 HTTP 接口：接收图像/遮罩，驱动生成后端，
// 再把结果交给数值核心后处理并落盘
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chaos-io/topograph/backend"
	"github.com/chaos-io/topograph/config"
	"github.com/chaos-io/topograph/grid"
)

// version 写入 .topo manifest 的应用版本号
const version = "1.0.0"

type Server struct {
	cfg *config.Config
	gen backend.Generator
	log *zap.Logger
}

func NewServer(cfg *config.Config, gen backend.Generator, log *zap.Logger) *Server {
	return &Server{cfg: cfg, gen: gen, log: log}
}

func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	v1.POST("/depth", s.handleDepth)
	v1.POST("/inpaint", s.handleInpaint)
	v1.POST("/texture", s.handleTexture)
	v1.POST("/heightmap/export", s.handleExport)
	v1.POST("/project/pack", s.handleProjectPack)
	v1.POST("/project/unpack", s.handleProjectUnpack)
	return r
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("cost", time.Since(start)),
		)
	}
}

// fail 统一失败出口：{"success": false, "error": ...}
func (s *Server) fail(c *gin.Context, code int, err error) {
	s.log.Error("request failed",
		zap.String("path", c.Request.URL.Path),
		zap.Int("status", code),
		zap.Error(err),
	)
	c.JSON(code, gin.H{"success": false, "error": err.Error()})
}

// failPipeline 按错误类型分流：参数/尺寸类 → 400，数值异常 → 500
func (s *Server) failPipeline(c *gin.Context, err error) {
	var (
		shapeErr    *grid.ShapeError
		mismatchErr *grid.ShapeMismatchError
		rangeErr    *grid.RangeError
	)
	if errors.As(err, &shapeErr) || errors.As(err, &mismatchErr) || errors.As(err, &rangeErr) {
		s.fail(c, http.StatusBadRequest, err)
		return
	}
	s.fail(c, http.StatusInternalServerError, err)
}

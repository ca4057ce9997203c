package http

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/rezkysantika/Expression-Measurement/internal/config"
	"github.com/rezkysantika/Expression-Measurement/internal/hume"
	"github.com/rezkysantika/Expression-Measurement/internal/jobs"
	"github.com/rezkysantika/Expression-Measurement/internal/services"
	"github.com/rezkysantika/Expression-Measurement/internal/storage"
)

type Server struct {
	engine  *gin.Engine
	cfg     config.Config
	manager *jobs.Manager
	store   *storage.AudioStore
}

func NewServer(cfg config.Config) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)

	store, err := storage.NewAudioStore(cfg.DataDir, cfg.MaxUploadBytes)
	if err != nil {
		return nil, fmt.Errorf("init audio store: %w", err)
	}

	client := hume.NewClient(cfg)
	manager := jobs.NewManager(client, cfg.PollInterval)
	reportSvc := services.NewReportService()
	shareSvc := services.NewShareService(cfg)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(RequestLogger())
	engine.Use(MaxBodySize(cfg.MaxUploadBytes))
	engine.Use(CORS())

	api := NewAPI(cfg, store, client, manager, reportSvc, shareSvc)
	registerRoutes(engine, api)

	return &Server{engine: engine, cfg: cfg, manager: manager, store: store}, nil
}

func (s *Server) Run() error {
	addr := fmt.Sprintf(":%s", s.cfg.Port)
	return s.engine.Run(addr)
}

// Close stops every job watcher and releases the store.
func (s *Server) Close() error {
	s.manager.StopAll()
	return s.store.Close()
}

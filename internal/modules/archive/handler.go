package archive

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/mx-space/presence/internal/modules/presence"
	pkgcron "github.com/mx-space/presence/internal/pkg/cron"
	"github.com/mx-space/presence/internal/pkg/response"
	"go.uber.org/zap"
)

// Job wraps Export for the scheduler.
func (s *Service) Job() pkgcron.Job {
	return pkgcron.Job{
		Name:        JobName,
		Description: "upload a presence ledger snapshot to object storage",
		Interval:    s.cfg.Interval,
		Fn: func(ctx context.Context) error {
			_, _, err := s.Export(ctx)
			return err
		},
	}
}

type Handler struct {
	svc   *Service
	sched *pkgcron.Scheduler
}

func NewHandler(svc *Service, sched *pkgcron.Scheduler) *Handler {
	return &Handler{svc: svc, sched: sched}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/archive", authMW)

	g.GET("", h.preview)
	g.POST("", h.export)
	g.GET("/status", h.status)
}

func (h *Handler) preview(c *gin.Context) {
	doc, err := h.svc.Build(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, doc)
}

func (h *Handler) export(c *gin.Context) {
	key, doc, err := h.svc.Export(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, gin.H{
		"bucket":    h.svc.cfg.Bucket,
		"key":       key,
		"locations": len(doc.Locations),
	})
}

func (h *Handler) status(c *gin.Context) {
	if h.sched == nil {
		response.NotFoundMsg(c, ErrDisabled.Error())
		return
	}
	item, err := h.sched.Get(JobName)
	if err != nil {
		response.NotFoundMsg(c, ErrDisabled.Error())
		return
	}
	response.OK(c, item)
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrDisabled):
		response.NotFoundMsg(c, err.Error())
	case errors.Is(err, presence.ErrInvalidGroupName):
		response.BadRequest(c, err.Error())
	case errors.Is(err, presence.ErrLedgerUnavailable):
		h.svc.logger.Error("presence archive failed", zap.Error(err))
		response.ServiceUnavailable(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}

package presence

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mx-space/presence/internal/pkg/response"
	"go.uber.org/zap"
)

type Handler struct {
	layer *Layer
}

func NewHandler(layer *Layer) *Handler { return &Handler{layer: layer} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	g := rg.Group("/presence")

	g.GET("/:group", h.roster)
	g.GET("/:group/shard", h.shard)
}

type rosterItem struct {
	UserKey   string    `json:"user_key"`
	User      *Identity `json:"user,omitempty"`
	PresentAt int64     `json:"present_at"`
	IsActive  bool      `json:"is_active"`
}

func (h *Handler) roster(c *gin.Context) {
	group := c.Param("group")
	room := c.Query("room")
	onlyActive := truthy(c.Query("active"))
	expand := c.Query("expand") == "user"

	entries, err := h.layer.Roster(c.Request.Context(), group, room, onlyActive)
	if err != nil {
		h.fail(c, err)
		return
	}

	items := make([]rosterItem, 0, len(entries))
	for _, e := range entries {
		item := rosterItem{
			UserKey:   e.User.Key(),
			PresentAt: e.PresentAt.Unix(),
			IsActive:  e.IsActive,
		}
		if expand {
			user, err := e.User.Get(c.Request.Context())
			if err != nil {
				h.layer.logger.Debug("presence identity unresolved",
					zap.String("user", e.User.Key()), zap.Error(err))
			} else {
				item.User = user
			}
		}
		items = append(items, item)
	}
	response.OK(c, items)
}

func (h *Handler) shard(c *gin.Context) {
	group := c.Param("group")
	name, err := h.layer.router.Shard(group)
	if err != nil {
		h.fail(c, err)
		return
	}
	key, _ := h.layer.codec.Key(group)
	response.OK(c, gin.H{"group": group, "shard": name, "key": key})
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrInvalidGroupName):
		response.BadRequest(c, err.Error())
	case errors.Is(err, ErrLedgerUnavailable):
		h.layer.logger.Error("presence ledger unavailable", zap.Error(err))
		response.ServiceUnavailable(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}

func truthy(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

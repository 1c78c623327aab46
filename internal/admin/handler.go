package admin

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"tg2x_go/internal/httputil"
	"tg2x_go/internal/mirror"
	"tg2x_go/models"
)

// Mirror — то, что админский API видит у оркестратора.
type Mirror interface {
	Stats() mirror.Stats
	Pending() []models.ApprovalRequest
	Resolve(ctx context.Context, kind models.ApprovalKind, anchor int, action string, promptMsgID int) (mirror.Outcome, error)
}

// Handler обрабатывает HTTP-запросы к состоянию зеркала
type Handler struct {
	Mirror Mirror
	log    *logrus.Entry
}

// NewHandler создаёт новый экземпляр обработчика
func NewHandler(m Mirror, logger *logrus.Logger) *Handler {
	return &Handler{Mirror: m, log: logger.WithField("component", "admin")}
}

// Status отдаёт счётчики оркестратора
func (h *Handler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.Mirror.Stats())
}

// Pending возвращает запросы, ожидающие решения
func (h *Handler) Pending(c *gin.Context) {
	pending := h.Mirror.Pending()
	c.JSON(http.StatusOK, gin.H{"pending": pending, "count": len(pending)})
}

// Resolve принимает решение по запросу так же, как кнопка в Telegram
func (h *Handler) Resolve(c *gin.Context) {
	kind, ok := mirror.ParseCategory(c.Param("category"))
	if !ok {
		httputil.RespondError(c, http.StatusBadRequest, "unknown category")
		return
	}
	anchor, err := strconv.Atoi(c.Param("anchor"))
	if err != nil || anchor <= 0 {
		httputil.RespondError(c, http.StatusBadRequest, "invalid anchor")
		return
	}
	action := c.Param("action")
	if !mirror.ValidAction(action) {
		httputil.RespondError(c, http.StatusBadRequest, "unknown action")
		return
	}

	outcome, err := h.Mirror.Resolve(c.Request.Context(), kind, anchor, action, 0)
	switch {
	case errors.Is(err, mirror.ErrBadCallback):
		httputil.RespondError(c, http.StatusBadRequest, err.Error())
		return
	case outcome == mirror.OutcomeExpired:
		httputil.RespondError(c, http.StatusNotFound, "approval request not found")
		return
	case err != nil:
		h.log.WithError(err).WithField("anchor", anchor).Error("resolve via admin API")
		c.JSON(http.StatusBadGateway, gin.H{"outcome": outcome, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcome": outcome})
}

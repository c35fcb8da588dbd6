package webhook

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicore/clinicore/internal/platform/auth"
	"github.com/clinicore/clinicore/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("admin"))
	g.POST("/webhooks/subscriptions", h.CreateSubscription)
	g.GET("/webhooks/subscriptions", h.ListSubscriptions)
	g.GET("/webhooks/subscriptions/:id", h.GetSubscription)
	g.PUT("/webhooks/subscriptions/:id", h.UpdateSubscription)
	g.DELETE("/webhooks/subscriptions/:id", h.DeleteSubscription)
	g.POST("/webhooks/subscriptions/:id/test", h.TestSend)

	g.GET("/webhooks/queue", h.ListQueueItems)
	g.GET("/webhooks/queue/:id", h.GetQueueItem)
	g.GET("/webhooks/queue/:id/deliveries", h.ListDeliveries)
	g.POST("/webhooks/queue/:id/retry", h.Retry)
}

type subscriptionBody struct {
	URL        string            `json:"url"`
	EventTypes []string          `json:"event_types"`
	Active     *bool             `json:"active"`
	Headers    map[string]string `json:"headers"`
}

// subscriptionCreatedResponse includes the signing secret, returned only here.
type subscriptionCreatedResponse struct {
	*Subscription
	Secret string `json:"secret"`
}

func (h *Handler) CreateSubscription(c echo.Context) error {
	var body subscriptionBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sub := &Subscription{
		URL:        body.URL,
		EventTypes: body.EventTypes,
		Active:     true,
		Headers:    body.Headers,
	}
	if body.Active != nil {
		sub.Active = *body.Active
	}
	if err := h.svc.CreateSubscription(c.Request().Context(), sub); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, subscriptionCreatedResponse{Subscription: sub, Secret: sub.Secret})
}

func (h *Handler) ListSubscriptions(c echo.Context) error {
	p := pagination.FromContext(c)
	subs, total, err := h.svc.ListSubscriptions(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(subs, total, p.Limit, p.Offset))
}

func (h *Handler) GetSubscription(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid subscription id")
	}
	sub, err := h.svc.GetSubscription(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, sub)
}

func (h *Handler) UpdateSubscription(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid subscription id")
	}
	sub, err := h.svc.GetSubscription(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}

	var body subscriptionBody
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sub.URL = body.URL
	sub.EventTypes = body.EventTypes
	sub.Headers = body.Headers
	if body.Active != nil {
		sub.Active = *body.Active
	}
	if err := h.svc.UpdateSubscription(c.Request().Context(), sub); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, sub)
}

func (h *Handler) DeleteSubscription(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid subscription id")
	}
	if err := h.svc.DeleteSubscription(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) TestSend(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid subscription id")
	}
	item, log, err := h.svc.TestSend(c.Request().Context(), id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"item":     item,
		"delivery": log,
	})
}

func (h *Handler) ListQueueItems(c echo.Context) error {
	p := pagination.FromContext(c)
	status := c.QueryParam("status")
	items, total, err := h.svc.ListQueueItems(c.Request().Context(), status, p.Limit, p.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p.Limit, p.Offset))
}

func (h *Handler) GetQueueItem(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid queue item id")
	}
	item, err := h.svc.GetQueueItem(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, item)
}

func (h *Handler) ListDeliveries(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid queue item id")
	}
	logs, err := h.svc.ListDeliveries(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, logs)
}

func (h *Handler) Retry(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid queue item id")
	}
	item, err := h.svc.Retry(c.Request().Context(), id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusOK, item)
}

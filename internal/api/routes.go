package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/devvluca/EclesIA/internal/eclesia/store"
	"github.com/devvluca/EclesIA/internal/events"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	detailNotFound = "Evento não encontrado"
	detailNoSlots  = "Não há vagas disponíveis para este evento."
)

type handlers struct {
	events  *events.Repository
	subs    store.SubscriptionStore
	metrics *Metrics
	now     func() time.Time
}

func registerRoutes(r *gin.Engine, h *handlers) {
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	ev := r.Group("/events")
	ev.GET("", h.listEvents)
	ev.POST("", h.createEvent)
	ev.GET("/:id", h.getEvent)
	ev.PUT("/:id", h.updateEvent)
	ev.DELETE("/:id", h.deleteEvent)
	ev.GET("/:id/slots", h.eventSlots)
	ev.POST("/:id/register", h.register)

	cal := r.Group("/calendar")
	cal.GET("/weekly", h.weekly)
	cal.GET("/monthly", h.monthly)

	r.POST("/sync/sysigreja", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"detail": "Sincronização com sysigreja simulada com sucesso."})
	})

	r.POST("/push/subscriptions", h.subscribe)
}

func detail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": msg})
}

// fail maps repository errors onto statuses.
func (h *handlers) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, events.ErrNotFound):
		detail(c, http.StatusNotFound, detailNotFound)
	case errors.Is(err, events.ErrNoSlots):
		detail(c, http.StatusBadRequest, detailNoSlots)
	default:
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Request failed")
		detail(c, http.StatusInternalServerError, "internal error")
	}
}

func eventID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		detail(c, http.StatusUnprocessableEntity, "invalid event id")
		return 0, false
	}
	return uint(id), true
}

func bindInput(c *gin.Context) (events.Input, bool) {
	var in events.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		detail(c, http.StatusUnprocessableEntity, err.Error())
		return in, false
	}
	if err := in.Validate(); err != nil {
		detail(c, http.StatusUnprocessableEntity, err.Error())
		return in, false
	}
	return in, true
}

func (h *handlers) listEvents(c *gin.Context) {
	all, err := h.events.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, all)
}

func (h *handlers) getEvent(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	ev, err := h.events.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ev)
}

func (h *handlers) createEvent(c *gin.Context) {
	in, ok := bindInput(c)
	if !ok {
		return
	}
	ev, err := h.events.Create(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ev)
}

func (h *handlers) updateEvent(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	in, ok := bindInput(c)
	if !ok {
		return
	}
	ev, err := h.events.Update(c.Request.Context(), id, in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ev)
}

func (h *handlers) deleteEvent(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	if err := h.events.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"detail": "Evento removido"})
}

func (h *handlers) eventSlots(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	slots, err := h.events.Slots(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, slots)
}

func (h *handlers) register(c *gin.Context) {
	id, ok := eventID(c)
	if !ok {
		return
	}
	reg, err := h.events.Register(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, events.ErrNoSlots) {
			h.metrics.RecordRegistration("full")
		}
		h.fail(c, err)
		return
	}
	h.metrics.RecordRegistration("ok")
	c.JSON(http.StatusOK, gin.H{"detail": reg.Message()})
}

func (h *handlers) today() time.Time {
	if h.now != nil {
		return h.now()
	}
	return time.Now()
}

func (h *handlers) weekly(c *gin.Context) {
	start := h.today()
	if s := c.Query("start_date"); s != "" {
		parsed, err := time.Parse(events.DateLayout, s)
		if err != nil {
			detail(c, http.StatusUnprocessableEntity, "invalid start_date (expected YYYY-MM-DD)")
			return
		}
		start = parsed
	}

	entries, err := h.events.Weekly(c.Request.Context(), start)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *handlers) monthly(c *gin.Context) {
	today := h.today()
	month, year := int(today.Month()), today.Year()

	if s := c.Query("month"); s != "" {
		m, err := strconv.Atoi(s)
		if err != nil || m < 1 || m > 12 {
			detail(c, http.StatusUnprocessableEntity, "invalid month")
			return
		}
		month = m
	}
	if s := c.Query("year"); s != "" {
		y, err := strconv.Atoi(s)
		if err != nil {
			detail(c, http.StatusUnprocessableEntity, "invalid year")
			return
		}
		year = y
	}

	entries, err := h.events.Monthly(c.Request.Context(), year, time.Month(month))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

type subscriptionRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

func (h *handlers) subscribe(c *gin.Context) {
	if h.subs == nil {
		detail(c, http.StatusServiceUnavailable, "push subscriptions are not configured")
		return
	}

	var req subscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if !strings.HasPrefix(req.Endpoint, "https://") || req.Keys.P256dh == "" || req.Keys.Auth == "" {
		detail(c, http.StatusUnprocessableEntity, "endpoint and keys are required")
		return
	}

	sub := store.PushSubscription{
		Endpoint:  req.Endpoint,
		Keys:      store.PushKeys{P256dh: req.Keys.P256dh, Auth: req.Keys.Auth},
		CreatedAt: h.today().UTC(),
	}
	if err := h.subs.SavePushSubscription(c.Request.Context(), sub); err != nil {
		log.Error().Err(err).Msg("Could not save push subscription")
		detail(c, http.StatusBadGateway, "could not save subscription")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"detail": "Inscrição de notificações salva."})
}

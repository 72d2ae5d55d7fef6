package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"scheduler/internal/apperr"
	"scheduler/internal/attendance"
	"scheduler/internal/auth"
	"scheduler/internal/booking"
	"scheduler/internal/schedule"
	"scheduler/internal/slots"
)

const dateLayout = "2006-01-02"

// Handler exposes the engine's operations over HTTP.
type Handler struct {
	slots      *slots.Service
	bookings   *booking.Service
	attendance *attendance.Service
	settings   *schedule.Service
	logger     *zap.Logger
}

func New(sl *slots.Service, bk *booking.Service, at *attendance.Service, st *schedule.Service, logger *zap.Logger) *Handler {
	return &Handler{slots: sl, bookings: bk, attendance: at, settings: st, logger: logger}
}

// Register mounts all engine routes on an authenticated group.
func (h *Handler) Register(g *gin.RouterGroup) {
	g.POST("/slots", h.PublishSlot)
	g.POST("/slots/:id/confirm", h.ConfirmSlot)
	g.GET("/slots/available", h.ListAvailableSlots)
	g.GET("/slots/mine", h.ListMySlots)

	g.POST("/bookings", h.CreateBooking)
	g.POST("/bookings/:id/cancel", h.CancelBooking)
	g.PATCH("/bookings/:id/notes", h.UpdateBookingNotes)
	g.GET("/bookings", h.ListBookings)
	g.GET("/bookings/next", h.NextBooking)
	g.GET("/bookings/active", h.ActiveNow)

	g.POST("/sessions", h.CreateSession)
	g.GET("/sessions/:id/attendance", h.SessionAttendance)
	g.POST("/sessions/:id/attendance", h.MarkAttendance)

	g.GET("/settings", h.GetSettings)
	g.PUT("/settings", auth.RequireRoles(auth.RoleManager, auth.RoleCEO), h.UpdateSettings)
}

func (h *Handler) actor(c *gin.Context) (auth.Actor, bool) {
	actor, ok := auth.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "no identity"})
	}
	return actor, ok
}

// writeError maps engine error kinds onto HTTP statuses. Internal
// detail goes to the log, not the caller.
func (h *Handler) writeError(c *gin.Context, err error) {
	var appErr *apperr.Error
	kind := apperr.KindOf(err)
	if e, ok := err.(*apperr.Error); ok {
		appErr = e
	}

	switch kind {
	case apperr.KindUnauthorized:
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case apperr.KindForbidden:
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case apperr.KindNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case apperr.KindConflict:
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case apperr.KindValidation:
		body := gin.H{"error": err.Error()}
		if appErr != nil && len(appErr.Fields) > 0 {
			body["fields"] = appErr.Fields
		}
		c.JSON(http.StatusUnprocessableEntity, body)
	default:
		h.logger.Error("internal error", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// ---------- Slots ----------

type publishSlotRequest struct {
	TrackID   string `json:"track_id" binding:"required"`
	WeekStart string `json:"week_start" binding:"required"`
	DayOfWeek int    `json:"day_of_week"`
	StartHour int    `json:"start_hour"`
	EndHour   int    `json:"end_hour"`
}

func (h *Handler) PublishSlot(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req publishSlotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	weekStart, err := time.Parse(dateLayout, req.WeekStart)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "week_start must be YYYY-MM-DD"})
		return
	}
	slot, err := h.slots.Publish(c.Request.Context(), actor, slots.PublishInput{
		TrackID:   req.TrackID,
		WeekStart: weekStart,
		DayOfWeek: req.DayOfWeek,
		StartHour: req.StartHour,
		EndHour:   req.EndHour,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, slot)
}

func (h *Handler) ConfirmSlot(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	slot, err := h.slots.Confirm(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, slot)
}

func (h *Handler) ListAvailableSlots(c *gin.Context) {
	if _, ok := h.actor(c); !ok {
		return
	}
	trackID := c.Query("track_id")
	var weekStart *time.Time
	if v := c.Query("week_start"); v != "" {
		parsed, err := time.Parse(dateLayout, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "week_start must be YYYY-MM-DD"})
			return
		}
		weekStart = &parsed
	}
	list, err := h.slots.ListAvailable(c.Request.Context(), trackID, weekStart)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slots": list})
}

func (h *Handler) ListMySlots(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	list, err := h.slots.ListMine(c.Request.Context(), actor)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"slots": list})
}

// ---------- Bookings ----------

type createBookingRequest struct {
	SlotID  string `json:"slot_id" binding:"required"`
	TrackID string `json:"track_id"`
}

func (h *Handler) CreateBooking(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	b, err := h.bookings.Book(c.Request.Context(), actor, req.SlotID, req.TrackID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, b)
}

func (h *Handler) CancelBooking(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	b, err := h.bookings.Cancel(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *Handler) UpdateBookingNotes(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var patch booking.NotesPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	b, err := h.bookings.UpdateNotes(c.Request.Context(), actor, c.Param("id"), patch)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *Handler) ListBookings(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	filter := booking.ListFilter{
		TrackID:  c.Query("track_id"),
		Upcoming: c.Query("upcoming") == "true",
	}
	if v := c.Query("status"); v != "" {
		status := booking.Status(v)
		if status != booking.StatusConfirmed && status != booking.StatusCancelled {
			c.JSON(http.StatusBadRequest, gin.H{"error": "status must be confirmed or cancelled"})
			return
		}
		filter.Status = &status
	}
	list, err := h.bookings.List(c.Request.Context(), actor, filter)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": list})
}

func (h *Handler) NextBooking(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	b, err := h.bookings.Next(c.Request.Context(), actor)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if b == nil {
		c.JSON(http.StatusOK, gin.H{"booking": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"booking": b})
}

func (h *Handler) ActiveNow(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	list, err := h.bookings.ActiveNow(c.Request.Context(), actor)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": list})
}

// ---------- Sessions & attendance ----------

type createSessionRequest struct {
	TrackID      string `json:"track_id" binding:"required"`
	Title        string `json:"title" binding:"required"`
	Date         string `json:"date" binding:"required"`
	StartHour    int    `json:"start_hour"`
	EndHour      int    `json:"end_hour"`
	ExternalLink string `json:"external_link"`
}

func (h *Handler) CreateSession(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	session, err := h.bookings.CreateSession(c.Request.Context(), actor, booking.SessionInput{
		TrackID:      req.TrackID,
		Title:        req.Title,
		Date:         date,
		StartHour:    req.StartHour,
		EndHour:      req.EndHour,
		ExternalLink: req.ExternalLink,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

func (h *Handler) SessionAttendance(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	list, err := h.attendance.ListBySession(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": list})
}

type markAttendanceRequest struct {
	Records []attendance.Entry `json:"records" binding:"required"`
}

func (h *Handler) MarkAttendance(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var req markAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	records, err := h.attendance.Mark(c.Request.Context(), actor, c.Param("id"), req.Records)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records})
}

// ---------- Settings ----------

func (h *Handler) GetSettings(c *gin.Context) {
	if _, ok := h.actor(c); !ok {
		return
	}
	settings, err := h.settings.Get(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (h *Handler) UpdateSettings(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}
	var patch schedule.Patch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	settings, err := h.settings.Update(c.Request.Context(), actor, patch)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

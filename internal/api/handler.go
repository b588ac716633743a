package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"dianbiao-backend/internal/auth"
	"dianbiao-backend/internal/billing"
	"dianbiao-backend/internal/parse"
	"dianbiao-backend/internal/store"
)

// Options carry the settings handlers need beyond their collaborators.
type Options struct {
	// Location is the zone used for period keys and calendar windows.
	Location *time.Location
	// ReportConcurrency bounds the per-device lookups of area statistics.
	ReportConcurrency int
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store    store.Store
	issuer   *auth.Issuer
	webpush  *webpush.Options
	resolver *billing.Resolver
	engine   *billing.Engine
	reporter *billing.Reporter
	loc      *time.Location
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, issuer *auth.Issuer, webpushOptions *webpush.Options, opts Options) *Handler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	resolver := billing.NewResolver(s)
	return &Handler{
		store:    s,
		issuer:   issuer,
		webpush:  webpushOptions,
		resolver: resolver,
		engine:   billing.NewEngine(s, resolver),
		reporter: billing.NewReporter(s, resolver, opts.ReportConcurrency),
		loc:      opts.Location,
	}
}

// Health reports that the process is serving requests.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().In(h.loc).Format(time.RFC3339)})
}

// respondError maps store and parse errors to HTTP status codes.
func respondError(c *gin.Context, err error) {
	var validation *store.ValidationError
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &validation), errors.Is(err, parse.ErrInvalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrDuplicate), errors.Is(err, store.ErrInUse):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

// pathID reads a positive integer path parameter.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// queryID reads an optional positive integer query parameter; absent means 0.
func queryID(c *gin.Context, name string) (int64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

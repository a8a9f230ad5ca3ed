package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/flybeeper/track-filter/internal/filter"
	"github.com/flybeeper/track-filter/internal/models"
	"github.com/flybeeper/track-filter/internal/repository"
	"github.com/flybeeper/track-filter/pkg/utils"
)

const (
	defaultRadiusKm = 50.0
	maxRadiusKm     = 500.0
	defaultTrackLen = 100
)

// RESTHandler обрабатывает REST запросы к шлюзу
type RESTHandler struct {
	repo   repository.Repository
	engine *filter.Engine
	logger *utils.Logger
}

// NewRESTHandler создает новый REST handler
func NewRESTHandler(repo repository.Repository, engine *filter.Engine, logger *utils.Logger) *RESTHandler {
	return &RESTHandler{
		repo:   repo,
		engine: engine,
		logger: logger.WithField("component", "rest"),
	}
}

// GetLatestPosition возвращает последнюю принятую позицию устройства
func (h *RESTHandler) GetLatestPosition(c *gin.Context) {
	deviceID := c.Param("deviceId")

	position, err := h.repo.GetLatest(c.Request.Context(), deviceID)
	if err != nil {
		var notFound *repository.ErrNotFound
		if errors.As(err, &notFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    "not_found",
				"message": "no position stored for device",
			})
			return
		}
		h.logger.WithField("error", err).Error("Failed to get latest position")
		c.JSON(http.StatusInternalServerError, gin.H{"code": "internal_error"})
		return
	}

	c.JSON(http.StatusOK, position)
}

// GetNearbyPositions возвращает последние позиции устройств в радиусе
// от точки (lat, lon, radius в километрах)
func (h *RESTHandler) GetNearbyPositions(c *gin.Context) {
	lat, err1 := strconv.ParseFloat(c.Query("lat"), 64)
	lon, err2 := strconv.ParseFloat(c.Query("lon"), 64)
	if err1 != nil || err2 != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "bad_request",
			"message": "lat and lon query parameters are required",
		})
		return
	}

	center := models.GeoPoint{Latitude: lat, Longitude: lon}
	if err := center.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "bad_request",
			"message": err.Error(),
		})
		return
	}

	radius := defaultRadiusKm
	if raw := c.Query("radius"); raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil && parsed > 0 {
			radius = parsed
		}
	}
	if radius > maxRadiusKm {
		radius = maxRadiusKm
	}

	positions, err := h.repo.GetNearby(c.Request.Context(), center, radius)
	if err != nil {
		h.logger.WithField("error", err).Error("Failed to search nearby positions")
		c.JSON(http.StatusInternalServerError, gin.H{"code": "internal_error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":     len(positions),
		"positions": positions,
	})
}

// GetTrack возвращает последние точки трека устройства
func (h *RESTHandler) GetTrack(c *gin.Context) {
	deviceID := c.Param("deviceId")

	limit := defaultTrackLen
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	track, err := h.repo.GetTrack(c.Request.Context(), deviceID, limit)
	if err != nil {
		h.logger.WithField("error", err).Error("Failed to get track")
		c.JSON(http.StatusInternalServerError, gin.H{"code": "internal_error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"device_id": deviceID,
		"count":     len(track),
		"points":    track,
	})
}

// GetFilterStats возвращает счётчики движка фильтрации
func (h *RESTHandler) GetFilterStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Stats())
}

// GetFilterConfig возвращает текущую конфигурацию фильтрации
func (h *RESTHandler) GetFilterConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Config())
}

// UpdateFilterConfig горячо заменяет конфигурацию фильтрации
func (h *RESTHandler) UpdateFilterConfig(c *gin.Context) {
	var cfg filter.Config
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "bad_request",
			"message": err.Error(),
		})
		return
	}

	if cfg.SkipLimit < 0 || cfg.FilterMaxSpeed < 0 || cfg.FilterDistance < 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "bad_request",
			"message": "thresholds cannot be negative",
		})
		return
	}

	h.engine.UpdateConfig(&cfg)
	c.JSON(http.StatusOK, h.engine.Config())
}

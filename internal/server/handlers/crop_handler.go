package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/cropwatch/internal/domain/models"
	"github.com/mamadbah2/cropwatch/internal/repository"
	"github.com/mamadbah2/cropwatch/internal/service/crop"
	"github.com/mamadbah2/cropwatch/internal/service/farm"
)

const logTimeLayout = "2006-01-02 15:04:05"

// CropHandler serves the crop and plant REST API.
type CropHandler struct {
	farm   *farm.Registry
	store  repository.FarmStore
	logger *zap.Logger
}

func NewCropHandler(registry *farm.Registry, store repository.FarmStore, logger *zap.Logger) *CropHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CropHandler{farm: registry, store: store, logger: logger}
}

type createCropRequest struct {
	CropID      string         `json:"cropId" binding:"required"`
	PlantedTime *time.Time     `json:"plantedTime"`
	Plants      []models.Plant `json:"plants"`
}

type addPlantRequest struct {
	PlantID     string `json:"plantId" binding:"required"`
	PlantType   string `json:"plantType" binding:"required"`
	Description string `json:"description"`
}

type plantDataResponse struct {
	PlantID   string  `json:"PlantID"`
	LogTime   string  `json:"Log_Time"`
	Greenness float64 `json:"Greenness"`
}

type cropStatusResponse struct {
	CropID          string         `json:"cropId"`
	Roster          string         `json:"roster"`
	State           string         `json:"state"`
	CyclesCompleted uint64         `json:"cyclesCompleted"`
	PersistFailures uint64         `json:"persistFailures"`
	Plants          []models.Plant `json:"plants"`
}

// ListCrops returns the current crops.
func (h *CropHandler) ListCrops(c *gin.Context) {
	crops, err := h.store.CurrentCrops(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to fetch crops", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch crops"})
		return
	}
	c.JSON(http.StatusOK, crops)
}

// CreateCrop records a crop and starts monitoring it.
func (h *CropHandler) CreateCrop(c *gin.Context) {
	var req createCropRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid crop payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	planted := time.Now().UTC()
	if req.PlantedTime != nil {
		planted = req.PlantedTime.UTC()
	}
	for i := range req.Plants {
		if req.Plants[i].PlantedAt.IsZero() {
			req.Plants[i].PlantedAt = planted
		}
	}

	ctx := c.Request.Context()
	if _, err := h.store.CreateCrop(ctx, models.Crop{ID: req.CropID, PlantedAt: planted}); err != nil {
		h.logger.Error("failed to create crop", zap.String("crop_id", req.CropID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create crop"})
		return
	}

	sup, err := h.farm.Add(ctx, req.CropID, req.Plants)
	switch {
	case errors.Is(err, farm.ErrCropExists):
		c.JSON(http.StatusConflict, gin.H{"error": "crop already exists"})
		return
	case errors.Is(err, crop.ErrNoPlants):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "crop requires at least one plant"})
		return
	case err != nil:
		h.logger.Error("failed to start crop", zap.String("crop_id", req.CropID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start crop monitoring"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Crop created successfully", "roster": sup.Outcome().String()})
}

// CropStatus reports the data logger state of a monitored crop.
func (h *CropHandler) CropStatus(c *gin.Context) {
	sup, err := h.farm.Get(c.Param("cropId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "crop not monitored"})
		return
	}

	c.JSON(http.StatusOK, cropStatusResponse{
		CropID:          sup.ID(),
		Roster:          sup.Outcome().String(),
		State:           sup.State().String(),
		CyclesCompleted: sup.CyclesCompleted(),
		PersistFailures: sup.PersistFailures(),
		Plants:          sup.Plants(),
	})
}

// ListPlants returns every crop with its plants.
func (h *CropHandler) ListPlants(c *gin.Context) {
	crops, err := h.store.CropsWithPlants(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to fetch plants", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch plants"})
		return
	}
	c.JSON(http.StatusOK, crops)
}

// AddPlant registers a plant in a crop. The roster of a running supervisor is
// not changed until the crop is restarted.
func (h *CropHandler) AddPlant(c *gin.Context) {
	var req addPlantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid plant payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	cropID := c.Param("cropId")
	added, err := h.store.AddPlantToCrop(c.Request.Context(), cropID, models.Plant{
		ID:          req.PlantID,
		Type:        req.PlantType,
		Description: req.Description,
		PlantedAt:   time.Now().UTC(),
	})
	if err != nil {
		h.logger.Error("failed to add plant", zap.String("crop_id", cropID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to add plant"})
		return
	}
	if !added {
		c.JSON(http.StatusOK, gin.H{"message": "Plant already exists!"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Plant added successfully"})
}

// DeletePlant removes a plant from a crop.
func (h *CropHandler) DeletePlant(c *gin.Context) {
	cropID, plantID := c.Param("cropId"), c.Param("plantId")

	err := h.store.DeletePlantFromCrop(c.Request.Context(), cropID, plantID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "Plant not found"})
	case err != nil:
		h.logger.Error("failed to delete plant", zap.String("crop_id", cropID), zap.String("plant_id", plantID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete plant"})
	default:
		c.JSON(http.StatusOK, gin.H{"message": "Plant deleted successfully"})
	}
}

// PlantData returns the greenness history of every plant.
func (h *CropHandler) PlantData(c *gin.Context) {
	points, err := h.store.PlantData(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to fetch plant data", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch plant data"})
		return
	}

	out := make([]plantDataResponse, len(points))
	for i, p := range points {
		out[i] = plantDataResponse{PlantID: p.PlantID, LogTime: p.LoggedAt.UTC().Format(logTimeLayout), Greenness: p.Greenness}
	}
	c.JSON(http.StatusOK, out)
}

package handler

import (
	inventoryapp "github.com/clinicpos/backend/internal/application/inventory"
	"github.com/clinicpos/backend/internal/domain/inventory"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// LocationHandler exposes stock location management
type LocationHandler struct {
	BaseHandler
	locations *inventoryapp.LocationService
}

// NewLocationHandler creates a new LocationHandler
func NewLocationHandler(locations *inventoryapp.LocationService) *LocationHandler {
	return &LocationHandler{locations: locations}
}

// RegisterLocationRequest creates a new stock location
type RegisterLocationRequest struct {
	Code    string `json:"code" binding:"required,min=1,max=50"`
	Name    string `json:"name" binding:"required,min=1,max=255"`
	Default bool   `json:"default"`
}

// LocationResponse is the transport representation of a location
type LocationResponse struct {
	ID        string `json:"id"`
	Code      string `json:"code"`
	Name      string `json:"name"`
	IsDefault bool   `json:"is_default"`
	Active    bool   `json:"active"`
}

func toLocationResponse(loc *inventory.Location) LocationResponse {
	return LocationResponse{
		ID:        loc.ID.String(),
		Code:      loc.Code,
		Name:      loc.Name,
		IsDefault: loc.IsDefault,
		Active:    loc.Active,
	}
}

// Register creates a new stock location
func (h *LocationHandler) Register(c *gin.Context) {
	var req RegisterLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	loc, err := h.locations.RegisterLocation(c.Request.Context(), req.Code, req.Name, req.Default)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, toLocationResponse(loc))
}

// List returns all active locations
func (h *LocationHandler) List(c *gin.Context) {
	locs, err := h.locations.ListLocations(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}

	out := make([]LocationResponse, len(locs))
	for i := range locs {
		out[i] = toLocationResponse(&locs[i])
	}
	h.Success(c, out)
}

// GetByID returns one location
func (h *LocationHandler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid location ID")
		return
	}

	loc, err := h.locations.GetLocation(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toLocationResponse(loc))
}

// MakeDefault moves the default flag to this location
func (h *LocationHandler) MakeDefault(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid location ID")
		return
	}

	loc, err := h.locations.MakeDefault(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toLocationResponse(loc))
}

// Deactivate marks a location inactive
func (h *LocationHandler) Deactivate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid location ID")
		return
	}

	loc, err := h.locations.DeactivateLocation(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toLocationResponse(loc))
}

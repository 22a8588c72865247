package rest

import (
	"net/http"

	"github.com/benchlab/benchcore/internal/instrument"
	"github.com/benchlab/benchcore/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// GET /api/v1/instruments/:id/config
func (s *Server) exportConfig(c *gin.Context) {
	inst, ok := s.instrumentByID(c)
	if !ok {
		return
	}

	data, err := instrument.ExportConfig(inst, c.Query("name"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("CFG_500", "Failed to export configuration", err.Error()))
		return
	}

	c.Data(http.StatusOK, "application/json", data)
}

// POST /api/v1/instruments/:id/config
func (s *Server) importConfig(c *gin.Context) {
	inst, ok := s.instrumentByID(c)
	if !ok {
		return
	}

	data, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("CFG_400", "Failed to read request body", err.Error()))
		return
	}

	if err := s.validator.ImportConfig(inst, data); err != nil {
		status := statusForErr(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadRequest
		}
		c.JSON(status, types.NewErrorResponse("CFG_IMPORT", "Failed to import configuration", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "configuration applied"})
}

type SaveConfigRequest struct {
	InstrumentID string `json:"instrument_id" binding:"required"`
	Name         string `json:"name" binding:"required"`
}

// POST /api/v1/configs
func (s *Server) saveConfig(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable,
			types.NewErrorResponse("STORE_503", "Saved configurations require a database", nil))
		return
	}

	var req SaveConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("CFG_400", "Invalid request body", err.Error()))
		return
	}

	instID, err := uuid.Parse(req.InstrumentID)
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("CFG_400", "Invalid instrument ID", err.Error()))
		return
	}

	inst, exists := s.manager.Get(instID)
	if !exists {
		c.JSON(http.StatusNotFound, types.NewErrorResponse("INST_404", "Instrument not found", nil))
		return
	}

	data, err := instrument.ExportConfig(inst, req.Name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("CFG_500", "Failed to export configuration", err.Error()))
		return
	}

	id, err := s.store.SaveConfig(c.Request.Context(), inst.Identity.Model, req.Name, data)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("CFG_500", "Failed to save configuration", err.Error()))
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":    id,
		"name":  req.Name,
		"model": inst.Identity.Model,
	})
}

// GET /api/v1/configs?type=SDL1020X
func (s *Server) listSavedConfigs(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable,
			types.NewErrorResponse("STORE_503", "Saved configurations require a database", nil))
		return
	}

	configs, err := s.store.ListConfigs(c.Request.Context(), c.Query("type"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("CFG_500", "Failed to list configurations", err.Error()))
		return
	}

	out := make([]gin.H, 0, len(configs))
	for _, cfg := range configs {
		out = append(out, gin.H{
			"id":              cfg.ID,
			"instrument_type": cfg.InstrumentType,
			"name":            cfg.Name,
			"created_at":      cfg.CreatedAt,
			"updated_at":      cfg.UpdatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"configs": out, "count": len(out)})
}

// GET /api/v1/configs/:id
func (s *Server) getSavedConfig(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable,
			types.NewErrorResponse("STORE_503", "Saved configurations require a database", nil))
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("CFG_400", "Invalid config ID", err.Error()))
		return
	}

	cfg, err := s.store.GetConfig(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, types.NewErrorResponse("CFG_404", "Configuration not found", nil))
		return
	}

	c.Data(http.StatusOK, "application/json", cfg.Payload)
}

// DELETE /api/v1/configs/:id
func (s *Server) deleteSavedConfig(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable,
			types.NewErrorResponse("STORE_503", "Saved configurations require a database", nil))
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("CFG_400", "Invalid config ID", err.Error()))
		return
	}

	if err := s.store.DeleteConfig(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusNotFound, types.NewErrorResponse("CFG_404", "Configuration not found", nil))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "configuration deleted"})
}

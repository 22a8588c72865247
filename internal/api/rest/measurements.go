package rest

import (
	"net/http"
	"strconv"
	"time"

	"github.com/benchlab/benchcore/internal/storage"
	"github.com/benchlab/benchcore/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// GET /api/v1/measurements?instrument=<uuid>&kind=voltage&since=...&until=...&limit=500
func (s *Server) queryMeasurements(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable,
			types.NewErrorResponse("STORE_503", "Measurement history requires a database", nil))
		return
	}

	var filter storage.MeasurementFilter

	if raw := c.Query("instrument"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, types.NewErrorResponse("MEAS_400", "Invalid instrument ID", err.Error()))
			return
		}
		filter.InstrumentID = id
	}

	filter.Kind = c.Query("kind")

	if raw := c.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, types.NewErrorResponse("MEAS_400", "Invalid since timestamp", err.Error()))
			return
		}
		filter.Since = t
	}

	if raw := c.Query("until"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, types.NewErrorResponse("MEAS_400", "Invalid until timestamp", err.Error()))
			return
		}
		filter.Until = t
	}

	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, types.NewErrorResponse("MEAS_400", "Invalid limit", err.Error()))
			return
		}
		filter.Limit = n
	}

	rows, err := s.store.QueryMeasurements(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.NewErrorResponse("MEAS_500", "Failed to query measurements", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"measurements": rows,
		"count":        len(rows),
	})
}

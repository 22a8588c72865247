package rest

import (
	"net/http"
	"strconv"

	"github.com/benchlab/benchcore/internal/device/sdl1000"
	"github.com/benchlab/benchcore/internal/device/spd3303"
	"github.com/benchlab/benchcore/internal/types"
	"github.com/gin-gonic/gin"
)

// GET /api/v1/instruments/:id/sequence
func (s *Server) getSequence(c *gin.Context) {
	inst, ok := s.instrumentByID(c)
	if !ok {
		return
	}

	switch d := inst.Driver.(type) {
	case *sdl1000.Driver:
		steps := d.List().Steps()
		rows := make([]gin.H, 0, len(steps))
		for i, step := range steps {
			rows = append(rows, gin.H{
				"row":      i + 1,
				"level":    step.Level,
				"duration": step.Duration,
				"slew":     step.Slew,
			})
		}
		c.JSON(http.StatusOK, gin.H{
			"rows":           rows,
			"position":       d.List().Position(),
			"resume_warning": d.List().ResumeWarning(),
		})

	case *spd3303.Driver:
		channels := make([]gin.H, 0, spd3303.NumChannels)
		for ch := 0; ch < spd3303.NumChannels; ch++ {
			steps := d.TimerSteps(ch)
			rows := make([]gin.H, 0, len(steps))
			for i, step := range steps {
				rows = append(rows, gin.H{
					"row":      i + 1,
					"voltage":  step.Voltage,
					"current":  step.Current,
					"duration": step.Duration,
				})
			}
			channels = append(channels, gin.H{
				"channel":  ch + 1,
				"rows":     rows,
				"position": d.TimerPosition(ch),
			})
		}
		c.JSON(http.StatusOK, gin.H{"channels": channels})

	default:
		c.JSON(http.StatusUnprocessableEntity,
			types.NewErrorResponse("SEQ_422", "Instrument has no sequence program", nil))
	}
}

type SequenceRowRequest struct {
	Channel  int     `json:"channel"` // power supply only, 1-2
	Level    float64 `json:"level"`
	Voltage  float64 `json:"voltage"`
	Current  float64 `json:"current"`
	Duration float64 `json:"duration"`
	Slew     float64 `json:"slew"`
}

// PUT /api/v1/instruments/:id/sequence/:row
func (s *Server) setSequenceRow(c *gin.Context) {
	inst, ok := s.instrumentByID(c)
	if !ok {
		return
	}

	row, err := strconv.Atoi(c.Param("row"))
	if err != nil || row < 1 {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("SEQ_400", "Invalid row number", nil))
		return
	}

	var req SequenceRowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("SEQ_400", "Invalid request body", err.Error()))
		return
	}

	switch d := inst.Driver.(type) {
	case *sdl1000.Driver:
		if err := d.List().SetRow(row, req.Level, req.Duration, req.Slew); err != nil {
			c.JSON(http.StatusBadRequest, types.NewErrorResponse("SEQ_ROW", "Failed to stage row", err.Error()))
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "row staged, commit to write"})

	case *spd3303.Driver:
		step := spd3303.TimerStep{Voltage: req.Voltage, Current: req.Current, Duration: req.Duration}
		if err := d.SetTimerStep(req.Channel-1, row-1, step); err != nil {
			c.JSON(statusForErr(err), types.NewErrorResponse("SEQ_ROW", "Failed to write timer step", err.Error()))
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "timer step written"})

	default:
		c.JSON(http.StatusUnprocessableEntity,
			types.NewErrorResponse("SEQ_422", "Instrument has no sequence program", nil))
	}
}

type SequenceControlRequest struct {
	Channel int `json:"channel"` // power supply only, 1-2
}

// POST /api/v1/instruments/:id/sequence/start
func (s *Server) startSequence(c *gin.Context) {
	s.controlSequence(c, true)
}

// POST /api/v1/instruments/:id/sequence/stop
func (s *Server) stopSequence(c *gin.Context) {
	s.controlSequence(c, false)
}

func (s *Server) controlSequence(c *gin.Context, start bool) {
	inst, ok := s.instrumentByID(c)
	if !ok {
		return
	}

	var req SequenceControlRequest
	_ = c.ShouldBindJSON(&req)

	switch d := inst.Driver.(type) {
	case *sdl1000.Driver:
		// The load toggles on bus trigger: a trigger starts a stopped
		// sequence, the next one arms a stop.
		running := d.List().Position().Running
		if running == start {
			c.JSON(http.StatusConflict, types.NewErrorResponse("SEQ_409", "Sequence already in requested state", nil))
			return
		}
		if err := d.Trigger(); err != nil {
			c.JSON(statusForErr(err), types.NewErrorResponse("SEQ_TRIGGER", "Failed to trigger sequence", err.Error()))
			return
		}
		c.JSON(http.StatusOK, gin.H{"position": d.List().Position()})

	case *spd3303.Driver:
		if err := d.SetTimer(req.Channel-1, start); err != nil {
			c.JSON(statusForErr(err), types.NewErrorResponse("SEQ_TIMER", "Failed to switch timer", err.Error()))
			return
		}
		c.JSON(http.StatusOK, gin.H{"position": d.TimerPosition(req.Channel - 1)})

	default:
		c.JSON(http.StatusUnprocessableEntity,
			types.NewErrorResponse("SEQ_422", "Instrument has no sequence program", nil))
	}
}

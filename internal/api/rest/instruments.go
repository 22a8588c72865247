package rest

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/benchlab/benchcore/internal/api/websocket"
	"github.com/benchlab/benchcore/internal/device/sdl1000"
	"github.com/benchlab/benchcore/internal/device/sdm3000"
	"github.com/benchlab/benchcore/internal/device/spd3303"
	"github.com/benchlab/benchcore/internal/instrument"
	"github.com/benchlab/benchcore/internal/params"
	"github.com/benchlab/benchcore/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// statusForErr maps the connection error taxonomy onto HTTP codes.
func statusForErr(err error) int {
	switch {
	case errors.Is(err, types.ErrNotConnected):
		return http.StatusConflict
	case errors.Is(err, types.ErrInstrumentClosed):
		return http.StatusGone
	case errors.Is(err, types.ErrUnknownInstrumentType):
		return http.StatusUnprocessableEntity
	case errors.Is(err, types.ErrConnectionLost):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) instrumentByID(c *gin.Context) (*instrument.Instrument, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("INST_400", "Invalid instrument ID", err.Error()))
		return nil, false
	}

	inst, exists := s.manager.Get(id)
	if !exists {
		c.JSON(http.StatusNotFound, types.NewErrorResponse("INST_404", "Instrument not found", nil))
		return nil, false
	}
	return inst, true
}

func instrumentSummary(inst *instrument.Instrument, polling bool) gin.H {
	return gin.H{
		"id":       inst.ID,
		"resource": inst.Resource(),
		"kind":     inst.Kind,
		"vendor":   inst.Identity.Manufacturer,
		"model":    inst.Identity.Model,
		"serial":   inst.Identity.SerialNumber,
		"polling":  polling,
	}
}

// GET /api/v1/instruments
func (s *Server) listInstruments(c *gin.Context) {
	instruments := s.manager.List()

	response := make([]gin.H, 0, len(instruments))
	for _, inst := range instruments {
		response = append(response, instrumentSummary(inst, s.manager.Polling(inst.ID)))
	}

	c.JSON(http.StatusOK, gin.H{
		"instruments": response,
		"count":       len(response),
	})
}

// POST /api/v1/instruments/connect
func (s *Server) connectInstrument(c *gin.Context) {
	var req struct {
		Resource string `json:"resource" binding:"required"`
		Poll     bool   `json:"poll"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("INST_400", "Invalid request body", err.Error()))
		return
	}

	inst, err := s.manager.Connect(c.Request.Context(), req.Resource)
	if err != nil {
		c.JSON(statusForErr(err), types.NewErrorResponse("INST_CONNECT", "Failed to connect instrument", err.Error()))
		return
	}

	if req.Poll {
		if err := s.manager.StartPoller(inst.ID, 0); err != nil {
			s.logger.Warn("Failed to start poller", zap.Error(err))
		}
	}

	s.wsHub.Broadcast(websocket.NewInstrumentEventMessage(
		websocket.MessageTypeInstrumentConnected, inst.ID.String(), inst.Resource(), inst.Identity.Model))
	c.JSON(http.StatusCreated, instrumentSummary(inst, s.manager.Polling(inst.ID)))
}

// GET /api/v1/instruments/:id
func (s *Server) getInstrument(c *gin.Context) {
	inst, ok := s.instrumentByID(c)
	if !ok {
		return
	}

	out := instrumentSummary(inst, s.manager.Polling(inst.ID))
	out["identity"] = inst.Identity

	switch d := inst.Driver.(type) {
	case *sdl1000.Driver:
		out["mode"] = d.Mode()
		out["state"] = d.Sync().State().String()
		out["max_power"] = d.MaxPower()
	case *sdm3000.Driver:
		out["function"] = d.Function(1)
		out["state"] = d.Sync().State().String()
	case *spd3303.Driver:
		out["status"] = d.Status()
	}

	c.JSON(http.StatusOK, out)
}

// DELETE /api/v1/instruments/:id
func (s *Server) disconnectInstrument(c *gin.Context) {
	inst, ok := s.instrumentByID(c)
	if !ok {
		return
	}

	if err := s.manager.Disconnect(inst.ID); err != nil {
		c.JSON(statusForErr(err), types.NewErrorResponse("INST_DISCONNECT", "Failed to disconnect instrument", err.Error()))
		return
	}

	s.wsHub.Broadcast(websocket.NewInstrumentEventMessage(
		websocket.MessageTypeInstrumentDisconnected, inst.ID.String(), inst.Resource(), inst.Identity.Model))
	c.JSON(http.StatusOK, gin.H{"message": "instrument disconnected"})
}

// GET /api/v1/instruments/:id/snapshot
func (s *Server) getSnapshot(c *gin.Context) {
	inst, ok := s.instrumentByID(c)
	if !ok {
		return
	}

	out := gin.H{
		"model":  inst.Identity.Model,
		"config": inst.Driver.ExportConfig(),
	}

	switch d := inst.Driver.(type) {
	case *sdl1000.Driver:
		out["mode"] = d.Mode()
		out["state"] = d.Sync().State().String()
	case *sdm3000.Driver:
		out["state"] = d.Sync().State().String()
	case *spd3303.Driver:
		out["status"] = d.Status()
	}

	c.JSON(http.StatusOK, out)
}

// POST /api/v1/instruments/:id/refresh
func (s *Server) refreshInstrument(c *gin.Context) {
	inst, ok := s.instrumentByID(c)
	if !ok {
		return
	}

	if err := inst.Driver.Refresh(); err != nil {
		c.JSON(statusForErr(err), types.NewErrorResponse("INST_REFRESH", "Failed to refresh instrument state", err.Error()))
		return
	}

	s.getSnapshot(c)
}

type SetParameterRequest struct {
	Path    string `json:"path" binding:"required"`
	Value   any    `json:"value"`
	Set     int    `json:"set"`     // multimeter parameter set, 1-4
	Channel int    `json:"channel"` // power supply channel, 1-2
}

// POST /api/v1/instruments/:id/parameters
func (s *Server) setParameter(c *gin.Context) {
	inst, ok := s.instrumentByID(c)
	if !ok {
		return
	}

	var req SetParameterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("PARAM_400", "Invalid request body", err.Error()))
		return
	}

	stored, err := applyParameter(inst, req)
	if err != nil {
		status := statusForErr(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadRequest
		}
		c.JSON(status, types.NewErrorResponse("PARAM_SET", "Failed to set parameter", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"path":   req.Path,
		"stored": stored,
	})
}

func applyParameter(inst *instrument.Instrument, req SetParameterRequest) (any, error) {
	switch d := inst.Driver.(type) {
	case *sdl1000.Driver:
		if req.Path == "MODE" {
			mode, ok := req.Value.(string)
			if !ok {
				return nil, fmt.Errorf("mode wants a string, got %v", req.Value)
			}
			if err := d.SetMode(mode); err != nil {
				return nil, err
			}
			return d.Mode(), nil
		}
		spec := d.Sync().Profile().Find(req.Path)
		if spec == nil {
			return nil, fmt.Errorf("unknown parameter %q", req.Path)
		}
		v, err := coerceParam(spec, req.Value)
		if err != nil {
			return nil, err
		}
		stored, err := d.Set(req.Path, v)
		if err != nil {
			return nil, err
		}
		return stored.Native(), nil

	case *sdm3000.Driver:
		set := req.Set
		if set == 0 {
			set = 1
		}
		switch req.Path {
		case "FUNCTION":
			mode, ok := req.Value.(string)
			if !ok {
				return nil, fmt.Errorf("function wants a string, got %v", req.Value)
			}
			if err := d.SetFunction(set, mode); err != nil {
				return nil, err
			}
			return d.Function(set), nil
		case "ENABLE":
			on, ok := req.Value.(bool)
			if !ok {
				return nil, fmt.Errorf("enable wants a bool, got %v", req.Value)
			}
			if err := d.SetEnabled(set, on); err != nil {
				return nil, err
			}
			return on, nil
		case "SPEED":
			raw, ok := req.Value.(string)
			if !ok {
				return nil, fmt.Errorf("speed wants a string, got %v", req.Value)
			}
			if err := d.SetSpeed(set, sdm3000.Speed(raw)); err != nil {
				return nil, err
			}
			return raw, nil
		}
		spec := d.Sync().Profile().Find(req.Path)
		if spec == nil {
			return nil, fmt.Errorf("unknown parameter %q", req.Path)
		}
		v, err := coerceParam(spec, req.Value)
		if err != nil {
			return nil, err
		}
		stored, err := d.Set(set, req.Path, v)
		if err != nil {
			return nil, err
		}
		return stored.Native(), nil

	case *spd3303.Driver:
		ch := req.Channel - 1
		switch req.Path {
		case "VOLT":
			f, ok := toNumber(req.Value)
			if !ok {
				return nil, fmt.Errorf("voltage wants a number, got %v", req.Value)
			}
			return d.SetVoltage(ch, f)
		case "CURR":
			f, ok := toNumber(req.Value)
			if !ok {
				return nil, fmt.Errorf("current wants a number, got %v", req.Value)
			}
			return d.SetCurrent(ch, f)
		case "OUTPUT":
			on, ok := req.Value.(bool)
			if !ok {
				return nil, fmt.Errorf("output wants a bool, got %v", req.Value)
			}
			return on, d.SetOutput(ch, on)
		case "TRACK":
			f, ok := toNumber(req.Value)
			if !ok {
				return nil, fmt.Errorf("track wants 0, 1 or 2, got %v", req.Value)
			}
			return int(f), d.SetTrack(spd3303.TrackMode(int(f)))
		case "PRESET":
			f, ok := toNumber(req.Value)
			if !ok {
				return nil, fmt.Errorf("preset wants an index, got %v", req.Value)
			}
			return int(f), d.ApplyPreset(ch, int(f))
		}
		return nil, fmt.Errorf("unknown parameter %q", req.Path)
	}

	return nil, fmt.Errorf("instrument kind %s has no parameters", inst.Kind)
}

// POST /api/v1/instruments/:id/commit
func (s *Server) commitInstrument(c *gin.Context) {
	inst, ok := s.instrumentByID(c)
	if !ok {
		return
	}

	d, isLoad := inst.Driver.(*sdl1000.Driver)
	if !isLoad {
		// Multimeter changes apply on the next measurement cycle and
		// supply changes hit the wire immediately.
		c.JSON(http.StatusOK, gin.H{"message": "nothing staged"})
		return
	}

	snap, err := d.Commit()
	if err != nil {
		c.JSON(statusForErr(err), types.NewErrorResponse("INST_COMMIT", "Failed to commit staged changes", err.Error()))
		return
	}

	out := gin.H{}
	for _, path := range snap.Paths() {
		out[path] = snap[path].Native()
	}
	c.JSON(http.StatusOK, gin.H{"config": out})
}

// POST /api/v1/instruments/:id/poller/start
func (s *Server) startPoller(c *gin.Context) {
	inst, ok := s.instrumentByID(c)
	if !ok {
		return
	}

	if err := s.manager.StartPoller(inst.ID, 0); err != nil {
		c.JSON(http.StatusConflict, types.NewErrorResponse("POLL_409", "Failed to start poller", err.Error()))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "poller started"})
}

// POST /api/v1/instruments/:id/poller/stop
func (s *Server) stopPoller(c *gin.Context) {
	inst, ok := s.instrumentByID(c)
	if !ok {
		return
	}

	s.manager.StopPoller(inst.ID)
	c.JSON(http.StatusOK, gin.H{"message": "poller stopped"})
}

func coerceParam(spec *params.Spec, raw any) (params.Value, error) {
	switch spec.Kind {
	case params.Bool:
		if b, ok := raw.(bool); ok {
			return params.BoolValue(b), nil
		}
	case params.Int:
		if f, ok := toNumber(raw); ok {
			return params.IntValue(int(f)), nil
		}
	case params.Float:
		if f, ok := toNumber(raw); ok {
			return params.FloatValue(f), nil
		}
	case params.Enum:
		if s, ok := raw.(string); ok {
			return params.EnumValue(s), nil
		}
	case params.Range:
		if s, ok := raw.(string); ok {
			return params.RangeValue(s), nil
		}
	}
	return params.Value{}, fmt.Errorf("unexpected value %v for %s", raw, spec.Path)
}

func toNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	}
	return 0, false
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/picobrewhouse/brewhouse-core/internal/device"
	"github.com/picobrewhouse/brewhouse-core/internal/session"
)

// Fermenter protocol responses.
const (
	fermRegistered       = "#1#"
	fermNotRegistered    = "#0#"
	fermFirmwareUpToDate = "#0#"
	fermDataAccepted     = "#10,0#"

	// fermFirmwareFile is the image name fermenters are pointed at when
	// they ask where to download firmware from.
	fermFirmwareFile = "/picoferm/picoferm_0_2_6.bin"
)

// fermStateResponses maps a fermenter's derived state to the '#a,b#'
// pair it expects from getState.
var fermStateResponses = map[device.State]string{
	device.StateNothingTodo: "#2,4#",
	device.StateSendingData: "#10,0#",
	device.StateFermError:   "#10,16#",
	device.StateCompleted:   "#2,16#",
}

// fermDataPoint is one entry of the logDataSet data parameter: raw
// sensor values in Fahrenheit (s1) and PSI (s2).
type fermDataPoint struct {
	S1 float64 `json:"s1"`
	S2 float64 `json:"s2"`
}

// handleFermenterIsRegistered registers a fermenter by serial number.
//
// GET /API/PicoFerm/isRegistered?uid={UID}&token={TOKEN}
// Response: '#{0}#' where {0}: 1 = registered, 0 = not registered.
func (s *Server) handleFermenterIsRegistered(w http.ResponseWriter, r *http.Request) {
	uid := r.URL.Query().Get("uid")

	dev, err := s.registry.Register(r.Context(), uid, device.KindFermenter)
	if err != nil {
		s.logger.Warn("fermenter registration failed", "serial", uid, "error", err)
		writeText(w, fermNotRegistered)
		return
	}

	s.publishDeviceStatus(r.Context(), dev)
	writeText(w, fermRegistered)
}

// handleFermenterCheckFirmware records the fermenter's firmware version.
//
// GET /API/PicoFerm/checkFirmware?uid={UID}&version={VERSION}
// Response: '#{0}#' where {0}: 1 = update available, 0 = up to date.
func (s *Server) handleFermenterCheckFirmware(w http.ResponseWriter, r *http.Request) {
	uid := r.URL.Query().Get("uid")
	version := r.URL.Query().Get("version")

	if _, err := s.registry.ReportFirmware(r.Context(), uid, version); err != nil {
		s.logger.Warn("fermenter firmware update failed", "serial", uid, "version", version, "error", err)
	}

	writeText(w, fermFirmwareUpToDate)
}

// handleFermenterFirmwareAddress tells the fermenter where firmware
// images live. The address is advertised even though no update is ever
// offered; fermenters ask for it unconditionally on boot.
//
// GET /API/PicoFerm/getFirmwareAddress?uid={UID}
// Response: '#{URL}#'
func (s *Server) handleFermenterFirmwareAddress(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("fermenter asked for firmware address", "serial", r.URL.Query().Get("uid"))
	writeText(w, "#"+s.fwCfg.BaseURL+fermFirmwareFile+"#")
}

// handleFermenterGetState derives what the fermenter should do next:
// keep sending data while a session on it is fermenting, otherwise idle.
// The derived state is persisted on the device.
//
// GET /API/PicoFerm/getState?uid={UID}
// Response: '#2,4#' nothing to do, '#10,0#' send data,
// '#10,16#' send data with error, '#2,16#' completed.
func (s *Server) handleFermenterGetState(w http.ResponseWriter, r *http.Request) {
	uid := r.URL.Query().Get("uid")

	dev, err := s.registry.GetBySerial(r.Context(), uid)
	if err != nil {
		s.logger.Warn("state requested by unknown fermenter", "serial", uid, "error", err)
		writeText(w, fermStateResponses[device.StateNothingTodo])
		return
	}

	state := device.StateNothingTodo
	if _, err := s.sessions.ActiveByDevice(r.Context(), dev.ID, session.StatusFermenting); err == nil {
		state = device.StateSendingData
	} else if !errors.Is(err, session.ErrSessionNotFound) {
		s.logger.Warn("fermenter session lookup failed", "serial", uid, "error", err)
	}

	if dev, err = s.registry.ReportState(r.Context(), uid, state); err != nil {
		s.logger.Warn("fermenter state update failed", "serial", uid, "state", state, "error", err)
	} else {
		s.publishDeviceStatus(r.Context(), dev)
	}

	writeText(w, fermStateResponses[state])
}

// handleFermenterLogDataSet ingests a batch of fermentation readings.
//
// GET /API/PicoFerm/logDataSet?uid={UID}&rate={RATE}&voltage={VOLTAGE}&data={DATA}
// data is a JSON array of {s1, s2} pairs covering the past hour, sampled
// every rate minutes.
// Response: '#10,0#' keep sending data.
func (s *Server) handleFermenterLogDataSet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	uid := q.Get("uid")

	rate, errRate := strconv.ParseFloat(q.Get("rate"), 64)
	voltage, errVolt := strconv.ParseFloat(q.Get("voltage"), 64)
	if errRate != nil || errVolt != nil {
		s.logger.Warn("fermenter sent unparsable rate or voltage", "serial", uid)
		writeText(w, fermDataAccepted)
		return
	}

	var points []fermDataPoint
	if err := json.Unmarshal([]byte(q.Get("data")), &points); err != nil {
		s.logger.Warn("fermenter sent unparsable data set", "serial", uid, "error", err)
		writeText(w, fermDataAccepted)
		return
	}

	dev, err := s.registry.GetBySerial(r.Context(), uid)
	if err != nil {
		s.logger.Warn("data set from unknown fermenter", "serial", uid, "error", err)
		writeText(w, fermDataAccepted)
		return
	}

	if dev.CurrentSessionID == nil {
		s.logger.Warn("fermenter has no assigned session, dropping data set", "serial", uid)
		writeText(w, fermDataAccepted)
		return
	}

	readings := make([]session.FermReading, len(points))
	for i, p := range points {
		readings[i] = session.FermReading{TemperatureF: p.S1, PressurePsi: p.S2}
	}

	if err := s.sessions.AppendFermentationBatch(r.Context(), *dev.CurrentSessionID, rate, voltage, readings); err != nil {
		s.logger.Warn("failed to store fermentation data set",
			"serial", uid, "session", *dev.CurrentSessionID, "error", err)
	}

	writeText(w, fermDataAccepted)
}

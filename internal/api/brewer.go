package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/picobrewhouse/brewhouse-core/internal/device"
	"github.com/picobrewhouse/brewhouse-core/internal/session"
	"github.com/picobrewhouse/brewhouse-core/internal/timeseries"
)

// Brewer protocol responses. Brewers parse these byte for byte, so the
// markers and trailing CRLF sequences are load-bearing.
const (
	brewerRegistered    = "#T#\r\n"
	brewerNotRegistered = "#F#\r\n"
	brewerStateChanged  = "\r\n"
	brewerNoUpdate      = "#F#"
	brewerNoActions     = "##"
	brewerLogAccepted   = "\r\n\r\n"
	brewerErrorAccepted = "\r\n"
)

// writeText writes a plain-text device protocol response. Device
// endpoints always answer 200; failure is conveyed in the body marker,
// never the status code.
func writeText(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response; connection may be closed
	w.Write([]byte(body))
}

// handleBrewerRegister registers a brewer by serial number.
//
// GET /API/pico/register?uid={UID}
// Response: '#T#\r\n' registered, '#F#\r\n' not registered.
func (s *Server) handleBrewerRegister(w http.ResponseWriter, r *http.Request) {
	uid := r.URL.Query().Get("uid")

	dev, err := s.registry.Register(r.Context(), uid, device.KindBrewer)
	if err != nil {
		s.logger.Warn("brewer registration failed", "serial", uid, "error", err)
		writeText(w, brewerNotRegistered)
		return
	}

	s.publishDeviceStatus(r.Context(), dev)
	writeText(w, brewerRegistered)
}

// handleBrewerChangeState records a brewer's reported state.
//
// GET /API/pico/picoChangeState?picoUID={UID}&state={STATE}
// State: 2 = Ready, 3 = Brewing, 4 = Sous Vide, 5 = Rack Beer,
// 6 = Rinse, 7 = Deep Clean, 9 = De-Scale.
// Response: '\r\n'
func (s *Server) handleBrewerChangeState(w http.ResponseWriter, r *http.Request) {
	uid := r.URL.Query().Get("picoUID")

	code, err := strconv.Atoi(r.URL.Query().Get("state"))
	if err != nil {
		s.logger.Warn("brewer sent unparsable state", "serial", uid, "state", r.URL.Query().Get("state"))
		writeText(w, brewerStateChanged)
		return
	}

	dev, err := s.registry.ReportStateCode(r.Context(), uid, code)
	if err != nil {
		s.logger.Warn("brewer state update failed", "serial", uid, "code", code, "error", err)
		writeText(w, brewerStateChanged)
		return
	}

	s.publishDeviceStatus(r.Context(), dev)
	writeText(w, brewerStateChanged)
}

// handleBrewerCheckFirmware records the brewer's firmware version.
// Firmware distribution is not offered, so the answer is always "no update".
//
// GET /API/pico/checkFirmware?uid={UID}&version={VERSION}
// Response: '#T#' update available, '#F#' no update.
func (s *Server) handleBrewerCheckFirmware(w http.ResponseWriter, r *http.Request) {
	uid := r.URL.Query().Get("uid")
	version := r.URL.Query().Get("version")

	if _, err := s.registry.ReportFirmware(r.Context(), uid, version); err != nil {
		s.logger.Warn("brewer firmware update failed", "serial", uid, "version", version, "error", err)
	}

	writeText(w, brewerNoUpdate)
}

// handleBrewerGetFirmware would serve a firmware image; none is hosted.
//
// GET /API/pico/getFirmware?uid={UID}
func (s *Server) handleBrewerGetFirmware(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("brewer requested firmware", "serial", r.URL.Query().Get("uid"))
	writeText(w, "")
}

// handleBrewerActionsNeeded reports pending maintenance actions.
//
// GET /API/pico/getActionsNeeded?uid={UID}
// Response: '#{0}#' where {0}: empty = none, 7 = deep clean.
func (s *Server) handleBrewerActionsNeeded(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("brewer asked for actions", "serial", r.URL.Query().Get("uid"))
	writeText(w, brewerNoActions)
}

// handleBrewerGetSession creates a session for the requesting brewer and
// hands back its identifier.
//
// GET /API/pico/getSession?uid={UID}&sesType={SESSION_TYPE}
// Response: '#{0}#\r\n' where {0} is the 20 character session id.
func (s *Server) handleBrewerGetSession(w http.ResponseWriter, r *http.Request) {
	uid := r.URL.Query().Get("uid")

	code, err := strconv.Atoi(r.URL.Query().Get("sesType"))
	if err != nil {
		s.logger.Warn("brewer sent unparsable session type", "serial", uid, "sesType", r.URL.Query().Get("sesType"))
		writeText(w, "")
		return
	}

	sessionType, err := session.TypeFromCode(code)
	if err != nil {
		s.logger.Warn("brewer sent unknown session type", "serial", uid, "code", code)
		writeText(w, "")
		return
	}

	dev, err := s.registry.GetBySerial(r.Context(), uid)
	if err != nil {
		s.logger.Warn("session requested by unknown brewer", "serial", uid, "error", err)
		writeText(w, "")
		return
	}

	sess, err := s.sessions.CreateSession(r.Context(), dev.ID, sessionType)
	if err != nil {
		s.logger.Error("failed to create session for brewer", "serial", uid, "type", sessionType, "error", err)
		writeText(w, "")
		return
	}

	writeText(w, "#"+sess.ID+"#\r\n")
}

// handleBrewerLog stores one brewing telemetry datapoint. The session is
// looked up scoped to the reporting brewer, so one unit cannot write into
// another's series.
//
// GET /API/pico/log?uid={UID}&sesId={SID}&wort={TEMP}&therm={TEMP}&step={STEP}
//
//	&[event={EVENT}&]error={ERROR}&sesType={SESSION_TYPE}&timeLeft={TIME}&shutScale={SS}
//
// Temperatures arrive in Fahrenheit and are stored in Celsius.
// Response: '\r\n\r\n'
func (s *Server) handleBrewerLog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	uid := q.Get("uid")
	sesID := q.Get("sesId")

	wort, errWort := strconv.ParseFloat(q.Get("wort"), 64)
	therm, errTherm := strconv.ParseFloat(q.Get("therm"), 64)
	if errWort != nil || errTherm != nil {
		s.logger.Warn("brewer sent unparsable temperatures", "serial", uid, "session", sesID)
		writeText(w, brewerLogAccepted)
		return
	}

	dev, err := s.registry.GetBySerial(r.Context(), uid)
	if err != nil {
		s.logger.Warn("telemetry from unknown brewer", "serial", uid, "error", err)
		writeText(w, brewerLogAccepted)
		return
	}
	if _, err := s.sessions.GetForDevice(r.Context(), sesID, dev.ID); err != nil {
		s.logger.Warn("brewer reported for a session it does not own",
			"serial", uid, "session", sesID, "error", err)
		writeText(w, brewerLogAccepted)
		return
	}

	// Optional numeric fields default to zero when absent or garbled.
	//nolint:errcheck // zero on parse failure is the wanted default
	errorCode, _ := strconv.Atoi(q.Get("error"))
	//nolint:errcheck // same as above
	timeLeft, _ := strconv.ParseInt(q.Get("timeLeft"), 10, 64)
	//nolint:errcheck // same as above
	shutScale, _ := strconv.ParseFloat(q.Get("shutScale"), 64)

	sample := timeseries.BrewingSample{
		WortTemperature:        timeseries.FahrenheitToCelsius(wort),
		ThermoblockTemperature: timeseries.FahrenheitToCelsius(therm),
		Step:                   q.Get("step"),
		Event:                  q.Get("event"),
		ErrorCode:              errorCode,
		TimeLeft:               timeLeft,
		ShutScale:              shutScale,
		Timestamp:              time.Now().UTC().Unix(),
	}

	if err := s.sessions.AppendBrewingTelemetry(r.Context(), sesID, sample); err != nil {
		s.logger.Warn("failed to store brewing telemetry", "serial", uid, "session", sesID, "error", err)
	}

	writeText(w, brewerLogAccepted)
}

// handleBrewerError records an error report from a brewer.
//
// GET /API/pico/error?uid={UID}&code={CODE}&[rfid={RFID}]
// Response: '\r\n'
func (s *Server) handleBrewerError(w http.ResponseWriter, r *http.Request) {
	uid := r.URL.Query().Get("uid")

	code, err := strconv.Atoi(r.URL.Query().Get("code"))
	if err != nil {
		s.logger.Warn("brewer sent unparsable error code", "serial", uid, "code", r.URL.Query().Get("code"))
		writeText(w, brewerErrorAccepted)
		return
	}

	if err := s.registry.ReportError(r.Context(), uid, code); err != nil {
		s.logger.Warn("failed to record brewer error", "serial", uid, "code", code, "error", err)
		writeText(w, brewerErrorAccepted)
		return
	}

	if dev, err := s.registry.GetBySerial(r.Context(), uid); err == nil {
		s.publishDeviceStatus(r.Context(), dev)
	}

	writeText(w, brewerErrorAccepted)
}

// handleDeviceCatchAll absorbs unrecognised device requests. Appliances
// retry aggressively on non-200 answers, so unknown paths get an empty 200.
func (s *Server) handleDeviceCatchAll(w http.ResponseWriter, r *http.Request) {
	s.logger.Info("unrecognised device request", "path", r.URL.Path, "query", r.URL.RawQuery)
	writeText(w, "")
}

package api

import (
	"context"
	"math"
	"net/http"
	"regexp"
	"strings"
	"testing"

	"github.com/picobrewhouse/brewhouse-core/internal/device"
	"github.com/picobrewhouse/brewhouse-core/internal/session"
)

func TestBrewerRegister(t *testing.T) {
	ts := setupServer(t)

	rec := ts.get(t, "/API/pico/register?uid=BREW100")
	if rec.Code != http.StatusOK {
		t.Fatalf("register status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != "#T#\r\n" {
		t.Errorf("register body = %q, want %q", rec.Body.String(), "#T#\r\n")
	}

	d, err := ts.registry.GetBySerial(context.Background(), "BREW100")
	if err != nil {
		t.Fatalf("GetBySerial() error = %v", err)
	}
	if d.Kind != device.KindBrewer {
		t.Errorf("kind = %q, want %q", d.Kind, device.KindBrewer)
	}

	// Registration is idempotent
	rec = ts.get(t, "/API/pico/register?uid=BREW100")
	if rec.Body.String() != "#T#\r\n" {
		t.Errorf("re-register body = %q, want %q", rec.Body.String(), "#T#\r\n")
	}

	// Missing serial cannot be registered
	rec = ts.get(t, "/API/pico/register")
	if rec.Code != http.StatusOK {
		t.Errorf("bad register status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != "#F#\r\n" {
		t.Errorf("bad register body = %q, want %q", rec.Body.String(), "#F#\r\n")
	}
}

func TestBrewerChangeState(t *testing.T) {
	ts := setupServer(t)
	ts.registerBrewer(t, "BREW100")

	rec := ts.get(t, "/API/pico/picoChangeState?picoUID=BREW100&state=7")
	if rec.Code != http.StatusOK || rec.Body.String() != "\r\n" {
		t.Fatalf("changeState = %d %q, want 200 CRLF", rec.Code, rec.Body.String())
	}

	d, err := ts.registry.GetBySerial(context.Background(), "BREW100")
	if err != nil {
		t.Fatalf("GetBySerial() error = %v", err)
	}
	if d.State != device.StateDeepClean {
		t.Errorf("state = %q, want %q", d.State, device.StateDeepClean)
	}

	// Unknown codes are logged but the brewer still gets its CRLF
	rec = ts.get(t, "/API/pico/picoChangeState?picoUID=BREW100&state=99")
	if rec.Code != http.StatusOK || rec.Body.String() != "\r\n" {
		t.Errorf("bad changeState = %d %q, want 200 CRLF", rec.Code, rec.Body.String())
	}
}

func TestBrewerCheckFirmware(t *testing.T) {
	ts := setupServer(t)
	ts.registerBrewer(t, "BREW100")

	rec := ts.get(t, "/API/pico/checkFirmware?uid=BREW100&version=0.1.14")
	if rec.Body.String() != "#F#" {
		t.Errorf("checkFirmware body = %q, want %q", rec.Body.String(), "#F#")
	}

	d, err := ts.registry.GetBySerial(context.Background(), "BREW100")
	if err != nil {
		t.Fatalf("GetBySerial() error = %v", err)
	}
	if d.FirmwareVersion != "0.1.14" {
		t.Errorf("firmware = %q, want 0.1.14", d.FirmwareVersion)
	}
}

func TestBrewerActionsNeeded(t *testing.T) {
	ts := setupServer(t)

	rec := ts.get(t, "/API/pico/getActionsNeeded?uid=BREW100")
	if rec.Body.String() != "##" {
		t.Errorf("getActionsNeeded body = %q, want %q", rec.Body.String(), "##")
	}
}

func TestBrewerGetSession(t *testing.T) {
	ts := setupServer(t)
	d := ts.registerBrewer(t, "BREW100")

	rec := ts.get(t, "/API/pico/getSession?uid=BREW100&sesType=5")
	if rec.Code != http.StatusOK {
		t.Fatalf("getSession status = %d, want %d", rec.Code, http.StatusOK)
	}

	pattern := regexp.MustCompile(`^#([0-9a-z]{20})#\r\n$`)
	m := pattern.FindStringSubmatch(rec.Body.String())
	if m == nil {
		t.Fatalf("getSession body = %q, want #<20 char id>#CRLF", rec.Body.String())
	}

	sess, err := ts.sessions.Get(context.Background(), m[1])
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if sess.Type != session.TypeManualBrew {
		t.Errorf("type = %q, want %q", sess.Type, session.TypeManualBrew)
	}
	if sess.Status != session.StatusIdle {
		t.Errorf("status = %q, want %q", sess.Status, session.StatusIdle)
	}
	if sess.DeviceID != d.ID {
		t.Errorf("deviceID = %q, want %q", sess.DeviceID, d.ID)
	}

	// Unknown brewers get no session
	rec = ts.get(t, "/API/pico/getSession?uid=GHOST&sesType=5")
	if rec.Code != http.StatusOK || rec.Body.Len() != 0 {
		t.Errorf("unknown brewer getSession = %d %q, want empty 200", rec.Code, rec.Body.String())
	}
}

func TestBrewerLog(t *testing.T) {
	ts := setupServer(t)
	d := ts.registerBrewer(t, "BREW100")
	sess := ts.createSession(t, d.ID, session.TypeManualBrew)

	query := "uid=BREW100&sesId=" + sess.ID +
		"&wort=140&therm=194&step=Heating&error=0&sesType=5&timeLeft=500&shutScale=0.16"
	rec := ts.get(t, "/API/pico/log?"+query)
	if rec.Code != http.StatusOK || rec.Body.String() != "\r\n\r\n" {
		t.Fatalf("log = %d %q, want 200 double CRLF", rec.Code, rec.Body.String())
	}

	samples, err := ts.store.ReadBrewing(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("ReadBrewing() error = %v", err)
	}
	if len(samples) != 1 {
		t.Fatalf("samples = %d, want 1", len(samples))
	}

	// 140F is 60C, 194F is 90C
	if math.Abs(samples[0].WortTemperature-60) > 0.01 {
		t.Errorf("wort = %f, want ~60", samples[0].WortTemperature)
	}
	if math.Abs(samples[0].ThermoblockTemperature-90) > 0.01 {
		t.Errorf("thermoblock = %f, want ~90", samples[0].ThermoblockTemperature)
	}
	if samples[0].Step != "Heating" {
		t.Errorf("step = %q, want Heating", samples[0].Step)
	}
	if samples[0].TimeLeft != 500 {
		t.Errorf("timeLeft = %d, want 500", samples[0].TimeLeft)
	}

	// Unknown sessions are dropped but still acknowledged
	rec = ts.get(t, "/API/pico/log?uid=BREW100&sesId=nope&wort=100&therm=100&step=x&error=0&sesType=5&timeLeft=0&shutScale=0")
	if rec.Code != http.StatusOK || rec.Body.String() != "\r\n\r\n" {
		t.Errorf("log unknown session = %d %q, want 200 double CRLF", rec.Code, rec.Body.String())
	}
}

func TestBrewerLog_ScopedToOwner(t *testing.T) {
	ts := setupServer(t)
	owner := ts.registerBrewer(t, "BREW100")
	ts.registerBrewer(t, "BREW200")
	sess := ts.createSession(t, owner.ID, session.TypeBrewing)

	// Another brewer reporting against the session is acknowledged but
	// its sample is dropped.
	query := "uid=BREW200&sesId=" + sess.ID +
		"&wort=140&therm=194&step=Heating&error=0&sesType=0&timeLeft=500&shutScale=0.16"
	rec := ts.get(t, "/API/pico/log?"+query)
	if rec.Code != http.StatusOK || rec.Body.String() != "\r\n\r\n" {
		t.Fatalf("log = %d %q, want 200 double CRLF", rec.Code, rec.Body.String())
	}

	samples, err := ts.store.ReadBrewing(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("ReadBrewing() error = %v", err)
	}
	if len(samples) != 0 {
		t.Fatalf("samples after foreign report = %d, want 0", len(samples))
	}

	// The owning brewer's report is stored.
	query = "uid=BREW100&sesId=" + sess.ID +
		"&wort=140&therm=194&step=Heating&error=0&sesType=0&timeLeft=500&shutScale=0.16"
	if rec := ts.get(t, "/API/pico/log?"+query); rec.Body.String() != "\r\n\r\n" {
		t.Fatalf("owner log body = %q, want double CRLF", rec.Body.String())
	}

	samples, err = ts.store.ReadBrewing(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("ReadBrewing() error = %v", err)
	}
	if len(samples) != 1 {
		t.Errorf("samples after owner report = %d, want 1", len(samples))
	}
}

func TestBrewerError(t *testing.T) {
	ts := setupServer(t)
	ts.registerBrewer(t, "BREW100")

	rec := ts.get(t, "/API/pico/error?uid=BREW100&code=12")
	if rec.Code != http.StatusOK || rec.Body.String() != "\r\n" {
		t.Fatalf("error report = %d %q, want 200 CRLF", rec.Code, rec.Body.String())
	}

	d, err := ts.registry.GetBySerial(context.Background(), "BREW100")
	if err != nil {
		t.Fatalf("GetBySerial() error = %v", err)
	}
	if len(d.Errors) != 1 || d.Errors[0].Code != 12 {
		t.Errorf("errors = %+v, want one entry with code 12", d.Errors)
	}
}

func TestBrewerCatchAll(t *testing.T) {
	ts := setupServer(t)

	rec := ts.get(t, "/API/pico/someNewEndpoint?uid=BREW100")
	if rec.Code != http.StatusOK {
		t.Errorf("catch-all status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("catch-all body = %q, want empty", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("catch-all content type = %q, want text/plain", ct)
	}
}

package api

import (
	"context"
	"math"
	"net/http"
	"net/url"
	"testing"

	"github.com/picobrewhouse/brewhouse-core/internal/device"
	"github.com/picobrewhouse/brewhouse-core/internal/session"
)

// setupFermentingSession registers a fermenter and assigns it a session
// already driven into Fermenting.
func setupFermentingSession(t *testing.T, ts *testServer, serial string) (*device.Device, *session.Session) {
	t.Helper()
	ctx := context.Background()

	d, err := ts.registry.Register(ctx, serial, device.KindFermenter)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	sess := ts.createSession(t, d.ID, session.TypeBrewing)
	for _, event := range []session.Event{session.EventStartBrewing, session.EventStartFermenting} {
		if _, err := ts.sessions.SubmitEvent(ctx, sess.ID, event); err != nil {
			t.Fatalf("SubmitEvent(%s) error = %v", event, err)
		}
	}
	return d, sess
}

func TestFermenterIsRegistered(t *testing.T) {
	ts := setupServer(t)

	rec := ts.get(t, "/API/PicoFerm/isRegistered?uid=FERM100&token=abc123")
	if rec.Code != http.StatusOK || rec.Body.String() != "#1#" {
		t.Fatalf("isRegistered = %d %q, want 200 #1#", rec.Code, rec.Body.String())
	}

	d, err := ts.registry.GetBySerial(context.Background(), "FERM100")
	if err != nil {
		t.Fatalf("GetBySerial() error = %v", err)
	}
	if d.Kind != device.KindFermenter {
		t.Errorf("kind = %q, want %q", d.Kind, device.KindFermenter)
	}
	if d.State != device.StateNothingTodo {
		t.Errorf("state = %q, want %q", d.State, device.StateNothingTodo)
	}

	rec = ts.get(t, "/API/PicoFerm/isRegistered")
	if rec.Body.String() != "#0#" {
		t.Errorf("bad isRegistered body = %q, want #0#", rec.Body.String())
	}
}

func TestFermenterCheckFirmware(t *testing.T) {
	ts := setupServer(t)
	if _, err := ts.registry.Register(context.Background(), "FERM100", device.KindFermenter); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	rec := ts.get(t, "/API/PicoFerm/checkFirmware?uid=FERM100&version=0.2.6")
	if rec.Body.String() != "#0#" {
		t.Errorf("checkFirmware body = %q, want #0#", rec.Body.String())
	}

	d, err := ts.registry.GetBySerial(context.Background(), "FERM100")
	if err != nil {
		t.Fatalf("GetBySerial() error = %v", err)
	}
	if d.FirmwareVersion != "0.2.6" {
		t.Errorf("firmware = %q, want 0.2.6", d.FirmwareVersion)
	}
}

func TestFermenterFirmwareAddress(t *testing.T) {
	ts := setupServer(t)

	rec := ts.get(t, "/API/PicoFerm/getFirmwareAddress?uid=FERM100")
	want := "#http://firmware.test/picoferm/picoferm_0_2_6.bin#"
	if rec.Body.String() != want {
		t.Errorf("getFirmwareAddress body = %q, want %q", rec.Body.String(), want)
	}
}

func TestFermenterGetState(t *testing.T) {
	ts := setupServer(t)
	ctx := context.Background()

	// No assigned session: nothing to do
	if _, err := ts.registry.Register(ctx, "FERM-IDLE", device.KindFermenter); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	rec := ts.get(t, "/API/PicoFerm/getState?uid=FERM-IDLE")
	if rec.Body.String() != "#2,4#" {
		t.Errorf("idle getState body = %q, want #2,4#", rec.Body.String())
	}

	// Assigned session in Fermenting: keep sending data
	d, _ := setupFermentingSession(t, ts, "FERM-BUSY")
	rec = ts.get(t, "/API/PicoFerm/getState?uid=FERM-BUSY")
	if rec.Body.String() != "#10,0#" {
		t.Errorf("fermenting getState body = %q, want #10,0#", rec.Body.String())
	}

	got, err := ts.registry.Get(ctx, d.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.State != device.StateSendingData {
		t.Errorf("state = %q, want %q", got.State, device.StateSendingData)
	}

	// Unknown fermenters are told there is nothing to do
	rec = ts.get(t, "/API/PicoFerm/getState?uid=GHOST")
	if rec.Code != http.StatusOK || rec.Body.String() != "#2,4#" {
		t.Errorf("unknown getState = %d %q, want 200 #2,4#", rec.Code, rec.Body.String())
	}
}

func TestFermenterLogDataSet(t *testing.T) {
	ts := setupServer(t)
	_, sess := setupFermentingSession(t, ts, "FERM100")

	q := url.Values{}
	q.Set("uid", "FERM100")
	q.Set("rate", "30")
	q.Set("voltage", "2.9")
	q.Set("data", `[{"s1":64.4,"s2":1},{"s1":66.2,"s2":1.5}]`)

	rec := ts.get(t, "/API/PicoFerm/logDataSet?"+q.Encode())
	if rec.Code != http.StatusOK || rec.Body.String() != "#10,0#" {
		t.Fatalf("logDataSet = %d %q, want 200 #10,0#", rec.Code, rec.Body.String())
	}

	samples, err := ts.store.ReadFermentation(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("ReadFermentation() error = %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("samples = %d, want 2", len(samples))
	}

	// 64.4F is 18C; 1 PSI is ~68.95 mbar
	if math.Abs(samples[0].Temperature-18) > 0.01 {
		t.Errorf("temperature = %f, want ~18", samples[0].Temperature)
	}
	if math.Abs(samples[0].Pressure-68.9476) > 0.001 {
		t.Errorf("pressure = %f, want ~68.95", samples[0].Pressure)
	}
	if samples[0].Voltage != 2.9 || samples[1].Voltage != 2.9 {
		t.Errorf("voltage = %f/%f, want 2.9 on both", samples[0].Voltage, samples[1].Voltage)
	}

	// The fermentation clock is pinned once data arrives
	got, err := ts.sessions.Get(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.BrewingParameters.StartOfFermentation == nil {
		t.Error("StartOfFermentation not pinned after first batch")
	}
}

func TestFermenterLogDataSet_NoSession(t *testing.T) {
	ts := setupServer(t)
	if _, err := ts.registry.Register(context.Background(), "FERM100", device.KindFermenter); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	q := url.Values{}
	q.Set("uid", "FERM100")
	q.Set("rate", "30")
	q.Set("voltage", "2.9")
	q.Set("data", `[{"s1":64.4,"s2":1}]`)

	// Data with no assigned session is dropped, not an error the device sees
	rec := ts.get(t, "/API/PicoFerm/logDataSet?"+q.Encode())
	if rec.Code != http.StatusOK || rec.Body.String() != "#10,0#" {
		t.Errorf("logDataSet = %d %q, want 200 #10,0#", rec.Code, rec.Body.String())
	}
}

func TestFermenterCatchAll(t *testing.T) {
	ts := setupServer(t)

	rec := ts.get(t, "/API/PicoFerm/mysteryEndpoint?uid=FERM100")
	if rec.Code != http.StatusOK || rec.Body.Len() != 0 {
		t.Errorf("catch-all = %d %q, want empty 200", rec.Code, rec.Body.String())
	}
}

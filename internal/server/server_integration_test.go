package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/armmirror/internal/app"
	"github.com/ayusman/armmirror/internal/arm"
	"github.com/ayusman/armmirror/internal/kinematics"
)

func TestAPI_ProfileWorkflow(t *testing.T) {
	a, st := newTestApp(t)
	srv := New(Config{Store: st, App: a})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := ts.Client()

	// 1. Create a profile
	createBody := `{"name": "studio", "smoothing_factor": 0.5}`
	resp, err := client.Post(ts.URL+"/api/profiles", "application/json", bytes.NewBufferString(createBody))
	if err != nil {
		t.Fatalf("POST /api/profiles error = %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}

	var created struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	json.NewDecoder(resp.Body).Decode(&created)
	resp.Body.Close()

	if created.Name != "studio" {
		t.Errorf("created name = %s, want studio", created.Name)
	}

	// 2. Activate it
	resp, _ = client.Post(ts.URL+"/api/profiles/"+created.ID+"/activate", "application/json", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("activate status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	resp.Body.Close()

	if a.ActiveProfileID() != created.ID {
		t.Errorf("ActiveProfileID() = %q, want %q", a.ActiveProfileID(), created.ID)
	}

	// 3. Record through the running app
	resp, _ = client.Post(ts.URL+"/api/profiles/"+created.ID+"/record", "application/json", strings.NewReader(`{"recording": true}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("record status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	resp.Body.Close()
	if !a.IsRecording() {
		t.Error("app should be recording")
	}
	resp, _ = client.Post(ts.URL+"/api/profiles/"+created.ID+"/record", "application/json", strings.NewReader(`{"recording": false}`))
	resp.Body.Close()

	// 4. Delete profile
	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/profiles/"+created.ID, nil)
	resp, _ = client.Do(req)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want %d", resp.StatusCode, http.StatusNoContent)
	}
	resp.Body.Close()

	// 5. Verify deleted
	resp, _ = client.Get(ts.URL + "/api/profiles/" + created.ID)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("GET after delete status = %d, want %d", resp.StatusCode, http.StatusNotFound)
	}
	resp.Body.Close()
}

func TestAPI_SinkReceivesManualMoves(t *testing.T) {
	a, st := newTestApp(t)
	srv := New(Config{Store: st, App: a})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := ts.Client()

	resp, err := client.Post(ts.URL+"/api/sinks", "application/json", strings.NewReader(`{"name": "mem", "kind": "memory"}`))
	if err != nil {
		t.Fatalf("POST /api/sinks error = %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST status = %d, want %d", resp.StatusCode, http.StatusCreated)
	}
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/arm/wrist_pitch", strings.NewReader(`{"degrees": 30}`))
	resp, _ = client.Do(req)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT arm status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	resp.Body.Close()

	if got := a.Arm().State().Get(arm.WristPitch); got != 30 {
		t.Errorf("wrist_pitch = %f, want 30", got)
	}
	if names := a.Sinks().Names(); len(names) != 1 || names[0] != "mem" {
		t.Errorf("running sinks = %v, want [mem]", names)
	}
}

func TestAPI_AnglesWebSocket(t *testing.T) {
	a, st := newTestApp(t)
	srv := New(Config{Store: st, App: a})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/angles"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for srv.hub.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	raw := kinematics.ArmAngles{}.With(kinematics.ShoulderElevation, 90)
	srv.hub.Publish(app.Event{
		Outcome: kinematics.Detected{
			Side:     kinematics.SideLeft,
			Raw:      raw,
			Smoothed: raw,
			Commands: kinematics.Commands{kinematics.ShoulderElevation: 26},
		},
		State: a.Arm().State(),
		At:    time.Now(),
	})
	srv.hub.Publish(app.Event{
		Outcome: kinematics.NotDetected{Reason: kinematics.ReasonLowVisibility},
		State:   a.Arm().State(),
		At:      time.Now(),
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first struct {
		Type     string             `json:"type"`
		Side     string             `json:"side"`
		Raw      map[string]float64 `json:"raw"`
		Commands map[string]float64 `json:"commands"`
	}
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if first.Type != "detected" || first.Side != "left" {
		t.Errorf("unexpected message %+v", first)
	}
	if first.Raw["shoulder_elevation"] != 90 || first.Commands["shoulder_elevation"] != 26 {
		t.Errorf("unexpected angles %+v", first)
	}

	var second struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	}
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if second.Type != "not_detected" || second.Reason != "low_visibility" {
		t.Errorf("unexpected message %+v", second)
	}
}

package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ayusman/armmirror/internal/arm"
	"github.com/ayusman/armmirror/internal/kinematics"
	"github.com/ayusman/armmirror/internal/sink"
	"github.com/ayusman/armmirror/internal/store"
)

// newTestStore creates a new Store with a temporary database for testing.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})

	return s
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("failed to marshal request: %v", err)
		}
		r = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, r)
	if r != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

// fakeController records calls from the profile endpoints.
type fakeController struct {
	store     *store.Store
	active    string
	recording bool
	recorded  int
	activated []string
}

func (c *fakeController) ActivateProfile(id string) error {
	if _, err := c.store.Profiles().GetByID(id); err != nil {
		return err
	}
	c.active = id
	c.activated = append(c.activated, id)
	return nil
}

func (c *fakeController) ActiveProfileID() string { return c.active }

func (c *fakeController) StartRecording() error {
	if c.active == "" {
		return errors.New("no active profile")
	}
	c.recording = true
	return nil
}

func (c *fakeController) StopRecording() int {
	c.recording = false
	return c.recorded
}

func (c *fakeController) IsRecording() bool { return c.recording }

func createProfile(t *testing.T, h http.Handler, name string) profileResponse {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/profiles", map[string]any{"name": name})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create profile: status %d: %s", rec.Code, rec.Body.String())
	}
	var p profileResponse
	decode(t, rec, &p)
	return p
}

func TestProfileHandler_CreateAndGet(t *testing.T) {
	s := newTestStore(t)
	h := NewProfileHandler(s, nil)

	created := createProfile(t, h, "default")
	if created.ID == "" {
		t.Fatal("expected an ID")
	}
	if len(created.Channels) != int(kinematics.NumChannels) {
		t.Errorf("expected %d default channels, got %d", kinematics.NumChannels, len(created.Channels))
	}
	if created.SmoothingFactor != kinematics.DefaultSmoothingFactor {
		t.Errorf("expected default smoothing, got %f", created.SmoothingFactor)
	}

	rec := do(t, h, http.MethodGet, "/api/profiles/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}
	var got profileResponse
	decode(t, rec, &got)
	if got.Name != "default" || len(got.Channels) != int(kinematics.NumChannels) {
		t.Errorf("unexpected profile %+v", got)
	}

	rec = do(t, h, http.MethodGet, "/api/profiles", nil)
	var list listProfilesResponse
	decode(t, rec, &list)
	if len(list.Profiles) != 1 {
		t.Errorf("expected 1 profile, got %d", len(list.Profiles))
	}
}

func TestProfileHandler_CreateValidation(t *testing.T) {
	s := newTestStore(t)
	h := NewProfileHandler(s, nil)

	tests := []struct {
		name string
		body any
	}{
		{"invalid json", "{"},
		{"missing name", map[string]any{}},
		{"smoothing out of range", map[string]any{"name": "x", "smoothing_factor": 1.5}},
		{"bad side", map[string]any{"name": "x", "preferred_side": "up"}},
		{"empty source range", map[string]any{
			"name": "x",
			"channels": []map[string]any{{
				"channel":     "elbow_angle",
				"calibration": map[string]float64{"from_min": 90, "from_max": 90, "to_min": 0, "to_max": 10},
				"enabled":     true,
			}},
		}},
		{"unknown channel", map[string]any{
			"name":     "x",
			"channels": []map[string]any{{"channel": "knee"}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/profiles", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected status %d, got %d: %s", http.StatusBadRequest, rec.Code, rec.Body.String())
			}
		})
	}

	profiles, _ := s.Profiles().List()
	if len(profiles) != 0 {
		t.Errorf("rejected requests stored %d profiles", len(profiles))
	}
}

func TestProfileHandler_UpdateAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctl := &fakeController{store: s}
	h := NewProfileHandler(s, ctl)
	p := createProfile(t, h, "first")
	ctl.active = p.ID

	rec := do(t, h, http.MethodPut, "/api/profiles/"+p.ID, map[string]any{"smoothing_factor": 0.6, "mirror": "none"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	var got profileResponse
	decode(t, rec, &got)
	if got.SmoothingFactor != 0.6 || got.Mirror != kinematics.MirrorNone || got.Name != "first" {
		t.Errorf("unexpected update result %+v", got.Profile)
	}
	if len(ctl.activated) != 1 {
		t.Errorf("updating the active profile should reload it, got %v", ctl.activated)
	}

	rec = do(t, h, http.MethodPut, "/api/profiles/"+p.ID, map[string]any{"smoothing_factor": 0})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d for zero smoothing, got %d", http.StatusBadRequest, rec.Code)
	}

	rec = do(t, h, http.MethodPut, "/api/profiles/missing", map[string]any{"name": "x"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}

	rec = do(t, h, http.MethodDelete, "/api/profiles/"+p.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}
	rec = do(t, h, http.MethodDelete, "/api/profiles/"+p.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestProfileHandler_Channels(t *testing.T) {
	s := newTestStore(t)
	h := NewProfileHandler(s, nil)
	p := createProfile(t, h, "chan")

	body := map[string]any{"channels": []map[string]any{{
		"channel":     "shoulder_elevation",
		"calibration": map[string]float64{"from_min": 10, "from_max": 120, "to_min": -10, "to_max": 50},
		"enabled":     false,
	}}}
	rec := do(t, h, http.MethodPut, "/api/profiles/"+p.ID+"/channels", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}

	chans, err := s.Profiles().Channels(p.ID)
	if err != nil {
		t.Fatalf("Channels() error = %v", err)
	}
	if chans[0].Channel != kinematics.ShoulderElevation || chans[0].Enabled || chans[0].Calibration.FromMin != 10 {
		t.Errorf("channel not saved: %+v", chans[0])
	}

	rec = do(t, h, http.MethodPut, "/api/profiles/missing/channels", body)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestProfileHandler_Activate(t *testing.T) {
	s := newTestStore(t)

	t.Run("store only", func(t *testing.T) {
		h := NewProfileHandler(s, nil)
		p := createProfile(t, h, "stored")

		rec := do(t, h, http.MethodPost, "/api/profiles/"+p.ID+"/activate", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		active, err := s.Profiles().Active()
		if err != nil || active.ID != p.ID {
			t.Errorf("Active() = %v, %v", active, err)
		}
	})

	t.Run("with controller", func(t *testing.T) {
		ctl := &fakeController{store: s}
		h := NewProfileHandler(s, ctl)
		p := createProfile(t, h, "running")

		rec := do(t, h, http.MethodPost, "/api/profiles/"+p.ID+"/activate", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		if ctl.active != p.ID {
			t.Errorf("controller active = %q, want %q", ctl.active, p.ID)
		}

		rec = do(t, h, http.MethodPost, "/api/profiles/missing/activate", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
		rec = do(t, h, http.MethodGet, "/api/profiles/"+p.ID+"/activate", nil)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
		}
	})
}

func sampleJSON(elevation float64) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"angles":{"shoulder_elevation":%g},"timestamp":%d}`, elevation, int64(elevation)))
}

func TestSamplesHandler(t *testing.T) {
	s := newTestStore(t)
	h := NewProfileHandler(s, nil)
	p := createProfile(t, h, "samples")
	path := "/api/profiles/" + p.ID + "/samples"

	rec := do(t, h, http.MethodPost, path, map[string]any{"samples": []json.RawMessage{sampleJSON(10), sampleJSON(20)}})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec = do(t, h, http.MethodPost, path, map[string]any{"samples": []json.RawMessage{json.RawMessage(`{"angles":{"knee":1}}`)}})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d for unknown channel, got %d", http.StatusBadRequest, rec.Code)
	}
	rec = do(t, h, http.MethodPost, path, map[string]any{"samples": []json.RawMessage{}})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d for empty samples, got %d", http.StatusBadRequest, rec.Code)
	}
	rec = do(t, h, http.MethodPost, "/api/profiles/missing/samples", map[string]any{"samples": []json.RawMessage{sampleJSON(1)}})
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}

	rec = do(t, h, http.MethodGet, path, nil)
	var list listSamplesResponse
	decode(t, rec, &list)
	if len(list.Samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(list.Samples))
	}
	if list.Samples[1].SampleIndex != 1 || list.Samples[1].ProfileID != p.ID {
		t.Errorf("unexpected sample %+v", list.Samples[1])
	}

	rec = do(t, h, http.MethodDelete, path, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}
	got, _ := s.Profiles().GetByID(p.ID)
	if got.Samples != 0 {
		t.Errorf("sample count = %d after delete, want 0", got.Samples)
	}
}

func TestSamplesHandler_Record(t *testing.T) {
	s := newTestStore(t)

	h := NewProfileHandler(s, nil)
	p := createProfile(t, h, "rec")
	rec := do(t, h, http.MethodPost, "/api/profiles/"+p.ID+"/record", map[string]bool{"recording": true})
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status %d without a controller, got %d", http.StatusServiceUnavailable, rec.Code)
	}

	ctl := &fakeController{store: s}
	h = NewProfileHandler(s, ctl)
	rec = do(t, h, http.MethodPost, "/api/profiles/"+p.ID+"/record", map[string]bool{"recording": true})
	if rec.Code != http.StatusConflict {
		t.Errorf("expected status %d for inactive profile, got %d", http.StatusConflict, rec.Code)
	}

	ctl.active = p.ID
	rec = do(t, h, http.MethodPost, "/api/profiles/"+p.ID+"/record", map[string]bool{"recording": true})
	if rec.Code != http.StatusOK || !ctl.recording {
		t.Fatalf("start recording: status %d, recording %v", rec.Code, ctl.recording)
	}

	ctl.recorded = 42
	rec = do(t, h, http.MethodPost, "/api/profiles/"+p.ID+"/record", map[string]bool{"recording": false})
	var resp recordResponse
	decode(t, rec, &resp)
	if resp.Recording || resp.Recorded != 42 {
		t.Errorf("unexpected stop response %+v", resp)
	}
}

func TestTrainHandler(t *testing.T) {
	s := newTestStore(t)
	ctl := &fakeController{store: s}
	h := NewProfileHandler(s, ctl)
	p := createProfile(t, h, "train")
	ctl.active = p.ID

	rec := do(t, h, http.MethodPost, "/api/profiles/"+p.ID+"/train", nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected status %d without samples, got %d", http.StatusUnprocessableEntity, rec.Code)
	}

	samples := make([]json.RawMessage, 0, 21)
	for i := 0; i <= 20; i++ {
		samples = append(samples, sampleJSON(float64(20+i*5)))
	}
	if err := s.Samples().Append(p.ID, samples); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	rec = do(t, h, http.MethodPost, "/api/profiles/"+p.ID+"/train", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	var resp trainResponse
	decode(t, rec, &resp)
	if resp.Samples != 21 {
		t.Errorf("expected 21 samples, got %d", resp.Samples)
	}
	if len(resp.Skipped) != int(kinematics.NumChannels)-1 {
		t.Errorf("expected every unmeasured channel skipped, got %v", resp.Skipped)
	}
	if _, ok := resp.Skipped[kinematics.ShoulderElevation]; ok {
		t.Error("shoulder elevation should have been fitted")
	}

	chans, _ := s.Profiles().Channels(p.ID)
	shoulder := chans[kinematics.ShoulderElevation].Calibration
	if shoulder.FromMax < 20 || shoulder.FromMax > 35 || shoulder.FromMin < 105 || shoulder.FromMin > 120 {
		t.Errorf("fitted range %v..%v outside the recorded 120..20", shoulder.FromMin, shoulder.FromMax)
	}
	if shoulder.ToMin != -10 || shoulder.ToMax != 50 {
		t.Errorf("target range changed to %v..%v", shoulder.ToMin, shoulder.ToMax)
	}
	if len(ctl.activated) != 1 {
		t.Errorf("training the active profile should reload it, got %v", ctl.activated)
	}

	rec = do(t, h, http.MethodPost, "/api/profiles/missing/train", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestArmHandler(t *testing.T) {
	a := arm.New()
	h := NewArmHandler(a)

	rec := do(t, h, http.MethodPut, "/api/arm/shoulder", map[string]float64{"degrees": 100})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rec.Code, rec.Body.String())
	}
	var joint jointResponse
	decode(t, rec, &joint)
	if joint.Degrees != 50 {
		t.Errorf("expected shoulder clamped to 50, got %f", joint.Degrees)
	}

	rec = do(t, h, http.MethodPost, "/api/arm/elbow/step", map[string]int{"direction": -1})
	decode(t, rec, &joint)
	if joint.Degrees != -arm.StepDegrees {
		t.Errorf("expected elbow at %f, got %f", -arm.StepDegrees, joint.Degrees)
	}

	rec = do(t, h, http.MethodGet, "/api/arm", nil)
	var state armResponse
	decode(t, rec, &state)
	if state.Joints[arm.Shoulder] != 50 || state.Source != arm.SourceManual {
		t.Errorf("unexpected state %+v", state.State)
	}
	if l := state.Limits[arm.Gripper]; l.Min != -10 || l.Max != 36 {
		t.Errorf("unexpected gripper limit %+v", l)
	}

	tests := []struct {
		method string
		path   string
		body   any
		want   int
	}{
		{http.MethodPut, "/api/arm/tail", map[string]float64{"degrees": 1}, http.StatusNotFound},
		{http.MethodPut, "/api/arm/shoulder", map[string]any{}, http.StatusBadRequest},
		{http.MethodPost, "/api/arm/shoulder/step", map[string]int{"direction": 0}, http.StatusBadRequest},
		{http.MethodPost, "/api/arm/shoulder/spin", nil, http.StatusNotFound},
		{http.MethodDelete, "/api/arm/shoulder", nil, http.StatusMethodNotAllowed},
		{http.MethodPost, "/api/arm", nil, http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		rec := do(t, h, tt.method, tt.path, tt.body)
		if rec.Code != tt.want {
			t.Errorf("%s %s: expected status %d, got %d", tt.method, tt.path, tt.want, rec.Code)
		}
	}

	rec = do(t, h, http.MethodPost, "/api/arm/reset", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if a.State().Get(arm.Shoulder) != 0 {
		t.Error("reset should zero every joint")
	}
}

// testRegistry builds sinks the way the application does, without plugins.
type testRegistry struct {
	d *sink.Dispatcher
}

func (r *testRegistry) AddSink(rec *store.SinkRecord) error {
	raw, err := rec.ConfigMap()
	if err != nil {
		return err
	}
	s, err := sink.FromConfig(rec.Kind, rec.Name, raw, sink.Deps{})
	if err != nil {
		return err
	}
	r.d.Add(s)
	return nil
}

func (r *testRegistry) Sinks() *sink.Dispatcher { return r.d }

func TestSinkHandler(t *testing.T) {
	s := newTestStore(t)
	reg := &testRegistry{d: sink.NewDispatcher(0)}
	h := NewSinkHandler(s, reg)

	rec := do(t, h, http.MethodPost, "/api/sinks", map[string]any{"name": "preview", "kind": "memory"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d: %s", http.StatusCreated, rec.Code, rec.Body.String())
	}
	var created sinkResponse
	decode(t, rec, &created)
	if !created.Running || !created.Enabled {
		t.Errorf("new sink should be enabled and running: %+v", created)
	}

	rec = do(t, h, http.MethodPost, "/api/sinks", map[string]any{"name": "pigeon", "kind": "carrier"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d for unknown kind, got %d", http.StatusBadRequest, rec.Code)
	}
	rec = do(t, h, http.MethodPost, "/api/sinks", map[string]any{"name": "preview", "kind": "memory"})
	if rec.Code != http.StatusConflict {
		t.Errorf("expected status %d for duplicate name, got %d", http.StatusConflict, rec.Code)
	}

	rec = do(t, h, http.MethodGet, "/api/sinks", nil)
	var list listSinksResponse
	decode(t, rec, &list)
	if len(list.Sinks) != 1 {
		t.Fatalf("expected 1 sink, got %d", len(list.Sinks))
	}

	rec = do(t, h, http.MethodPut, "/api/sinks/"+created.ID, map[string]bool{"enabled": false})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	if len(reg.d.Names()) != 0 {
		t.Errorf("disabled sink still running: %v", reg.d.Names())
	}

	rec = do(t, h, http.MethodDelete, "/api/sinks/"+created.ID, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}
	rec = do(t, h, http.MethodDelete, "/api/sinks/"+created.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestSinkHandler_Ports(t *testing.T) {
	h := NewSinkHandler(newTestStore(t), nil)
	h.ports = func() ([]sink.PortInfo, error) {
		return []sink.PortInfo{{Name: "/dev/ttyUSB0", IsUSB: true, VID: "2341"}}, nil
	}

	rec := do(t, h, http.MethodGet, "/api/sinks/ports", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var resp struct {
		Ports []sink.PortInfo `json:"ports"`
	}
	decode(t, rec, &resp)
	if len(resp.Ports) != 1 || resp.Ports[0].VID != "2341" {
		t.Errorf("unexpected ports %+v", resp.Ports)
	}
}

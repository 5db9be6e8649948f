package ezviz

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

type fakeCloud struct {
	t      *testing.T
	server *httptest.Server

	mu       sync.Mutex
	requests []*http.Request
	forms    []map[string]string

	loginCode  int
	redirectTo string
	pages      []string
	algoBody   string
	switchBody string
	ptzCode    int
}

func newFakeCloud(t *testing.T) *fakeCloud {
	f := &fakeCloud{
		t:          t,
		loginCode:  200,
		pages:      []string{pageOne},
		algoBody:   `{"resultCode":"0","algorithmConfig":{"algorithmList":[{"type":"0","value":"4"}]}}`,
		switchBody: `{"resultCode":"0"}`,
		ptzCode:    200,
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeCloud) handle(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		f.t.Errorf("ParseForm: %v", err)
	}
	form := map[string]string{}
	for k := range r.PostForm {
		form[k] = r.PostForm.Get(k)
	}

	f.mu.Lock()
	f.requests = append(f.requests, r)
	f.forms = append(f.forms, form)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.URL.Path == loginPath:
		if f.loginCode == codeAreaRedirect {
			f.loginCode = 200
			io.WriteString(w, `{"meta":{"code":1100},"loginArea":{"apiDomain":"`+f.redirectTo+`"}}`)
			return
		}
		if f.loginCode != 200 {
			io.WriteString(w, `{"meta":{"code":`+strconv.Itoa(f.loginCode)+`,"message":"bad"}}`)
			return
		}
		io.WriteString(w, `{"meta":{"code":200},"loginSession":{"sessionId":"sess-1"}}`)
	case r.URL.Path == pagelistPath:
		idx := 0
		if r.URL.Query().Get("offset") == "30" {
			idx = 1
		}
		io.WriteString(w, f.pages[idx])
	case r.URL.Path == algoPath:
		io.WriteString(w, f.algoBody)
	case r.URL.Path == switchPath:
		io.WriteString(w, f.switchBody)
	case strings.HasSuffix(r.URL.Path, "/ptzControl"):
		io.WriteString(w, `{"meta":{"code":`+strconv.Itoa(f.ptzCode)+`}}`)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeCloud) calls(path string) []map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []map[string]string
	for i, r := range f.requests {
		if r.URL.Path == path {
			out = append(out, f.forms[i])
		}
	}
	return out
}

const pageOne = `{
  "meta": {"code": 200},
  "page": {"hasNext": false},
  "deviceInfos": [
    {"deviceSerial": "S1", "name": "Porch", "status": 1, "deviceCategory": "IPC", "deviceSubCategory": "C6N"},
    {"deviceSerial": "S2", "name": "Garage", "status": 2, "deviceCategory": "IPC", "deviceSubCategory": "C3W"},
    {"deviceSerial": "H1", "name": "Hub", "status": 1, "deviceCategory": "COMMON"}
  ],
  "CONNECTION": {"S1": {"localIp": "10.0.0.5", "localRtspPort": 0}, "S2": {"localIp": "10.0.0.6", "localRtspPort": 8554}},
  "STATUS": {"S1": {"globalStatus": 1, "isEncrypt": 0, "alarmSoundMode": 1}, "S2": {"globalStatus": 0, "isEncrypt": 1, "alarmSoundMode": 7}},
  "SWITCH": {"S1": [{"type": 7, "enable": true}, {"type": 22, "enable": true}, {"type": 10, "enable": false}, {"type": 3, "enable": true}, {"type": 25, "enable": true}]}
}`

func newTestClient(t *testing.T, f *fakeCloud) *Client {
	t.Helper()
	return New(Config{Username: "u", Password: "pw", BaseURL: f.server.URL}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func loggedIn(t *testing.T, f *fakeCloud) *Client {
	t.Helper()
	c := newTestClient(t, f)
	if err := c.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	return c
}

func TestLoginSendsHashedPassword(t *testing.T) {
	f := newFakeCloud(t)
	loggedIn(t, f)

	logins := f.calls(loginPath)
	if len(logins) != 1 {
		t.Fatalf("login calls = %d, want 1", len(logins))
	}
	sum := md5.Sum([]byte("pw"))
	if logins[0]["password"] != hex.EncodeToString(sum[:]) {
		t.Errorf("password not md5 hashed: %q", logins[0]["password"])
	}
	if logins[0]["account"] != "u" {
		t.Errorf("account = %q", logins[0]["account"])
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	f := newFakeCloud(t)
	f.loginCode = codeBadPassword

	err := newTestClient(t, f).Login(context.Background())
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
	var e *Error
	if !errors.As(err, &e) || e.Code != codeBadPassword || e.Op != "login" {
		t.Errorf("unexpected error detail: %+v", e)
	}
}

func TestLoginAreaRedirect(t *testing.T) {
	other := newFakeCloud(t)
	f := newFakeCloud(t)
	f.loginCode = codeAreaRedirect
	f.redirectTo = other.server.URL

	c := newTestClient(t, f)
	if err := c.Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if c.BaseURL() != other.server.URL {
		t.Errorf("BaseURL = %q, want redirect target", c.BaseURL())
	}
	if len(other.calls(loginPath)) != 1 {
		t.Error("second login must go to the redirected endpoint")
	}
}

func TestCallsRequireLogin(t *testing.T) {
	f := newFakeCloud(t)
	_, err := newTestClient(t, f).LoadCameras(context.Background())
	if !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("err = %v, want ErrNotLoggedIn", err)
	}
}

func TestLoadCameras(t *testing.T) {
	f := newFakeCloud(t)
	cams, err := loggedIn(t, f).LoadCameras(context.Background())
	if err != nil {
		t.Fatalf("LoadCameras: %v", err)
	}
	if len(cams) != 2 {
		t.Fatalf("got %d cameras, want 2 (hub filtered)", len(cams))
	}

	s1 := cams[0]
	want := CameraInfo{
		Serial:               "S1",
		Name:                 "Porch",
		Status:               true,
		DeviceSubCategory:    "C6N",
		LocalIP:              "10.0.0.5",
		LocalRTSPPort:        0,
		Privacy:              true,
		Audio:                true,
		IRLed:                false,
		StateLed:             true,
		FollowMove:           true,
		AlarmNotify:          true,
		AlarmSoundMode:       "Intensive",
		Encrypted:            false,
		DetectionSensibility: "4",
	}
	if s1 != want {
		t.Errorf("S1 =\n%+v\nwant\n%+v", s1, want)
	}

	s2 := cams[1]
	if s2.Status || s2.LocalRTSPPort != 8554 || !s2.Encrypted || s2.AlarmSoundMode != "Unknown" {
		t.Errorf("S2 = %+v", s2)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r.URL.Path == pagelistPath && r.Header.Get("sessionId") != "sess-1" {
			t.Error("pagelist request missing session header")
		}
	}
}

func TestLoadCamerasFollowsPages(t *testing.T) {
	f := newFakeCloud(t)
	f.pages = []string{
		`{"meta":{"code":200},"page":{"hasNext":true},"deviceInfos":[{"deviceSerial":"A","deviceCategory":"IPC","status":1}]}`,
		`{"meta":{"code":200},"page":{"hasNext":false},"deviceInfos":[{"deviceSerial":"B","deviceCategory":"IPC","status":1}]}`,
	}
	cams, err := loggedIn(t, f).LoadCameras(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(cams) != 2 || cams[0].Serial != "A" || cams[1].Serial != "B" {
		t.Errorf("cams = %+v", cams)
	}
}

func TestCameraStatusNotFound(t *testing.T) {
	f := newFakeCloud(t)
	_, err := loggedIn(t, f).CameraStatus(context.Background(), "NOPE")
	if !errors.Is(err, ErrCameraNotFound) {
		t.Fatalf("err = %v, want ErrCameraNotFound", err)
	}
}

func TestDetectionSensibilityUnsupported(t *testing.T) {
	f := newFakeCloud(t)
	f.algoBody = `{"resultCode":-6,"resultDes":"not supported"}`

	got, err := loggedIn(t, f).DetectionSensibility(context.Background(), "S1")
	if err != nil {
		t.Fatal(err)
	}
	if got != "Unknown" {
		t.Errorf("sensibility = %q, want Unknown", got)
	}
}

func TestCameraMoveSendsStartThenStop(t *testing.T) {
	f := newFakeCloud(t)
	cam := NewCamera(loggedIn(t, f), "S1")

	if err := cam.Move(context.Background(), "left", 5); err != nil {
		t.Fatalf("Move: %v", err)
	}

	calls := f.calls("/v3/devices/S1/ptzControl")
	if len(calls) != 2 {
		t.Fatalf("ptz calls = %d, want 2", len(calls))
	}
	if calls[0]["action"] != ActionStart || calls[1]["action"] != ActionStop {
		t.Errorf("actions = %s,%s", calls[0]["action"], calls[1]["action"])
	}
	if calls[0]["command"] != "LEFT" || calls[0]["speed"] != "5" || calls[0]["channelNo"] != "1" {
		t.Errorf("ptz form = %v", calls[0])
	}
	if calls[0]["uuid"] == "" || calls[0]["uuid"] == calls[1]["uuid"] {
		t.Error("each ptz request needs its own uuid")
	}
}

func TestCameraMoveRejectsUnknownDirection(t *testing.T) {
	f := newFakeCloud(t)
	err := NewCamera(loggedIn(t, f), "S1").Move(context.Background(), "sideways", 5)
	if !errors.Is(err, ErrInvalidDirection) {
		t.Fatalf("err = %v, want ErrInvalidDirection", err)
	}
	if len(f.calls("/v3/devices/S1/ptzControl")) != 0 {
		t.Error("no request expected for invalid direction")
	}
}

func TestCameraSwitches(t *testing.T) {
	tests := []struct {
		name   string
		call   func(*Camera) error
		typ    string
		enable string
	}{
		{"audio on", func(c *Camera) error { return c.SwitchDeviceAudio(context.Background(), true) }, "22", "1"},
		{"ir off", func(c *Camera) error { return c.SwitchDeviceIRLed(context.Background(), false) }, "10", "0"},
		{"state on", func(c *Camera) error { return c.SwitchDeviceStateLed(context.Background(), true) }, "3", "1"},
		{"privacy off", func(c *Camera) error { return c.SwitchPrivacyMode(context.Background(), false) }, "7", "0"},
		{"follow move on", func(c *Camera) error { return c.SwitchFollowMove(context.Background(), true) }, "25", "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeCloud(t)
			if err := tt.call(NewCamera(loggedIn(t, f), "S1")); err != nil {
				t.Fatal(err)
			}
			calls := f.calls(switchPath)
			if len(calls) != 1 {
				t.Fatalf("switch calls = %d, want 1", len(calls))
			}
			if calls[0]["type"] != tt.typ || calls[0]["enable"] != tt.enable || calls[0]["serial"] != "S1" {
				t.Errorf("switch form = %v", calls[0])
			}
		})
	}
}

func TestSwitchStatusVendorError(t *testing.T) {
	f := newFakeCloud(t)
	f.switchBody = `{"resultCode":"2003","resultDes":"device offline"}`

	err := loggedIn(t, f).SwitchStatus(context.Background(), "S1", SwitchAudio, true)
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if e.Code != 2003 || e.Message != "device offline" {
		t.Errorf("error = %+v", e)
	}
}

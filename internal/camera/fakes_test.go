package camera

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/smazurov/ezvizbridge/internal/executor"
	"github.com/smazurov/ezvizbridge/internal/ezviz"
)

type deviceCall struct {
	method string
	enable bool
	dir    string
	speed  int
}

type fakeDevice struct {
	mu     sync.Mutex
	calls  []deviceCall
	status ezviz.CameraInfo
	err    error
}

func (d *fakeDevice) record(c deviceCall) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, c)
	return d.err
}

func (d *fakeDevice) Calls() []deviceCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]deviceCall(nil), d.calls...)
}

func (d *fakeDevice) Status(context.Context) (ezviz.CameraInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return ezviz.CameraInfo{}, d.err
	}
	return d.status, nil
}

func (d *fakeDevice) Move(_ context.Context, dir string, speed int) error {
	return d.record(deviceCall{method: "Move", dir: dir, speed: speed})
}

func (d *fakeDevice) SwitchDeviceAudio(_ context.Context, enable bool) error {
	return d.record(deviceCall{method: "SwitchDeviceAudio", enable: enable})
}

func (d *fakeDevice) SwitchDeviceIRLed(_ context.Context, enable bool) error {
	return d.record(deviceCall{method: "SwitchDeviceIRLed", enable: enable})
}

func (d *fakeDevice) SwitchDeviceStateLed(_ context.Context, enable bool) error {
	return d.record(deviceCall{method: "SwitchDeviceStateLed", enable: enable})
}

func (d *fakeDevice) SwitchPrivacyMode(_ context.Context, enable bool) error {
	return d.record(deviceCall{method: "SwitchPrivacyMode", enable: enable})
}

func (d *fakeDevice) SwitchFollowMove(_ context.Context, enable bool) error {
	return d.record(deviceCall{method: "SwitchFollowMove", enable: enable})
}

type fakeClient struct {
	loginErr error
	loadErr  error
	cameras  []ezviz.CameraInfo
	loaded   bool
}

func (c *fakeClient) Login(context.Context) error { return c.loginErr }

func (c *fakeClient) LoadCameras(context.Context) ([]ezviz.CameraInfo, error) {
	c.loaded = true
	return c.cameras, c.loadErr
}

type fakeGrabber struct {
	mu     sync.Mutex
	inputs []string
	image  []byte
	err    error
}

func (g *fakeGrabber) GetImage(_ context.Context, input, format string) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inputs = append(g.inputs, input+"|"+format)
	return g.image, g.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestPool(t *testing.T) *executor.Pool {
	t.Helper()
	p := executor.NewPool(2, quietLogger())
	p.Start()
	t.Cleanup(p.Stop)
	return p
}

package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/smazurov/ezvizbridge/internal/updater"
)

type stubUpdater struct {
	enabled  bool
	checkErr error
	applied  bool
}

func (u *stubUpdater) CheckForUpdate(context.Context) (*updater.UpdateInfo, error) {
	if u.checkErr != nil {
		return nil, u.checkErr
	}
	return &updater.UpdateInfo{CurrentVersion: "v1.0.0", LatestVersion: "v1.1.0", UpdateAvailable: true}, nil
}

func (u *stubUpdater) ApplyUpdate(context.Context) error {
	if !u.enabled {
		return &updater.Error{Code: updater.ErrCodeDisabled, Message: "read-only"}
	}
	u.applied = true
	return nil
}

func (u *stubUpdater) Rollback(context.Context) error {
	return &updater.Error{Code: updater.ErrCodeNoBackup, Message: "no backup available"}
}

func (u *stubUpdater) GetStatus(context.Context) *updater.Status {
	return &updater.Status{State: updater.StateIdle, CurrentVersion: "v1.0.0"}
}

func (u *stubUpdater) IsEnabled() bool        { return u.enabled }
func (u *stubUpdater) DisabledReason() string { return "read-only" }

func TestUpdateRoutes(t *testing.T) {
	svc := &stubUpdater{enabled: true}
	f := newFixture(t, Options{UpdateService: svc})

	resp := f.do(t, http.MethodPost, "/api/update/check", "", nil)
	expectStatus(t, resp, http.StatusOK)
	if info := decode[updater.UpdateInfo](t, resp); !info.UpdateAvailable || info.LatestVersion != "v1.1.0" {
		t.Errorf("check = %+v", info)
	}

	resp = f.do(t, http.MethodPost, "/api/update/apply", "", nil)
	expectStatus(t, resp, http.StatusOK)
	if !svc.applied {
		t.Error("apply did not reach the service")
	}

	resp = f.do(t, http.MethodPost, "/api/update/rollback", "", nil)
	expectStatus(t, resp, http.StatusNotFound)
}

func TestUpdateRoutesWhenDisabled(t *testing.T) {
	svc := &stubUpdater{
		checkErr: &updater.Error{Code: updater.ErrCodeDisabled, Message: "read-only"},
	}
	f := newFixture(t, Options{UpdateService: svc})

	resp := f.do(t, http.MethodGet, "/api/update/status", "", nil)
	expectStatus(t, resp, http.StatusOK)
	if st := decode[updater.Status](t, resp); st.Error != "read-only" {
		t.Errorf("status = %+v, want disabled reason", st)
	}

	resp = f.do(t, http.MethodPost, "/api/update/check", "", nil)
	expectStatus(t, resp, http.StatusServiceUnavailable)
	resp = f.do(t, http.MethodPost, "/api/update/apply", "", nil)
	expectStatus(t, resp, http.StatusServiceUnavailable)
}

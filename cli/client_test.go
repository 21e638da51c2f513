package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := newClient(srv.URL+"/", "tok", zerolog.Nop())
	c.retry.wait = func(context.Context, time.Duration) error { return nil }
	return c
}

func TestGetRetriesServerErrors(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/status", r.URL.Path)
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"device_owner": true, "authority": "device_owner"})
	})

	var status statusView
	require.NoError(t, c.get(context.Background(), "/v1/status", &status))
	require.True(t, status.DeviceOwner)
	require.Equal(t, "device_owner", status.Authority)
	require.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestCommandsAreNotRetried(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"down","request_id":"r1"}`))
	})

	_, err := c.command(context.Background(), "/v1/commands/lock", nil)
	var apiErr *apiError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
	require.Equal(t, "down", apiErr.Message)
	require.Equal(t, "r1", apiErr.RequestID)
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestCommandDecodesDeniedOutcome(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "high", body["quality"])
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"outcome":{"op":"set_password_quality","outcome":"denied","reason":"not device/profile owner"},"request_id":"r2"}`))
	})

	resp, err := c.command(context.Background(), "/v1/commands/password-quality", map[string]string{"quality": "high"})
	require.NoError(t, err)
	require.Equal(t, "denied", resp.Outcome.Outcome)
	require.Equal(t, "not device/profile owner", resp.Outcome.Reason)

	color.NoColor = true
	var buf bytes.Buffer
	renderCommand(&buf, resp)
	require.Equal(t, "set_password_quality: denied (not device/profile owner)\n", buf.String())
}

func TestRenderStatus(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	renderStatus(&buf, statusView{
		Identity:             "com.mdm.dpc/.DeviceAdminReceiver",
		ProfileOwner:         true,
		Authority:            "profile_owner",
		AdminState:           "inactive",
		CanRequestActivation: true,
		Issues:               []string{"admin component is not active"},
	})
	out := buf.String()
	require.Contains(t, out, "Device Owner:    No")
	require.Contains(t, out, "Profile Owner:   Yes")
	require.Contains(t, out, "dpc activate")
	require.Contains(t, out, "  - admin component is not active")
}

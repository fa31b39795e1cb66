package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"absencetracker/internal/attendance"
	"absencetracker/internal/auth"
)

func TestLoginAndBearer(t *testing.T) {
	var gotAuth []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = append(gotAuth, r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/login":
			var creds auth.Credentials
			require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
			if creds.Username != "alice" || creds.Password != "pw" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"invalid credentials"}`))
				return
			}
			_, _ = w.Write([]byte(`{"token":"tok"}`))
		case "/absents":
			_, _ = w.Write([]byte(`[]`))
		}
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	ctx := context.Background()

	token, err := c.Login(ctx, auth.Credentials{Username: "alice", Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "tok", token)

	_, err = c.Login(ctx, auth.Credentials{Username: "alice", Password: "nope"})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.Code)
	assert.Equal(t, "invalid credentials", se.Message)

	c.SetBearer(token)
	_, err = c.List(ctx)
	require.NoError(t, err)
	c.ClearBearer()
	_, err = c.List(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"", "", "Bearer tok", ""}, gotAuth)
}

func TestRecordRoutes(t *testing.T) {
	type call struct{ method, path string }
	var calls []call
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, call{r.Method, r.URL.Path})
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/absents":
			_, _ = w.Write([]byte(`[{"_id":"r1","id":"l1","user":{"_id":"u1","name":"Alice"},"name":"Alice",
				"day":"Monday","date":"March 04 2024","type":"Medical","from":"March 04 2024 09:00","to":"March 04 2024 10:00"}]`))
		case r.Method == http.MethodPost && r.URL.Path == "/absents/posts":
			var rec attendance.Record
			require.NoError(t, json.NewDecoder(r.Body).Decode(&rec))
			rec.RemoteID = "r2"
			w.WriteHeader(http.StatusCreated)
			require.NoError(t, json.NewEncoder(w).Encode(rec))
		case r.Method == http.MethodPut && r.URL.Path == "/absents/r1":
			var rec attendance.Record
			require.NoError(t, json.NewDecoder(r.Body).Decode(&rec))
			require.NoError(t, json.NewEncoder(w).Encode(rec))
		case r.Method == http.MethodDelete && r.URL.Path == "/absents/r1":
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, WithLimiter(rate.NewLimiter(rate.Inf, 1)))
	ctx := context.Background()

	recs, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "r1", recs[0].RemoteID)
	assert.Equal(t, "u1", recs[0].User.ID)

	created, err := c.Create(ctx, attendance.Record{ID: "l2", User: attendance.UserRef{ID: "u1"}, Day: attendance.Sunday, Type: attendance.Permission})
	require.NoError(t, err)
	assert.Equal(t, "r2", created.RemoteID)
	assert.Equal(t, "l2", created.ID)

	updated, err := c.Update(ctx, "r1", recs[0])
	require.NoError(t, err)
	assert.Equal(t, attendance.Medical, updated.Type)

	require.NoError(t, c.Delete(ctx, "r1"))

	err = c.Delete(ctx, "missing")
	assert.ErrorIs(t, err, attendance.ErrNotFound)

	assert.Equal(t, []call{
		{http.MethodGet, "/absents"},
		{http.MethodPost, "/absents/posts"},
		{http.MethodPut, "/absents/r1"},
		{http.MethodDelete, "/absents/r1"},
		{http.MethodDelete, "/absents/missing"},
	}, calls)
}

func TestMapRecordError(t *testing.T) {
	cases := []struct {
		name string
		code int
		want error
	}{
		{"validation", http.StatusBadRequest, attendance.ErrWriteRejected},
		{"forbidden", http.StatusForbidden, attendance.ErrWriteRejected},
		{"missing", http.StatusNotFound, attendance.ErrNotFound},
		{"server", http.StatusBadGateway, attendance.ErrSyncUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := mapRecordError(&StatusError{Op: "create", Code: tc.code})
			assert.ErrorIs(t, err, tc.want)
		})
	}

	t.Run("transport", func(t *testing.T) {
		c := New("http://127.0.0.1:1", 200*time.Millisecond)
		_, err := c.List(context.Background())
		assert.ErrorIs(t, err, attendance.ErrSyncUnavailable)
	})
}

func TestMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	m := NewMetrics(prometheus.NewRegistry())
	c := New(srv.URL, time.Second, WithMetrics(m))
	ctx := context.Background()

	_, err := c.List(ctx)
	require.NoError(t, err)
	_, err = c.List(ctx)
	require.NoError(t, err)
	assert.ErrorIs(t, c.Delete(ctx, "r1"), attendance.ErrWriteRejected)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("list", "2xx")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("delete", "4xx")))
}

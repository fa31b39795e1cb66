package grid

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"absencetracker/internal/apiclient"
	"absencetracker/internal/attendance"
	"absencetracker/internal/auth"
	"absencetracker/internal/session"
)

// stubAuthority serves the REST contract from memory and counts calls.
type stubAuthority struct {
	t *testing.T

	mu      sync.Mutex
	records []attendance.Record
	seq     int
	calls   map[string]int
	deleted []string
	bearers []string
}

func (s *stubAuthority) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		var creds auth.Credentials
		require.NoError(s.t, json.NewDecoder(r.Body).Decode(&creds))
		if creds.Username != "alice" || creds.Password != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid credentials"}`))
			return
		}
		token, _, err := auth.Issue(auth.Identity{ID: "u1", Username: "alice", Name: "Alice"}, "stub", "k", time.Hour)
		require.NoError(s.t, err)
		_ = json.NewEncoder(w).Encode(map[string]string{"token": token})
	})
	mux.HandleFunc("GET /absents", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.count(r, "list")
		_ = json.NewEncoder(w).Encode(s.records)
	})
	mux.HandleFunc("POST /absents/posts", func(w http.ResponseWriter, r *http.Request) {
		var rec attendance.Record
		require.NoError(s.t, json.NewDecoder(r.Body).Decode(&rec))
		s.mu.Lock()
		defer s.mu.Unlock()
		s.count(r, "create")
		s.seq++
		rec.RemoteID = fmt.Sprintf("abs%d", s.seq)
		s.records = append(s.records, rec)
		_ = json.NewEncoder(w).Encode(rec)
	})
	mux.HandleFunc("DELETE /absents/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.count(r, "delete")
		id := r.PathValue("id")
		s.deleted = append(s.deleted, id)
		for i, rec := range s.records {
			if rec.RemoteID == id {
				s.records = append(s.records[:i], s.records[i+1:]...)
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	})
	return mux
}

func (s *stubAuthority) count(r *http.Request, op string) {
	s.calls[op]++
	s.bearers = append(s.bearers, strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
}

func TestAliceAddsSavesAndDeletesARow(t *testing.T) {
	ctx := context.Background()
	stub := &stubAuthority{
		t:     t,
		calls: map[string]int{},
		records: []attendance.Record{{
			ID: "other", RemoteID: "abs0", User: attendance.UserRef{ID: "u2", Name: "Bob"},
			Day: attendance.Monday, Type: attendance.Permission,
		}},
	}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	client := apiclient.New(srv.URL, 5*time.Second)
	sess := session.New(client, client, session.NewMemoryTokenStore())
	_, err := sess.Login(ctx, auth.Credentials{Username: "alice", Password: "wrong"})
	require.ErrorIs(t, err, session.ErrAuthenticationRejected)

	user, err := sess.Login(ctx, auth.Credentials{Username: "alice", Password: "secret"})
	require.NoError(t, err)
	require.Equal(t, "u1", user.ID)

	var ctrl *Controller
	store := attendance.NewStore(client, attendance.WithObserver(func(snap attendance.Snapshot) {
		ctrl.Sync(snap.ForUser(user.ID))
	}))
	ctrl = New(store)

	require.NoError(t, store.FetchAll(ctx))
	assert.Empty(t, ctrl.Rows(), "other users' rows are hidden")

	id := ctrl.Add(user)
	monday, medical := attendance.Monday, attendance.Medical
	require.NoError(t, ctrl.Change(id, Edit{Day: &monday, Type: &medical}))
	require.NoError(t, ctrl.Save(ctx, id))

	assert.Equal(t, 1, stub.calls["create"])
	rows := ctrl.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, id, rows[0].ID)
	assert.Equal(t, "abs1", rows[0].RemoteID)
	assert.Equal(t, attendance.Monday, rows[0].Day)
	assert.Equal(t, attendance.Medical, rows[0].Type)
	assert.False(t, rows[0].IsNew)
	assert.Equal(t, View, rows[0].Mode)

	require.NoError(t, ctrl.Delete(ctx, id))
	assert.Equal(t, 1, stub.calls["delete"])
	assert.Equal(t, []string{"abs1"}, stub.deleted)
	assert.Empty(t, ctrl.Rows())
	_, ok := store.Find(id)
	assert.False(t, ok)

	for _, b := range stub.bearers {
		assert.Equal(t, sess.Token(), b)
	}
}

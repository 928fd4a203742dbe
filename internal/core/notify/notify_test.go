package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/markdave123-py/Pagewise/internal/core"
	"github.com/markdave123-py/Pagewise/internal/models"
)

func TestWebhookNotifierPostsEvent(t *testing.T) {
	var got core.Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, time.Second)
	err := n.Notify(context.Background(), core.Event{JobID: "j1", Status: models.JobCompleted, DocumentID: "d1", ChunkCount: 4})
	require.NoError(t, err)
	assert.Equal(t, "j1", got.JobID)
	assert.Equal(t, models.JobCompleted, got.Status)
	assert.Equal(t, 4, got.ChunkCount)
}

func TestWebhookNotifierReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL, time.Second).Notify(context.Background(), core.Event{JobID: "j"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

type failing struct{ calls int }

func (f *failing) Notify(context.Context, core.Event) error {
	f.calls++
	return errors.New("down")
}

func TestMultiNotifiesEveryone(t *testing.T) {
	a, b := &failing{}, &failing{}
	m := Multi{a, nil, NewLogNotifier(zap.NewNop()), b}

	err := m.Notify(context.Background(), core.Event{JobID: "j", Status: models.JobFailed})
	require.Error(t, err)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 1, b.calls)

	assert.NoError(t, Multi{NewLogNotifier(nil)}.Notify(context.Background(), core.Event{}))
}

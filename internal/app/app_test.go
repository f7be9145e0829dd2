package app

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/config"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/pkg/distlock"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/queue"
)

func newApp(t *testing.T) *App {
	t.Helper()
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{Policy: config.DefaultPolicy()}
	cfg.Sweeper.BatchSize = 50
	return New(cfg, db, queue.NewInMemoryQueue())
}

func TestNewWiresServices(t *testing.T) {
	a := newApp(t)

	assert.NotNil(t, a.Scheduler.Compliance)
	assert.NotNil(t, a.Scheduler.Limiter)
	assert.NotNil(t, a.Scheduler.Dispatcher)
	assert.Same(t, a.Audit, a.Scheduler.Audit)
	assert.Same(t, a.Audit, a.CampaignSvc.Audit)
	assert.NotNil(t, a.TaskSvc.Queue)
	assert.Equal(t, a.Scheduler, a.Worker(0).Runner)
}

func TestRouterServesHealthz(t *testing.T) {
	w := httptest.NewRecorder()
	newApp(t).Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSweeperLockBackend(t *testing.T) {
	a := newApp(t)

	s := a.Sweeper(nil)
	assert.IsType(t, &distlock.PGAdvisoryLock{}, s.Lock)
	assert.Equal(t, 50, s.BatchSize)

	mr := miniredis.RunT(t)
	rdb, err := OpenRedis("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { rdb.Close() })
	assert.IsType(t, &distlock.RedisLock{}, a.Sweeper(rdb).Lock)
}

func TestOpenQueueDefaultsToInMemory(t *testing.T) {
	q, closeFn, err := OpenQueue(config.QueueConfig{})
	require.NoError(t, err)
	assert.IsType(t, &queue.InMemoryQueue{}, q)
	closeFn()
}

func TestOpenRedis(t *testing.T) {
	rdb, err := OpenRedis("")
	assert.NoError(t, err)
	assert.Nil(t, rdb)

	_, err = OpenRedis("not a url")
	assert.Error(t, err)
}

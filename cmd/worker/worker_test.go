package main

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/app"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/config"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/model"
	"github.com/juliancabezast/rentfinder-cleveland-sub000/internal/queue"
)

func TestWorker(t *testing.T) {
	database, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer database.Close()

	mock.ExpectQuery(`SELECT (.+) FROM agent_tasks WHERE id=\$1`).
		WithArgs("task-404").
		WillReturnError(sql.ErrNoRows)

	q := queue.NewInMemoryQueue()
	q.Backoff = 0
	a := app.New(&config.Config{Policy: config.DefaultPolicy()}, database, q)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, run(ctx, q, a))

	// an unknown task is dropped after one lookup, never retried
	require.NoError(t, q.Publish(queue.TopicAgentTasks, model.TaskInvocation{
		TaskID: "task-404", LeadID: "lead-1", OrganizationID: "org-1",
	}))
	q.Wait()

	assert.NoError(t, mock.ExpectationsWereMet())
}

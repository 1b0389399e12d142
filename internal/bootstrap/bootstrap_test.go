package bootstrap

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/ignite/creatorhub/internal/config"
	"github.com/ignite/creatorhub/internal/tasks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenRedis(t *testing.T) {
	assert.Nil(t, OpenRedis(context.Background(), ""))

	mr := miniredis.RunT(t)
	client := OpenRedis(context.Background(), "redis://"+mr.Addr())
	require.NotNil(t, client)
	defer client.Close()
	assert.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())

	// A bare host:port is accepted too.
	bare := OpenRedis(context.Background(), mr.Addr())
	require.NotNil(t, bare)
	bare.Close()

	addr := mr.Addr()
	mr.Close()
	assert.Nil(t, OpenRedis(context.Background(), "redis://"+addr))
}

func TestOpenDBRequiresURL(t *testing.T) {
	_, err := OpenDB(context.Background(), config.DatabaseConfig{})
	assert.Error(t, err)
}

func TestMemoryTaskQueue(t *testing.T) {
	cfg := config.Default().Tasks
	d := NewDispatcher(cfg)

	done := make(chan string, 1)
	d.Register(tasks.TypeRecordEvent, func(_ context.Context, task tasks.Task) error {
		done <- task.ID
		return nil
	})

	q, err := NewTaskQueue(context.Background(), cfg, config.AWSConfig{}, d)
	require.NoError(t, err)

	task, err := tasks.New(tasks.TypeRecordEvent, tasks.RecordEventPayload{AffiliateCode: "JANE-AB12", EventType: "click"})
	require.NoError(t, err)
	require.NoError(t, q.Enqueue(context.Background(), task))
	q.Stop()

	assert.Equal(t, task.ID, <-done)
}

func TestAWSStaticCredentials(t *testing.T) {
	cfg, err := AWS(context.Background(), "us-west-2", config.AWSConfig{AccessKeyID: "AKIDEXAMPLE", SecretAccessKey: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "us-west-2", cfg.Region)

	creds, err := cfg.Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AKIDEXAMPLE", creds.AccessKeyID)
	assert.Equal(t, "secret", creds.SecretAccessKey)
}

package ingestion_engine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studyvault/internal/core"
)

func TestEnqueueRejectsWhenFull(t *testing.T) {
	w := NewWorker(nil, newFakeDB())

	// No workers drain the queue, so it fills to capacity.
	ctx := context.Background()
	for i := 0; i < cap(w.jobs); i++ {
		require.NoError(t, w.Enqueue(ctx, IngestJob{JobID: "job"}))
	}

	err := w.Enqueue(ctx, IngestJob{JobID: "overflow"})
	assert.True(t, core.IsCode(err, core.CodeQueueUnavailable))
}

func TestEnqueueRejectsAfterShutdown(t *testing.T) {
	w := NewWorker(nil, newFakeDB())
	for i := 0; i < cap(w.jobs); i++ {
		require.NoError(t, w.Enqueue(context.Background(), IngestJob{}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := w.Enqueue(ctx, IngestJob{})
	assert.True(t, core.IsCode(err, core.CodeQueueUnavailable))
}

func TestErrorJSONCarriesCode(t *testing.T) {
	err := core.Errf(core.CodeSizeMismatch, "stored object is 12 bytes, declared 10")

	var payload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal([]byte(errorJSON(err)), &payload))
	assert.Equal(t, "SIZE_MISMATCH", payload.Code)
	assert.Contains(t, payload.Message, "declared 10")
}

func TestErrorJSONDefaultsUncodedErrors(t *testing.T) {
	var payload struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal([]byte(errorJSON(errors.New("boom"))), &payload))
	assert.Equal(t, "INVALID_STATE", payload.Code)
}

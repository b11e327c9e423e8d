package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStepLabel(t *testing.T) {
	cases := map[string]string{
		"TEXT_EXTRACT": "parsing",
		"CHUNK":        "chunking",
		"EMBED":        "embedding",
		"INGEST":       "ingest",
	}
	for jobType, want := range cases {
		assert.Equal(t, want, stepLabel(jobType), jobType)
	}
}

func TestParseJobError(t *testing.T) {
	je := parseJobError(`{"code":"SIZE_MISMATCH","message":"stored object is 12 bytes, declared 10"}`)
	assert.Equal(t, "SIZE_MISMATCH", je.Code)
	assert.Contains(t, je.Message, "declared 10")

	je = parseJobError("")
	assert.Equal(t, "INVALID_STATE", je.Code)

	je = parseJobError("not json at all")
	assert.Equal(t, "INVALID_STATE", je.Code)
	assert.Equal(t, "not json at all", je.Message)
}

package embedding

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCall embeds each text as a one-element vector carrying the numeric
// suffix of the text, so alignment is checkable. Texts listed in failures
// fail their whole shard.
func fakeCall(failures map[string]bool) embedFunc {
	return func(_ context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, text := range texts {
			if failures[text] {
				return nil, errors.New("synthetic embed failure")
			}
			n, _ := strconv.Atoi(strings.TrimPrefix(text, "text-"))
			out[i] = []float32{float32(n)}
		}
		return out, nil
	}
}

func inputs(n int) []string {
	texts := make([]string, n)
	for i := range texts {
		texts[i] = fmt.Sprintf("text-%d", i)
	}
	return texts
}

func TestEmbedBatch_AllSucceed(t *testing.T) {
	e := newEmbedderWithCall(fakeCall(nil), 3)

	result, err := e.EmbedBatch(context.Background(), inputs(10))
	require.NoError(t, err)

	assert.Equal(t, 10, result.SuccessCount)
	assert.Equal(t, 0, result.FailureCount)
	require.Len(t, result.Vectors, 10)
	for i, v := range result.Vectors {
		require.NotNil(t, v, "vector %d", i)
		assert.Equal(t, float32(i), v.Values[0], "vector %d misaligned", i)
		assert.Equal(t, Model, v.Model)
	}
}

func TestEmbedBatch_FailureIsolation(t *testing.T) {
	// Shard size 1: exactly one input fails, the rest must survive aligned.
	e := newEmbedderWithCall(fakeCall(map[string]bool{"text-4": true}), 1)

	result, err := e.EmbedBatch(context.Background(), inputs(9))
	require.NoError(t, err)

	assert.Equal(t, 8, result.SuccessCount)
	assert.Equal(t, 1, result.FailureCount)
	for i, v := range result.Vectors {
		if i == 4 {
			assert.Nil(t, v, "failed index must stay nil")
			continue
		}
		require.NotNil(t, v, "vector %d", i)
		assert.Equal(t, float32(i), v.Values[0], "vector %d misaligned", i)
	}
}

func TestEmbedBatch_FailedShardCountsAllItems(t *testing.T) {
	// Shard size 4 over 10 inputs: the shard holding text-5 fails whole.
	e := newEmbedderWithCall(fakeCall(map[string]bool{"text-5": true}), 4)

	result, err := e.EmbedBatch(context.Background(), inputs(10))
	require.NoError(t, err)

	assert.Equal(t, 6, result.SuccessCount)
	assert.Equal(t, 4, result.FailureCount)
	for i := 4; i < 8; i++ {
		assert.Nil(t, result.Vectors[i])
	}
	assert.NotNil(t, result.Vectors[0])
	assert.NotNil(t, result.Vectors[9])
}

func TestEmbedBatch_TotalFailure(t *testing.T) {
	e := newEmbedderWithCall(func(context.Context, []string) ([][]float32, error) {
		return nil, errors.New("api down")
	}, 2)

	_, err := e.EmbedBatch(context.Background(), inputs(5))
	assert.ErrorIs(t, err, ErrTotalFailure)
}

func TestEmbedBatch_Empty(t *testing.T) {
	e := newEmbedderWithCall(fakeCall(nil), 2)
	result, err := e.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, result.SuccessCount)
	assert.Zero(t, result.FailureCount)
	assert.Empty(t, result.Vectors)
}

func TestEmbedQuery(t *testing.T) {
	e := newEmbedderWithCall(fakeCall(nil), 1)

	v, err := e.EmbedQuery(context.Background(), "text-7")
	require.NoError(t, err)
	assert.Equal(t, []float32{7}, v.Values)
	assert.Equal(t, Model, v.Model)
}

func TestEmbedQuery_Error(t *testing.T) {
	e := newEmbedderWithCall(func(context.Context, []string) ([][]float32, error) {
		return nil, errors.New("boom")
	}, 1)

	_, err := e.EmbedQuery(context.Background(), "anything")
	assert.Error(t, err)
}

func TestEmbedBatch_CountMismatchIsPermanent(t *testing.T) {
	e := newEmbedderWithCall(func(_ context.Context, texts []string) ([][]float32, error) {
		return make([][]float32, len(texts)+1), nil
	}, 10)

	_, err := e.EmbedBatch(context.Background(), inputs(3))
	assert.ErrorIs(t, err, ErrTotalFailure)
}

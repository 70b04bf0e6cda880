package shard_test

import (
	"context"
	"testing"
	"time"

	"github.com/hyp3rd/ewrap"
	"github.com/longbridgeapp/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyp3rd/roomcast/pkg/breaker"
	"github.com/hyp3rd/roomcast/pkg/shard"
)

var errShardDown = ewrap.New("shard down")

func newBreakers(n int) []*breaker.CircuitBreaker {
	breakers := make([]*breaker.CircuitBreaker, n)
	for i := range n {
		breakers[i] = breaker.New("shard",
			breaker.WithFailureThreshold(1),
			breaker.WithTimeout(time.Minute),
		)
	}

	return breakers
}

func TestQueryAllShardsMergesInOrder(t *testing.T) {
	router, err := shard.NewRouter(3)
	require.NoError(t, err)

	res := shard.QueryAllShards(context.Background(), router, func(_ context.Context, idx int) ([]int, error) {
		return []int{idx * 10, idx*10 + 1}, nil
	})

	assert.False(t, res.Partial)
	assert.Equal(t, []int{0, 1, 10, 11, 20, 21}, res.Items)
}

func TestQueryAllShardsSkipsOpenBreaker(t *testing.T) {
	breakers := newBreakers(3)
	router, err := shard.NewRouter(3, shard.WithBreakers(breakers))
	require.NoError(t, err)

	// trip shard 1
	_ = breakers[1].Execute(context.Background(), func(_ context.Context) error { return errShardDown })
	assert.Equal(t, "OPEN", breakers[1].GetStatus().State)

	invoked := make([]bool, 3)

	res := shard.QueryAllShards(context.Background(), router, func(_ context.Context, idx int) ([]string, error) {
		invoked[idx] = true

		return []string{string(rune('a' + idx))}, nil
	})

	assert.True(t, res.Partial)
	assert.Equal(t, []int{1}, res.FailedShards)
	assert.Equal(t, []string{"a", "c"}, res.Items)

	// the open breaker never invoked the shard query
	assert.True(t, invoked[0])
	assert.False(t, invoked[1])
	assert.True(t, invoked[2])
}

func TestQueryAllShardsToleratesFailure(t *testing.T) {
	router, err := shard.NewRouter(3)
	require.NoError(t, err)

	res := shard.QueryAllShards(context.Background(), router, func(_ context.Context, idx int) ([]int, error) {
		if idx == 2 {
			return nil, errShardDown
		}

		return []int{idx}, nil
	})

	assert.True(t, res.Partial)
	assert.Equal(t, []int{0, 1}, res.Items)
	assert.Equal(t, []int{2}, res.FailedShards)
}

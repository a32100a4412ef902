// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/poiesic/embatch/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateCost(t *testing.T) {
	// 10000 items at 200 tokens each is 2M tokens; at $0.02 per million
	// with the half-price batch discount that is two cents.
	est := EstimateCost("posts", 10000,
		DefaultAvgTokensPerItem, DefaultPricePerMillionTokens, DefaultBatchDiscountFactor)

	assert.Equal(t, core.Collection("posts"), est.Collection)
	assert.Equal(t, int64(10000), est.PendingItems)
	assert.InDelta(t, 2_000_000.0, est.EstimatedTokens, 0.001)
	assert.InDelta(t, 0.02, est.EstimatedCost, 1e-9)
}

func TestEstimateCost_ZeroItems(t *testing.T) {
	est := EstimateCost("events", 0,
		DefaultAvgTokensPerItem, DefaultPricePerMillionTokens, DefaultBatchDiscountFactor)
	assert.Zero(t, est.EstimatedTokens)
	assert.Zero(t, est.EstimatedCost)
}

func TestEstimator_PerCollection(t *testing.T) {
	items := newFakeItemStore()
	for i := 0; i < 30; i++ {
		items.items["posts"] = append(items.items["posts"], core.Item{Identity: fmt.Sprintf("p-%d", i)})
	}
	for i := 0; i < 5; i++ {
		items.items["events"] = append(items.items["events"], core.Item{Identity: fmt.Sprintf("ev-%d", i)})
	}

	specs := []core.CollectionSpec{testSpec("posts", 1536), testSpec("events", 768), testSpec("actors", 768)}
	estimates, err := NewEstimator(items).Estimate(context.Background(), specs)
	require.NoError(t, err)
	require.Len(t, estimates, 3)

	assert.Equal(t, int64(30), estimates[0].PendingItems)
	assert.Equal(t, int64(5), estimates[1].PendingItems)
	assert.Equal(t, int64(0), estimates[2].PendingItems)
	assert.Greater(t, estimates[0].EstimatedCost, estimates[1].EstimatedCost)
}

func TestEstimator_CountError(t *testing.T) {
	items := newFakeItemStore()
	items.countErr = errors.New("connection reset")

	_, err := NewEstimator(items).Estimate(context.Background(), []core.CollectionSpec{testSpec("posts", 1536)})
	require.Error(t, err)
}

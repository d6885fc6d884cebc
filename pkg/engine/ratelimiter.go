// Copyright 2026 The kondense authors
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

package engine

import (
	"math/rand/v2"
	"time"

	"k8s.io/client-go/util/workqueue"

	"kondense/pkg/api"
)

// jitteredRateLimiter applies full jitter on top of per-item exponential
// failure backoff: each retry waits a uniform random duration in
// (0, backoff]. Full jitter decorrelates retry storms when many keys fail
// at once.
type jitteredRateLimiter struct {
	inner workqueue.TypedRateLimiter[api.ObjectKey]
}

func newJitteredRateLimiter(baseDelay, maxDelay time.Duration) workqueue.TypedRateLimiter[api.ObjectKey] {
	return &jitteredRateLimiter{
		inner: workqueue.NewTypedItemExponentialFailureRateLimiter[api.ObjectKey](baseDelay, maxDelay),
	}
}

func (r *jitteredRateLimiter) When(item api.ObjectKey) time.Duration {
	d := r.inner.When(item)
	if d <= 0 {
		return d
	}
	return time.Duration(rand.Int64N(int64(d))) + 1
}

func (r *jitteredRateLimiter) Forget(item api.ObjectKey) {
	r.inner.Forget(item)
}

func (r *jitteredRateLimiter) NumRequeues(item api.ObjectKey) int {
	return r.inner.NumRequeues(item)
}

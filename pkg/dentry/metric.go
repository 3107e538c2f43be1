/*
 Copyright 2026 Basalt Authors.

 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package dentry

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	crtInuseTotal int32
	crtFreeTotal  int32

	nameCacheLookupLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "namecache_lookup_latency_seconds",
			Help:    "The latency of name cache lookup.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 15),
		},
		[]string{"outcome"},
	)
	nameCacheEvictionCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "namecache_eviction_total",
			Help: "The total number of records recycled to serve a miss.",
		},
	)
	nameCacheReclaimedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "namecache_reclaimed_total",
			Help: "The total number of records released by reclaim.",
		},
	)
	nameCacheExhaustedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "namecache_exhausted_total",
			Help: "The total number of lookups failed with no recyclable record.",
		},
	)
	nameCacheInuseGauge = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "namecache_inuse_records",
			Help: "The number of records on the in-use list.",
		},
		func() float64 { return float64(atomic.LoadInt32(&crtInuseTotal)) },
	)
	nameCacheFreeGauge = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "namecache_free_records",
			Help: "The number of records on the free list.",
		},
		func() float64 { return float64(atomic.LoadInt32(&crtFreeTotal)) },
	)
)

func init() {
	prometheus.MustRegister(
		nameCacheLookupLatency,
		nameCacheEvictionCounter,
		nameCacheReclaimedCounter,
		nameCacheExhaustedCounter,
		nameCacheInuseGauge,
		nameCacheFreeGauge,
	)
}

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

package vm

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	crtFrameTotal int32
	crtAreaTotal  int32

	vmFaultLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vm_fault_latency_seconds",
			Help:    "The latency of fault resolution.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 15),
		},
		[]string{"resolution"},
	)
	vmFaultErrorsCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vm_fault_errors",
			Help: "The total number of faults failed with an error.",
		},
	)
	backingReadLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vm_backing_read_latency_seconds",
			Help:    "The latency of backing store reads during population.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
		},
	)
	pagePopulatedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vm_page_populated",
			Help: "The total number of page populations.",
		},
	)
	pageEvictedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vm_page_evicted",
			Help: "The total number of canonical frames shed under pressure.",
		},
	)
	pageInvalidatedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vm_page_invalidated",
			Help: "The total number of pages disconnected by invalidation.",
		},
	)
	frameExhaustedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "vm_frame_exhausted",
			Help: "The total number of frame allocations refused at the budget.",
		},
	)
	frameGauge = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "vm_current_frames",
			Help: "The number of frames currently allocated.",
		},
		func() float64 { return float64(atomic.LoadInt32(&crtFrameTotal)) },
	)
	areaGauge = prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "vm_current_areas",
			Help: "The number of mapped areas.",
		},
		func() float64 { return float64(atomic.LoadInt32(&crtAreaTotal)) },
	)
)

func crtAreaAdd(n int32) {
	atomic.AddInt32(&crtAreaTotal, n)
}

func init() {
	prometheus.MustRegister(
		vmFaultLatency,
		vmFaultErrorsCounter,
		backingReadLatency,
		pagePopulatedCounter,
		pageEvictedCounter,
		pageInvalidatedCounter,
		frameExhaustedCounter,
		frameGauge,
		areaGauge,
	)
}

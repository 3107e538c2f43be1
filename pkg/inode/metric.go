package inode

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var crtNodeTotal int32

var nodeCountGauge = prometheus.NewGaugeFunc(
	prometheus.GaugeOpts{
		Name: "registry_current_nodes",
		Help: "This current count of registered nodes",
	},
	func() float64 {
		return float64(atomic.LoadInt32(&crtNodeTotal))
	},
)

func init() {
	prometheus.MustRegister(nodeCountGauge)
}

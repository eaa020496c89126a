package fabric

import "github.com/prometheus/client_golang/prometheus"

var (
	delivered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fabric_frames_delivered_total",
		Help: "Frames handed to local subscribers.",
	})
	dropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fabric_frames_dropped_total",
		Help: "Frames dropped because a subscriber's buffer was full.",
	})
	relayed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fabric_frames_relayed_total",
		Help: "Frames received from other nodes over the backbone.",
	})
	publishErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fabric_publish_errors_total",
		Help: "Backbone publish failures.",
	})
	roomsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fabric_local_rooms",
		Help: "Rooms with at least one local subscriber.",
	})
)

func init() {
	prometheus.MustRegister(delivered, dropped, relayed, publishErrors, roomsGauge)
}

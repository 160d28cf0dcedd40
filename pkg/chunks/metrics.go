package chunks

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	directionReceive = "receive"
	directionSend    = "send"
)

// Metrics counts the traffic handled by a Manager.
type Metrics struct {
	// Received counts delivered events by kind.
	Received *prometheus.CounterVec

	// Sent counts encoded messages by type.
	Sent *prometheus.CounterVec

	// Failures counts dropped messages by direction and status.
	Failures *prometheus.CounterVec

	ReceivedBytes prometheus.Counter
	SentBytes     prometheus.Counter
}

// NewMetrics creates the counters and registers them with reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uasc",
			Subsystem: "chunks",
			Name:      "received_total",
			Help:      "Messages received and delivered, by event kind.",
		}, []string{"kind"}),
		Sent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uasc",
			Subsystem: "chunks",
			Name:      "sent_total",
			Help:      "Messages encoded for sending, by message type.",
		}, []string{"type"}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uasc",
			Subsystem: "chunks",
			Name:      "failures_total",
			Help:      "Messages dropped, by direction and status code.",
		}, []string{"direction", "status"}),
		ReceivedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "uasc",
			Subsystem: "chunks",
			Name:      "received_bytes_total",
			Help:      "Bytes fed into the chunk assembler.",
		}),
		SentBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "uasc",
			Subsystem: "chunks",
			Name:      "sent_bytes_total",
			Help:      "Bytes of encoded messages.",
		}),
	}

	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.Received, m.Sent, m.Failures, m.ReceivedBytes, m.SentBytes} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

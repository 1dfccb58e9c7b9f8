package consumer

import "github.com/prometheus/client_golang/prometheus"

func counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{Namespace: "medidas", Subsystem: "event_log", Name: name, Help: help}
}

var (
	processedCounter = prometheus.NewCounterVec(
		counterOpts("events_logged_total", "Measurement events handled and committed."),
		[]string{"topic", "event_type"})

	handlerErrorCounter = prometheus.NewCounterVec(
		counterOpts("handler_failures_total", "Measurement events left uncommitted because the handler failed."),
		[]string{"topic", "event_type"})

	decodeErrorCounter = prometheus.NewCounterVec(
		counterOpts("undecodable_records_total", "Records skipped because they were not framed measurement events."),
		[]string{"topic"})

	lastMessageGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "medidas",
		Subsystem: "event_log",
		Name:      "last_event_timestamp_seconds",
		Help:      "Kafka timestamp of the newest logged event.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(processedCounter, handlerErrorCounter, decodeErrorCounter, lastMessageGauge)
}

func recordProcessed(msg Message) {
	processedCounter.WithLabelValues(msg.Topic, msg.EventType).Inc()
	if msg.Timestamp.IsZero() {
		return
	}
	lastMessageGauge.WithLabelValues(msg.Topic).Set(float64(msg.Timestamp.Unix()))
}

func recordHandlerError(msg Message) {
	handlerErrorCounter.WithLabelValues(msg.Topic, msg.EventType).Inc()
}

func recordDecodeError(topic string) {
	decodeErrorCounter.WithLabelValues(topic).Inc()
}

package kafka

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var consumerLabels = []string{"topic", "consumer_group"}

var (
	ConsumerMessagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kafka_consumer_messages_received_total",
		Help: "Messages fetched from the broker.",
	}, consumerLabels)

	ConsumerMessagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kafka_consumer_messages_processed_total",
		Help: "Messages handled successfully.",
	}, consumerLabels)

	ConsumerMessagesFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kafka_consumer_messages_failed_total",
		Help: "Messages skipped after decode failure or exhausted retries.",
	}, consumerLabels)

	ConsumerProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kafka_consumer_processing_duration_seconds",
		Help:    "Handler latency including retries.",
		Buckets: prometheus.DefBuckets,
	}, consumerLabels)

	ProducerMessagesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kafka_producer_messages_published_total",
		Help: "Messages written to Kafka.",
	}, []string{"topic"})

	ProducerPublishErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kafka_producer_publish_errors_total",
		Help: "Failed publish attempts.",
	}, []string{"topic"})

	ProducerPublishDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kafka_producer_publish_duration_seconds",
		Help:    "Publish latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"topic"})
)

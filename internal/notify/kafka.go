package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"unipool/internal/types"
)

const publishTimeout = 2 * time.Second

// KafkaNotifier publishes offer/status payloads to Kafka topics consumed by
// the push-delivery service. Publish errors are logged and dropped.
type KafkaNotifier struct {
	offers   *kafka.Writer
	statuses *kafka.Writer
	log      *slog.Logger
}

func NewKafkaNotifier(brokers []string, offerTopic, statusTopic string, log *slog.Logger) *KafkaNotifier {
	return &KafkaNotifier{
		offers:   &kafka.Writer{Addr: kafka.TCP(brokers...), Topic: offerTopic, Balancer: &kafka.LeastBytes{}},
		statuses: &kafka.Writer{Addr: kafka.TCP(brokers...), Topic: statusTopic, Balancer: &kafka.LeastBytes{}},
		log:      log,
	}
}

func (n *KafkaNotifier) DriverOffer(ctx context.Context, driverID types.ID, payload any) {
	n.publish(ctx, n.offers, string(driverID), payload)
}

func (n *KafkaNotifier) RiderStatus(ctx context.Context, riderID types.ID, payload any) {
	n.publish(ctx, n.statuses, string(riderID), payload)
}

func (n *KafkaNotifier) publish(ctx context.Context, w *kafka.Writer, key string, payload any) {
	b, err := json.Marshal(payload)
	if err != nil {
		n.log.Warn("notify marshal failed", "key", key, "err", err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := w.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: b}); err != nil {
		n.log.Warn("notify publish failed", "topic", w.Topic, "key", key, "err", err)
	}
}

func (n *KafkaNotifier) Close() error {
	if err := n.offers.Close(); err != nil {
		return err
	}
	return n.statuses.Close()
}

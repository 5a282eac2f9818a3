package kafka

import (
	"time"

	"github.com/IBM/sarama"
)

// GroupOptions tunes the consumer group; zero values keep the defaults.
type GroupOptions struct {
	ClientID       string
	OldestOffset   bool
	DialTimeout    time.Duration
	SessionTimeout time.Duration
}

func NewGroup(brokers []string, groupID string, opts GroupOptions) (sarama.ConsumerGroup, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_6_0_0
	if opts.ClientID != "" {
		cfg.ClientID = opts.ClientID
	}
	cfg.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRange()}
	cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	if opts.OldestOffset {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	}
	cfg.Net.DialTimeout = 5 * time.Second
	if opts.DialTimeout > 0 {
		cfg.Net.DialTimeout = opts.DialTimeout
	}
	if opts.SessionTimeout > 0 {
		cfg.Consumer.Group.Session.Timeout = opts.SessionTimeout
	}
	return sarama.NewConsumerGroup(brokers, groupID, cfg)
}

package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseConfig(t *testing.T) {
	cfg := ParseConfig("broker1:9092, broker2:9092", "order-changes", "order-change-errors")

	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.Brokers)
	assert.Equal(t, "order-changes", cfg.ChangeTopic)
	assert.Equal(t, "order-change-errors", cfg.ErrorTopic)
}

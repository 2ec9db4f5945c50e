package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daqol/information-retrieval/pkg/config"
)

func TestEncode(t *testing.T) {
	msgs, err := Encode([]Event{
		{Key: "a", Value: map[string]int{"n": 1}},
		{Key: "b", Value: "text"},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, []byte("a"), msgs[0].Key)
	assert.JSONEq(t, `{"n":1}`, string(msgs[0].Value))
	assert.JSONEq(t, `"text"`, string(msgs[1].Value))

	_, err = Encode([]Event{{Key: "bad", Value: make(chan int)}})
	assert.Error(t, err)
}

func TestNewProducerTopic(t *testing.T) {
	p := NewProducer(config.KafkaConfig{Brokers: []string{"localhost:9092"}}, "crawl-events")
	assert.Equal(t, "crawl-events", p.Topic())
	assert.NoError(t, p.Close())
}

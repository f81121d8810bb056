package redistransport

import (
	"strings"
	"testing"
	"time"

	"github.com/ibs-source/workers-coordinator/internal/config"
	"github.com/ibs-source/workers-coordinator/internal/logger"
	"github.com/ibs-source/workers-coordinator/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) ports.Logger {
	t.Helper()
	l, err := logger.NewLogrusLogger("error", "text")
	require.NoError(t, err)
	return l
}

func testCfg() *config.RedisConfig {
	return &config.RedisConfig{
		Addresses:     []string{"127.0.0.1:6379"},
		StreamName:    "events",
		ConsumerGroup: "workers",
		BlockTime:     time.Second,
		BatchSize:     1,
	}
}

func TestNewAssignsUniqueConsumerNames(t *testing.T) {
	l := testLogger(t)
	a := New(testCfg(), l)
	b := New(testCfg(), l)
	assert.NotEqual(t, a.consumerName, b.consumerName)
	assert.True(t, strings.HasPrefix(a.consumerName, "consumer-"))
}

func TestAddressReturnsStreamName(t *testing.T) {
	tr := New(testCfg(), testLogger(t))
	assert.Equal(t, "events", tr.Address())
}

func TestGetPropertiesReportsIdentity(t *testing.T) {
	tr := New(testCfg(), testLogger(t))
	props := tr.GetProperties(nil)
	assert.Equal(t, "events", props["stream"])
	assert.Equal(t, "workers", props["consumer_group"])
	assert.Equal(t, tr.consumerName, props["consumer_name"])
}

func TestPayloadOfExtractsBytesAndStrings(t *testing.T) {
	assert.Equal(t, []byte("hi"), payloadOf(map[string]interface{}{"payload": []byte("hi")}))
	assert.Equal(t, []byte("hi"), payloadOf(map[string]interface{}{"payload": "hi"}))
	assert.Nil(t, payloadOf(map[string]interface{}{}))
}

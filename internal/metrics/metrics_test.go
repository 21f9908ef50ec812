package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBuffer map[string]int

func (f fakeBuffer) Size() int { return 500 }

func (f fakeBuffer) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	return keys
}

func (f fakeBuffer) Len(key string) int { return f[key] }

func TestRegisterBuffer(t *testing.T) {
	buf := fakeBuffer{"34600000001": 3, "34600000002": 7}
	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterBuffer(reg, buf))

	expected := `
# HELP wabot_buffer_capacity_per_sender Messages kept per sender before the oldest is dropped
# TYPE wabot_buffer_capacity_per_sender gauge
wabot_buffer_capacity_per_sender 500
# HELP wabot_buffered_messages Messages held in the buffer
# TYPE wabot_buffered_messages gauge
wabot_buffered_messages 10
# HELP wabot_buffered_senders Senders with buffered messages
# TYPE wabot_buffered_senders gauge
wabot_buffered_senders 2
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected)))

	delete(buf, "34600000002")
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP wabot_buffered_senders Senders with buffered messages
# TYPE wabot_buffered_senders gauge
wabot_buffered_senders 1
`), "wabot_buffered_senders"))
}

func TestRegisterBuffer_Twice(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterBuffer(reg, fakeBuffer{}))
	assert.Error(t, RegisterBuffer(reg, fakeBuffer{}))
}

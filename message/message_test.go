package message_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/graphite-tools/graphite-proxy/message"
)

func TestParseLineValid(t *testing.T) {
	m, ok := message.ParseLine("app.server.requests 42.5 1700000000", 1700000001)
	assert.True(t, ok)
	assert.Equal(t, "app.server.requests", m.Name())
	assert.Equal(t, 42.5, m.Value())
	assert.Equal(t, uint64(1700000000), m.Timestamp())
	assert.Equal(t, uint64(1700000001), m.ReceivedAt())
	assert.True(t, m.IsValid())
}

func TestParseLineRejectsWrongTokenCount(t *testing.T) {
	cases := []string{
		"",
		"only.two.tokens 1",
		"name value ts extra",
		"   ",
	}
	for _, c := range cases {
		_, ok := message.ParseLine(c, 0)
		assert.Falsef(t, ok, "expected parse failure for %q", c)
	}
}

func TestParseLineRejectsBadNumbers(t *testing.T) {
	_, ok := message.ParseLine("name notanumber 123", 0)
	assert.False(t, ok)

	_, ok = message.ParseLine("name 1.0 notanumber", 0)
	assert.False(t, ok)
}

func TestSerializeRoundTrip(t *testing.T) {
	original := message.New("a.b.c", 3.140000, 1000, 0)
	text := original.Serialize()

	parsed, ok := message.ParseLine(text, 0)
	assert.True(t, ok)
	assert.Equal(t, original.Name(), parsed.Name())
	assert.Equal(t, original.Timestamp(), parsed.Timestamp())
	assert.InDelta(t, original.Value(), parsed.Value(), 1e-6)
}

func TestSerializeFormat(t *testing.T) {
	m := message.New("metric", 0, 0, 0)
	assert.Equal(t, "metric 0.000000 0", m.Serialize())
	assert.Equal(t, len("metric 0.000000 0"), m.Length())
}

func TestParseLinesPartialSuccess(t *testing.T) {
	input := "good.one 1 2\nbad line here extra\ngood.two 3 4"
	msgs, ok := message.ParseLines(input, 0)
	assert.True(t, ok)
	assert.Len(t, msgs, 2)
	assert.Equal(t, "good.one", msgs[0].Name())
	assert.Equal(t, "good.two", msgs[1].Name())
}

func TestParseLinesAllFail(t *testing.T) {
	msgs, ok := message.ParseLines("bad one two three\nalso bad", 0)
	assert.False(t, ok)
	assert.Empty(t, msgs)
}

func TestIsValidOnZeroValue(t *testing.T) {
	var m message.Message
	assert.False(t, m.IsValid())
}

package aggregator

import (
	"math"
	"sort"
	"strconv"

	"github.com/graphite-tools/graphite-proxy/message"
)

// tilesOptions parses the value/below/multiplicator options a TILES
// Computation carries, returning ok=false if the required "value" option is
// missing or unparsable. below defaults to true, multiplicator to 100,
// matching ATTRIBUTE_DEFAULT_BELOW / ATTRIBUTE_DEFAULT_MULTIPLICATOR in the
// original source's properties header.
func tilesOptions(opts map[string]string) (value, multiplicator float64, below bool, ok bool) {
	valueText, has := opts["value"]
	if !has || valueText == "" {
		return 0, 0, false, false
	}
	value, err := strconv.ParseFloat(valueText, 64)
	if err != nil {
		return 0, 0, false, false
	}

	below = true
	if belowText, has := opts["below"]; has && belowText != "" {
		b, err := strconv.ParseBool(belowText)
		if err != nil {
			return 0, 0, false, false
		}
		below = b
	}

	multiplicator = 100
	if multText, has := opts["multiplicator"]; has && multText != "" {
		m, err := strconv.ParseFloat(multText, 64)
		if err != nil {
			return 0, 0, false, false
		}
		multiplicator = m
	}

	return value, multiplicator, below, true
}

// compute applies a Computation's kind to a window of messages and returns
// the single resulting value; Pipeline.emit wraps it in a message named
// after the metric and stamped with the window's last timestamp. Grounded on
// original_source/src/library/graphite_proxy/models/maths/pipeline.cpp's
// sum/average/variance/deviation/max/min/median/tiles methods.
//
// messages must be non-empty; callers never invoke compute on an empty
// window.
func compute(kind Kind, messages []message.Message, opts map[string]string) (float64, bool) {
	switch kind {
	case Sum:
		return computeSum(messages), true
	case Average:
		return computeAverage(messages), true
	case Min:
		return computeMin(messages), true
	case Max:
		return computeMax(messages), true
	case Median:
		return computeMedian(messages), true
	case Variance:
		return computeVariance(messages), true
	case Deviation:
		return math.Sqrt(computeVariance(messages)), true
	case Tiles:
		return computeTiles(messages, opts)
	default:
		return 0, false
	}
}

func computeSum(messages []message.Message) float64 {
	var result float64
	for _, m := range messages {
		result += m.Value()
	}
	return result
}

func computeAverage(messages []message.Message) float64 {
	return computeSum(messages) / float64(len(messages))
}

func computeMin(messages []message.Message) float64 {
	result := messages[0].Value()
	for _, m := range messages[1:] {
		if v := m.Value(); v < result {
			result = v
		}
	}
	return result
}

func computeMax(messages []message.Message) float64 {
	result := messages[0].Value()
	for _, m := range messages[1:] {
		if v := m.Value(); v > result {
			result = v
		}
	}
	return result
}

func computeMedian(messages []message.Message) float64 {
	values := make([]float64, len(messages))
	for i, m := range messages {
		values[i] = m.Value()
	}
	sort.Float64s(values)

	n := len(values)
	middle := n / 2
	if n%2 != 0 {
		return values[middle]
	}
	return (values[middle] + values[middle-1]) / 2
}

func computeVariance(messages []message.Message) float64 {
	mean := computeAverage(messages)
	var sumSquares float64
	for _, m := range messages {
		diff := m.Value() - mean
		sumSquares += diff * diff
	}
	return sumSquares / float64(len(messages))
}

// computeTiles implements the percentile-style "tiles" operation:
// (below + 0.5*equal) / n * multiplicator, where equal-valued samples are
// excluded entirely (not just halved) when below=true. This asymmetry
// matches the original implementation's lexical-cast option handling in
// pipeline.cpp's compute() TILES branch.
func computeTiles(messages []message.Message, opts map[string]string) (float64, bool) {
	value, multiplicator, below, ok := tilesOptions(opts)
	if !ok {
		return 0, false
	}

	var nbrBelow, nbrEqual uint64
	for _, m := range messages {
		switch {
		case m.Value() < value:
			nbrBelow++
		case !below && m.Value() == value:
			nbrEqual++
		}
	}

	n := float64(len(messages))
	result := ((float64(nbrBelow) + 0.5*float64(nbrEqual)) / n) * multiplicator
	return result, true
}

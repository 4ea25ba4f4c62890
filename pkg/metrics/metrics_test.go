package metrics

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegister(t *testing.T) {
	r := prometheus.NewRegistry()
	Register(r)
	Register(r)
	assert.Equal(t, r, GetRegisterer())
}

func TestObserveEncode(t *testing.T) {
	before := testutil.ToFloat64(SerializerEncodeTotal.WithLabelValues("unit", SuccessLabel))
	ObserveEncode("unit", 12, 2, "", nil)
	assert.Equal(t, before+1, testutil.ToFloat64(SerializerEncodeTotal.WithLabelValues("unit", SuccessLabel)))
	assert.Equal(t, float64(2), testutil.ToFloat64(SerializerAnchorsTotal.WithLabelValues("unit")))

	ObserveEncode("unit", 0, 0, "DepthExceeded", errors.New("deep"))
	assert.Equal(t, float64(1), testutil.ToFloat64(SerializerErrorTotal.WithLabelValues("unit", "DepthExceeded")))
}

func TestObserveDecode(t *testing.T) {
	ObserveDecode("unit-dec", "", nil)
	ObserveDecode("unit-dec", "MalformedExtension", errors.New("bad"))
	assert.Equal(t, float64(1), testutil.ToFloat64(SerializerDecodeTotal.WithLabelValues("unit-dec", SuccessLabel)))
	assert.Equal(t, float64(1), testutil.ToFloat64(SerializerDecodeTotal.WithLabelValues("unit-dec", FailLabel)))
}

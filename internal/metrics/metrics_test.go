package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := New(reg)
	require.NoError(t, err)

	c.Answer("review", 3)
	c.Answer("review", 3)
	c.Answer("learning", 1)
	c.Leech()
	c.Undo("review")
	c.Due(5, 2, 7)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.answers.WithLabelValues("review", "3")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.answers.WithLabelValues("learning", "1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.leeches))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.undos.WithLabelValues("review")))
	assert.Equal(t, 7.0, testutil.ToFloat64(c.due.WithLabelValues("review")))
}

func TestRegisterTwiceFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)
	_, err = New(reg)
	assert.Error(t, err)
}

func TestNilCollector(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.Answer("new", 3)
		c.Leech()
		c.Undo("bury")
		c.Rebuild(4)
		c.Due(1, 2, 3)
	})
}

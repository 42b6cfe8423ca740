package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeOptions(t *testing.T) {
	opts, err := DecodeOptions(map[string]interface{}{
		"timeout":   "45s",
		"tolerance": 1e-6,
		"trace":     true,
	})
	require.NoError(t, err)
	require.NotNil(t, opts.Timeout)
	assert.Equal(t, 45*time.Second, opts.Timeout.Duration)
	assert.Equal(t, 1e-6, opts.Tolerance)
	assert.True(t, opts.Trace)

	_, err = DecodeOptions(map[string]interface{}{"timeout": "not a duration"})
	assert.Error(t, err)
}

func TestEffectiveTimeout(t *testing.T) {
	fallback := time.Minute
	var missing *Options
	assert.Equal(t, fallback, missing.EffectiveTimeout(fallback))
	assert.Equal(t, fallback, (&Options{}).EffectiveTimeout(fallback))

	opts := &Options{Timeout: &Duration{Duration: 5 * time.Second}}
	assert.Equal(t, 5*time.Second, opts.EffectiveTimeout(fallback))
}

func TestOptionsMerge(t *testing.T) {
	base := &Options{Timeout: &Duration{Duration: time.Minute}, Tolerance: 1e-6}

	merged := base.Merge(&Options{Timeout: &Duration{Duration: 5 * time.Second}, Trace: true})
	require.NotNil(t, merged.Timeout)
	assert.Equal(t, 5*time.Second, merged.Timeout.Duration)
	assert.Equal(t, 1e-6, merged.Tolerance)
	assert.True(t, merged.Trace)

	// The receiver is not modified.
	assert.Equal(t, time.Minute, base.Timeout.Duration)
	assert.False(t, base.Trace)

	assert.Equal(t, base, base.Merge(nil))
	var missing *Options
	assert.Equal(t, base, missing.Merge(base))
}

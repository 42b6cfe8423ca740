package model

import (
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
)

// DurationHookFunc returns a mapstructure hook that converts strings
// like "30s" and numeric nanosecond counts into Duration values.
func DurationHookFunc() mapstructure.DecodeHookFunc {
	return durationHookFunc
}

func durationHookFunc(f, t reflect.Type, data interface{}) (interface{}, error) {
	if t != reflect.TypeOf(Duration{}) {
		return data, nil
	}

	switch f.Kind() {
	case reflect.String:
		d, err := time.ParseDuration(data.(string))
		if err != nil {
			return nil, err
		}
		return Duration{Duration: d}, nil
	case reflect.Float64:
		return Duration{Duration: time.Duration(data.(float64))}, nil
	case reflect.Int64:
		return Duration{Duration: time.Duration(data.(int64))}, nil
	case reflect.Int:
		return Duration{Duration: time.Duration(data.(int))}, nil
	default:
		return data, nil
	}
}

// DecodeOptions builds Options from a loosely typed map, as carried
// in API requests.
func DecodeOptions(in map[string]interface{}) (*Options, error) {
	var opts Options
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       DurationHookFunc(),
		Result:           &opts,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(in); err != nil {
		return nil, err
	}
	return &opts, nil
}

// EffectiveTimeout returns the configured timeout, or fallback when
// no timeout is set.
func (o *Options) EffectiveTimeout(fallback time.Duration) time.Duration {
	if o == nil || o.Timeout == nil || o.Timeout.Duration <= 0 {
		return fallback
	}
	return o.Timeout.Duration
}

// TraceEnabled reports whether the document asks for a search trace.
func (o *Options) TraceEnabled() bool {
	return o != nil && o.Trace
}

// Merge overlays non-zero fields of other onto a copy of the
// receiver. Either side may be nil.
func (o *Options) Merge(other *Options) *Options {
	if o == nil {
		return other
	}
	if other == nil {
		return o
	}
	merged := *o
	if other.Timeout != nil {
		merged.Timeout = other.Timeout
	}
	if other.Tolerance != 0 {
		merged.Tolerance = other.Tolerance
	}
	if other.Trace {
		merged.Trace = true
	}
	return &merged
}

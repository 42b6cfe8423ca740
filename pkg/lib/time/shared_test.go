package time

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSharedTime(t *testing.T) {
	now := time.Now()

	var s SharedTime
	require.True(t, s.Time().IsZero())

	s.Set(now)
	require.Equal(t, now, s.Time())
}

package observability

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewLogger_Levels(t *testing.T) {
	l, ok := NewLogger("debug").(*logrusLogger)
	assert.True(t, ok)
	assert.Equal(t, "debug", l.logger.GetLevel().String())

	l, _ = NewLogger("nonsense").(*logrusLogger)
	assert.Equal(t, "info", l.logger.GetLevel().String())
}

func TestLogger_WithFieldKeepsParent(t *testing.T) {
	base := NewNopLogger()
	child := base.WithField("request_id", "abc").WithError(errors.New("boom"))

	entry := child.(*logrusLogger).entry
	assert.Equal(t, "abc", entry.Data["request_id"])
	assert.NotNil(t, entry.Data["error"])
	assert.Empty(t, base.(*logrusLogger).entry.Data)
}

func TestInitMetrics_Idempotent(t *testing.T) {
	InitMetrics()
	InitMetrics()

	before := testutil.ToFloat64(HoldsExpired.WithLabelValues("sweeper"))
	HoldsExpired.WithLabelValues("sweeper").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(HoldsExpired.WithLabelValues("sweeper")))
}

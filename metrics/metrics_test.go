package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(ToolExecutions.WithLabelValues("create_invoice", "success"))
	ToolExecutions.WithLabelValues("create_invoice", "success").Inc()
	assert.InDelta(t, before+1, testutil.ToFloat64(ToolExecutions.WithLabelValues("create_invoice", "success")), 1e-9)

	before = testutil.ToFloat64(AuditRecordFailures)
	AuditRecordFailures.Inc()
	assert.InDelta(t, before+1, testutil.ToFloat64(AuditRecordFailures), 1e-9)
}

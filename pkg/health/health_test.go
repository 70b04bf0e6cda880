package health

import (
	"context"
	"testing"
	"time"

	"github.com/longbridgeapp/assert"

	"github.com/hyp3rd/ewrap"

	"github.com/hyp3rd/roomcast/pkg/breaker"
)

type fakePinger struct {
	err error
}

func (p *fakePinger) Ping(context.Context) error { return p.err }

func TestReportAllHealthy(t *testing.T) {
	reg := NewRegistry()
	reg.Register("store", PingCheck(&fakePinger{}))
	reg.Register("memory", MemoryCheck(1 << 20))

	report := reg.Report(context.Background())

	assert.Equal(t, StatusHealthy, report.Status)
	assert.Equal(t, 2, len(report.Checks))
}

func TestReportWorstStatusWins(t *testing.T) {
	cb := breaker.New("store", breaker.WithFailureThreshold(1), breaker.WithTimeout(time.Minute))
	_ = cb.Execute(context.Background(), func(context.Context) error {
		return ewrap.New("down")
	})

	reg := NewRegistry()
	reg.Register("store", PingCheck(&fakePinger{}))
	reg.Register("store_breaker", BreakerCheck(cb))

	report := reg.Report(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)

	reg.Register("store", PingCheck(&fakePinger{err: ewrap.New("refused")}))

	report = reg.Report(context.Background())
	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.Equal(t, "refused", report.Checks["store"].Detail)
}

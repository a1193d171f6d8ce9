package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "civcal/internal/log"
)

const (
	DefaultRefreshSpec = "*/5 * * * *"
	refreshTimeout     = 30 * time.Second
)

type refresher struct {
	cron *cron.Cron
}

// StartAutoRefresh reloads the current range on the given cron schedule
// (standard 5-field syntax). Any previous schedule is replaced.
func (c *Controller) StartAutoRefresh(spec string, loc *time.Location) error {
	if spec == "" {
		spec = DefaultRefreshSpec
	}
	if loc == nil {
		loc = time.Local
	}

	cr := cron.New(cron.WithLocation(loc))
	_, err := cr.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		appLog.Debug("periodic calendar refresh")
		c.Refetch(ctx)
	})
	if err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}

	c.StopAutoRefresh()

	c.mu.Lock()
	c.refresh = &refresher{cron: cr}
	c.mu.Unlock()

	cr.Start()
	appLog.Info("periodic refresh scheduled", "spec", spec)
	return nil
}

// StopAutoRefresh stops the schedule and waits for a running refresh.
func (c *Controller) StopAutoRefresh() {
	c.mu.Lock()
	r := c.refresh
	c.refresh = nil
	c.mu.Unlock()

	if r == nil {
		return
	}
	ctx := r.cron.Stop()
	<-ctx.Done()
}

package coordinator

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"

	"citygasd/internal/metrics"
)

const refreshJobName = "refresh_factors"

// SettingRefreshInterval is the storage setting that overrides the refresh
// schedule at runtime. The value is either integer seconds or a standard
// cron expression.
const SettingRefreshInterval = "refresh_interval_seconds"

// Run drives periodic refreshes until ctx is canceled. The schedule is
// re-read from storage every control tick, and the next run is anchored on
// the completion of the previous one, so a slow supplier never causes
// overlapping refreshes. On-demand refreshes via Refresh do not move the
// schedule.
func (c *Coordinator) Run(ctx context.Context, intervalSetting string) error {
	if intervalSetting == "" {
		intervalSetting = "1800"
	}
	if val, err := c.store.GetSetting(ctx, SettingRefreshInterval); err == nil && val != "" {
		intervalSetting = val
	}

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	// Starting fresh: run immediately, then schedule from completion.
	nextRun := time.Now()

	log.Printf("coordinator: runner starting, provider=%s setting=%q", c.gateway.ID(), intervalSetting)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if val, err := c.store.GetSetting(ctx, SettingRefreshInterval); err == nil && val != "" {
				if val != intervalSetting {
					log.Printf("coordinator: interval updated from %q to %q", intervalSetting, val)
					intervalSetting = val
					nextRun = getNextRun(intervalSetting, time.Now())
				}
			}

			if time.Now().Before(nextRun) {
				continue
			}

			started := time.Now()
			out, err := c.Refresh(ctx)
			if err != nil {
				log.Printf("coordinator: refresh failed: %v", err)
			} else {
				log.Printf("coordinator: refresh status=%s updated=%d duration=%dms",
					out.Status, len(out.UpdatedFields), out.DurationMs)
			}

			metrics.UpdateJobMetrics(refreshJobName, started, err)
			errMsg := ""
			if err != nil {
				errMsg = err.Error()
			}
			if uerr := c.store.UpdateScheduledJob(ctx, refreshJobName, started,
				time.Since(started), err == nil, errMsg); uerr != nil {
				log.Printf("coordinator: record job run: %v", uerr)
			}

			nextRun = getNextRun(intervalSetting, time.Now())
		}
	}
}

// getNextRun interprets the schedule setting as integer seconds first, then
// as a cron expression, falling back to 30 minutes.
func getNextRun(setting string, lastRun time.Time) time.Time {
	if v, err := strconv.Atoi(setting); err == nil && v > 0 {
		return lastRun.Add(time.Duration(v) * time.Second)
	}
	if sched, err := cron.ParseStandard(setting); err == nil {
		return sched.Next(lastRun)
	}
	return lastRun.Add(30 * time.Minute)
}

package registry

import (
	"context"
	"time"

	"github.com/wcooke83/element-click-timer/internal/timer"
	logx "github.com/wcooke83/element-click-timer/pkg/logx"
)

// reconcile cleans a freshly loaded union of both tiers:
//
//  1. duplicate ids collapse to their first occurrence (durable tier wins,
//     since it is loaded first);
//  2. executed timers past the retention window are dropped;
//  3. tab- and session-tier timers whose tab the prober cannot resolve are
//     dropped, never left dangling.
func reconcile(ctx context.Context, in []timer.Timer, prober TabProber, retention timer.Retention, log logx.Logger) []timer.Timer {
	now := time.Now()
	seen := make(map[string]bool, len(in))
	out := make([]timer.Timer, 0, len(in))

	for _, t := range in {
		if t.ID == "" || seen[t.ID] {
			continue
		}
		seen[t.ID] = true

		if timer.Expired(t, retention, now) {
			log.Debug("dropping expired timer", logx.String("id", t.ID), logx.String("status", string(t.Status)))
			continue
		}

		if t.Persistence == timer.TierTab || t.Persistence == timer.TierSession {
			if prober != nil && !prober.Alive(ctx, t.TabID) {
				log.Info("dropping timer for missing tab",
					logx.String("id", t.ID),
					logx.String("tab", t.TabID),
					logx.String("tier", string(t.Persistence)))
				continue
			}
		}

		out = append(out, t)
	}
	return out
}

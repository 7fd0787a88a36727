package pilot

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/park285/Cheese-boardpilot/internal/position"
)

const maxAutoBackoff = 4 * time.Second

// autoLoop runs cycles back to back while auto mode is on. After a verified
// move it waits until the board shows something other than that move's result,
// i.e. the opponent replied. Playing black from the initial placement waits for
// white's first move the same way.
func (c *Controller) autoLoop(ctx context.Context, epoch uint64) {
	defer c.autoStopped(epoch)

	c.mu.Lock()
	var baseline *position.Board
	if c.last != nil {
		b := c.last.Board()
		baseline = &b
	} else if c.color == position.Black {
		b := position.Start().Board()
		baseline = &b
	}
	c.mu.Unlock()

	backoff := c.cfg.AutoPollInterval
	announced := false
	for {
		if ctx.Err() != nil || !c.autoEnabled(epoch) {
			return
		}

		if baseline != nil {
			if !announced {
				c.emit(Event{Kind: EventInfo, State: c.State(), Message: c.text("auto.waiting", nil)})
				announced = true
			}
			if !c.boardMoved(ctx, *baseline) {
				if sleep(ctx, c.cfg.AutoPollInterval) != nil {
					return
				}
				continue
			}
			if sleep(ctx, c.cfg.AutoSettleDelay) != nil {
				return
			}
			if !c.autoEnabled(epoch) {
				return
			}
		}

		if !c.claim(epoch) {
			if sleep(ctx, c.cfg.AutoPollInterval) != nil {
				return
			}
			continue
		}
		after, ok := c.runCycle(ctx, epoch)
		if ok {
			b := after.Board()
			baseline = &b
			announced = false
			backoff = c.cfg.AutoPollInterval
			continue
		}
		baseline = nil
		if sleep(ctx, backoff) != nil {
			return
		}
		backoff = min(2*backoff, maxAutoBackoff)
	}
}

// autoStopped releases the loop reservation for epoch. Auto may have been
// switched back on after the loop last saw it off; in that case a new loop is
// started under the same lock so the request is not lost.
func (c *Controller) autoStopped(epoch uint64) {
	c.mu.Lock()
	var restart func()
	if c.epoch == epoch {
		c.autoRunning = false
		restart = c.startAutoLocked(epoch)
	}
	c.mu.Unlock()
	if restart != nil {
		go restart()
	}
}

func (c *Controller) autoEnabled(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.auto && !c.closed && c.epoch == epoch
}

// boardMoved reads the board once and compares its placement with baseline.
// Read errors count as "not moved".
func (c *Controller) boardMoved(ctx context.Context, baseline position.Board) bool {
	c.mu.Lock()
	o, color, rights := c.orientation, c.color, c.rights
	c.mu.Unlock()

	obs, err := c.read(ctx, o, color, rights)
	if err != nil {
		c.logger.Debug("auto poll read failed", zap.Error(err))
		return false
	}
	return obs.Position.Board() != baseline
}

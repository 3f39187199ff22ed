package automation

import (
	"fmt"
	"time"

	"github.com/mzagorski/onewired/internal/device"
)

// sweepLocked scans every actuator for timer expiry, once per cycle and
// independent of sensor events.
//
// An actuator expires once the time since its last toggle exceeds both the
// flip-flop window and its stop-after duration. An energized expiree is
// turned off and its toggle timestamp moves to the turn-off instant, keeping
// it under debounce; a de-energized expiree (an override that ran out while
// off) just has its automation state cleared, with no hardware effect and no
// counter.
//
// Caller must hold the relay registry lock.
func (e *Engine) sweepLocked(now time.Time) {
	e.relays.EachActuatorLocked(func(a device.Actuator) {
		st := a.State()
		if st.LastToggled == nil || st.StopAfter == nil {
			return
		}

		elapsed := now.Sub(*st.LastToggled)
		if elapsed <= MinToggleDelay || elapsed <= *st.StopAfter {
			return
		}

		if a.IsEnergized() {
			if err := a.SetEnergized(false); err != nil {
				e.logger.Warn("auto-off failed", "actuator", a.ActuatorName(), "error", err)
			}
			ts := now
			st.LastToggled = &ts
			st.StopAfter = nil
			st.OverrideMode = false

			e.logger.Info("actuator expired, turned off",
				"actuator", a.ActuatorName(),
				"after", elapsed.String(),
			)
			e.counterEventLocked(now, a, false, "expiry")
			return
		}

		st.LastToggled = nil
		st.StopAfter = nil
		st.OverrideMode = false
		e.logger.Debug("override expired while off", "actuator", a.ActuatorName())
	})
}

// flushLocked writes every relay board whose pending value differs from its
// last confirmed value, exactly once per board.
//
// A pending value equal to the confirmed one is discarded without touching
// hardware. A failed write is logged and the pending value kept, so the
// board is retried on a later cycle; the confirmed value only advances on a
// successful write.
//
// Caller must hold the relay registry lock.
func (e *Engine) flushLocked() {
	e.relays.EachBoardLocked(func(b *device.RelayBoard) {
		if b.Pending == nil {
			return
		}
		if b.LastValue != nil && *b.Pending == *b.LastValue {
			b.Pending = nil
			return
		}

		value := *b.Pending
		if err := e.bus.WriteState(b.ID, value); err != nil {
			e.logger.Warn("relay board write failed",
				"board", b.ID.String(),
				"error", err,
			)
			return
		}

		b.LastValue = &value
		b.Pending = nil
		e.logger.Debug("relay board flushed",
			"board", b.ID.String(),
			"value", fmt.Sprintf("%08b", value),
		)
	})
}

// lightCommand is a network push captured under the registry lock. The
// light's Addr and transport are immutable, so the push itself runs with no
// lock held.
type lightCommand struct {
	light *device.Yeelight
	on    bool
}

// collectLightsLocked gathers every light with an unconfirmed desired state.
// A light whose earlier push failed is collected again, so an unreachable
// bulb is retried each cycle.
//
// Caller must hold the relay registry lock.
func (e *Engine) collectLightsLocked() []lightCommand {
	var cmds []lightCommand
	e.relays.EachActuatorLocked(func(a device.Actuator) {
		y, ok := a.(*device.Yeelight)
		if !ok || y.Pending == nil {
			return
		}
		cmds = append(cmds, lightCommand{light: y, on: *y.Pending})
	})
	return cmds
}

// pushLights drives the transport for each command and confirms the ones
// that succeed. A failed push keeps the pending marker, and a toggle that
// raced the push wins over the confirmation.
//
// Caller must NOT hold the registry locks; this is where slow bulbs spend
// their time.
func (e *Engine) pushLights(cmds []lightCommand) {
	if len(cmds) == 0 {
		return
	}

	done := make([]lightCommand, 0, len(cmds))
	for _, c := range cmds {
		if err := c.light.Push(c.on); err != nil {
			e.logger.Warn("light push failed, will retry",
				"light", c.light.Name,
				"error", err,
			)
			continue
		}
		done = append(done, c)
	}
	if len(done) == 0 {
		return
	}

	e.relays.Lock()
	for _, c := range done {
		c.light.ConfirmPending(c.on)
	}
	e.relays.Unlock()
}

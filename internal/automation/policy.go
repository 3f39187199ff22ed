package automation

import (
	"time"

	"github.com/mzagorski/onewired/internal/device"
	"github.com/mzagorski/onewired/internal/store"
)

// dispatchLocked resolves a transition's sensor kind and applies the
// matching policy to every associated actuator.
//
// Caller must hold both registry locks.
func (e *Engine) dispatchLocked(now time.Time, t transition) {
	if t.sensor == nil {
		// Wired but unconfigured PIO; the detector already advanced the
		// board baseline
		return
	}

	kind, ok := e.sensors.KindNameLocked(t.sensor.KindID)
	if !ok {
		e.logger.Error("sensor kind not in kind table",
			"sensor", t.sensor.ID,
			"kind_id", t.sensor.KindID,
		)
		return
	}

	switch kind {
	case device.KindPIRTrigger:
		if !t.nowOn {
			// Motion cleared; holds run out on their own
			return
		}
		e.emitEvent(store.Event{Kind: store.IncrementSensorCounter, ID: t.sensor.ID})
		e.eachActuatorLocked(t.sensor, func(a device.Actuator) {
			e.applyPIRLocked(now, a)
		})

	case device.KindSwitch:
		// Every flip of a physical switch is a toggle request
		e.emitEvent(store.Event{Kind: store.IncrementSensorCounter, ID: t.sensor.ID})
		e.eachActuatorLocked(t.sensor, func(a device.Actuator) {
			e.applySwitchLocked(now, a, "switch")
		})

	default:
		e.logger.Error("unhandled sensor kind",
			"sensor", t.sensor.ID,
			"kind", kind,
		)
	}
}

// eachActuatorLocked visits the actuators a sensor is associated with.
// Unknown ids are logged and skipped; a stale association must not stop the
// remaining actuators from reacting.
func (e *Engine) eachActuatorLocked(s *device.Sensor, fn func(device.Actuator)) {
	for _, id := range s.RelayIDs {
		r, ok := e.relays.RelayLocked(id)
		if !ok {
			e.logger.Warn("sensor references unknown relay", "sensor", s.ID, "relay", id)
			continue
		}
		fn(r)
	}
	for _, id := range s.LightIDs {
		y, ok := e.relays.LightLocked(id)
		if !ok {
			e.logger.Warn("sensor references unknown light", "sensor", s.ID, "light", id)
			continue
		}
		fn(y)
	}
}

// applyPIRLocked applies the motion policy to one actuator.
//
// An energized actuator is prolonged. A de-energized one is switched on for
// its PIR hold time, unless it is excluded from PIR control, still inside an
// override window (manual off wins), or inside the flip-flop window.
func (e *Engine) applyPIRLocked(now time.Time, a device.Actuator) {
	cfg := a.Config()
	if cfg.PIRExclude {
		return
	}

	if a.IsEnergized() {
		e.prolongLocked(now, a)
		return
	}

	st := a.State()
	if st.OverrideMode {
		// Switched off manually; override holds until it expires
		return
	}
	if !e.toggleAllowed(now, a) {
		e.logger.Warn("pir trigger suppressed by flip-flop protection",
			"actuator", a.ActuatorName(),
		)
		return
	}

	if err := a.SetEnergized(true); err != nil {
		e.logger.Warn("energize failed", "actuator", a.ActuatorName(), "error", err)
	}
	ts := now
	hold := cfg.PIRHold
	st.LastToggled = &ts
	st.StopAfter = &hold
	st.OverrideMode = false

	e.logger.Info("actuator energized by motion",
		"actuator", a.ActuatorName(),
		"hold", hold.String(),
	)
	e.counterEventLocked(now, a, true, "pir")
}

// prolongLocked extends an energized actuator's active window in response to
// continued motion.
//
// Under override the window is only topped up once less than
// DefaultPIRProlong remains, and only back up to that floor: a fresh manual
// hold always outlasts motion until it is nearly expiring. Outside override
// the window is reset to the actuator's PIR hold from now.
func (e *Engine) prolongLocked(now time.Time, a device.Actuator) {
	st := a.State()
	if st.LastToggled == nil {
		// Energized without toggle bookkeeping (e.g. first cycle after a
		// reload); nothing to extend
		return
	}
	elapsed := now.Sub(*st.LastToggled)

	if st.OverrideMode {
		if st.StopAfter == nil {
			return
		}
		remaining := *st.StopAfter - elapsed
		if remaining >= DefaultPIRProlong {
			return
		}
		ext := elapsed + DefaultPIRProlong
		st.StopAfter = &ext
		e.logger.Debug("override window prolonged by motion",
			"actuator", a.ActuatorName(),
		)
		return
	}

	ext := elapsed + a.Config().PIRHold
	st.StopAfter = &ext
	e.logger.Debug("hold prolonged by motion", "actuator", a.ActuatorName())
}

// applySwitchLocked applies a manual toggle: flip the output regardless of
// current state and enter override mode for the switch hold time.
//
// Returns false if flip-flop protection suppressed the request.
func (e *Engine) applySwitchLocked(now time.Time, a device.Actuator, source string) bool {
	if !e.toggleAllowed(now, a) {
		e.logger.Warn("switch toggle suppressed by flip-flop protection",
			"actuator", a.ActuatorName(),
			"source", source,
		)
		return false
	}

	on := !a.IsEnergized()
	if err := a.SetEnergized(on); err != nil {
		e.logger.Warn("toggle failed", "actuator", a.ActuatorName(), "error", err)
	}

	st := a.State()
	ts := now
	hold := a.Config().SwitchHold
	st.LastToggled = &ts
	st.StopAfter = &hold
	st.OverrideMode = true

	e.logger.Info("actuator toggled",
		"actuator", a.ActuatorName(),
		"energized", on,
		"source", source,
		"hold", hold.String(),
	)
	e.counterEventLocked(now, a, on, source)
	return true
}

// toggleAllowed is the flip-flop guard: a toggle is allowed once at least
// MinToggleDelay has passed since the last one.
func (e *Engine) toggleAllowed(now time.Time, a device.Actuator) bool {
	st := a.State()
	if st.LastToggled == nil {
		return true
	}
	return now.Sub(*st.LastToggled) >= MinToggleDelay
}

package automation

import (
	"github.com/mzagorski/onewired/internal/device"
)

// transition is one observed change of a monitored sensor bit.
type transition struct {
	board *device.SensorBoard

	// bit is the PIO position that changed.
	bit uint8

	// sensor is the logical sensor attached to the bit, nil if the PIO is
	// wired but unconfigured.
	sensor *device.Sensor

	// nowOn is the bit's new level.
	nowOn bool
}

// detectLocked reads every sensor board and diffs against its last-seen
// value, yielding transitions for the monitored PIO bits.
//
// The first successful read of a board records a baseline and yields
// nothing. A read error is logged and skipped: the board contributes no
// transitions this cycle and keeps its old baseline, so a level change
// during the outage is still picked up once reads recover. The last-seen
// value is updated unconditionally after evaluation, including for bits
// with no sensor attached, so boards with a single wired PIO keep polling.
//
// Caller must hold the sensor registry lock.
func (e *Engine) detectLocked() []transition {
	var out []transition

	e.sensors.EachBoardLocked(func(b *device.SensorBoard) {
		value, err := e.bus.ReadState(b.ID)
		if err != nil {
			e.logger.Warn("sensor board read failed",
				"board", b.ID.String(),
				"error", err,
			)
			return
		}

		if b.LastValue == nil {
			// First read: baseline only
			v := value
			b.LastValue = &v
			e.logger.Debug("sensor board baseline recorded",
				"board", b.ID.String(),
				"value", value,
			)
			return
		}

		last := *b.LastValue
		if last != value {
			for _, bit := range device.PIOBits {
				mask := byte(1) << bit
				if last&mask == value&mask {
					continue
				}
				sensor, _ := e.sensors.SensorAtLocked(b.ID, bit)
				out = append(out, transition{
					board:  b,
					bit:    bit,
					sensor: sensor,
					nowOn:  value&mask != 0,
				})
			}
		}

		v := value
		b.LastValue = &v
	})

	return out
}

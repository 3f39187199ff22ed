package mqtt

import "fmt"

// Topic prefixes for the daemon's MQTT surface.
//
// All topics use the flat scheme: onewired/{category}/{kind}/{id}
// where kind is "relay" or "light" and id is the device's numeric ID.
const (
	// TopicPrefix is the base for all daemon topics.
	TopicPrefix = "onewired"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "onewired/system"
)

// Actuator kinds used in topic paths.
const (
	KindRelay = "relay"
	KindLight = "light"
)

// Topics provides builders for the daemon's MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.ActuatorState(mqtt.KindRelay, 3)
//	// Returns: "onewired/state/relay/3"
type Topics struct{}

// ActuatorState returns the topic for actuator state updates.
// State messages are published retained so new subscribers see current state.
//
// Example: onewired/state/relay/3
func (Topics) ActuatorState(kind string, id int) string {
	return fmt.Sprintf("%s/state/%s/%d", TopicPrefix, kind, id)
}

// ActuatorCommand returns the topic for toggle commands to an actuator.
//
// Example: onewired/command/light/1
func (Topics) ActuatorCommand(kind string, id int) string {
	return fmt.Sprintf("%s/command/%s/%d", TopicPrefix, kind, id)
}

// SystemStatus returns the daemon status topic, also used as the LWT topic.
//
// Example: onewired/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllCommands returns a pattern matching all actuator command topics.
//
// Pattern: onewired/command/+/+
func (Topics) AllCommands() string {
	return fmt.Sprintf("%s/command/+/+", TopicPrefix)
}

// AllStates returns a pattern matching all actuator state topics.
//
// Pattern: onewired/state/+/+
func (Topics) AllStates() string {
	return fmt.Sprintf("%s/state/+/+", TopicPrefix)
}

// AllTopics returns a pattern matching all daemon topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: onewired/#
func (Topics) AllTopics() string {
	return "onewired/#"
}

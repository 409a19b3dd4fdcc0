// Package telemetry provides swarm statistics, performance timing, CSV
// output, tick traces and metrics.
package telemetry

import "fmt"

// EventType identifies telemetry events.
type EventType uint8

const (
	EventSpawn EventType = iota
	EventWave
	EventAttackStart
	EventAttackEnd
	EventShot
	EventBulletHit
	EventKill
	EventPlayerHit
	EventExpired
	numEventTypes
)

var eventNames = [numEventTypes]string{
	EventSpawn:       "spawn",
	EventWave:        "wave",
	EventAttackStart: "attack_start",
	EventAttackEnd:   "attack_end",
	EventShot:        "shot",
	EventBulletHit:   "bullet_hit",
	EventKill:        "kill",
	EventPlayerHit:   "player_hit",
	EventExpired:     "expired",
}

func (t EventType) String() string {
	if t < numEventTypes {
		return eventNames[t]
	}
	return fmt.Sprintf("event(%d)", uint8(t))
}

// MarshalText encodes the event type by name in traces.
func (t EventType) MarshalText() ([]byte, error) {
	if t >= numEventTypes {
		return nil, fmt.Errorf("unknown event type %d", uint8(t))
	}
	return []byte(eventNames[t]), nil
}

// UnmarshalText decodes an event type name.
func (t *EventType) UnmarshalText(b []byte) error {
	for i, name := range eventNames {
		if name == string(b) {
			*t = EventType(i)
			return nil
		}
	}
	return fmt.Errorf("unknown event type %q", b)
}

// Event is a batch of same-typed occurrences within one tick.
type Event struct {
	Type  EventType `json:"type"`
	Tick  int32     `json:"tick"`
	Count int       `json:"count"`
	Value int       `json:"value,omitempty"` // wave number for EventWave
}

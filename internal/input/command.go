package input

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"driftpursuit/rewind/internal/coordinator"
)

var (
	// ErrUnknownAction is returned for actions no binding maps to.
	ErrUnknownAction = errors.New("unknown action")
	// ErrInvalidArgument is returned when an action's arguments are out of range.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Action names one player or operator control.
type Action string

const (
	ActionRewindStart         Action = "rewind_start"
	ActionRewindStop          Action = "rewind_stop"
	ActionFastForwardStart    Action = "fast_forward_start"
	ActionFastForwardStop     Action = "fast_forward_stop"
	ActionToggleScrub         Action = "toggle_scrub"
	ActionSetSpeed            Action = "set_speed"
	ActionToggleTimeline      Action = "toggle_timeline"
	ActionToggleParticipation Action = "toggle_participation"
	ActionMove                Action = "move"
	ActionJump                Action = "jump"
	ActionStopJump            Action = "stop_jump"
	ActionLook                Action = "look"
)

// Binding documents the default device mapping of an action.
type Binding struct {
	Action      Action `json:"action"`
	Key         string `json:"key"`
	Description string `json:"description"`
}

// Bindings lists every action with its default key, in presentation order.
var Bindings = []Binding{
	{ActionRewindStart, "R (hold)", "Rewind every participating entity at the selected speed."},
	{ActionRewindStop, "R (release)", "Stop rewinding."},
	{ActionFastForwardStart, "F (hold)", "Fast-forward every participating entity at the selected speed."},
	{ActionFastForwardStop, "F (release)", "Stop fast-forwarding."},
	{ActionToggleScrub, "T", "Freeze every participating entity at its cursor, or release the freeze."},
	{ActionSetSpeed, "1-5", "Select a speed preset: slowest, slower, normal, faster, fastest."},
	{ActionToggleTimeline, "V", "Show or hide history markers."},
	{ActionToggleParticipation, "P", "Include or exclude the player entity from time manipulation."},
	{ActionMove, "WASD", "Move the pawn; ignored while time is manipulated."},
	{ActionJump, "Space (press)", "Jump; ignored while time is manipulated."},
	{ActionStopJump, "Space (release)", "Cancel a pending jump."},
	{ActionLook, "Mouse", "Turn the pawn, or orbit the overview camera while time is manipulated."},
}

// Command is one decoded control message.
type Command struct {
	Action Action  `json:"action"`
	Preset string  `json:"preset,omitempty"`
	X      float64 `json:"x,omitempty"`
	Y      float64 `json:"y,omitempty"`
}

// Envelope wraps a command with the metadata the gate checks.
type Envelope struct {
	Sequence  uint64  `json:"seq"`
	SentAtMs  int64   `json:"sent_at_ms,omitempty"`
	Command   Command `json:"command"`
	RequestID string  `json:"request_id,omitempty"`
}

// DecodeEnvelope parses a JSON control frame.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return Envelope{}, fmt.Errorf("decode control frame: %w", err)
	}
	envelope.Command = envelope.Command.Normalized()
	return envelope, nil
}

// Normalized returns c with its action trimmed and lower-cased.
func (c Command) Normalized() Command {
	c.Action = Action(strings.ToLower(strings.TrimSpace(string(c.Action))))
	return c
}

// maxLookDelta bounds per-frame look input in degrees.
const maxLookDelta = 90.0

// Validate checks the action is known and its arguments are in range.
func (c Command) Validate() error {
	switch c.Action {
	case ActionRewindStart, ActionRewindStop, ActionFastForwardStart, ActionFastForwardStop,
		ActionToggleScrub, ActionToggleTimeline, ActionToggleParticipation, ActionJump, ActionStopJump:
		return nil
	case ActionSetSpeed:
		if _, err := coordinator.ParsePreset(c.Preset); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		return nil
	case ActionMove:
		if !inRange(c.X, 1) || !inRange(c.Y, 1) {
			return fmt.Errorf("%w: move axes must be within [-1, 1]", ErrInvalidArgument)
		}
		return nil
	case ActionLook:
		if !inRange(c.X, maxLookDelta) || !inRange(c.Y, maxLookDelta) {
			return fmt.Errorf("%w: look deltas must be within ±%v degrees", ErrInvalidArgument, maxLookDelta)
		}
		return nil
	default:
		return fmt.Errorf("%w %q", ErrUnknownAction, c.Action)
	}
}

func inRange(v, limit float64) bool {
	return !math.IsNaN(v) && v >= -limit && v <= limit
}

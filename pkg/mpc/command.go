package mpc

import "fmt"

// Action names a playback command.
type Action string

const (
	ActionStop        Action = "stop"
	ActionPlay        Action = "play"
	ActionTogglePause Action = "toggle"
	ActionNext        Action = "next"
	ActionPrevious    Action = "prev"
	ActionSetRandom   Action = "random"
	ActionSetConsume  Action = "consume"
	ActionSetRepeat   Action = "repeat"
	ActionSetSingle   Action = "single"
	ActionSetVolume   Action = "set_volume"
)

// Command is a single playback request. Flag is read by the set-mode
// actions, Volume by ActionSetVolume.
type Command struct {
	Action Action
	Flag   bool
	Volume int
}

// Command constructors.

func Stop() Command { return Command{Action: ActionStop} }
func Play() Command { return Command{Action: ActionPlay} }
func TogglePause() Command { return Command{Action: ActionTogglePause} }
func Next() Command { return Command{Action: ActionNext} }
func Previous() Command { return Command{Action: ActionPrevious} }
func SetRandom(on bool) Command { return Command{Action: ActionSetRandom, Flag: on} }
func SetConsume(on bool) Command { return Command{Action: ActionSetConsume, Flag: on} }
func SetRepeat(on bool) Command { return Command{Action: ActionSetRepeat, Flag: on} }
func SetSingle(on bool) Command { return Command{Action: ActionSetSingle, Flag: on} }
func SetVolume(v int) Command { return Command{Action: ActionSetVolume, Volume: v} }

// Validate checks a command before any request is sent.
func (c Command) Validate() error {
	switch c.Action {
	case ActionStop, ActionPlay, ActionTogglePause, ActionNext, ActionPrevious,
		ActionSetRandom, ActionSetConsume, ActionSetRepeat, ActionSetSingle:
		return nil
	case ActionSetVolume:
		if c.Volume < 0 || c.Volume > 100 {
			return InvalidArgument(string(c.Action), fmt.Sprintf("volume %d out of range 0-100", c.Volume))
		}
		return nil
	default:
		return InvalidArgument("run", fmt.Sprintf("unknown command %q", c.Action))
	}
}

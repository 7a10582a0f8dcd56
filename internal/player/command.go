package player

import (
	"go.uber.org/zap"

	"github.com/mikey-austin/mpdbridge/internal/ports"
	"github.com/mikey-austin/mpdbridge/pkg/mpc"
)

// Run sends one playback command. Validation failures are returned before
// any request is made; daemon failures surface as a generic CommandError.
func (c *Connection) Run(cmd mpc.Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	op := string(cmd.Action)
	return c.do(op, func(t ports.Transport) error {
		if err := send(t, cmd); err != nil {
			c.log.Debug("command failed", zap.String("command", op), zap.Error(err))
			return mpc.CommandError(op, err)
		}
		return nil
	})
}

func send(t ports.Transport, cmd mpc.Command) error {
	switch cmd.Action {
	case mpc.ActionStop:
		return t.Stop()
	case mpc.ActionPlay:
		return t.Play()
	case mpc.ActionTogglePause:
		return t.TogglePause()
	case mpc.ActionNext:
		return t.Next()
	case mpc.ActionPrevious:
		return t.Previous()
	case mpc.ActionSetRandom:
		return t.SetRandom(cmd.Flag)
	case mpc.ActionSetConsume:
		return t.SetConsume(cmd.Flag)
	case mpc.ActionSetRepeat:
		return t.SetRepeat(cmd.Flag)
	case mpc.ActionSetSingle:
		return t.SetSingle(cmd.Flag)
	case mpc.ActionSetVolume:
		return t.SetVolume(cmd.Volume)
	}
	// Validate rejects everything else.
	return nil
}

package remotedesk

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/bytedance/sonic"
	"github.com/fixdesk/remotedesk/shared"
	"github.com/goccy/go-yaml"
)

type Channel string

const (
	ChannelMove  Channel = "robot-mouse-move"
	ChannelClick Channel = "robot-mouse-click"
	ChannelKey   Channel = "robot-key-tap"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelMove, ChannelClick, ChannelKey:
		return true
	}
	return false
}

// Point is a pointer position as a fraction of the capture viewport.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Command is one remote-input instruction. Only the payload field matching
// Channel is meaningful.
type Command struct {
	Channel Channel
	Point   Point
	Key     string
}

func MoveCommand(x, y float64) Command {
	return Command{Channel: ChannelMove, Point: Point{X: x, Y: y}}
}

func ClickCommand() Command {
	return Command{Channel: ChannelClick}
}

func KeyCommand(key string) Command {
	return Command{Channel: ChannelKey, Key: key}
}

func (c Command) payload() any {
	switch c.Channel {
	case ChannelMove:
		return c.Point
	case ChannelKey:
		return c.Key
	}
	return nil
}

type wireCommand struct {
	Channel Channel         `json:"channel"`
	Payload json.RawMessage `json:"payload"`
}

type wirePoint struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

func (c Command) MarshalJSON() ([]byte, error) {
	if !c.Channel.Valid() {
		return nil, fmt.Errorf("unknown channel %q", c.Channel)
	}
	payload, err := sonic.Marshal(c.payload())
	if err != nil {
		return nil, fmt.Errorf("marshaling payload: %w", err)
	}
	return sonic.Marshal(wireCommand{Channel: c.Channel, Payload: payload})
}

func (c *Command) UnmarshalJSON(data []byte) error {
	var w wireCommand
	if err := sonic.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrCommandDecode, err)
	}
	cmd := Command{Channel: w.Channel}
	switch w.Channel {
	case ChannelMove:
		var p wirePoint
		if err := sonic.Unmarshal(w.Payload, &p); err != nil {
			return fmt.Errorf("%w: move payload: %v", shared.ErrCommandDecode, err)
		}
		if p.X == nil || p.Y == nil {
			return fmt.Errorf("%w: move payload needs x and y", shared.ErrCommandDecode)
		}
		if !finite(*p.X) || !finite(*p.Y) {
			return fmt.Errorf("%w: move payload is not finite", shared.ErrCommandDecode)
		}
		cmd.Point = Point{X: *p.X, Y: *p.Y}
	case ChannelClick:
	case ChannelKey:
		if err := sonic.Unmarshal(w.Payload, &cmd.Key); err != nil {
			return fmt.Errorf("%w: key payload: %v", shared.ErrCommandDecode, err)
		}
		if cmd.Key == "" {
			return fmt.Errorf("%w: empty key", shared.ErrCommandDecode)
		}
	default:
		return fmt.Errorf("%w: unknown channel %q", shared.ErrCommandDecode, w.Channel)
	}
	*c = cmd
	return nil
}

// MarshalYAML renders the wire shape, used when printing recorded actions.
func (c Command) MarshalYAML() ([]byte, error) {
	return yaml.Marshal(map[string]any{
		"channel": string(c.Channel),
		"payload": c.payload(),
	})
}

func (c Command) String() string {
	switch c.Channel {
	case ChannelMove:
		return fmt.Sprintf("%s(%.4f, %.4f)", c.Channel, c.Point.X, c.Point.Y)
	case ChannelKey:
		return fmt.Sprintf("%s(%s)", c.Channel, c.Key)
	}
	return string(c.Channel)
}

// EncodeCommand serializes c for the data channel.
func EncodeCommand(c Command) ([]byte, error) {
	return c.MarshalJSON()
}

// DecodeCommand parses one inbound data channel message. Every failure
// wraps shared.ErrCommandDecode.
func DecodeCommand(data []byte) (Command, error) {
	var c Command
	if err := c.UnmarshalJSON(data); err != nil {
		return Command{}, err
	}
	return c, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

package tools

import (
	"github.com/go-vgo/robotgo"
)

// RobotDriver injects input into the local desktop session.
type RobotDriver struct{}

func NewRobotDriver() *RobotDriver { return &RobotDriver{} }

func (RobotDriver) ScreenSize() (int, int) { return robotgo.GetScreenSize() }

func (RobotDriver) MoveTo(x, y int) { robotgo.Move(x, y) }

func (RobotDriver) Click() { robotgo.Click() }

func (RobotDriver) KeyTap(key string, modifiers ...string) error {
	args := make([]interface{}, 0, len(modifiers))
	for _, m := range modifiers {
		args = append(args, m)
	}
	return robotgo.KeyTap(key, args...)
}

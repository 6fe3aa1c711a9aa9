package service

import (
	"errors"
	"strings"
)

// Command kinds accepted by the control loop.
const (
	CommandToggle = "TOGGLE"
	CommandArm    = "ARM"
	CommandDisarm = "DISARM"
)

// Where a command came from; recorded in event metadata.
const (
	SourceButton = "button"
	SourceAPI    = "api"
	SourceMQTT   = "mqtt"
)

const commandBuffer = 16

var (
	ErrUnknownCommand = errors.New("unknown watch command")
	ErrQueueFull      = errors.New("watch command queue is full")
)

// Command asks the control loop to change the armed flag.
type Command struct {
	Kind   string
	Source string
}

// ParseCommandKind accepts TOGGLE, ARM/ON and DISARM/OFF in any case.
func ParseCommandKind(s string) (string, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case CommandToggle:
		return CommandToggle, nil
	case CommandArm, "ON":
		return CommandArm, nil
	case CommandDisarm, "OFF":
		return CommandDisarm, nil
	default:
		return "", ErrUnknownCommand
	}
}

// apply returns the armed value after cmd.
func (c Command) apply(armed bool) bool {
	switch c.Kind {
	case CommandToggle:
		return !armed
	case CommandArm:
		return true
	case CommandDisarm:
		return false
	default:
		return armed
	}
}

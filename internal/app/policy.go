package app

import (
	"fmt"

	"github.com/dkeye/CallRelay/internal/core"
)

type BackpressureAction int

const (
	DropFrame BackpressureAction = iota
	KickMember
)

// Policy decides what happens to a target whose outbound buffer is full.
type Policy interface {
	OnBackPressure(target *core.Session) BackpressureAction
}

// DropPolicy loses the frame and keeps the slow target connected.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(*core.Session) BackpressureAction { return DropFrame }

// KickPolicy disconnects a target that cannot keep up.
type KickPolicy struct{}

func (KickPolicy) OnBackPressure(*core.Session) BackpressureAction { return KickMember }

func PolicyByName(name string) (Policy, error) {
	switch name {
	case "", "drop":
		return DropPolicy{}, nil
	case "kick":
		return KickPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown backpressure policy %q", name)
	}
}

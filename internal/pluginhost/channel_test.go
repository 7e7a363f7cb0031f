package pluginhost

import (
	"testing"

	"github.com/meadowlark-audio/engine/internal/reducingqueue"
)

func TestActivationLifecycleTransitions(t *testing.T) {
	c := NewChannel(4)
	if c.State() != StateInactive {
		t.Fatalf("initial state = %v, want Inactive", c.State())
	}
	c.RequestActivate()
	if c.State() != StateActive {
		t.Fatalf("state after RequestActivate = %v, want Active", c.State())
	}
	c.RequestDeactivate()
	if c.State() != StateWaitingToDrop {
		t.Fatalf("state after RequestDeactivate = %v, want WaitingToDrop", c.State())
	}
	c.ObserveDropped()
	if c.State() != StateDroppedAndReadyToDeactivate {
		t.Fatalf("state after ObserveDropped = %v, want DroppedAndReadyToDeactivate", c.State())
	}
	c.FinishDeactivate()
	if c.State() != StateInactive {
		t.Fatalf("state after FinishDeactivate = %v, want Inactive", c.State())
	}
}

func TestValueAndModQueuesAreIndependent(t *testing.T) {
	c := NewChannel(2)
	c.PushValue(0, 1.0)
	c.PushModulation(0, 0.5)

	var gotValue, gotMod reducingqueue.Update
	c.DrainToProcessor(
		func(key int, u reducingqueue.Update) { gotValue = u },
		func(key int, u reducingqueue.Update) { gotMod = u },
	)
	if !gotValue.HasValue || gotValue.Value != 1.0 {
		t.Fatalf("value update = %+v, want HasValue=true Value=1.0", gotValue)
	}
	if !gotMod.HasValue || gotMod.Value != 0.5 {
		t.Fatalf("mod update = %+v, want HasValue=true Value=0.5", gotMod)
	}
}

func TestMirrorDrainsProcessorInitiatedChanges(t *testing.T) {
	c := NewChannel(1)
	c.PushFromProcessor(0, reducingqueue.Update{Value: 0.25, HasValue: true})
	c.PushFromProcessor(0, reducingqueue.Update{HasGesture: true, GestureBegin: true})

	var got reducingqueue.Update
	n := c.DrainMirror(func(key int, u reducingqueue.Update) { got = u })
	if n != 1 {
		t.Fatalf("drained %d slots, want 1 (merged)", n)
	}
	if !got.HasValue || got.Value != 0.25 {
		t.Fatalf("merged update missing value: %+v", got)
	}
	if !got.HasGesture || !got.GestureBegin {
		t.Fatalf("merged update missing gesture: %+v", got)
	}
}

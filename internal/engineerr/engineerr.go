// Package engineerr defines the caller-visible error taxonomy: concrete
// Go types so callers can dispatch on kind with errors.As instead of
// parsing strings.
package engineerr

import "fmt"

// AudioPortsExtDuplicateID is returned when a plugin's declared audio
// ports contain two entries sharing a stable ID.
type AudioPortsExtDuplicateID struct {
	IsInput bool
	ID      uint32
}

func (e AudioPortsExtDuplicateID) Error() string {
	return fmt.Sprintf("audio_ports_ext: duplicate stable id %d (is_input=%v)", e.ID, e.IsInput)
}

// NotePortsExtDuplicateID is the note-port analogue of AudioPortsExtDuplicateID.
type NotePortsExtDuplicateID struct {
	IsInput bool
	ID      uint32
}

func (e NotePortsExtDuplicateID) Error() string {
	return fmt.Sprintf("note_ports_ext: duplicate stable id %d (is_input=%v)", e.ID, e.IsInput)
}

// FactoryFailedToCreateNewInstance wraps a factory's instantiation
// failure for a given plugin id.
type FactoryFailedToCreateNewInstance struct {
	RDN   string
	Cause error
}

func (e FactoryFailedToCreateNewInstance) Error() string {
	return fmt.Sprintf("factory failed to create instance of %q: %v", e.RDN, e.Cause)
}

func (e FactoryFailedToCreateNewInstance) Unwrap() error { return e.Cause }

// NotFound is returned when no factory recognizes an rdn.
type NotFound struct {
	RDN string
}

func (e NotFound) Error() string { return fmt.Sprintf("plugin %q not found", e.RDN) }

// FormatNotFound is returned when an rdn resolves to a plugin binary but
// not in the requested format (e.g. not a CLAP entry).
type FormatNotFound struct {
	RDN    string
	Format string
}

func (e FormatNotFound) Error() string {
	return fmt.Sprintf("plugin %q has no %q format entry", e.RDN, e.Format)
}

// PluginFailedToActivate wraps an activate() failure.
type PluginFailedToActivate struct {
	Cause error
}

func (e PluginFailedToActivate) Error() string { return fmt.Sprintf("plugin failed to activate: %v", e.Cause) }
func (e PluginFailedToActivate) Unwrap() error { return e.Cause }

// CycleDetected is returned by a graph edit that would introduce a cycle.
type CycleDetected struct{}

func (e CycleDetected) Error() string { return "connecting these ports would create a cycle" }

// PortDoesNotExist is returned when a graph edit names a port channel
// a plugin does not declare.
type PortDoesNotExist struct {
	Channel string
}

func (e PortDoesNotExist) Error() string { return fmt.Sprintf("port %s does not exist", e.Channel) }

// PortAlreadyConnected is returned when an edge duplicates an existing one.
type PortAlreadyConnected struct {
	Channel string
}

func (e PortAlreadyConnected) Error() string {
	return fmt.Sprintf("port %s is already connected", e.Channel)
}

// PluginInstanceAppearsTwice is a schedule-verification failure: the
// same plugin instance was scheduled in more than one task.
type PluginInstanceAppearsTwice struct {
	Instance string
}

func (e PluginInstanceAppearsTwice) Error() string {
	return fmt.Sprintf("plugin instance %s appears in more than one task", e.Instance)
}

// BufferAppearsTwiceInSameTask is a schedule-verification failure: a
// buffer ID was aliased as both a read and a write (or twice) within one task.
type BufferAppearsTwiceInSameTask struct {
	Buffer string
}

func (e BufferAppearsTwiceInSameTask) Error() string {
	return fmt.Sprintf("buffer %s appears twice in the same task", e.Buffer)
}

// SumNodeWithLessThanTwoInputs is a schedule-verification failure.
type SumNodeWithLessThanTwoInputs struct{}

func (e SumNodeWithLessThanTwoInputs) Error() string { return "sum node has fewer than 2 inputs" }

// EngineCrashed is surfaced when the engine detects an unrecoverable
// fault and stops calling process on the audio thread.
type EngineCrashed struct {
	Reason string
}

func (e EngineCrashed) Error() string { return fmt.Sprintf("engine crashed: %s", e.Reason) }

// EngineDeactivatedGracefully is not an error condition in the
// exceptional sense but is reported through the same channel as
// EngineCrashed so callers can distinguish a requested shutdown from a
// fault with a single type switch.
type EngineDeactivatedGracefully struct{}

func (e EngineDeactivatedGracefully) Error() string { return "engine deactivated gracefully" }

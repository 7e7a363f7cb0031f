// Package param holds the host's own mirrored copy of a parameter a
// plugin has declared through pluginabi.ParamInfo: a value the UI or
// samplebrowser preview can read and write without going through the
// plugin's main-thread methods on every access.
package param

// Info is the host-side mirror of a plugin's declared parameter range.
type Info struct {
	ID           uint32
	Name         string
	Module       string // path for grouping, e.g. "Filter/Cutoff"
	MinValue     float64
	MaxValue     float64
	DefaultValue float64
}

// Parameter is a thread-safe mirrored value, clamped to Info's declared
// range on every write.
type Parameter struct {
	Info  Info
	value AtomicFloat64
}

// Value returns the current mirrored value.
func (p *Parameter) Value() float64 {
	return p.value.Load()
}

// SetValue clamps value to [Info.MinValue, Info.MaxValue] and stores it.
func (p *Parameter) SetValue(value float64) {
	if p.Info.MaxValue > p.Info.MinValue {
		if value < p.Info.MinValue {
			value = p.Info.MinValue
		} else if value > p.Info.MaxValue {
			value = p.Info.MaxValue
		}
	}
	p.value.Store(value)
}

package models

import "time"

// UntilNextFault as a Window keeps a fault open until the next distinct fault
// of the experiment, or until the experiment ends.
const UntilNextFault time.Duration = -1

// InjectedElement is a fault deliberately introduced during an experiment.
//
// Window is the grace period after the injection during which snapshots are
// still attributed to this fault; UntilNextFault lifts the bound. Until, when
// set, is the timestamp of the next distinct fault of the same experiment and
// closes the window early.
type InjectedElement struct {
	Timestamp   time.Time
	Description string
	Window      time.Duration
	Until       time.Time
}

// HappensAt reports whether the fault was injected exactly at ts.
func (i InjectedElement) HappensAt(ts time.Time) bool {
	return i.Timestamp.Equal(ts)
}

// CompliesWith reports whether a later timestamp is still attributable to the fault.
func (i InjectedElement) CompliesWith(ts time.Time) bool {
	if !ts.After(i.Timestamp) {
		return false
	}
	if !i.Until.IsZero() && !ts.Before(i.Until) {
		return false
	}
	if i.Window < 0 {
		return true
	}
	return ts.Sub(i.Timestamp) <= i.Window
}

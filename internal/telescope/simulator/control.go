package simulator

// SetOffline makes every request fail as unreachable until cleared.
func (d *Device) SetOffline(offline bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.offline = offline
}

// FailNext makes the next n requests fail as unreachable.
func (d *Device) FailNext(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.unreachable = n
}

// BusyNext makes the next n requests answer "device busy".
func (d *Device) BusyNext(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.busy = n
}

// FailNextGoto makes the next goto stop after one step and report reason
// as its failure.
func (d *Device) FailNextGoto(reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failGoto = reason
}

// Calls returns how many requests have been received for endpoint.
func (d *Device) Calls(endpoint string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[endpoint]
}

// TotalCalls returns how many requests have been received.
func (d *Device) TotalCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.calls {
		n += c
	}
	return n
}

// Position returns the mount's RA (hours) and Dec (degrees).
func (d *Device) Position() (ra, dec float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ra, d.dec
}

// Slewing reports whether a goto is in progress.
func (d *Device) Slewing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.slew != nil
}

// FocuserPosition returns the focuser's current step.
func (d *Device) FocuserPosition() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.focuser
}

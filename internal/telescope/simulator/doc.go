// Package simulator provides an in-process Seestar for development and
// tests.
//
// Device implements transport.Transport and answers with the same
// envelopes as the real device, so everything above the transport (the
// resilient client, poller and command coordinator) runs unchanged against
// it. Motion progresses as the device is polled: a goto arrives after
// Options.GotoCycles position queries and a focus move after one device
// state query.
//
// Faults can be injected to exercise failure handling:
//
//	dev := simulator.New(simulator.Options{})
//	dev.FailNext(3)              // three unreachable requests
//	dev.BusyNext(1)              // one "device busy" answer
//	dev.FailNextGoto("below horizon")
//	dev.SetOffline(true)         // unreachable until cleared
package simulator

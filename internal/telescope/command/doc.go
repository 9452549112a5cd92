// Package command coordinates device commands with observed device state.
//
// A caller submits an Intent ("slew to RA/Dec", "move the focuser to 4200")
// and receives a Handle. The coordinator sends the matching device call
// through the resilient client, then evaluates the intent's success
// predicate against every snapshot the poller publishes afterwards. The
// handle resolves exactly once:
//
//   - Succeeded, carrying the snapshot that satisfied the predicate
//   - Failed, when the core or the device rejects the command, the device
//     cannot be reached, or the device reports a fault for the operation
//   - TimedOut, at the intent's deadline
//   - Cancelled, by the caller or by a newer intent on the same axis
//
// A newer intent supersedes an older one on the same axis at submission,
// so the last submitted target is the one reconciled even when device
// replies arrive out of order.
//
// Cancelling does not retract a command the device has already accepted,
// nor abort a device call still on the wire; its reply is discarded. The
// device keeps pursuing it; only the core stops watching.
//
// Usage:
//
//	coord := command.New(apiClient, store, command.Options{Logger: log})
//	h, err := coord.Submit(ctx, command.Goto(5.5881, -5.3911, command.WithTarget("M42")))
//	if err != nil {
//	    return err
//	}
//	res, _ := h.Wait(ctx)
//	fmt.Println(res.Status, res.Reason)
package command

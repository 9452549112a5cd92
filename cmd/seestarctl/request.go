package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/nerrad567/seestar-core/internal/telescope/command"
	"github.com/nerrad567/seestar-core/internal/telescope/protocol"
)

// errUsage marks argument errors; main exits 2 for them.
var errUsage = errors.New("usage")

// subcommand describes one CLI verb.
type subcommand struct {
	kind  command.Kind
	args  string // usage synopsis for the positional arguments
	nargs [2]int // minimum and maximum positional arguments
}

var subcommands = map[string]subcommand{
	"goto":      {command.KindGoto, "RA DEC", [2]int{2, 2}},
	"sync":      {command.KindSync, "RA DEC", [2]int{2, 2}},
	"stop":      {command.KindStopSlew, "", [2]int{0, 0}},
	"expose":    {command.KindExpose, "SECONDS [GAIN]", [2]int{1, 2}},
	"abort":     {command.KindAbortExposure, "", [2]int{0, 0}},
	"filter":    {command.KindSetFilter, "POSITION", [2]int{1, 1}},
	"focus":     {command.KindSetFocus, "POSITION", [2]int{1, 1}},
	"focus-rel": {command.KindMoveFocus, "STEPS", [2]int{1, 1}},
	"autofocus": {command.KindAutoFocus, "", [2]int{0, 0}},
}

// subcommandOrder is the order verbs are listed in the usage text.
var subcommandOrder = []string{
	"status", "goto", "sync", "stop", "expose", "abort",
	"filter", "focus", "focus-rel", "autofocus",
}

// buildRequest turns a verb and its positional arguments into the same
// wire request the API and the MQTT relay accept.
//
// RA is in hours and Dec in degrees; both accept a decimal or a
// sexagesimal form ("05:35:17.3", "-05 23 28").
func buildRequest(verb string, args []string) (command.Request, error) {
	sc, ok := subcommands[verb]
	if !ok {
		return command.Request{}, fmt.Errorf("%w: unknown command %q", errUsage, verb)
	}
	if len(args) < sc.nargs[0] || len(args) > sc.nargs[1] {
		return command.Request{}, fmt.Errorf("%w: seestarctl %s %s", errUsage, verb, sc.args)
	}

	req := command.Request{Kind: sc.kind}
	switch sc.kind {
	case command.KindGoto, command.KindSync:
		ra, err := angleArg("RA", args[0])
		if err != nil {
			return command.Request{}, err
		}
		dec, err := angleArg("DEC", args[1])
		if err != nil {
			return command.Request{}, err
		}
		req.RA, req.Dec = &ra, &dec

	case command.KindExpose:
		d, err := strconv.ParseFloat(args[0], 64)
		if err != nil || d <= 0 {
			return command.Request{}, fmt.Errorf("%w: SECONDS must be a positive number, got %q", errUsage, args[0])
		}
		req.Duration = d
		if len(args) == 2 {
			if req.Gain, err = intArg("GAIN", args[1]); err != nil {
				return command.Request{}, err
			}
		}

	case command.KindSetFilter, command.KindSetFocus:
		pos, err := intArg("POSITION", args[0])
		if err != nil {
			return command.Request{}, err
		}
		req.Position = &pos

	case command.KindMoveFocus:
		steps, err := intArg("STEPS", args[0])
		if err != nil {
			return command.Request{}, err
		}
		req.Steps = steps
	}
	return req, nil
}

func angleArg(name, s string) (protocol.Angle, error) {
	v, err := protocol.ParseSexagesimal(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", errUsage, name, err)
	}
	return protocol.Angle(v), nil
}

func intArg(name, s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer, got %q", errUsage, name, s)
	}
	return v, nil
}

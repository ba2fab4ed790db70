package console

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/banshee-data/sidescan/internal/params"
	"github.com/banshee-data/sidescan/internal/session"
)

var gainParams = map[string]params.GainParam{
	"level":       params.GainLevel,
	"sensitivity": params.GainSensitivity,
	"gain0":       params.GainBase,
	"slope":       params.GainSlope,
}

// ParseCommand maps an operator text command to an event. Accepted forms:
//
//	range+ range- range <m>
//	level± sensitivity± gain0± slope±
//	signal+ signal- signal <index>
//	brightness+ brightness- brightness <percent>
//	start stop follow on|off select <track> refresh
func ParseCommand(line string) (session.Event, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return session.Event{}, fmt.Errorf("empty command")
	}
	word, args := strings.ToLower(fields[0]), fields[1:]

	if len(args) == 0 && len(word) > 1 {
		if dir, ok := direction(word[len(word)-1]); ok {
			return stepEvent(word, word[:len(word)-1], dir)
		}
	}

	switch word {
	case "start":
		return session.Event{Kind: session.EventStart}, noArgs(word, args)
	case "stop":
		return session.Event{Kind: session.EventStop}, noArgs(word, args)
	case "refresh":
		return session.Event{Kind: session.EventTracksChanged}, noArgs(word, args)
	case "follow":
		if len(args) != 1 {
			return session.Event{}, fmt.Errorf("usage: follow on|off")
		}
		switch strings.ToLower(args[0]) {
		case "on":
			return session.Event{Kind: session.EventFollow, On: true}, nil
		case "off":
			return session.Event{Kind: session.EventFollow, On: false}, nil
		}
		return session.Event{}, fmt.Errorf("usage: follow on|off")
	case "select":
		if len(args) != 1 {
			return session.Event{}, fmt.Errorf("usage: select <track>")
		}
		return session.Event{Kind: session.EventSelectTrack, Track: args[0]}, nil
	case "range", "signal", "brightness":
		if len(args) != 1 {
			return session.Event{}, fmt.Errorf("usage: %s <value>", word)
		}
		v, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return session.Event{}, fmt.Errorf("%s: %w", word, err)
		}
		kind := map[string]session.EventKind{
			"range":      session.EventSetRange,
			"signal":     session.EventSetSignal,
			"brightness": session.EventSetBrightness,
		}[word]
		return session.Event{Kind: kind, Value: v}, nil
	}
	return session.Event{}, fmt.Errorf("unknown command %q", fields[0])
}

func direction(b byte) (params.Direction, bool) {
	switch b {
	case '+':
		return params.Increase, true
	case '-':
		return params.Decrease, true
	}
	return 0, false
}

func stepEvent(word, name string, dir params.Direction) (session.Event, error) {
	switch name {
	case "range":
		return session.Event{Kind: session.EventStepRange, Dir: dir}, nil
	case "signal":
		return session.Event{Kind: session.EventStepSignal, Dir: dir}, nil
	case "brightness":
		return session.Event{Kind: session.EventStepBrightness, Dir: dir}, nil
	}
	if p, ok := gainParams[name]; ok {
		return session.Event{Kind: session.EventStepGain, Gain: p, Dir: dir}, nil
	}
	return session.Event{}, fmt.Errorf("unknown command %q", word)
}

func noArgs(word string, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("%s takes no arguments", word)
	}
	return nil
}

package capture

import (
	"strconv"
	"strings"
)

// sinkInput is one playback stream in the PulseAudio routing graph.
type sinkInput struct {
	Index       int
	Sink        string
	ProcessName string
}

// parseSinkInputs extracts playback streams from `pactl list sink-inputs`
// output. Only the fields the routing graph needs are kept.
func parseSinkInputs(out string) []sinkInput {
	var inputs []sinkInput
	var cur *sinkInput
	for _, line := range strings.Split(out, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "Sink Input #"):
			if cur != nil {
				inputs = append(inputs, *cur)
			}
			idx, err := strconv.Atoi(strings.TrimPrefix(trimmed, "Sink Input #"))
			if err != nil {
				cur = nil
				continue
			}
			cur = &sinkInput{Index: idx}
		case cur == nil:
		case strings.HasPrefix(trimmed, "Sink:"):
			cur.Sink = strings.TrimSpace(strings.TrimPrefix(trimmed, "Sink:"))
		case strings.HasPrefix(trimmed, "application.process.binary ="):
			cur.ProcessName = unquotePactl(strings.TrimPrefix(trimmed, "application.process.binary ="))
		case cur.ProcessName == "" && strings.HasPrefix(trimmed, "application.name ="):
			cur.ProcessName = unquotePactl(strings.TrimPrefix(trimmed, "application.name ="))
		}
	}
	if cur != nil {
		inputs = append(inputs, *cur)
	}
	return inputs
}

// parseModuleIndex reads the module index printed by `pactl load-module`.
func parseModuleIndex(out string) (int, bool) {
	idx, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0, false
	}
	return idx, true
}

// discordSinkInputs filters streams down to those owned by a Discord
// client.
func discordSinkInputs(inputs []sinkInput) []sinkInput {
	var matched []sinkInput
	for _, in := range inputs {
		if matchDeviceName(in.ProcessName, []string{"discord"}) {
			matched = append(matched, in)
		}
	}
	return matched
}

func unquotePactl(s string) string {
	return strings.Trim(strings.TrimSpace(s), `"`)
}

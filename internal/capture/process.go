package capture

import (
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/jmpijll/discrec/internal/types"
)

// discordProcessNames are the executable names of the Discord release
// channels, checked in order of preference.
var discordProcessNames = []string{"Discord.exe", "DiscordPTB.exe", "DiscordCanary.exe", "Discord"}

// findDiscordProcess returns the PID of a running Discord client. It
// fails with types.ErrSourceNotFound when no release channel is running.
func findDiscordProcess() (int32, error) {
	procs, err := process.Processes()
	if err != nil {
		return 0, fmt.Errorf("%w: listing processes: %v", types.ErrSourceNotFound, err)
	}
	byName := make(map[string]int32)
	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue
		}
		if _, ok := byName[name]; !ok {
			byName[name] = p.Pid
		}
	}
	for _, name := range discordProcessNames {
		if pid, ok := byName[name]; ok {
			return pid, nil
		}
	}
	return 0, fmt.Errorf("%w: no Discord client is running", types.ErrSourceNotFound)
}

// matchDeviceName reports whether a device name contains any of the
// given keywords, case-insensitively.
func matchDeviceName(name string, keywords []string) bool {
	lower := strings.ToLower(name)
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

package agent

import (
	"os"
	"runtime"
	"strconv"
	"strings"
)

// wirelessStats is overridable in tests; the kernel exposes link
// quality for all interfaces in one file.
var wirelessStats = "/proc/net/wireless"

// wifiRSSI reads the signal level of the first wireless interface.
// Devices without one report 0.
func wifiRSSI() int {
	data, err := os.ReadFile(wirelessStats)
	if err != nil {
		return 0
	}
	lines := strings.Split(string(data), "\n")
	if len(lines) < 3 {
		return 0
	}
	// First two lines are headers.
	for _, line := range lines[2:] {
		fields := strings.Fields(line)
		if len(fields) < 4 {
			continue
		}
		level, err := strconv.ParseFloat(strings.TrimSuffix(fields[3], "."), 64)
		if err != nil {
			continue
		}
		return int(level)
	}
	return 0
}

// freeHeap reports idle heap bytes, the closest analogue of the
// embedded free-heap counter the platform expects.
func freeHeap() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.HeapIdle
}

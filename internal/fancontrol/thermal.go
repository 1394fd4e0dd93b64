package fancontrol

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// DefaultThermalZone is the first thermal zone, the SoC sensor on most boards.
const DefaultThermalZone = "/sys/class/thermal/thermal_zone0/temp"

// parseTempC accepts millidegrees (the usual thermal zone format) or whole
// degrees from drivers that report them directly.
func parseTempC(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("thermal: empty reading")
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("thermal: parse %q: %w", s, err)
	}
	if n > 1000 || n < -1000 {
		return float64(n) / 1000.0, nil
	}
	return float64(n), nil
}

// ReadTempC reads a thermal zone temperature in degrees Celsius.
func ReadTempC(fs afero.Fs, path string) (float64, error) {
	b, err := afero.ReadFile(fs, path)
	if err != nil {
		return 0, fmt.Errorf("thermal: read: %w", err)
	}
	return parseTempC(string(b))
}

package sensors

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ErrNoReading is returned when the hardware yields no usable sample.
// The agent skips that telemetry cycle entirely and tries again on the
// next one.
var ErrNoReading = errors.New("sensor produced no reading")

// Reading is one sample from the sensor hardware.
type Reading struct {
	Temperature *float64
	Humidity    *float64
}

// Source yields sensor readings on demand.
type Source interface {
	Read() (*Reading, error)
}

// SysfsSource reads temperature and humidity from kernel sysfs nodes
// (thermal zones and hwmon). Either path may be empty when the device
// lacks that sensor.
type SysfsSource struct {
	TemperaturePath string
	HumidityPath    string
}

func NewSysfsSource(temperaturePath, humidityPath string) *SysfsSource {
	return &SysfsSource{
		TemperaturePath: temperaturePath,
		HumidityPath:    humidityPath,
	}
}

// Read samples both nodes. Millidegree/millipercent values are scaled
// the way the kernel exposes them. A source with no readable node at
// all reports ErrNoReading.
func (s *SysfsSource) Read() (*Reading, error) {
	reading := &Reading{}

	if s.TemperaturePath != "" {
		if v, err := readMilliValue(s.TemperaturePath); err == nil {
			reading.Temperature = &v
		}
	}
	if s.HumidityPath != "" {
		if v, err := readMilliValue(s.HumidityPath); err == nil {
			reading.Humidity = &v
		}
	}

	if reading.Temperature == nil && reading.Humidity == nil {
		return nil, ErrNoReading
	}
	return reading, nil
}

func readMilliValue(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read sensor node %s: %w", path, err)
	}
	raw, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("sensor node %s holds a non-numeric value: %w", path, err)
	}
	return float64(raw) / 1000.0, nil
}

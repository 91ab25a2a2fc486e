package models

// --- Device Identity ---

// Identity is the provisioned device identity. It is set once at
// startup and read-only afterwards.
type Identity struct {
	DeviceID        string   `json:"device_id"`
	DeviceType      string   `json:"device_type"`
	FirmwareVersion string   `json:"firmware_version"`
	Capabilities    []string `json:"capabilities"`
	MACAddress      string   `json:"mac_address"`
	IPAddress       string   `json:"ip_address"`
}

// --- Outbound records ---

// TelemetryRecord is one periodic measurement report. Optional sensor
// fields are pointers so an absent reading is omitted rather than sent
// as zero.
type TelemetryRecord struct {
	DeviceID        string   `json:"device_id"`
	Timestamp       int64    `json:"timestamp"`
	Temperature     *float64 `json:"temperature,omitempty"`
	Humidity        *float64 `json:"humidity,omitempty"`
	WifiRSSI        int      `json:"wifi_rssi"`
	FreeHeap        uint64   `json:"free_heap"`
	Uptime          int64    `json:"uptime"`
	FirmwareVersion string   `json:"firmware_version"`
}

// Status values carried by StatusEvent.
const (
	StatusOnline        = "online"
	StatusRestarting    = "restarting"
	StatusUpdating      = "updating"
	StatusUpdateFailed  = "update_failed"
	StatusUpdateSuccess = "update_success"
	StatusNoUpdates     = "no_updates"
	StatusAlive         = "alive"
)

// StatusEvent signals a device state transition. The rich fields are
// only populated on full-status replies.
type StatusEvent struct {
	DeviceID        string `json:"device_id"`
	Timestamp       int64  `json:"timestamp"`
	Status          string `json:"status"`
	FirmwareVersion string `json:"firmware_version,omitempty"`
	Error           string `json:"error,omitempty"`

	// Full-status reply fields
	IPAddress  string `json:"ip_address,omitempty"`
	MACAddress string `json:"mac_address,omitempty"`
	WifiRSSI   *int   `json:"wifi_rssi,omitempty"`
	FreeHeap   uint64 `json:"free_heap,omitempty"`
	Uptime     int64  `json:"uptime,omitempty"`
}

// CommandResponse acknowledges an accepted command.
type CommandResponse struct {
	DeviceID  string `json:"device_id"`
	Timestamp int64  `json:"timestamp"`
	Command   string `json:"command"`
	Result    string `json:"result"`
	Interval  int64  `json:"interval,omitempty"`
}

// Registration is the once-per-session identity announcement.
type Registration struct {
	DeviceID        string   `json:"device_id"`
	DeviceType      string   `json:"device_type"`
	FirmwareVersion string   `json:"firmware_version"`
	Capabilities    []string `json:"capabilities"`
	MACAddress      string   `json:"mac_address"`
	IPAddress       string   `json:"ip_address"`
	Timestamp       int64    `json:"timestamp"`
}

// --- Inbound envelopes ---

// Command names understood by the handler.
const (
	CommandRestart      = "restart"
	CommandGetStatus    = "get_status"
	CommandSetInterval  = "set_interval"
	CommandRegConfirmed = "registration_confirmed"
)

// Command is a decoded operator command.
type Command struct {
	Command   string                 `json:"command"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

// UpdateRequest asks the device to fetch and flash a firmware image.
type UpdateRequest struct {
	URL      string `json:"url"`
	Version  string `json:"version"`
	Checksum string `json:"checksum"`
}

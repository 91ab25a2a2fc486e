package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Broker
	BrokerURL      string
	BrokerUsername string
	BrokerPassword string
	CACertFile     string

	// Device identity (provisioned, read-only at runtime)
	DeviceID        string
	DeviceType      string
	FirmwareVersion string
	Capabilities    []string
	MACAddress      string
	IPAddress       string

	// Scheduling
	TelemetryInterval time.Duration
	HeartbeatInterval time.Duration
	TickDelay         time.Duration
	ConnectRetryDelay time.Duration

	// Messaging
	MaxPayloadSize int

	// OTA
	OTAStagingFile string
	OTATimeout     time.Duration

	// Diagnostics HTTP
	HTTPAddr string

	// Application
	LogLevel string
	LogFile  string
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	telemetryMs, _ := strconv.Atoi(getEnv("TELEMETRY_INTERVAL_MS", "30000"))
	heartbeatMs, _ := strconv.Atoi(getEnv("HEARTBEAT_INTERVAL_MS", "60000"))
	tickMs, _ := strconv.Atoi(getEnv("TICK_DELAY_MS", "250"))
	retrySec, _ := strconv.Atoi(getEnv("CONNECT_RETRY_SECONDS", "5"))
	maxPayload, _ := strconv.Atoi(getEnv("MAX_PAYLOAD_BYTES", "1024"))
	otaTimeoutSec, _ := strconv.Atoi(getEnv("OTA_TIMEOUT_SECONDS", "300"))

	return &Config{
		BrokerURL:      getEnv("BROKER_URL", "ssl://localhost:8883"),
		BrokerUsername: getEnv("BROKER_USERNAME", ""),
		BrokerPassword: getEnv("BROKER_PASSWORD", ""),
		CACertFile:     getEnv("CA_CERT_FILE", "/etc/device-agent/ca.crt"),

		DeviceID:        getEnv("DEVICE_ID", "device_001"),
		DeviceType:      getEnv("DEVICE_TYPE", "sensor_node"),
		FirmwareVersion: getEnv("FIRMWARE_VERSION", "1.0.0"),
		Capabilities:    splitList(getEnv("CAPABILITIES", "temperature,humidity")),
		MACAddress:      getEnv("MAC_ADDRESS", ""),
		IPAddress:       getEnv("IP_ADDRESS", ""),

		TelemetryInterval: time.Duration(telemetryMs) * time.Millisecond,
		HeartbeatInterval: time.Duration(heartbeatMs) * time.Millisecond,
		TickDelay:         time.Duration(tickMs) * time.Millisecond,
		ConnectRetryDelay: time.Duration(retrySec) * time.Second,

		MaxPayloadSize: maxPayload,

		OTAStagingFile: getEnv("OTA_STAGING_FILE", "/var/lib/device-agent/firmware.staged"),
		OTATimeout:     time.Duration(otaTimeoutSec) * time.Second,

		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

package common

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Server configuration struct
// --------------------------------------------------------------------------

// ServerConfig holds all configuration parameters for the lock server.
type ServerConfig struct {
	// Listener parameters
	Host string
	Port int

	// MaxHold caps how long a single grant may be held before the server
	// forcibly releases it. Zero disables the cap.
	MaxHold time.Duration

	// DrainTimeout bounds how long shutdown waits for active sessions to
	// finish their current request. Zero waits forever.
	DrainTimeout time.Duration

	// MetricsEndpoint is an optional address for the Prometheus metrics
	// listener (e.g. "127.0.0.1:9100"). Empty disables it.
	MetricsEndpoint string

	// Logging configuration
	LogLevel string
}

// Addr returns the host:port the listener binds to.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Lock Server")
	addField("Listen Address", c.Addr())
	if c.MaxHold > 0 {
		addField("Max Hold Duration", c.MaxHold.String())
	} else {
		addField("Max Hold Duration", "unbounded")
	}
	if c.DrainTimeout > 0 {
		addField("Drain Timeout", c.DrainTimeout.String())
	} else {
		addField("Drain Timeout", "wait forever")
	}

	if c.MetricsEndpoint != "" {
		addSection("Metrics")
		addField("Endpoint", c.MetricsEndpoint)
	}

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}

// --------------------------------------------------------------------------
// Client configuration struct
// --------------------------------------------------------------------------

// ClientConfig holds all configuration parameters for a lock client.
type ClientConfig struct {
	Host string
	Port int

	// TimeoutSecond bounds a single request/response round trip on the
	// wire, independent of the server-side acquire wait. Zero disables
	// the deadline.
	TimeoutSecond int

	// RetryCount is how many times transport-level failures are retried.
	RetryCount int

	// PoolSize is the maximum number of pooled connections.
	PoolSize int
}

// Addr returns the host:port of the server.
func (c *ClientConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Client Configuration")
	addField("Server Address", c.Addr())
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.RetryCount))
	addField("Pool Size", strconv.Itoa(c.PoolSize))

	return sb.String()
}

// Package telemetry emits anonymous operational events. It is opt-in and off
// by default; when disabled every call is a no-op.
package telemetry

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"runtime"
)

// Event is one operational occurrence, keyed by an anonymous instance id.
type Event struct {
	InstanceID string
	Name       string
	Properties map[string]any
}

// NewEvent builds an event for this process instance.
func NewEvent(name string, props map[string]any) Event {
	ev := Event{
		InstanceID: instanceID(),
		Name:       name,
		Properties: map[string]any{
			"os":   runtime.GOOS,
			"arch": runtime.GOARCH,
		},
	}

	for k, v := range props {
		ev.Properties[k] = v
	}

	return ev
}

// Service delivers events to a telemetry backend.
type Service interface {
	Send(ctx context.Context, event Event) error
	Close() error
}

// instanceID derives a stable anonymous id from the host name. Collisions
// across hosts are acceptable; the id only groups events from one instance.
func instanceID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	hash := sha256.New()
	hash.Write([]byte(hostname))
	hash.Write([]byte(runtime.GOOS))
	hash.Write([]byte(runtime.GOARCH))

	return fmt.Sprintf("%x", hash.Sum(nil))
}

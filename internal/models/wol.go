package models

import "time"

// WOLConfig holds Wake-on-LAN configuration for the host that serves the backup destination.
type WOLConfig struct {
	MACAddress    string
	BroadcastIP   string
	PollURL       string        // URL that answers once the host is up
	PollPath      string        // path (e.g. a NAS mount) that must exist once the host is up
	Timeout       time.Duration // max time to wait for the host
	PollInterval  time.Duration
	StabilizeWait time.Duration // wait after the host responds
}

// WOLResult holds the result of a Wake-on-LAN operation.
type WOLResult struct {
	PacketSent   bool
	TargetReady  bool
	WaitDuration time.Duration
	Error        error
}

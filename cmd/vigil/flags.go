package main

import "time"

// RunFlags holds flags for the run command. Flag values override the
// config file when both are given.
type RunFlags struct {
	ConfigPath        string
	WorkDir           string
	SessionID         string
	Debug             bool
	HeartbeatInterval time.Duration
	CheckInterval     time.Duration
	CrashThreshold    time.Duration
	ServeAddr         string
	StoreDriver       string
	StoreDSN          string
}

// StatusFlags holds flags for the status command.
type StatusFlags struct {
	WorkDir        string
	CrashThreshold time.Duration
}

// CleanFlags holds flags for the clean command.
type CleanFlags struct {
	WorkDir string
}

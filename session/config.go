package session

import (
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Default protocol knobs. The replay window bounds both message and
// token staleness; requester requests time out after RequestTimeout.
const (
	DefaultReplayWindow     = 5 * time.Minute
	DefaultClockSkew        = 1 * time.Minute
	DefaultRequestTimeout   = 60 * time.Second
	DefaultConnectAttempts  = 5
	DefaultReconnectWaitMin = 500 * time.Millisecond
	DefaultReconnectWaitMax = 8 * time.Second
	DefaultEventBuffer      = 16
)

// Config assembles one side of the protocol. A single Config is shared
// by every engine a registry creates.
type Config struct {
	// Role selects requester or approver behavior. Required.
	Role Role

	// Transport joins session rooms on the relay. Required.
	Transport Transport

	// Storage persists session records across restarts. Optional: a
	// nil adapter disables persistence, never the session itself.
	Storage KV

	// Signer is the approver's long-term signing capability. Required
	// for RoleApprover, ignored for RoleRequester.
	Signer TokenSigner

	// Verifier re-checks token signatures on inbound requests.
	// Optional; nil skips the signature check while field validation
	// still applies.
	Verifier TokenVerifier

	// AppURL identifies the requesting application in URIs and tokens.
	AppURL string

	// ChainID optionally narrows the approver identity to one network
	// of its chain family.
	ChainID string

	ReplayWindow   time.Duration
	ClockSkew      time.Duration
	RequestTimeout time.Duration

	// PendingRequestTTL bounds how long an unanswered request may hold
	// the approver's pending slot. Zero keeps it indefinitely.
	PendingRequestTTL time.Duration

	ConnectAttempts  int
	ReconnectWaitMin time.Duration
	ReconnectWaitMax time.Duration

	// AutoReconnect makes RestoreAll reconnect requester sessions
	// immediately. Approver sessions always wait for an explicit
	// Reconnect, since their signer cannot be persisted.
	AutoReconnect bool

	// EventBuffer sizes each engine's event channel.
	EventBuffer int

	// Logger, when nil, falls back to the process-wide zerolog logger.
	Logger *zerolog.Logger
}

func (c *Config) validate() error {
	if c.Role != RoleRequester && c.Role != RoleApprover {
		return errors.New("config: role must be requester or approver")
	}
	if c.Transport == nil {
		return errors.New("config: transport is required")
	}
	if c.Role == RoleApprover && c.Signer == nil {
		return errors.New("config: approver requires a signer")
	}
	return nil
}

// withDefaults returns a copy with zero values replaced by defaults.
func (c *Config) withDefaults() *Config {
	out := *c
	if out.ReplayWindow <= 0 {
		out.ReplayWindow = DefaultReplayWindow
	}
	if out.ClockSkew <= 0 {
		out.ClockSkew = DefaultClockSkew
	}
	if out.RequestTimeout <= 0 {
		out.RequestTimeout = DefaultRequestTimeout
	}
	if out.ConnectAttempts <= 0 {
		out.ConnectAttempts = DefaultConnectAttempts
	}
	if out.ReconnectWaitMin <= 0 {
		out.ReconnectWaitMin = DefaultReconnectWaitMin
	}
	if out.ReconnectWaitMax <= 0 {
		out.ReconnectWaitMax = DefaultReconnectWaitMax
	}
	if out.EventBuffer <= 0 {
		out.EventBuffer = DefaultEventBuffer
	}
	if out.Logger == nil {
		l := log.Logger
		out.Logger = &l
	}
	return &out
}

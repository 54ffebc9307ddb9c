// Package config parses and validates process-level configuration for a
// peer process, the way the reference module's cmd/server/main.go builds
// its Config from flag.Parse() — plain standard-library flags, validated
// once at startup, with invalid combinations treated as fatal rather than
// silently clamped.
package config

import (
	"flag"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Config holds every externally-tunable parameter a peer process needs.
type Config struct {
	NodeID   string
	Priority int

	MulticastGroup string
	MulticastPort  int
	UnicastHost    string
	UnicastPortBase int

	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	ElectionTimeout   time.Duration
	GossipInterval    time.Duration

	InitialCredits int
	MinCredits     int
	MaxNodes       int

	MessageRetryCount int
	MessageRetryDelay time.Duration

	// StaticPeers maps node ID to a known unicast address (host:port),
	// seeding membership's learn-on-receive table. Optional — peers not
	// listed here are learned from their first observed datagram.
	StaticPeers map[string]*net.UDPAddr

	DebugAPIAddr string
	AuditPath    string
}

// Default returns a Config with every field at its documented default.
func Default() Config {
	return Config{
		MulticastGroup:    "224.1.1.1",
		MulticastPort:     5007,
		UnicastHost:       "0.0.0.0",
		UnicastPortBase:   6000,
		HeartbeatInterval: 2 * time.Second,
		HeartbeatTimeout:  6 * time.Second,
		ElectionTimeout:   5 * time.Second,
		GossipInterval:    3 * time.Second,
		InitialCredits:    100,
		MinCredits:        0,
		MaxNodes:          10,
		MessageRetryCount: 3,
		MessageRetryDelay: 200 * time.Millisecond,
		StaticPeers:       map[string]*net.UDPAddr{},
		DebugAPIAddr:      "127.0.0.1:9000",
	}
}

// ParseFlags parses args against the standard flag package into a Config
// seeded with Default(). NodeID and Priority derive from -id unless
// -priority is given explicitly (priority defaults to the numeric node
// ID, matching the core's "priority = node_id" identity).
func ParseFlags(args []string) (Config, error) {
	cfg := Default()

	fs := flag.NewFlagSet("peer", flag.ContinueOnError)
	id := fs.String("id", "", "this node's unique ID")
	priority := fs.Int("priority", -1, "election priority (default: numeric node ID)")
	mcastGroup := fs.String("mcast-group", cfg.MulticastGroup, "multicast group address")
	mcastPort := fs.Int("mcast-port", cfg.MulticastPort, "multicast port")
	unicastHost := fs.String("unicast-host", cfg.UnicastHost, "unicast bind host")
	unicastBase := fs.Int("unicast-port-base", cfg.UnicastPortBase, "unicast port base (actual port = base + numeric node ID)")
	heartbeatInterval := fs.Duration("heartbeat-interval", cfg.HeartbeatInterval, "heartbeat emission period")
	heartbeatTimeout := fs.Duration("heartbeat-timeout", cfg.HeartbeatTimeout, "suspicion threshold")
	electionTimeout := fs.Duration("election-timeout", cfg.ElectionTimeout, "Bully OK-wait timeout")
	gossipInterval := fs.Duration("gossip-interval", cfg.GossipInterval, "anti-entropy gossip period")
	initialCredits := fs.Int("initial-credits", cfg.InitialCredits, "starting ledger balance")
	minCredits := fs.Int("min-credits", cfg.MinCredits, "minimum allowed ledger balance")
	maxNodes := fs.Int("max-nodes", cfg.MaxNodes, "maximum group size")
	retryCount := fs.Int("retry-count", cfg.MessageRetryCount, "default reliable-send retry count")
	retryDelay := fs.Duration("retry-delay", cfg.MessageRetryDelay, "default reliable-send retry delay")
	peers := fs.String("peers", "", "comma-separated static peer seed map, id=host:port,id=host:port")
	debugAddr := fs.String("debug-addr", cfg.DebugAPIAddr, "bind address for the read-only debug HTTP API")
	auditPath := fs.String("audit-path", "", "optional path for the append-only transaction audit trail")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if *id == "" {
		return Config{}, fmt.Errorf("config: -id is required")
	}
	cfg.NodeID = *id

	if *priority >= 0 {
		cfg.Priority = *priority
	} else if n, err := strconv.Atoi(*id); err == nil {
		cfg.Priority = n
	} else {
		return Config{}, fmt.Errorf("config: -priority must be set explicitly when -id is not numeric")
	}

	cfg.MulticastGroup = *mcastGroup
	cfg.MulticastPort = *mcastPort
	cfg.UnicastHost = *unicastHost
	cfg.UnicastPortBase = *unicastBase
	cfg.HeartbeatInterval = *heartbeatInterval
	cfg.HeartbeatTimeout = *heartbeatTimeout
	cfg.ElectionTimeout = *electionTimeout
	cfg.GossipInterval = *gossipInterval
	cfg.InitialCredits = *initialCredits
	cfg.MinCredits = *minCredits
	cfg.MaxNodes = *maxNodes
	cfg.MessageRetryCount = *retryCount
	cfg.MessageRetryDelay = *retryDelay
	cfg.DebugAPIAddr = *debugAddr
	cfg.AuditPath = *auditPath

	staticPeers, err := parsePeers(*peers)
	if err != nil {
		return Config{}, err
	}
	cfg.StaticPeers = staticPeers

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parsePeers(raw string) (map[string]*net.UDPAddr, error) {
	out := map[string]*net.UDPAddr{}
	if raw == "" {
		return out, nil
	}
	for _, entry := range strings.Split(raw, ",") {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("config: malformed peer entry %q (want id=host:port)", entry)
		}
		addr, err := net.ResolveUDPAddr("udp4", parts[1])
		if err != nil {
			return nil, fmt.Errorf("config: peer %q: %w", parts[0], err)
		}
		out[parts[0]] = addr
	}
	return out, nil
}

// Validate enforces every cross-field invariant the core design depends
// on. Called once at startup; a validation failure is fatal (the caller
// is expected to log.Fatalf it), matching the reference module's posture
// of rejecting an invalid quorum configuration before any socket opens.
func (c Config) Validate() error {
	if c.NodeID == "" {
		return fmt.Errorf("config: node ID must not be empty")
	}
	if c.HeartbeatTimeout <= c.HeartbeatInterval {
		return fmt.Errorf("config: heartbeat timeout (%s) must exceed heartbeat interval (%s)", c.HeartbeatTimeout, c.HeartbeatInterval)
	}
	if c.MaxNodes <= 0 {
		return fmt.Errorf("config: max nodes must be positive")
	}
	if c.MinCredits > c.InitialCredits {
		return fmt.Errorf("config: min credits (%d) exceeds initial credits (%d)", c.MinCredits, c.InitialCredits)
	}
	return nil
}

// UnicastPort returns this node's numeric unicast port.
func (c Config) UnicastPort() (int, error) {
	n, err := strconv.Atoi(c.NodeID)
	if err != nil {
		return 0, fmt.Errorf("config: non-numeric node ID %q cannot derive a unicast port; set it explicitly", c.NodeID)
	}
	return c.UnicastPortBase + n, nil
}

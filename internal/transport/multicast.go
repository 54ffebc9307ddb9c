// Package transport implements the two UDP transports every peer uses:
// Multicast for group-wide announcements and Unicast for point-to-point,
// optionally-acknowledged messaging. Both are deliberately thin — framing
// and interpretation of the bytes they move belongs to internal/wire and
// the orchestrator, not here.
package transport

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"golang.org/x/net/ipv4"
)

// readDeadline bounds every receive so the loop can observe context
// cancellation promptly instead of blocking forever on an idle group.
const readDeadline = 1 * time.Second

// Multicast joins a single UDP multicast group and provides best-effort
// and repeated-copy sends plus a cancellable receive loop.
//
// TTL is fixed at 1: this system is explicitly LAN-local, never
// cross-subnet (see the core specification's Non-goals).
type Multicast struct {
	group *net.UDPAddr
	pc    *ipv4.PacketConn
	raw   *net.UDPConn
	log   *log.Logger
}

// NewMulticast joins group:port. SO_REUSEADDR (and SO_REUSEPORT where the
// platform honors it through net.ListenConfig.Control) lets several peer
// processes on the same machine share the group during local testing, the
// same accommodation the Python reference makes via raw setsockopt calls.
func NewMulticast(groupIP string, port int, logger *log.Logger) (*Multicast, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "multicast: ", log.LstdFlags)
	}

	group := &net.UDPAddr{IP: net.ParseIP(groupIP), Port: port}
	if group.IP == nil {
		return nil, fmt.Errorf("multicast: invalid group address %q", groupIP)
	}

	lc := net.ListenConfig{Control: reusePortControl}
	pconn, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("multicast: listen: %w", err)
	}

	udpConn, ok := pconn.(*net.UDPConn)
	if !ok {
		pconn.Close()
		return nil, fmt.Errorf("multicast: unexpected conn type %T", pconn)
	}

	pc := ipv4.NewPacketConn(udpConn)
	ifaces, _ := multicastInterfaces()
	joined := false
	for _, iface := range ifaces {
		if err := pc.JoinGroup(iface, group); err == nil {
			joined = true
		}
	}
	if !joined {
		// Fall back to the default interface if enumeration found nothing
		// joinable (common in minimal/container network namespaces).
		if err := pc.JoinGroup(nil, group); err != nil {
			udpConn.Close()
			return nil, fmt.Errorf("multicast: join group: %w", err)
		}
	}

	if err := pc.SetMulticastTTL(1); err != nil {
		logger.Printf("warning: set TTL failed: %v", err)
	}
	if err := pc.SetMulticastLoopback(true); err != nil {
		logger.Printf("warning: set loopback failed: %v", err)
	}

	return &Multicast{group: group, pc: pc, raw: udpConn, log: logger}, nil
}

// multicastInterfaces returns the set of up, multicast-capable interfaces
// to join the group on. Physical interface *discovery policy* beyond this
// enumeration is out of the core's scope (see §1); this is the minimum
// needed to join a group at all.
func multicastInterfaces() ([]*net.Interface, error) {
	all, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	var out []*net.Interface
	for i := range all {
		iface := all[i]
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagMulticast == 0 {
			continue
		}
		out = append(out, &iface)
	}
	return out, nil
}

// Send transmits one best-effort datagram to the group.
func (m *Multicast) Send(data []byte) error {
	_, err := m.pc.WriteTo(data, nil, m.group)
	if err != nil {
		return fmt.Errorf("multicast: send: %w", err)
	}
	return nil
}

// SendReliable transmits n copies of data spaced by gap, mitigating UDP
// loss for the handful of message kinds that must land; the orchestrator
// sends COORDINATOR, JOIN and LEAVE this way (ACKs, including those for
// JOIN_RESPONSE, go by unicast). The orchestrator's dedup cache collapses
// the resulting duplicates on the receiving side, keyed on the msg_id
// every copy carries.
func (m *Multicast) SendReliable(data []byte, n int, gap time.Duration) error {
	if n <= 0 {
		n = 1
	}
	var lastErr error
	for i := 0; i < n; i++ {
		if err := m.Send(data); err != nil {
			lastErr = err
		}
		if i < n-1 {
			time.Sleep(gap)
		}
	}
	return lastErr
}

// Handler processes one received datagram and its source address.
type Handler func(data []byte, addr net.Addr)

// Serve runs the receive loop until ctx is cancelled, invoking h for every
// datagram. Each iteration bounds the read with readDeadline so the loop
// notices cancellation without blocking indefinitely on a quiet group.
func (m *Multicast) Serve(ctx context.Context, h Handler) {
	buf := make([]byte, 8192)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		m.raw.SetReadDeadline(time.Now().Add(readDeadline))
		n, _, addr, err := m.pc.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-ctx.Done():
				return
			default:
				m.log.Printf("receive error: %v", err)
				continue
			}
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		h(data, addr)
	}
}

// Close leaves the group and releases the socket.
func (m *Multicast) Close() error {
	m.pc.LeaveGroup(nil, m.group)
	return m.raw.Close()
}

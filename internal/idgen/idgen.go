// Package idgen generates globally-unique opaque identifiers for trades and
// in-flight reliable messages.
//
// The hashing primitive here began life as the reference module's
// consistent-hash ring (internal/cluster/ring.go), which mapped keys onto a
// SHA-256 ring of virtual nodes for replica placement. This system has no
// key-sharding requirement — every peer holds its own ledger, there is
// nothing to shard — so the ring machinery itself has no home here. What
// survives is the one piece of it actually worth keeping: a stable,
// collision-resistant way to turn "who, when, what" into a short opaque
// token, which is exactly what a trade_id or msg_id needs to be.
package idgen

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// NewTradeID returns a globally-unique opaque identifier for a trade
// proposed by proposer against counterparty, salted with a monotonically
// increasing sequence number so repeated calls within the same
// nanosecond-resolution clock tick never collide.
func NewTradeID(proposer, counterparty string, seq uint64, nowUnixNano int64) string {
	return hashToken("trade", proposer, counterparty, seq, nowUnixNano)
}

// NewMsgID returns a globally-unique opaque identifier for a message that
// requires ACK tracking or deduplication (used as the fallback when a
// message has no natural trade_id to reuse as its msg_id).
func NewMsgID(sender, target string, seq uint64, nowUnixNano int64) string {
	return hashToken("msg", sender, target, seq, nowUnixNano)
}

func hashToken(namespace, a, b string, seq uint64, nowUnixNano int64) string {
	h := sha256.New()
	h.Write([]byte(namespace))
	h.Write([]byte{0})
	h.Write([]byte(a))
	h.Write([]byte{0})
	h.Write([]byte(b))
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[0:8], seq)
	binary.BigEndian.PutUint64(buf[8:16], uint64(nowUnixNano))
	h.Write(buf[:])
	sum := h.Sum(nil)
	return fmt.Sprintf("%s-%s", namespace, hex.EncodeToString(sum[:10]))
}

package app

import "github.com/bft-labs/spbatch/internal/domain"

// Policy controls how a batch is split by protocol.
type Policy struct {
	// Preferred is tried first when a mixed batch can be unified onto one protocol.
	// The zero value means Graph.
	Preferred domain.Protocol

	// Disabled protocols are never sent to.
	Disabled map[domain.Protocol]bool
}

// Enabled reports whether calls may be sent over p.
func (p Policy) Enabled(proto domain.Protocol) bool {
	return proto.Valid() && !p.Disabled[proto]
}

func (p Policy) preferred() domain.Protocol {
	if p.Preferred.Valid() {
		return p.Preferred
	}
	return domain.ProtocolGraph
}

// SubBatch is one protocol-homogeneous group of records sent in a single transport call.
// Calls holds the resolved call of each record. Records whose resolved calls are
// equal share one entry of Wire; Slots maps each record to its Wire index.
type SubBatch struct {
	Index    int
	Protocol domain.Protocol
	Records  []*domain.Record
	Calls    []domain.Call

	Wire  []domain.Call
	Slots []int
}

// Orders returns the record orders of the sub-batch.
func (s SubBatch) Orders() []int {
	orders := make([]int, len(s.Records))
	for i, r := range s.Records {
		orders[i] = r.Order()
	}
	return orders
}

// Plan is the dispatch plan for a batch.
type Plan struct {
	SubBatches []SubBatch

	// Unsplittable records have no enabled protocol and are never sent.
	Unsplittable []*domain.Record
}

type routed struct {
	rec  *domain.Record
	call domain.Call
}

// Split computes the dispatch plan for records, which must be in insertion order.
// It does not modify the records.
//
// Each record is routed to its primary protocol, or to its fallback when the
// primary protocol is disabled. A mixed batch is unified onto the preferred (then
// the other) protocol when every record can be expressed on it; otherwise it is
// cut into maximal runs of consecutive records sharing a protocol.
func Split(records []*domain.Record, policy Policy) Plan {
	var plan Plan
	routable := make([]routed, 0, len(records))
	for _, rec := range records {
		primary := rec.Primary()
		if policy.Enabled(primary.Protocol()) {
			routable = append(routable, routed{rec: rec, call: primary})
			continue
		}
		if fb, ok := rec.Fallback(); ok && policy.Enabled(fb.Protocol()) {
			routable = append(routable, routed{rec: rec, call: fb})
			continue
		}
		plan.Unsplittable = append(plan.Unsplittable, rec)
	}
	if len(routable) == 0 {
		return plan
	}

	if homogeneous(routable) {
		plan.SubBatches = []SubBatch{newSubBatch(0, routable[0].call.Protocol(), routable)}
		return plan
	}

	preferred := policy.preferred()
	for _, target := range []domain.Protocol{preferred, preferred.Other()} {
		if !policy.Enabled(target) {
			continue
		}
		if unified, ok := translate(routable, target); ok {
			plan.SubBatches = []SubBatch{newSubBatch(0, target, unified)}
			return plan
		}
	}

	start := 0
	for i := 1; i <= len(routable); i++ {
		if i < len(routable) && routable[i].call.Protocol() == routable[start].call.Protocol() {
			continue
		}
		run := routable[start:i]
		plan.SubBatches = append(plan.SubBatches, newSubBatch(len(plan.SubBatches), run[0].call.Protocol(), run))
		start = i
	}
	return plan
}

func homogeneous(rs []routed) bool {
	for _, r := range rs[1:] {
		if r.call.Protocol() != rs[0].call.Protocol() {
			return false
		}
	}
	return true
}

// translate re-routes every record onto target, failing if one has no descriptor there.
func translate(rs []routed, target domain.Protocol) ([]routed, bool) {
	out := make([]routed, len(rs))
	for i, r := range rs {
		c, ok := r.rec.CallOn(target)
		if !ok {
			return nil, false
		}
		out[i] = routed{rec: r.rec, call: c}
	}
	return out, true
}

func newSubBatch(index int, protocol domain.Protocol, rs []routed) SubBatch {
	sb := SubBatch{
		Index:    index,
		Protocol: protocol,
		Records:  make([]*domain.Record, len(rs)),
		Calls:    make([]domain.Call, len(rs)),
	}
	sb.Slots = make([]int, len(rs))
	onWire := make(map[uint64][]int)
	for i, r := range rs {
		sb.Records[i] = r.rec
		sb.Calls[i] = r.call
		sb.Slots[i] = sb.slot(onWire, r.call)
	}
	return sb
}

// slot returns the Wire index of c, appending it when no equal call is on the wire yet.
func (s *SubBatch) slot(onWire map[uint64][]int, c domain.Call) int {
	fp := c.Fingerprint()
	for _, w := range onWire[fp] {
		if s.Wire[w].Equal(c) {
			return w
		}
	}
	s.Wire = append(s.Wire, c)
	onWire[fp] = append(onWire[fp], len(s.Wire)-1)
	return len(s.Wire) - 1
}

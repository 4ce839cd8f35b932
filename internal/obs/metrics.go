package obs

import "sync/atomic"

// Metrics collects lightweight feed counters. All methods are safe for
// concurrent use and tolerate a nil receiver so callers can run without
// instrumentation.
type Metrics struct {
	frames         uint64
	decodeErrors   uint64
	unknownPackets uint64
	heartbeats     uint64
	reconnects     uint64
	loginFailures  uint64
	outboxDrops    uint64
	deliveries     uint64
	snapshots      uint64
}

// Snapshot is a point-in-time view of the counters.
type Snapshot struct {
	Frames         uint64
	DecodeErrors   uint64
	UnknownPackets uint64
	Heartbeats     uint64
	Reconnects     uint64
	LoginFailures  uint64
	OutboxDrops    uint64
	Deliveries     uint64
	Snapshots      uint64
}

// NewMetrics allocates a metrics container.
func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) AddFrame() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.frames, 1)
}

func (m *Metrics) AddDecodeError() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.decodeErrors, 1)
}

func (m *Metrics) AddUnknownPacket() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.unknownPackets, 1)
}

func (m *Metrics) AddHeartbeat() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.heartbeats, 1)
}

func (m *Metrics) AddReconnect() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.reconnects, 1)
}

func (m *Metrics) AddLoginFailure() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.loginFailures, 1)
}

func (m *Metrics) AddOutboxDrop() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.outboxDrops, 1)
}

func (m *Metrics) AddDelivery() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.deliveries, 1)
}

func (m *Metrics) AddSnapshotSent() {
	if m == nil {
		return
	}
	atomic.AddUint64(&m.snapshots, 1)
}

// Read captures the current counter values.
func (m *Metrics) Read() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		Frames:         atomic.LoadUint64(&m.frames),
		DecodeErrors:   atomic.LoadUint64(&m.decodeErrors),
		UnknownPackets: atomic.LoadUint64(&m.unknownPackets),
		Heartbeats:     atomic.LoadUint64(&m.heartbeats),
		Reconnects:     atomic.LoadUint64(&m.reconnects),
		LoginFailures:  atomic.LoadUint64(&m.loginFailures),
		OutboxDrops:    atomic.LoadUint64(&m.outboxDrops),
		Deliveries:     atomic.LoadUint64(&m.deliveries),
		Snapshots:      atomic.LoadUint64(&m.snapshots),
	}
}

package protocol

import "time"

// TimestampFormat is the wire format for stats timestamps: RFC 3339 UTC with
// sub-second precision. Timestamps are monotonically non-decreasing per device
// across successive polls.
const TimestampFormat = time.RFC3339Nano

// StatsSnapshot is the per-device-instance statistics record for one tick.
// Summary is a one-line headline; Stats carries the full tree. Either may be
// absent when the device produced no data this tick.
type StatsSnapshot struct {
	Summary   *Value    `json:"summary,omitempty"`
	Stats     *StatTree `json:"stats,omitempty"`
	Timestamp string    `json:"timestamp"`
}

// Time parses the snapshot timestamp, returning the zero time on failure.
func (s *StatsSnapshot) Time() time.Time {
	t, err := time.Parse(time.RFC3339Nano, s.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// DeviceGroupStats holds the snapshots for every observed instance of one
// device group. A device that failed collection this tick is simply absent
// from InstanceStats; group identity still appears so the caller can tell
// "group present, device missing" from "group gone".
type DeviceGroupStats struct {
	Vendor        string                   `json:"vendor"`
	Type          string                   `json:"type"`
	Name          string                   `json:"name"`
	InstanceStats map[string]StatsSnapshot `json:"instance_stats"`
}

// StatsResponse is one complete statistics snapshot across all known groups.
// Error is reserved for catalog-level failures (driver unreachable); per-device
// failures only drop that device's entry.
type StatsResponse struct {
	Groups []DeviceGroupStats `json:"groups"`
	Error  string             `json:"error,omitempty"`
}

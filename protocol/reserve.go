package protocol

import (
	"encoding/json"
	"fmt"
)

// Binding statuses. Anything other than BindingOK is a per-device error
// string; the caller distinguishes outcomes without a second call.
const (
	BindingOK            = "OK"
	BindingUnknownDevice = "unknown device"
	BindingAlreadyHeld   = "already reserved"
	BindingNotReserved   = "not reserved"
)

// Mount is a filesystem mount granted to the workload for a reserved device.
type Mount struct {
	TaskPath string `json:"task_path"`
	HostPath string `json:"host_path"`
	ReadOnly bool   `json:"read_only"`
}

// DeviceSpec is a device-node grant for a reserved device.
type DeviceSpec struct {
	TaskPath    string `json:"task_path"`
	HostPath    string `json:"host_path"`
	CgroupPerms string `json:"cgroup_perms"`
}

// ReservationResult is the durable record of one reservation exchange.
// Bindings has exactly one entry per requested device ID. Env, Mounts and
// DeviceSpecs are populated only from devices whose binding is BindingOK.
type ReservationResult struct {
	Bindings    map[string]string `json:"bindings"`
	Env         map[string]string `json:"env,omitempty"`
	Mounts      []Mount           `json:"mounts,omitempty"`
	DeviceSpecs []DeviceSpec      `json:"device_specs,omitempty"`
}

// Granted returns the IDs whose binding is BindingOK.
func (r *ReservationResult) Granted() []string {
	var ids []string
	for id, status := range r.Bindings {
		if status == BindingOK {
			ids = append(ids, id)
		}
	}
	return ids
}

// DecodeDeviceIDs strictly decodes a reserve/release request body. The wire
// shape is a bare JSON array of strings; any other shape (object, number,
// nested array, non-string element) is a transport-level bad request, never a
// partially processed one. Duplicates collapse to a set, order preserved on
// first occurrence.
func DecodeDeviceIDs(data []byte) ([]string, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("request body must be a JSON array of device ID strings")
	}
	seen := make(map[string]struct{}, len(raw))
	ids := make([]string, 0, len(raw))
	for i, elem := range raw {
		var id string
		if err := json.Unmarshal(elem, &id); err != nil {
			return nil, fmt.Errorf("element %d is not a string", i)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("device ID list must not be empty")
	}
	return ids, nil
}

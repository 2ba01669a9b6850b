package protocol

import "fmt"

// DeviceLocality is an optional bus-address descriptor. The string is opaque
// to the protocol; consumers interpret it (typically a PCI bus ID).
type DeviceLocality struct {
	PCIBusID string `json:"pci_bus_id"`
}

// Device is one reservable device instance. ID is unique within its group and
// stable across fingerprint polls.
type Device struct {
	ID         string          `json:"id"`
	Healthy    bool            `json:"healthy"`
	HealthDesc string          `json:"health_desc,omitempty"`
	Locality   *DeviceLocality `json:"locality,omitempty"`
}

// DeviceGroup is a vendor/type/name-scoped collection of interchangeable
// device instances. Device order is presentation-only. Attributes carry
// static group-wide metadata such as driver versions.
type DeviceGroup struct {
	Vendor     string           `json:"vendor"`
	Type       string           `json:"type"`
	Name       string           `json:"name"`
	Devices    []Device         `json:"devices"`
	Attributes map[string]Value `json:"attributes,omitempty"`
}

// Key returns the vendor/type/name identity of the group.
func (g *DeviceGroup) Key() string {
	return g.Vendor + "/" + g.Type + "/" + g.Name
}

// Catalog is the result of a fingerprint: the complete set of device groups
// currently visible on the host. Error is set in-band when enumeration fails;
// a catalog with Error set still decodes as a valid, empty catalog.
type Catalog struct {
	Groups []DeviceGroup `json:"groups"`
	Error  string        `json:"error,omitempty"`
}

// DeviceIDs returns the set of all device IDs across all groups.
func (c *Catalog) DeviceIDs() map[string]struct{} {
	ids := make(map[string]struct{})
	for _, g := range c.Groups {
		for _, d := range g.Devices {
			ids[d.ID] = struct{}{}
		}
	}
	return ids
}

// Validate checks group attribute values and the global device ID uniqueness
// invariant: reservation resolves IDs against the union of all groups, so a
// duplicate across groups would make a reservation ambiguous.
func (c *Catalog) Validate() error {
	seen := make(map[string]string)
	for _, g := range c.Groups {
		for name, v := range g.Attributes {
			if err := v.Validate(); err != nil {
				return fmt.Errorf("group %s attribute %q: %w", g.Key(), name, err)
			}
		}
		for _, d := range g.Devices {
			if prev, dup := seen[d.ID]; dup {
				return fmt.Errorf("device ID %q appears in both %s and %s", d.ID, prev, g.Key())
			}
			seen[d.ID] = g.Key()
		}
	}
	return nil
}

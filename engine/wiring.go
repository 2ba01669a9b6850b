package engine

import (
	"encoding/json"
	"log"
)

// wireEventHandlers sets up the persistence chain:
// ReservationGranted/Released → audit log
// StatsSampled → sample history + retention pruning
func (e *Engine) wireEventHandlers() {
	// ReservationGranted → open audit rows
	e.Events.SubscribeTypes(func(evt Event) {
		granted := evt.Payload.(ReservationGrantedEvent)
		e.handleReservationGranted(granted)
	}, EventReservationGranted)

	// ReservationReleased → close audit rows
	e.Events.SubscribeTypes(func(evt Event) {
		released := evt.Payload.(ReservationReleasedEvent)
		e.handleReservationReleased(released)
	}, EventReservationReleased)

	// StatsSampled → per-device sample history
	e.Events.SubscribeTypes(func(evt Event) {
		sampled := evt.Payload.(StatsSampledEvent)
		e.handleStatsSampled(sampled)
	}, EventStatsSampled)
}

func (e *Engine) handleReservationGranted(granted ReservationGrantedEvent) {
	e.debugFn("reservation granted: holder=%s devices=%v", granted.Holder, granted.DeviceIDs)
	for _, id := range granted.DeviceIDs {
		if err := e.db.LogGrant(id, granted.Holder); err != nil {
			log.Printf("log grant for %s: %v", id, err)
		}
	}
}

func (e *Engine) handleReservationReleased(released ReservationReleasedEvent) {
	e.debugFn("reservation released: devices=%v", released.DeviceIDs)
	for _, id := range released.DeviceIDs {
		if err := e.db.LogRelease(id); err != nil {
			log.Printf("log release for %s: %v", id, err)
		}
	}
}

func (e *Engine) handleStatsSampled(sampled StatsSampledEvent) {
	keep := e.cfg.SampleRetention
	if keep <= 0 {
		return
	}

	for _, group := range sampled.Response.Groups {
		for deviceID, snap := range group.InstanceStats {
			summary := ""
			if snap.Summary != nil {
				b, err := json.Marshal(snap.Summary)
				if err != nil {
					log.Printf("marshal summary for %s: %v", deviceID, err)
					continue
				}
				summary = string(b)
			}
			detail := ""
			if snap.Stats != nil {
				b, err := json.Marshal(snap.Stats)
				if err != nil {
					log.Printf("marshal stats for %s: %v", deviceID, err)
					continue
				}
				detail = string(b)
			}
			if err := e.db.RecordSample(deviceID, summary, detail, snap.Time()); err != nil {
				log.Printf("record sample for %s: %v", deviceID, err)
				continue
			}
			if err := e.db.PruneSamples(deviceID, keep); err != nil {
				log.Printf("prune samples for %s: %v", deviceID, err)
			}
		}
	}
}

package engine

import (
	"gantry/protocol"
)

// deviceEmitter bridges the devices subsystem onto the engine's EventBus.
type deviceEmitter struct {
	bus *EventBus
}

func (e *deviceEmitter) EmitCatalogChanged(cat protocol.Catalog) {
	e.bus.Publish(EventCatalogChanged, CatalogChangedEvent{Catalog: cat})
}

func (e *deviceEmitter) EmitDeviceHealth(deviceID string, healthy bool, desc string) {
	e.bus.Publish(EventDeviceHealth, DeviceHealthEvent{
		DeviceID:   deviceID,
		Healthy:    healthy,
		HealthDesc: desc,
	})
}

func (e *deviceEmitter) EmitBridgeConnected() {
	e.bus.Publish(EventBridgeConnected, BridgeEvent{})
}

func (e *deviceEmitter) EmitBridgeDisconnected(err error) {
	evt := BridgeEvent{}
	if err != nil {
		evt.Error = err.Error()
	}
	e.bus.Publish(EventBridgeDisconnected, evt)
}

// reservationEmitter bridges the reservation table onto the engine's EventBus.
type reservationEmitter struct {
	bus *EventBus
}

func (e *reservationEmitter) EmitReservationGranted(holder string, deviceIDs []string) {
	e.bus.Publish(EventReservationGranted, ReservationGrantedEvent{
		Holder:    holder,
		DeviceIDs: deviceIDs,
	})
}

func (e *reservationEmitter) EmitReservationReleased(deviceIDs []string) {
	e.bus.Publish(EventReservationReleased, ReservationReleasedEvent{
		DeviceIDs: deviceIDs,
	})
}

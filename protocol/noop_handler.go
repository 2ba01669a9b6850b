package protocol

// NoOpHandler implements MessageHandler with no-op methods.
// Embed this and override only the methods you need.
type NoOpHandler struct{}

func (NoOpHandler) HandleAgentRegister(*Envelope, *AgentRegister)           {}
func (NoOpHandler) HandleAgentHeartbeat(*Envelope, *AgentHeartbeat)         {}
func (NoOpHandler) HandleCatalogChanged(*Envelope, *CatalogChanged)         {}
func (NoOpHandler) HandleDeviceHealth(*Envelope, *DeviceHealth)             {}
func (NoOpHandler) HandleReservationGranted(*Envelope, *ReservationGranted) {}
func (NoOpHandler) HandleReservationReleased(*Envelope, *ReservationReleased) {
}
func (NoOpHandler) HandleAgentRegistered(*Envelope, *AgentRegistered)     {}
func (NoOpHandler) HandleAgentHeartbeatAck(*Envelope, *AgentHeartbeatAck) {}
func (NoOpHandler) HandleReleaseCommand(*Envelope, *ReleaseCommand)       {}

// Compile-time check that NoOpHandler implements MessageHandler.
var _ MessageHandler = NoOpHandler{}

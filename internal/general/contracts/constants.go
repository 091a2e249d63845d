package contracts

// Exchanges
const (
	ExchangeTracking = "tracking_topic"
)

// Routing patterns
const (
	RoutePartnerLocationPrefix = "partner.location." // {partner_id}
	RouteSessionEvents         = "session.events"
)

// Message type tags. Broker payloads form a closed set; anything
// without a known tag is rejected at the pipeline boundary.
const (
	TypePositionUpdate = "position_update"
	TypeSessionEvent   = "session_event"
)

// PartnerLocationTopic returns the routing key carrying a partner's push samples.
func PartnerLocationTopic(partnerID string) string {
	return RoutePartnerLocationPrefix + partnerID
}

package contracts

// Exchanges
const (
	ExchangeBookingTopic = "booking_topic"
	ExchangeDriverTopic  = "driver_topic"
	ExchangeTripTopic    = "trip_topic"
)

// Queues
const (
	QueueDriverSearch       = "driver_search"        // matching engine intake
	QueueBookingEvents      = "booking_events"       // notification dispatcher intake
	QueueTripEvents         = "trip_events"          // notification dispatcher intake
	QueuePaymentEvents      = "payment_events"       // notification dispatcher intake
	QueueBookingTripBridge  = "booking_trip_bridge"  // coordinator intake for trip progress
	QueueMatchCancelRequest = "match_cancel_request" // smart-cancel requests from matching
)

// Routing keys and prefixes
const (
	TopicBookingCreated   = "booking.created"
	TopicBookingAccepted  = "booking.accepted"
	TopicBookingTaken     = "booking.taken"
	TopicBookingRejected  = "booking.rejected"
	TopicBookingCancelled = "booking.cancelled"
	TopicBookingCompleted = "booking.completed"

	TopicDriverSearchRequested = "driver.search.requested"

	TopicTripStarted = "trip.started"
	TopicTripUpdated = "trip.updated"
	TopicTripEnded   = "trip.ended"

	RouteBookingPrefix = "booking." // booking.{event}
	RouteTripPrefix    = "trip."    // trip.{event}
	RoutePaymentPrefix = "payment." // payment.{event}

	TopicCancelRequested = "booking.cancel.requested" // internal, matching -> coordinator
)

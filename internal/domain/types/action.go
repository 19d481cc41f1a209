package types

const (
	ActionRabbitMQConnected       = "rabbitmq_connected"
	ActionRabbitConnectionClosed  = "rabbitmq_connection_closed"
	ActionRabbitConnectionClosing = "rabbitmq_connection_closing"
	ActionRabbitReconnected       = "rabbitmq_reconnection_success"

	ActionDatabaseTransactionFailed = "database_transaction_failed"

	ActionFixIngested   = "fix_ingested"
	ActionFixRejected   = "fix_rejected"
	ActionTripStarted   = "trip_started"
	ActionTripEnded     = "trip_ended"
	ActionTripRecovered = "trip_recovered"
	ActionFleetSummary  = "fleet_summary_tick"
	ActionLivenessSweep = "liveness_sweep"
)

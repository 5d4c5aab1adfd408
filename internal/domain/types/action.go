package types

const (
	ActionEngineStarted  = "engine_started"
	ActionEngineStopping = "engine_stopping"

	ActionRTKDial          = "rtk_dial"
	ActionRTKOpened        = "rtk_opened"
	ActionRTKClosed        = "rtk_closed"
	ActionRTKReconnect     = "rtk_reconnect_scheduled"
	ActionRTKFailed        = "rtk_connection_failed"
	ActionRTKHeartbeat     = "rtk_heartbeat"
	ActionRTKFrame         = "rtk_frame"
	ActionLifecycleChanged = "lifecycle_changed"

	ActionArbiterTransition = "arbiter_transition"
	ActionGPSWatch          = "gps_watch"
	ActionIPLookup          = "ip_lookup"
	ActionPlacement         = "placement"

	ActionHeadingEmit = "heading_emit"
	ActionSensorRead  = "sensor_read"

	ActionSurfaceInbound  = "surface_inbound"
	ActionSurfaceOutbound = "surface_outbound"
	ActionSurfaceReady    = "surface_ready"

	ActionRabbitMQConnected       = "rabbitmq_connected"
	ActionRabbitConnectionClosed  = "rabbitmq_connection_closed"
	ActionRabbitConnectionClosing = "rabbitmq_connection_closing"
	ActionRabbitReconnected       = "rabbitmq_reconnection_success"
	ActionPositionPublish         = "position_publish"

	ActionExternalServiceFailed = "external_service_failed"
)

package config

import (
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
)

const HelpMessage = `
geoengine - real-time positioning core for the field map client

Usage:
  geoengine [-config-path <file>] [-help]

Every YAML key is also read from the environment (upper case, sections joined
with "_", e.g. rtk.heartbeat_interval -> RTK_HEARTBEAT_INTERVAL). Environment
values win over the file.
`

func PrintHelp() {
	if HelpMessage != "" {
		fmt.Printf("%s\n", HelpMessage)
	}
	flag.PrintDefaults()
}

// PrintConfig writes the effective configuration without secrets.
func PrintConfig(cfg *Config) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	row := func(k string, v any) { fmt.Fprintf(w, "%s\t%v\n", k, v) }

	row("app.port", cfg.App.Port)
	row("app.log_level", cfg.App.LogLevel)
	row("device.imei", cfg.Device.IMEI)
	row("device.initial_link_state", cfg.Device.InitialLinkState)
	row("rtk.enabled", cfg.RTK.Enabled)
	row("rtk.url", cfg.RTK.URL)
	row("rtk.heartbeat_interval", cfg.RTK.HeartbeatInterval)
	row("rtk.reconnect_delay", cfg.RTK.ReconnectDelay)
	row("rtk.max_attempts", cfg.RTK.MaxAttempts)
	row("gps.enabled", cfg.GPS.Enabled)
	row("gps.port", cfg.GPS.Port)
	row("iplookup.url", cfg.IPLookup.URL)
	row("mqtt.enabled", cfg.MQTT.Enabled)
	row("mqtt.broker", cfg.MQTT.Broker)
	row("mqtt.topic", cfg.MQTT.Topic)
	row("mqtt.retry_interval", cfg.MQTT.RetryInterval)
	row("heading.throttle", cfg.Heading.Throttle)
	row("surface.offset_enabled", cfg.Surface.OffsetEnabled)
	row("surface.layer", cfg.Surface.Layer)
	row("track.max_points", cfg.Track.MaxPoints)
	row("rabbitmq.enabled", cfg.RabbitMQ.Enabled)
	row("rabbitmq.exchange", cfg.RabbitMQ.Exchange)
}

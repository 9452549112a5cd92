// Package mqtt connects Seestar Core to the MQTT broker that links it to the
// hardware-protocol bridge.
//
// The broker decouples the core from whatever speaks to the telescope's
// native protocol:
//
//	Seestar Core ↔ MQTT Broker ↔ protocol bridge / home automation
//
// The client manages:
//   - Connection with auto-reconnect and subscription restore
//   - Publishing with QoS and retain control
//   - Wildcard subscriptions with panic-safe handlers
//   - Last Will and Testament on seestar/system/status
//
// Topic layout (see Topics):
//
//	seestar/state                  retained latest snapshot
//	seestar/event/state_changed    one event per snapshot
//	seestar/command/{request_id}   inbound command requests
//	seestar/result/{request_id}    command resolutions
//	seestar/health                 retained relay health
//	seestar/system/status          online / offline / LWT
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishDefault(client.Topics().State(), snapshotJSON, true)
//
// # Security
//
// Enable TLS (mqtt.broker.tls) for anything beyond a local broker. Credentials
// come from the config file or SEESTAR_MQTT_USERNAME / SEESTAR_MQTT_PASSWORD.
package mqtt

// Package relay connects Seestar Core to the hardware-protocol bridge over
// MQTT.
//
// Outbound, it mirrors the event bus: every snapshot is published retained
// on seestar/state and its diff on seestar/event/state_changed. Inbound, a
// command.Request JSON body on seestar/command/{request_id} is submitted as
// an intent; its resolution is published on seestar/result/{request_id}.
// A retained health report on seestar/health is refreshed on a ticker.
//
//	r := relay.New(mqttClient, bus, coordinator, relay.Options{
//	    Topics:        mqttClient.Topics(),
//	    QoS:           1,
//	    State:         store,
//	    PollerHealthy: poller.Healthy,
//	})
//	if err := r.Start(ctx); err != nil {
//	    return err
//	}
//	defer r.Stop()
package relay

// Package mqtt provides the MQTT client the TV bridge uses to talk to
// Gray Logic Core.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Retained presence via Last Will and Testament
//   - Subscriptions that survive reconnects
//   - Topic builders for the flat bridge topic scheme
//
// # Usage
//
//	topics := mqtt.Topics{Protocol: "webos"}
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.Will{Topic: topics.Health(), Offline: offline})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(topics.AllCommands(), 1, handleCommand)
package mqtt

// Package mqtt connects the creator to an MQTT broker with paho.
//
// Subscriber decodes the entity stream ({"frame_id", "stamp", "entities":
// [{"uuid", "x", "y"}]}) and the observer stream ({"x", "y"}) and forwards
// them to the ingest inbox from paho's callback goroutines. Publisher is a
// pipeline sink that writes each result batch to the result topic and waits
// a bounded time for the broker.
package mqtt

// Package sink forwards polled values to their destinations.
//
// A Sink receives one Reading per polled item. Two implementations are
// provided: MQTT publishes the formatted value as a retained state message,
// InfluxDB records it as a time series point. Fanout combines several.
package sink

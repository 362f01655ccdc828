// Package poller periodically reads configured items from one vcontrold
// endpoint and forwards the values to a sink.
//
// Items are read one after another, each over its own connection, so a
// single poller never has more than one request outstanding against the
// daemon.
package poller

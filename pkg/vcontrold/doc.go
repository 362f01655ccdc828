// Package vcontrold provides a client for the text command protocol spoken
// by the vcontrold heating-controller daemon over TCP.
//
// # Basic Usage
//
//	ctx := context.Background()
//	client, err := vcontrold.NewClient("192.168.1.20")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	catalog, err := client.Catalog(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	v, err := client.GetValue(ctx, catalog, "getTempA")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Every GetValue and SetValue call opens its own connection, performs one
// request/response exchange and closes the connection again. The catalog is
// discovered once per endpoint and shared read-only afterwards.
//
// # Configuration
//
// The client can be configured using functional options:
//
//	client, err := vcontrold.NewClient("192.168.1.20",
//	    vcontrold.WithPort(3002),
//	    vcontrold.WithRequestTimeout(5*time.Second),
//	    vcontrold.WithLogger(slog.Default()),
//	)
//
// # Protocol
//
// Every reply line is prefixed with the prompt token (vctrld> by default).
// Multi-line replies to "commands" and "detail <name>" end with two bare
// prompt tokens in a row. Set commands are acknowledged with a single "OK".
// The protocol has no authentication or encryption; keep the daemon on a
// trusted network segment.
package vcontrold

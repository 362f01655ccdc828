package sink

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/zberg/go-vcontrold/internal/config"
	"github.com/zberg/go-vcontrold/pkg/vcontrold"
)

const (
	influxPingTimeout = 5 * time.Second

	// measurement all readings are written to.
	measurement = "vcontrold"
)

// pointWriter is satisfied by api.WriteAPIBlocking.
type pointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// InfluxDB writes readings as points of measurement "vcontrold", tagged
// with item and command. Writes block until the server accepted them, so
// a failure is reported to the poller instead of a background callback.
type InfluxDB struct {
	client influxdb2.Client
	writer pointWriter
	logger *slog.Logger
}

// NewInfluxDB connects to the server described by cfg and checks it is
// healthy.
func NewInfluxDB(cfg config.InfluxDBConfig, logger *slog.Logger) (*InfluxDB, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	ctx, cancel := context.WithTimeout(context.Background(), influxPingTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: influxdb: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: influxdb: server not healthy", ErrConnectionFailed)
	}

	if logger != nil {
		logger.Info("connected to influxdb", "url", cfg.URL, "bucket", cfg.Bucket)
	}
	return &InfluxDB{
		client: client,
		writer: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		logger: logger,
	}, nil
}

// Write records r.
func (i *InfluxDB) Write(ctx context.Context, r Reading) error {
	point, err := toPoint(r)
	if err != nil {
		return err
	}
	if err := i.writer.WritePoint(ctx, point); err != nil {
		return fmt.Errorf("%w: influxdb: %s: %w", ErrWriteFailed, r.Item, err)
	}
	return nil
}

// Close releases the client.
func (i *InfluxDB) Close() error {
	if i.client != nil {
		i.client.Close()
	}
	return nil
}

// toPoint converts r to a point. The field type follows the value kind:
// float for decimals, bool for switches, string for text.
func toPoint(r Reading) (*write.Point, error) {
	var field interface{}
	switch r.Value.Kind() {
	case vcontrold.KindDecimal:
		field, _ = r.Value.AsDecimal()
	case vcontrold.KindSwitch:
		field, _ = r.Value.AsSwitch()
	case vcontrold.KindText:
		field, _ = r.Value.AsText()
	default:
		return nil, fmt.Errorf("%w: influxdb: %s: no value", ErrWriteFailed, r.Item)
	}

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return write.NewPoint(
		measurement,
		map[string]string{
			"item":    r.Item,
			"command": r.Command,
		},
		map[string]interface{}{
			"value": field,
		},
		ts,
	), nil
}

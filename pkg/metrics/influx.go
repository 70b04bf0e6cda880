package metrics

import (
	"context"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/query"
	"go.uber.org/zap"

	"github.com/hyp3rd/roomcast/internal/sentinel"
	"github.com/hyp3rd/roomcast/pkg/breaker"
	"github.com/hyp3rd/roomcast/pkg/shard"
)

// ShardConfig holds the connection settings for one time-series shard.
type ShardConfig struct {
	URL    string `yaml:"url" validate:"required,url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org" validate:"required"`
	Bucket string `yaml:"bucket" validate:"required"`
}

// InfluxSink writes points into K independent InfluxDB shards. Points are
// routed by room id with the same hash that partitions reads, so one room's
// series always lands on one shard. Write failures are logged and swallowed.
type InfluxSink struct {
	clients []influxdb2.Client
	writers []api.WriteAPIBlocking
	readers []api.QueryAPI
	urls    []string
	router  *shard.Router
	logger  *zap.Logger
}

// ShardStatus is a point-in-time health snapshot of one time-series shard.
type ShardStatus struct {
	Index   int             `json:"index"`
	URL     string          `json:"url"`
	Healthy bool            `json:"healthy"`
	Error   string          `json:"error,omitempty"`
	Breaker *breaker.Status `json:"breaker,omitempty"`
}

// InfluxOption configures an InfluxSink.
type InfluxOption func(*InfluxSink)

// WithInfluxLogger sets the sink logger.
func WithInfluxLogger(logger *zap.Logger) InfluxOption {
	return func(s *InfluxSink) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewInfluxSink connects one client per shard. The shard count must match the
// router's.
func NewInfluxSink(shards []ShardConfig, router *shard.Router, opts ...InfluxOption) (*InfluxSink, error) {
	if router == nil || len(shards) != router.ShardCount() {
		return nil, sentinel.ErrInvalidShardCount
	}

	s := &InfluxSink{
		router: router,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, cfg := range shards {
		client := influxdb2.NewClient(cfg.URL, cfg.Token)
		s.clients = append(s.clients, client)
		s.writers = append(s.writers, client.WriteAPIBlocking(cfg.Org, cfg.Bucket))
		s.readers = append(s.readers, client.QueryAPI(cfg.Org))
		s.urls = append(s.urls, cfg.URL)
	}

	return s, nil
}

// WritePoint implements Sink. The shard is selected by the room_id tag when
// present, otherwise by measurement name so instance-level series spread
// deterministically too.
func (s *InfluxSink) WritePoint(ctx context.Context, p Point) {
	key := p.Tags["room_id"]
	if key == "" {
		key = p.Measurement
	}

	idx := s.router.ShardFor(key)

	ts := p.Time
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	op := func(ctx context.Context) error {
		return s.writers[idx].WritePoint(ctx, influxdb2.NewPoint(p.Measurement, p.Tags, p.Fields, ts))
	}

	var err error
	if cb := s.router.Breaker(idx); cb != nil {
		err = cb.Execute(ctx, op)
	} else {
		err = op(ctx)
	}

	if err != nil {
		s.logger.Warn("metrics point dropped",
			zap.String("measurement", p.Measurement),
			zap.Int("shard", idx),
			zap.Error(err),
		)
	}
}

// QueryAll runs the same Flux query against every shard and merges the
// records, tolerating unavailable shards.
func (s *InfluxSink) QueryAll(ctx context.Context, flux string) shard.Result[*query.FluxRecord] {
	return shard.QueryAllShards(ctx, s.router, func(ctx context.Context, shardIndex int) ([]*query.FluxRecord, error) {
		result, err := s.readers[shardIndex].Query(ctx, flux)
		if err != nil {
			return nil, err
		}

		var records []*query.FluxRecord
		for result.Next() {
			records = append(records, result.Record())
		}

		if result.Err() != nil {
			return nil, result.Err()
		}

		return records, nil
	})
}

// AveragePing scatter-gathers the mean room latency over the window. The
// second return is false when no shard had samples.
func (s *InfluxSink) AveragePing(ctx context.Context, bucket string, window time.Duration) (float64, bool) {
	flux := `from(bucket: "` + bucket + `")
  |> range(start: -` + window.String() + `)
  |> filter(fn: (r) => r._measurement == "` + MeasurementPingUpdate + `" and r._field == "avg_ping")
  |> mean()`

	res := s.QueryAll(ctx, flux)

	var (
		sum   float64
		count int
	)

	for _, rec := range res.Items {
		v, ok := rec.Value().(float64)
		if !ok {
			continue
		}

		sum += v
		count++
	}

	if count == 0 {
		return 0, false
	}

	return sum / float64(count), true
}

// ShardStatus pings every shard concurrently and reports each one's
// reachability together with its breaker snapshot. A shard whose breaker is
// open is reported unhealthy without touching the network.
func (s *InfluxSink) ShardStatus(ctx context.Context) []ShardStatus {
	statuses := make([]ShardStatus, len(s.clients))

	var wg sync.WaitGroup
	for idx := range s.clients {
		wg.Add(1)

		go func(idx int) {
			defer wg.Done()

			st := ShardStatus{Index: idx, URL: s.urls[idx]}

			op := func(ctx context.Context) error {
				ok, err := s.clients[idx].Ping(ctx)
				if err != nil {
					return err
				}

				if !ok {
					return sentinel.ErrShardUnavailable
				}

				return nil
			}

			var err error
			if cb := s.router.Breaker(idx); cb != nil {
				snapshot := cb.GetStatus()
				st.Breaker = &snapshot
				err = cb.Execute(ctx, op)
			} else {
				err = op(ctx)
			}

			st.Healthy = err == nil
			if err != nil {
				st.Error = err.Error()
			}

			statuses[idx] = st
		}(idx)
	}

	wg.Wait()

	return statuses
}

// Close releases every shard client.
func (s *InfluxSink) Close() {
	for _, c := range s.clients {
		c.Close()
	}
}

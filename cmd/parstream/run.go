package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kbukum/parstream/channel"
	"github.com/kbukum/parstream/logger"
	"github.com/kbukum/parstream/observability"
	"github.com/kbukum/parstream/stream"
)

// record is one produced item.
type record struct {
	Producer int
	Seq      int
	Payload  []byte
}

func (r record) Size() int { return len(r.Payload) }

// report summarizes what the consumer observed.
type report struct {
	Items     int
	Bytes     int
	Fragments int64
	Yields    int64
	Elapsed   time.Duration
}

func (r report) fields() map[string]interface{} {
	return logger.Fields(
		logger.FieldItems, r.Items,
		logger.FieldBytes, r.Bytes,
		"fragments", r.Fragments,
		"yields", r.Yields,
		logger.FieldDuration, r.Elapsed.Milliseconds(),
	)
}

// errOutOfOrder reports a consumer-side ordering violation.
var errOutOfOrder = stderrors.New("record out of producer order")

// run starts the producers, consumes the stream's output and checks that
// every producer's records arrive in the order they were written.
func run(ctx context.Context, cfg *AppConfig, log *logger.Logger, metrics *observability.StreamMetrics) (report, error) {
	start := time.Now()
	out := channel.New[record]()
	s, err := stream.NewFromConfig(ctx, out, cfg.Stream,
		stream.WithLogger(log.WithComponent("stream")),
		stream.WithMetrics(metrics),
	)
	if err != nil {
		return report{}, err
	}

	g, gctx := errgroup.WithContext(ctx)
	for p := 0; p < cfg.Demo.Producers; p++ {
		g.Go(func() error {
			return produce(gctx, s, p, &cfg.Demo)
		})
	}
	go func() {
		if err := g.Wait(); err != nil {
			s.SendError(err)
			return
		}
		s.Finish()
	}()

	rep, err := consume(ctx, out, cfg.Demo.Producers)
	stats := s.Stats()
	rep.Fragments = stats.FragmentsDrained
	rep.Yields = stats.Yields
	rep.Elapsed = time.Since(start)
	return rep, err
}

// produce writes ItemsPerProducer records in fragments of BatchSize, each
// fragment weighted by its record count.
func produce(ctx context.Context, s *stream.Stream[record], producer int, cfg *DemoConfig) error {
	var limiter *rate.Limiter
	if cfg.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Rate), 1)
	}

	for seq := 0; seq < cfg.ItemsPerProducer; {
		n := min(cfg.BatchSize, cfg.ItemsPerProducer-seq)
		f, err := s.CreateFragment(ctx, stream.WithWeight(int64(n)))
		if err != nil {
			return fmt.Errorf("producer %d: %w", producer, err)
		}
		for i := 0; i < n; i++ {
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					f.SendError(err)
					return err
				}
			}
			f.Send(record{Producer: producer, Seq: seq, Payload: make([]byte, cfg.PayloadBytes)})
			seq++
		}
		f.Finish()
	}
	return nil
}

func consume(ctx context.Context, out *channel.Channel[record], producers int) (report, error) {
	var rep report
	next := make([]int, producers)
	for {
		r, err := out.Next(ctx)
		if stderrors.Is(err, channel.ErrEndOfStream) {
			return rep, nil
		}
		if err != nil {
			return rep, err
		}
		if r.Seq != next[r.Producer] {
			return rep, fmt.Errorf("%w: producer %d sent %d, expected %d", errOutOfOrder, r.Producer, r.Seq, next[r.Producer])
		}
		next[r.Producer]++
		rep.Items++
		rep.Bytes += r.Size()
	}
}

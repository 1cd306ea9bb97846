package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

func main() {
	var (
		brokers  = flag.String("brokers", "localhost:9092", "comma separated seed brokers")
		topic    = flag.String("topic", "ml-features", "topic to produce to")
		count    = flag.Int("count", 10, "number of orders, 0 produces until interrupted")
		interval = flag.Duration("interval", 0, "delay between orders")
		seed     = flag.Uint64("seed", uint64(time.Now().UnixNano()), "random seed")
	)
	flag.Parse()

	l, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = l.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := produce(ctx, l, strings.Split(*brokers, ","), *topic, *count, *interval, newGenerator(*seed)); err != nil {
		l.Error("Producer failed", zap.Error(err))
		os.Exit(1)
	}
}

func produce(
	ctx context.Context, l *zap.Logger, brokers []string, topic string, count int, interval time.Duration, gen *generator,
) error {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return fmt.Errorf("create kafka client: %w", err)
	}
	defer client.Close()

	sent := 0
	for count == 0 || sent < count {
		if ctx.Err() != nil {
			break
		}

		o := gen.next()
		key, value, err := o.encode()
		if err != nil {
			return fmt.Errorf("encode order: %w", err)
		}

		client.Produce(ctx, &kgo.Record{Key: key, Value: value}, func(r *kgo.Record, err error) {
			if err != nil {
				l.Warn("Failed to produce order", zap.String("customer_id", string(r.Key)), zap.Error(err))
				return
			}
			l.Debug(
				"Produced order",
				zap.Int32("partition", r.Partition),
				zap.Int64("offset", r.Offset),
				zap.ByteString("value", r.Value),
			)
		})
		sent++

		if interval > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(interval):
			}
		}
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Flush(flushCtx); err != nil {
		return fmt.Errorf("flush: %w", err)
	}

	l.Info("Sent orders", zap.Int("count", sent), zap.String("topic", topic))
	return nil
}

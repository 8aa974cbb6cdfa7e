// Command fluvio is a thin demo CLI over the client core: produce a
// single record to a topic, or stream records from a partition to
// stdout. It exists to exercise the public API end to end, not as a
// supported surface.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/fluvio-go/fluvio/pkg/kgo"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "fluvio:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := pflag.NewFlagSet("fluvio", pflag.ContinueOnError)
	endpoint := fs.String("endpoint", "127.0.0.1:9003", "SPU seed endpoint")
	topic := fs.String("topic", "", "topic name")
	partition := fs.Int32("partition", 0, "partition id (stream mode)")
	mode := fs.String("mode", "produce", "produce|stream|create-topic")
	value := fs.String("value", "", "record value (produce mode)")
	verbose := fs.Bool("verbose", false, "enable debug logging")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: fluvio --topic NAME [--mode produce|stream|create-topic] [flags]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *topic == "" {
		return fmt.Errorf("--topic is required")
	}

	logLevel := kgo.LogLevelInfo
	if *verbose {
		logLevel = kgo.LogLevelDebug
	}
	logrusLog := logrus.New()
	logger := kgo.NewLogrusLogger(logrusLog, logLevel)

	client, err := kgo.NewClient(
		kgo.WithSeedEndpoint(*endpoint),
		kgo.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer client.Close()

	switch *mode {
	case "create-topic":
		return client.CreateTopic(ctx, *topic, 1, 1, nil, nil)
	case "produce":
		return produceOne(ctx, client, logger, *topic, *value)
	case "stream":
		return streamTopic(client, logger, *topic, *partition)
	default:
		return fmt.Errorf("unknown mode %q", *mode)
	}
}

func produceOne(ctx context.Context, client *kgo.Client, logger kgo.Logger, topic, value string) error {
	producer, err := kgo.NewProducer(client, logger)
	if err != nil {
		return err
	}
	defer producer.Close(ctx)

	offset, err := producer.Send(ctx, topic, []byte(value), nil)
	if err != nil {
		return err
	}
	fmt.Printf("produced at offset %d\n", offset)
	return nil
}

func streamTopic(client *kgo.Client, logger kgo.Logger, topic string, partition int32) error {
	consumer := kgo.NewConsumer(client, logger, topic, partition, nil, kgo.Latest, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recs, errs := consumer.Stream(ctx)
	for {
		select {
		case rec, ok := <-recs:
			if !ok {
				return nil
			}
			fmt.Printf("[%d] %s\n", rec.Offset, rec.Value)
		case err := <-errs:
			if err != nil {
				return err
			}
			return nil
		}
	}
}

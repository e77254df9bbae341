package pipeline

import (
	"fmt"
	"io"
	"strings"

	"github.com/oarkflow/hl7/pkg/adapters/hl7adapter"
	"github.com/oarkflow/hl7/pkg/cache"
	"github.com/oarkflow/hl7/pkg/config"
	"github.com/oarkflow/hl7/pkg/contracts"
	"github.com/oarkflow/hl7/pkg/hl7"
	"github.com/oarkflow/hl7/pkg/parsers"
	"github.com/oarkflow/hl7/pkg/sinks"
	"github.com/oarkflow/hl7/pkg/transformers"
)

// FromConfig wires sources, the parse cache, transformers and the sink
// described by cfg. out receives stdout sink output; nil means os.Stdout.
func FromConfig(cfg *config.Config, out io.Writer, opts ...Option) (*Pipeline, error) {
	parserOpts, err := cfg.ParserOptions()
	if err != nil {
		return nil, err
	}
	var (
		msgParser parsers.MessageParser = hl7.NewParser(parserOpts...)
		closers   []Option
	)
	if cfg.Cache.Enabled {
		ttl, err := cfg.CacheTTL()
		if err != nil {
			return nil, err
		}
		mc, err := cache.New(msgParser, cfg.Cache.MaxMessages, ttl)
		if err != nil {
			return nil, err
		}
		msgParser = mc
		closers = append(closers, WithCloser(func() error {
			mc.Close()
			return nil
		}))
	}
	chain, err := transformers.BuildTransformers(cfg, msgParser)
	if err != nil {
		return nil, err
	}
	sources, err := BuildSources(cfg.Sources)
	if err != nil {
		return nil, err
	}
	loader, err := sinks.New(cfg.Sink, out)
	if err != nil {
		return nil, err
	}
	base := []Option{
		WithWorkers(cfg.Workers),
		WithBatchSize(cfg.BatchSize),
		WithRetry(cfg.Retry.Attempts, cfg.RetryBackoff(), cfg.Retry.BreakerThreshold),
	}
	if cfg.Dedup {
		seen, err := cache.NewSeen(cfg.DedupFile, 0, 0)
		if err != nil {
			return nil, err
		}
		base = append(base, WithDedup(seen), WithCloser(seen.Close))
	}
	base = append(base, closers...)
	return New(loader, sources, chain, append(base, opts...)...), nil
}

// BuildSources creates one source per configuration entry.
func BuildSources(list []config.SourceConfig) ([]contracts.Source, error) {
	sources := make([]contracts.Source, 0, len(list))
	for i, sc := range list {
		switch strings.ToLower(sc.Type) {
		case "file":
			opts := []hl7adapter.FileSourceOption{hl7adapter.WithBlankLineSplit(sc.SplitOnBlankLine)}
			if sc.Encoding != "" {
				opts = append(opts, hl7adapter.WithEncoding(sc.Encoding))
			}
			sources = append(sources, hl7adapter.NewFileSource(sc.Path, opts...))
		case "amqp":
			sources = append(sources, hl7adapter.NewQueueSource(sc.URL, sc.Queue, hl7adapter.WithPrefetch(sc.Prefetch)))
		default:
			return nil, fmt.Errorf("source %d: unsupported type %q", i, sc.Type)
		}
	}
	return sources, nil
}

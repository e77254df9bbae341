package cache

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/oarkflow/hl7/pkg/hl7"
)

// Parser is the subset of *hl7.Parser the cache wraps.
type Parser interface {
	Parse(text string) (*hl7.Message, error)
}

// MessageCache memoises parsed messages by their exact text. Messages are
// immutable, so one instance may be handed to any number of goroutines.
type MessageCache struct {
	parser Parser
	cache  *ristretto.Cache
	ttl    time.Duration
}

// New builds a cache holding roughly maxMessages entries. A zero ttl keeps
// entries until they are evicted.
func New(parser Parser, maxMessages int64, ttl time.Duration) (*MessageCache, error) {
	if maxMessages <= 0 {
		maxMessages = 10000
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxMessages * 10,
		MaxCost:     maxMessages,
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("cache: %w", err)
	}
	return &MessageCache{parser: parser, cache: c, ttl: ttl}, nil
}

// Parse returns the cached message for text, parsing and storing it on a
// miss. Failed parses are not cached.
func (c *MessageCache) Parse(text string) (*hl7.Message, error) {
	if v, ok := c.cache.Get(text); ok {
		if msg, ok := v.(*hl7.Message); ok {
			return msg, nil
		}
	}
	msg, err := c.parser.Parse(text)
	if err != nil {
		return nil, err
	}
	if c.ttl > 0 {
		c.cache.SetWithTTL(text, msg, 1, c.ttl)
	} else {
		c.cache.Set(text, msg, 1)
	}
	return msg, nil
}

// Wait blocks until pending writes are visible to Get.
func (c *MessageCache) Wait() {
	c.cache.Wait()
}

func (c *MessageCache) Hits() uint64 {
	return c.cache.Metrics.Hits()
}

func (c *MessageCache) Misses() uint64 {
	return c.cache.Metrics.Misses()
}

func (c *MessageCache) Close() {
	c.cache.Close()
}

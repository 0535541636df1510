package logger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

// Publisher ships aggregated error summaries somewhere durable (Kafka in the service).
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

type CollectionConfig struct {
	TimeInterval   time.Duration // flush interval
	CountThreshold int           // distinct entries that force an early flush
	Topic          string
	Publisher      Publisher
}

type AggregatedLogEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// LogCollector deduplicates error entries by (level, message, fields, caller)
// and publishes counts periodically.
type LogCollector struct {
	cfg     CollectionConfig
	mu      sync.Mutex
	entries map[string]*AggregatedLogEntry
	flushed sync.WaitGroup
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewLogCollector(cfg *CollectionConfig) *LogCollector {
	c := &LogCollector{
		cfg:     *cfg,
		entries: make(map[string]*AggregatedLogEntry),
		done:    make(chan struct{}),
	}
	if c.cfg.TimeInterval <= 0 {
		c.cfg.TimeInterval = 30 * time.Second
	}
	if c.cfg.CountThreshold <= 0 {
		c.cfg.CountThreshold = 100
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.loop(ctx)
	return c
}

func (c *LogCollector) AddLog(level, message string, fields map[string]interface{}, caller string) {
	now := time.Now()
	key := entryKey(level, message, fields, caller)

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.Count++
		e.LastSeen = now
	} else {
		c.entries[key] = &AggregatedLogEntry{
			Level:     level,
			Message:   message,
			Fields:    fields,
			Caller:    caller,
			Count:     1,
			FirstSeen: now,
			LastSeen:  now,
		}
	}

	if len(c.entries) >= c.cfg.CountThreshold {
		c.flushLocked()
	}
}

// Pending reports how many distinct entries are waiting for the next flush.
func (c *LogCollector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func entryKey(level, message string, fields map[string]interface{}, caller string) string {
	raw, _ := json.Marshal(struct {
		L string                 `json:"l"`
		M string                 `json:"m"`
		F map[string]interface{} `json:"f"`
		C string                 `json:"c"`
	}{level, message, fields, caller})
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func (c *LogCollector) loop(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.cfg.TimeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			c.flushLocked()
			c.mu.Unlock()
		case <-ctx.Done():
			c.mu.Lock()
			c.flushLocked()
			c.mu.Unlock()
			return
		}
	}
}

func (c *LogCollector) flushLocked() {
	if len(c.entries) == 0 || c.cfg.Publisher == nil {
		return
	}

	batch := make([]AggregatedLogEntry, 0, len(c.entries))
	for _, e := range c.entries {
		batch = append(batch, *e)
	}
	sort.Slice(batch, func(i, j int) bool { return batch[i].FirstSeen.Before(batch[j].FirstSeen) })
	c.entries = make(map[string]*AggregatedLogEntry)

	c.flushed.Add(1)
	go func() {
		defer c.flushed.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := c.cfg.Publisher.PublishMessage(ctx, c.cfg.Topic, batch); err != nil {
			// the logger itself is the failing path, so stderr is the last resort
			fmt.Fprintf(os.Stderr, "publish aggregated logs: %v\n", err)
		}
	}()
}

// Close stops the flush loop, flushes what is left and waits for in-flight publishes.
func (c *LogCollector) Close() {
	c.cancel()
	<-c.done
	c.flushed.Wait()
}

package mirror

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/logpatrol/logpatrol/pkg/types"
)

// ElasticConfig holds Elasticsearch mirror configuration.
type ElasticConfig struct {
	Addresses []string      `yaml:"addresses"`
	Index     string        `yaml:"index"`
	Username  string        `yaml:"username,omitempty"`
	Password  string        `yaml:"password,omitempty"`
	APIKey    string        `yaml:"api_key,omitempty"`
	BatchSize int           `yaml:"batch_size,omitempty"`
	FlushMax  time.Duration `yaml:"flush_interval,omitempty"`
}

// ElasticMirror bulk-indexes events into a daily-rotated index. Events are
// buffered and flushed when the batch fills or the flush interval passes.
type ElasticMirror struct {
	config ElasticConfig
	client *elasticsearch.Client

	mu      sync.Mutex
	pending []*types.Event
	lastErr error

	closed  atomic.Bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewElasticMirror creates an Elasticsearch mirror.
func NewElasticMirror(config ElasticConfig) (*ElasticMirror, error) {
	if len(config.Addresses) == 0 {
		return nil, fmt.Errorf("no addresses specified")
	}
	if config.Index == "" {
		config.Index = "logpatrol-events"
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}
	if config.FlushMax == 0 {
		config.FlushMax = 5 * time.Second
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: config.Addresses,
		Username:  config.Username,
		Password:  config.Password,
		APIKey:    config.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	m := &ElasticMirror{
		config: config,
		client: client,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	go m.flushLoop()
	return m, nil
}

// Publish buffers one event for bulk indexing.
func (m *ElasticMirror) Publish(ctx context.Context, event *types.Event) error {
	if m.closed.Load() {
		return fmt.Errorf("elasticsearch mirror is closed")
	}

	m.mu.Lock()
	m.pending = append(m.pending, event)
	full := len(m.pending) >= m.config.BatchSize
	err := m.lastErr
	m.lastErr = nil
	m.mu.Unlock()

	if full {
		return m.Flush(ctx)
	}
	return err
}

// Flush bulk-indexes all buffered events.
func (m *ElasticMirror) Flush(ctx context.Context) error {
	m.mu.Lock()
	batch := m.pending
	m.pending = nil
	m.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	var buf bytes.Buffer
	for _, event := range batch {
		meta := fmt.Sprintf(`{"index":{"_index":%q}}`, m.indexName(event))
		doc, err := json.Marshal(event)
		if err != nil {
			continue
		}
		buf.WriteString(meta)
		buf.WriteByte('\n')
		buf.Write(doc)
		buf.WriteByte('\n')
	}

	req := esapi.BulkRequest{Body: bytes.NewReader(buf.Bytes())}
	res, err := req.Do(ctx, m.client)
	if err != nil {
		return fmt.Errorf("bulk index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("bulk index returned %s", res.Status())
	}
	return nil
}

func (m *ElasticMirror) flushLoop() {
	defer close(m.doneCh)

	ticker := time.NewTicker(m.config.FlushMax)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := m.Flush(context.Background()); err != nil {
				m.mu.Lock()
				m.lastErr = err
				m.mu.Unlock()
			}
		case <-m.stopCh:
			return
		}
	}
}

// indexName appends the event day so indices rotate daily.
func (m *ElasticMirror) indexName(event *types.Event) string {
	return m.config.Index + "-" + event.Timestamp.Format("2006.01.02")
}

// Close flushes remaining events and stops the loop.
func (m *ElasticMirror) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(m.stopCh)
	<-m.doneCh

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return m.Flush(ctx)
}

// Name returns the mirror name.
func (m *ElasticMirror) Name() string {
	return "elasticsearch"
}

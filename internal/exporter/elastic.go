package exporter

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"
	"github.com/pkg/errors"

	"github.com/DrC0ns0le/net-alto/pkg/logging"
)

// Indexer stores route records and hands back the latest route path seen
// per device pair.
type Indexer interface {
	Index(ctx context.Context, records []RouteRecord) (failed int, err error)
	LatestPaths(ctx context.Context) (map[string][]string, error)
}

// seedSize bounds how many recent records are read to seed the previous
// route paths.
const seedSize = 1000

type ElasticConfig struct {
	Addresses []string
	Username  string
	Password  string
	Index     string
	// Insecure skips TLS certificate verification.
	Insecure bool
}

// ElasticIndexer bulk indexes route records into one Elasticsearch index.
type ElasticIndexer struct {
	client *elasticsearch.Client
	index  string
	logger logging.Logger
}

func NewElasticIndexer(cfg ElasticConfig, logger logging.Logger) (*ElasticIndexer, error) {
	esCfg := elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	}
	if cfg.Insecure {
		esCfg.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true, //nolint:gosec
			},
		}
	}

	client, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, errors.Wrap(err, "error creating elasticsearch client")
	}

	return &ElasticIndexer{
		client: client,
		index:  cfg.Index,
		logger: logger.With("component", "elastic", "index", cfg.Index),
	}, nil
}

func (e *ElasticIndexer) Index(ctx context.Context, records []RouteRecord) (int, error) {
	bi, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Index:         e.index,
		Client:        e.client,
		FlushBytes:    5 << 20,
		FlushInterval: 30 * time.Second,
	})
	if err != nil {
		return 0, errors.Wrap(err, "error creating bulk indexer")
	}

	var failed atomic.Int64
	for _, record := range records {
		data, err := json.Marshal(record)
		if err != nil {
			e.logger.Errorf("error encoding route record %s: %v", pairKey(record.Source, record.Destination), err)
			failed.Add(1)
			continue
		}

		err = bi.Add(ctx, esutil.BulkIndexerItem{
			Action: "index",
			Body:   bytes.NewReader(data),
			OnFailure: func(ctx context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
				failed.Add(1)
				if err != nil {
					e.logger.Errorf("error indexing route record: %v", err)
					return
				}
				e.logger.Errorf("error indexing route record: %s: %s", res.Error.Type, res.Error.Reason)
			},
		})
		if err != nil {
			e.logger.Errorf("error adding route record to bulk indexer: %v", err)
			failed.Add(1)
		}
	}

	if err := bi.Close(ctx); err != nil {
		return int(failed.Load()), errors.Wrap(err, "error closing bulk indexer")
	}
	return int(failed.Load()), nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source RouteRecord `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// LatestPaths reads the most recent records, newest first, and keeps the
// first route path found per pair.
func (e *ElasticIndexer) LatestPaths(ctx context.Context) (map[string][]string, error) {
	res, err := e.client.Search(
		e.client.Search.WithContext(ctx),
		e.client.Search.WithIndex(e.index),
		e.client.Search.WithSort("@timestamp:desc"),
		e.client.Search.WithSize(seedSize),
		e.client.Search.WithIgnoreUnavailable(true),
	)
	if err != nil {
		return nil, errors.Wrap(err, "error querying elasticsearch")
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, errors.Errorf("elasticsearch search failed: %s", res.Status())
	}

	var result searchResponse
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, "error decoding elasticsearch response")
	}

	return latestPaths(result), nil
}

func latestPaths(result searchResponse) map[string][]string {
	out := make(map[string][]string)
	for _, hit := range result.Hits.Hits {
		r := hit.Source
		key := pairKey(r.Source, r.Destination)
		if _, seen := out[key]; seen || len(r.RoutePath) == 0 {
			continue
		}
		out[key] = r.RoutePath
	}
	return out
}

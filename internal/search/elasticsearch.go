package search

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/fieldtrack/services/ledger/config"
	"example.com/fieldtrack/services/ledger/internal/models"
)

// ElasticClient provides integration with Elasticsearch for the execution
// reporting index
type ElasticClient struct {
	client *elasticsearch.Client
	config config.ElasticConfig
}

// NewElasticClient creates a new Elasticsearch client
func NewElasticClient(cfg config.ElasticConfig) (*ElasticClient, error) {
	esConfig := elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	}

	client, err := elasticsearch.NewClient(esConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Elasticsearch client")
	}

	return &ElasticClient{client: client, config: cfg}, nil
}

// IndexExecutionEvent indexes one execution event for reporting queries
func (c *ElasticClient) IndexExecutionEvent(ctx context.Context, event *models.ExecutionEvent) error {
	doc := map[string]interface{}{
		"id":        event.ID.String(),
		"plan_id":   event.PlanID.String(),
		"work_date": event.WorkDate,
		"notes":     event.Notes,
	}
	if event.WorkerCount != nil {
		doc["worker_count"] = *event.WorkerCount
	}

	var totalArea float64
	for _, d := range event.BlockDeltas {
		totalArea += d.AreaWorked
	}
	doc["total_area_worked"] = totalArea

	usages := make([]map[string]interface{}, 0, len(event.MaterialUsages))
	for _, u := range event.MaterialUsages {
		usages = append(usages, map[string]interface{}{
			"material_id":   u.MaterialID.String(),
			"quantity_used": u.QuantityUsed,
		})
	}
	doc["material_usages"] = usages

	docJSON, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "failed to marshal execution event document")
	}

	req := esapi.IndexRequest{
		Index:      config.FormatIndex(c.config, c.config.Index),
		DocumentID: event.ID.String(),
		Body:       bytes.NewReader(docJSON),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return errors.Wrap(err, "failed to execute Elasticsearch index request")
	}
	defer res.Body.Close()

	if res.IsError() {
		var e map[string]interface{}
		if err := json.NewDecoder(res.Body).Decode(&e); err != nil {
			return errors.Wrap(err, "failed to parse Elasticsearch error response")
		}
		return errors.Errorf("Elasticsearch index error: %v", e)
	}

	log.Debug().Str("event_id", event.ID.String()).Msg("Execution event indexed")
	return nil
}

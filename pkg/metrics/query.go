package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// RepositoryMetrics aggregates engine activity for one repository.
type RepositoryMetrics struct {
	Repository   string  `json:"repository"`
	TasksTotal   int64   `json:"tasks_total"`
	RetriesTotal int64   `json:"retries_total"`
	OracleTokens int64   `json:"oracle_tokens"`
	ApprovalRate float64 `json:"approval_rate"`
}

// QueryService reads aggregated metrics back from a Prometheus server.
type QueryService struct {
	client   api.Client
	queryAPI v1.API
}

// NewQueryService creates a metrics query service.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{
		client:   client,
		queryAPI: v1.NewAPI(client),
	}, nil
}

// queryScalar runs an instant query and returns the first sample value.
func (q *QueryService) queryScalar(ctx context.Context, query string) (float64, error) {
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return 0, fmt.Errorf("query %q failed: %w", query, err)
	}
	if vector, ok := result.(model.Vector); ok && len(vector) > 0 {
		return float64(vector[0].Value), nil
	}
	return 0, nil
}

// GetRepositoryMetrics aggregates task counts, retries, and token usage for a
// repository.
func (q *QueryService) GetRepositoryMetrics(ctx context.Context, repository string) (*RepositoryMetrics, error) {
	metrics := &RepositoryMetrics{Repository: repository}

	total, err := q.queryScalar(ctx, `sum(cto_tasks_total)`)
	if err != nil {
		return nil, err
	}
	metrics.TasksTotal = int64(total)

	approved, err := q.queryScalar(ctx, `sum(cto_tasks_total{status="APPROVED"})`)
	if err != nil {
		return nil, err
	}
	if total > 0 {
		metrics.ApprovalRate = approved / total
	}

	retries, err := q.queryScalar(ctx, fmt.Sprintf(`sum(cto_retries_total{repository=%q})`, repository))
	if err != nil {
		return nil, err
	}
	metrics.RetriesTotal = int64(retries)

	tokens, err := q.queryScalar(ctx, `sum(cto_oracle_tokens_total)`)
	if err != nil {
		return nil, err
	}
	metrics.OracleTokens = int64(tokens)

	return metrics, nil
}

package warehouse

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// costUnitsPerTB converts dry-run bytes into abstract cost units so BigQuery
// plans are comparable against the same limits as plan-text backends.
const costUnitsPerTB = 5.0

// BigQuery runs analytics queries on Google BigQuery.
type BigQuery struct {
	client    *bigquery.Client
	projectID string
	timeout   time.Duration
}

func NewBigQuery(ctx context.Context, projectID, credentialsFile string, timeout time.Duration) (*BigQuery, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("bigquery.NewClient: %w", err)
	}
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &BigQuery{client: client, projectID: projectID, timeout: timeout}, nil
}

func (b *BigQuery) Close() error { return b.client.Close() }

func (b *BigQuery) Execute(ctx context.Context, sql string) (*QueryResult, error) {
	qCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	start := time.Now()
	job, err := b.client.Query(sql).Run(qCtx)
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	status, err := job.Wait(qCtx)
	if err != nil {
		return nil, fmt.Errorf("job wait: %w", err)
	}
	if err := status.Err(); err != nil {
		return nil, fmt.Errorf("query failed: %w: %v", ErrJobFailed, err)
	}

	it, err := job.Read(qCtx)
	if err != nil {
		return nil, fmt.Errorf("job read: %w", err)
	}

	result := &QueryResult{JobID: job.ID()}
	first := true
	for {
		var row map[string]bigquery.Value
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		if first && it.Schema != nil {
			for _, f := range it.Schema {
				result.Columns = append(result.Columns, f.Name)
			}
			first = false
		}
		m := make(Row, len(row))
		for k, v := range row {
			m[k] = v
		}
		result.Rows = append(result.Rows, m)
	}

	result.RuntimeMs = time.Since(start).Milliseconds()
	return result, nil
}

// ExplainPlan uses a dry run. BigQuery prices by bytes scanned, so the
// estimate carries cost but no row count.
func (b *BigQuery) ExplainPlan(ctx context.Context, sql string) (*PlanEstimate, error) {
	qCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	q := b.client.Query(sql)
	q.DryRun = true
	job, err := q.Run(qCtx)
	if err != nil {
		return nil, fmt.Errorf("dry run: %w", err)
	}

	var bytesProcessed int64
	if stats := job.LastStatus().Statistics; stats != nil {
		bytesProcessed = stats.TotalBytesProcessed
	}
	cost := float64(bytesProcessed) / 1e12 * costUnitsPerTB

	log.Debug().Int64("bytes_processed", bytesProcessed).
		Float64("cost_units", cost).Msg("dry run estimate")

	return &PlanEstimate{
		EstimatedCostUnits: cost,
		RawPlan:            []string{fmt.Sprintf("dry run: %d bytes processed", bytesProcessed)},
	}, nil
}

// Package analytics implements the dataset usage analytics store (spec
// §4.K cascade: "analytic rows deleted" on dataset lifecycle clear),
// grounded on the teacher's internal/analytics.ClickHouseAnalytics:
// database/sql over the ClickHouse driver and the same connection-string
// shape, narrowed from debate/conversation metrics to this domain's
// dataset usage counters. Each usage event is written with its own
// INSERT statement.
package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/sirupsen/logrus"

	"github.com/devflowinc/trieve-sub001/internal/config"
	"github.com/devflowinc/trieve-sub001/internal/errs"
)

// UsageEvent is one row of dataset_usage_events: a single observed
// action against a dataset (search, ingest, delete) recorded for
// dashboards outside this module's scope.
type UsageEvent struct {
	DatasetID string
	Timestamp time.Time
	Kind      string
	Count     int64
}

// Store is the analytics adapter contract the dataset lifecycle cascade
// and other components record usage through.
type Store interface {
	RecordUsageEvent(ctx context.Context, e UsageEvent) error
	// DeleteDatasetRows removes every usage row for datasetID (spec
	// §4.K: "removes ... analytic rows for that dataset").
	DeleteDatasetRows(ctx context.Context, datasetID string) error
	Close() error
}

// ClickHouseStore is the production Store.
type ClickHouseStore struct {
	conn   *sql.DB
	logger *logrus.Logger
}

func NewClickHouseStore(cfg config.ClickHouseConfig, logger *logrus.Logger) (*ClickHouseStore, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	dsn := fmt.Sprintf("clickhouse://%s:%s@%s:%s/%s?secure=false",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	conn, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, errs.Transient(errs.CodeRemoteTimeout, "failed to open clickhouse connection", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, errs.Transient(errs.CodeRemoteTimeout, "failed to ping clickhouse", err)
	}

	logger.WithFields(logrus.Fields{
		"host":     cfg.Host,
		"port":     cfg.Port,
		"database": cfg.Database,
	}).Info("analytics store initialized")

	return &ClickHouseStore{conn: conn, logger: logger}, nil
}

var _ Store = (*ClickHouseStore)(nil)

func (s *ClickHouseStore) RecordUsageEvent(ctx context.Context, e UsageEvent) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO dataset_usage_events (dataset_id, timestamp, kind, count)
		VALUES (?, ?, ?, ?)
	`, e.DatasetID, e.Timestamp, e.Kind, e.Count)
	if err != nil {
		return errs.Transient(errs.CodeRemoteStatus, "failed to insert usage event", err)
	}
	return nil
}

// DeleteDatasetRows issues a ClickHouse mutation deleting every usage row
// for datasetID. ClickHouse deletes are asynchronous mutations, not
// transactional statements, matching the store's own consistency model.
func (s *ClickHouseStore) DeleteDatasetRows(ctx context.Context, datasetID string) error {
	_, err := s.conn.ExecContext(ctx, `ALTER TABLE dataset_usage_events DELETE WHERE dataset_id = ?`, datasetID)
	if err != nil {
		return errs.Transient(errs.CodeRemoteStatus, "failed to delete dataset usage rows", err)
	}
	return nil
}

func (s *ClickHouseStore) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

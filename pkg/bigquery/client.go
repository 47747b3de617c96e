package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/angelmondragon/digistore-backend/pkg/config"
	"github.com/angelmondragon/digistore-backend/pkg/logger"
)

const metadataTimeout = 10 * time.Second

var (
	ErrNotConfigured = errors.New("bigquery: client not configured")
	ErrUnknownTable  = errors.New("bigquery: table not registered")
)

// TableSpec describes a table the client streams into. Schema is only
// consulted when the table has to be created.
type TableSpec struct {
	Name           string
	Schema         bigquery.Schema
	PartitionField string
	Clustering     []string
}

func (s TableSpec) metadata() *bigquery.TableMetadata {
	md := &bigquery.TableMetadata{Schema: s.Schema}
	if s.PartitionField != "" {
		md.TimePartitioning = &bigquery.TimePartitioning{Type: bigquery.DayPartitioningType, Field: s.PartitionField}
	}
	if len(s.Clustering) > 0 {
		md.Clustering = &bigquery.Clustering{Fields: s.Clustering}
	}
	return md
}

// Client wraps one dataset and the set of tables registered against it.
type Client struct {
	bq         *bigquery.Client
	dataset    *bigquery.Dataset
	tables     map[string]TableSpec
	autoCreate bool
	logg       *logger.Logger
}

// NewClient dials BigQuery and makes sure the dataset and every spec'd table
// exist. Missing tables are created only when cfg.AutoCreate is set.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.BigQueryConfig, logg *logger.Logger, specs ...TableSpec) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	dataset := strings.TrimSpace(cfg.Dataset)
	switch {
	case project == "":
		return nil, fmt.Errorf("%w: gcp project id is required", ErrNotConfigured)
	case dataset == "":
		return nil, fmt.Errorf("%w: dataset is required", ErrNotConfigured)
	}
	tables, err := indexSpecs(specs)
	if err != nil {
		return nil, err
	}

	bq, err := bigquery.NewClient(ctx, project, credentialOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("bigquery: dial: %w", err)
	}

	c := &Client{
		bq:         bq,
		dataset:    bq.Dataset(dataset),
		tables:     tables,
		autoCreate: cfg.AutoCreate,
		logg:       logg,
	}
	if err := c.prepare(ctx); err != nil {
		_ = bq.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"dataset": dataset, "tables": len(tables)}), "bigquery.ready")
	}
	return c, nil
}

func indexSpecs(specs []TableSpec) (map[string]TableSpec, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: at least one table is required", ErrNotConfigured)
	}
	out := make(map[string]TableSpec, len(specs))
	for _, spec := range specs {
		spec.Name = strings.TrimSpace(spec.Name)
		if spec.Name == "" {
			return nil, fmt.Errorf("%w: table name is required", ErrNotConfigured)
		}
		if _, dup := out[spec.Name]; dup {
			return nil, fmt.Errorf("bigquery: table %q registered twice", spec.Name)
		}
		out[spec.Name] = spec
	}
	return out, nil
}

// credentialOptions prefers inline JSON over a credentials file, and falls
// back to ambient credentials when neither is set.
func credentialOptions(gcp config.GCPConfig) []option.ClientOption {
	if raw := strings.TrimSpace(gcp.CredentialsJSON); raw != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(raw))}
	}
	if path := strings.TrimSpace(gcp.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

func (c *Client) prepare(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()

	if _, err := c.dataset.Metadata(ctx); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("bigquery: dataset %q does not exist", c.dataset.DatasetID)
		}
		return fmt.Errorf("bigquery: dataset %q: %w", c.dataset.DatasetID, err)
	}

	for name, spec := range c.tables {
		table := c.dataset.Table(name)
		_, err := table.Metadata(ctx)
		switch {
		case err == nil:
			continue
		case !isNotFound(err):
			return fmt.Errorf("bigquery: table %q: %w", name, err)
		case !c.autoCreate || len(spec.Schema) == 0:
			return fmt.Errorf("bigquery: table %q does not exist", name)
		}
		if err := table.Create(ctx, spec.metadata()); err != nil && !isConflict(err) {
			return fmt.Errorf("bigquery: create table %q: %w", name, err)
		}
		if c.logg != nil {
			c.logg.Info(c.logg.WithFields(ctx, map[string]any{"table": name}), "bigquery.table_created")
		}
	}
	return nil
}

// Ping re-checks that the dataset and registered tables are reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.bq == nil {
		return ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, metadataTimeout)
	defer cancel()
	if _, err := c.dataset.Metadata(ctx); err != nil {
		return fmt.Errorf("bigquery: dataset %q: %w", c.dataset.DatasetID, err)
	}
	for name := range c.tables {
		if _, err := c.dataset.Table(name).Metadata(ctx); err != nil {
			return fmt.Errorf("bigquery: table %q: %w", name, err)
		}
	}
	return nil
}

// InsertRows streams rows into a registered table. Rows that implement
// bigquery.ValueSaver with an insert id are deduplicated server side.
func (c *Client) InsertRows(ctx context.Context, table string, rows []any) error {
	if c == nil || c.bq == nil {
		return ErrNotConfigured
	}
	table = strings.TrimSpace(table)
	if _, ok := c.tables[table]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	if len(rows) == 0 {
		return nil
	}
	return c.dataset.Table(table).Inserter().Put(ctx, rows)
}

func (c *Client) Close() error {
	if c == nil || c.bq == nil {
		return nil
	}
	return c.bq.Close()
}

func isNotFound(err error) bool {
	return apiStatus(err) == http.StatusNotFound
}

func isConflict(err error) bool {
	return apiStatus(err) == http.StatusConflict
}

func apiStatus(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}

package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"

	"github.com/angelmondragon/creatorvault-backend/pkg/config"
)

func TestNewClientRequiresProjectAndDataset(t *testing.T) {
	ctx := context.Background()
	if _, err := NewClient(ctx, config.GCPConfig{}, config.BigQueryConfig{Dataset: "creatorvault"}, nil); !errors.Is(err, errProjectIDRequired) {
		t.Fatalf("expected project error, got %v", err)
	}
	if _, err := NewClient(ctx, config.GCPConfig{ProjectID: "p"}, config.BigQueryConfig{Dataset: " "}, nil); !errors.Is(err, errDatasetRequired) {
		t.Fatalf("expected dataset error, got %v", err)
	}
}

func TestClientOptions(t *testing.T) {
	tests := []struct {
		name string
		gcp  config.GCPConfig
		want int
	}{
		{"json wins over file", config.GCPConfig{CredentialsJSON: `{"dummy":"value"}`, ApplicationCredentials: "/tmp/creds"}, 1},
		{"file", config.GCPConfig{ApplicationCredentials: "/tmp/creds"}, 1},
		{"ambient credentials", config.GCPConfig{}, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := len(clientOptions(tc.gcp)); got != tc.want {
				t.Fatalf("expected %d options, got %d", tc.want, got)
			}
		})
	}
}

func TestTableMetadataPartitionsAndClusters(t *testing.T) {
	md := tableMetadata(TableSpec{
		Name:           "ledger_events",
		Schema:         bigquery.Schema{{Name: "occurred_at", Type: bigquery.TimestampFieldType}},
		PartitionField: "occurred_at",
		ClusterBy:      []string{"creator_id"},
	})
	if md.TimePartitioning == nil || md.TimePartitioning.Field != "occurred_at" || md.TimePartitioning.Type != bigquery.DayPartitioningType {
		t.Fatalf("unexpected partitioning %+v", md.TimePartitioning)
	}
	if md.Clustering == nil || md.Clustering.Fields[0] != "creator_id" {
		t.Fatalf("unexpected clustering %+v", md.Clustering)
	}
	if bare := tableMetadata(TableSpec{Name: "t"}); bare.TimePartitioning != nil || bare.Clustering != nil {
		t.Fatalf("expected no partitioning or clustering, got %+v", bare)
	}
}

func TestAPICodeClassification(t *testing.T) {
	if !isNotFound(fmt.Errorf("wrapped: %w", &googleapi.Error{Code: http.StatusNotFound})) {
		t.Fatal("expected wrapped 404 to be not found")
	}
	if !isAlreadyExists(&googleapi.Error{Code: http.StatusConflict}) {
		t.Fatal("expected 409 to be already exists")
	}
	if isNotFound(errors.New("plain")) {
		t.Fatal("plain errors carry no status")
	}
}

func TestNilClientGuards(t *testing.T) {
	var c *Client
	ctx := context.Background()
	if err := c.InsertRows(ctx, "ledger_events", []any{1}); !errors.Is(err, errClientNotInitialized) {
		t.Fatalf("expected not initialized error, got %v", err)
	}
	if err := c.EnsureTable(ctx, TableSpec{Name: "ledger_events"}); !errors.Is(err, errClientNotInitialized) {
		t.Fatalf("expected not initialized error, got %v", err)
	}
	if err := c.Ping(ctx); !errors.Is(err, errClientNotInitialized) {
		t.Fatalf("expected not initialized error, got %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close on nil client: %v", err)
	}
}

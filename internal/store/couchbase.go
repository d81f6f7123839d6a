package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/couchbase/gocb/v2"
	"github.com/rs/zerolog/log"

	"stealthcompany.com/complaints/internal/cfpb"
	"stealthcompany.com/complaints/internal/metrics"
)

// CouchbaseOptions carries the cluster connection settings.
type CouchbaseOptions struct {
	URL      string
	Username string
	Password string
	Bucket   string
}

// Couchbase stores complaints in a shared cluster, one document per
// complaint keyed raw/<entity>/<complaint_id>. Insert-or-ignore maps onto
// Insert with ErrDocumentExists treated as the ignore path, which keeps the
// write safe to interleave across concurrent loaders.
type Couchbase struct {
	cluster    *gocb.Cluster
	bucket     *gocb.Bucket
	bucketName string
}

func OpenCouchbase(opts CouchbaseOptions) (*Couchbase, error) {
	cluster, err := gocb.Connect(opts.URL, gocb.ClusterOptions{
		Authenticator: gocb.PasswordAuthenticator{
			Username: opts.Username,
			Password: opts.Password,
		},
		TimeoutsConfig: gocb.TimeoutsConfig{
			ConnectTimeout: 60 * time.Second,
			KVTimeout:      5 * time.Second,
			QueryTimeout:   30 * time.Second,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Couchbase: %w", err)
	}

	bucket := cluster.Bucket(opts.Bucket)
	err = bucket.WaitUntilReady(90*time.Second, &gocb.WaitUntilReadyOptions{
		Context:      context.Background(),
		ServiceTypes: []gocb.ServiceType{gocb.ServiceTypeKeyValue, gocb.ServiceTypeQuery},
	})
	if err != nil {
		return nil, fmt.Errorf("couchbase bucket not ready: %w", err)
	}

	log.Info().
		Str("couchbase_url", opts.URL).
		Str("bucket", opts.Bucket).
		Msg("Couchbase store opened")

	return &Couchbase{
		cluster:    cluster,
		bucket:     bucket,
		bucketName: opts.Bucket,
	}, nil
}

// EnsureEntity makes sure count queries have an index to run against.
func (s *Couchbase) EnsureEntity(ctx context.Context, entity string) error {
	query := "CREATE PRIMARY INDEX IF NOT EXISTS ON `" + s.bucketName + "`"
	_, err := s.cluster.Query(query, &gocb.QueryOptions{Context: ctx})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to ensure primary index, count queries may fail")
	}
	return nil
}

func (s *Couchbase) InsertComplaints(ctx context.Context, entity string, records []cfpb.Record) (int, int, error) {
	collection := s.bucket.DefaultCollection()
	key := EntityKey(entity)

	var inserted, ignored int
	for _, rec := range records {
		if rec.ComplaintID == "" {
			log.Warn().Str("entity", entity).Msg("Record without complaint_id, not stored")
			ignored++
			continue
		}

		docID := fmt.Sprintf("raw/%s/%s", key, rec.ComplaintID)
		doc := rec.Fields()
		doc["docId"] = docID
		doc["entity"] = key

		start := time.Now()
		_, err := collection.Insert(docID, doc, &gocb.InsertOptions{Context: ctx})
		duration := time.Since(start)

		switch {
		case err == nil:
			metrics.RecordStoreOperation("couchbase", "insert", "success", duration)
			inserted++
		case errors.Is(err, gocb.ErrDocumentExists):
			metrics.RecordStoreOperation("couchbase", "insert", "ignored", duration)
			ignored++
		default:
			metrics.RecordStoreOperation("couchbase", "insert", "error", duration)
			return inserted, ignored, fmt.Errorf("failed to insert complaint %s: %w", rec.ComplaintID, err)
		}
	}

	return inserted, ignored, nil
}

func (s *Couchbase) CountComplaints(ctx context.Context, entity string) (int64, error) {
	query := "SELECT COUNT(*) AS count FROM `" + s.bucketName + "` WHERE entity = $entity"
	rows, err := s.cluster.Query(query, &gocb.QueryOptions{
		Context:         ctx,
		NamedParameters: map[string]interface{}{"entity": EntityKey(entity)},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count complaints for %q: %w", entity, err)
	}
	defer rows.Close()

	var result struct {
		Count int64 `json:"count"`
	}
	if rows.Next() {
		if err := rows.Row(&result); err != nil {
			return 0, fmt.Errorf("failed to read complaint count: %w", err)
		}
	}
	return result.Count, nil
}

func (s *Couchbase) Close() error {
	return s.cluster.Close(nil)
}

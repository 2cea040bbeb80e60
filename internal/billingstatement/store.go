// Package billingstatement archives one object per monthly statement in an
// S3-compatible bucket (§6 "billing-statement store"), the object the
// account actor appends to as part of handling BillingCycleStarted (§4.7).
package billingstatement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"coreledger/internal/money"
)

// Statement is the archived record for one account/month.
type Statement struct {
	AccountID  uuid.UUID    `json:"account_id"`
	OrgID      uuid.UUID    `json:"org_id"`
	Month      int          `json:"month"`
	Year       int          `json:"year"`
	Balance    money.Amount `json:"balance"`
	FeeCharged bool         `json:"fee_charged"`
	FeeAmount  money.Amount `json:"fee_amount"`
	GeneratedAt time.Time   `json:"generated_at"`
}

// Store appends billing statements to object storage.
type Store interface {
	Append(ctx context.Context, stmt Statement) error
}

// MinioStore is the production Store, one object per statement, keyed
// `<accountID>/<year>-<month>.json` so a later read model can list an
// account's statement history by prefix.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// Config configures the MinIO client.
type Config struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	Bucket     string
	UseSSL     bool
}

// NewMinioStore dials the configured MinIO (or any S3-compatible) endpoint.
// It does not create the bucket — that's an out-of-band provisioning step.
func NewMinioStore(cfg Config) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("billingstatement: dial minio: %w", err)
	}
	return &MinioStore{client: client, bucket: cfg.Bucket}, nil
}

func (s *MinioStore) Append(ctx context.Context, stmt Statement) error {
	payload, err := json.Marshal(stmt)
	if err != nil {
		return fmt.Errorf("billingstatement: marshal: %w", err)
	}

	key := fmt.Sprintf("%s/%04d-%02d.json", stmt.AccountID, stmt.Year, stmt.Month)
	_, err = s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("billingstatement: put object %s: %w", key, err)
	}
	return nil
}

// MemoryStore is an in-process Store for tests and single-node development,
// avoiding a live MinIO dependency.
type MemoryStore struct {
	Statements []Statement
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Append(ctx context.Context, stmt Statement) error {
	s.Statements = append(s.Statements, stmt)
	return nil
}

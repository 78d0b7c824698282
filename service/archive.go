package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/preferrrr/blocker-server/config"
	"github.com/preferrrr/blocker-server/model"
)

// ArchiveService stores an immutable JSON snapshot of each concluded
// contract in object storage.
type ArchiveService struct {
	client *minio.Client
	bucket string
	config *config.ArchiveConfig
}

// ContractSnapshot is the archived form of a concluded contract
type ContractSnapshot struct {
	Contract   *model.Contract        `json:"contract"`
	Signs      []*model.AgreementSign `json:"signs"`
	ArchivedAt time.Time              `json:"archived_at"`
}

func NewArchiveService(cfg *config.ArchiveConfig) (*ArchiveService, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &ArchiveService{
		client: client,
		bucket: cfg.Bucket,
		config: cfg,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (s *ArchiveService) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	if !exists {
		err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return nil
}

// StoreSnapshot uploads the concluded contract and its signatures
func (s *ArchiveService) StoreSnapshot(ctx context.Context, contract *model.Contract, signs []*model.AgreementSign) error {
	snapshot := ContractSnapshot{
		Contract:   contract,
		Signs:      signs,
		ArchivedAt: time.Now(),
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	objectName := s.ObjectName(contract.ID)
	_, err = s.client.PutObject(ctx, s.bucket, objectName, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("failed to upload snapshot: %w", err)
	}

	return nil
}

// SnapshotURL generates a presigned URL for the archived snapshot
func (s *ArchiveService) SnapshotURL(ctx context.Context, contractID string) (string, error) {
	expiry := time.Duration(s.config.ExpireDays) * 24 * time.Hour
	url, err := s.client.PresignedGetObject(ctx, s.bucket, s.ObjectName(contractID), expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	return url.String(), nil
}

// ObjectName returns the bucket key for a contract's snapshot
func (s *ArchiveService) ObjectName(contractID string) string {
	return fmt.Sprintf("contracts/%s.json", contractID)
}

package minio

import (
	"bytes"
	"context"
	"io"
	"path"

	"github.com/minio/minio-go/v7"

	"github.com/turtacn/ShortCut-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ShortCut-Intelligence/pkg/errors"
)

const (
	reportPrefix      = "reports"
	reportContentType = "text/markdown; charset=utf-8"
)

// ReportStore persists exported markdown reports.  Each report is keyed by
// its analysis ID so a re-export overwrites rather than duplicates.
type ReportStore struct {
	client *Client
	log    logging.Logger
}

func NewReportStore(client *Client, log logging.Logger) *ReportStore {
	return &ReportStore{client: client, log: log.Named("report_store")}
}

// ObjectKey returns the storage key for an analysis ID.
func ObjectKey(analysisID string) string {
	return path.Join(reportPrefix, analysisID+".md")
}

// Save uploads one markdown report and returns its object key.
func (s *ReportStore) Save(ctx context.Context, analysisID string, markdown []byte) (string, error) {
	if analysisID == "" {
		return "", errors.NewValidationError("analysis id must not be empty")
	}
	if len(markdown) == 0 {
		return "", errors.NewValidationError("report content must not be empty")
	}

	key := ObjectKey(analysisID)
	_, err := s.client.api.PutObject(ctx, s.client.bucket, key,
		bytes.NewReader(markdown), int64(len(markdown)),
		minio.PutObjectOptions{ContentType: reportContentType},
	)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeStorageError, "upload report failed")
	}

	s.log.Debug("report stored",
		logging.String("object_key", key),
		logging.Int("bytes", len(markdown)),
	)
	return key, nil
}

// Fetch downloads a stored report.
func (s *ReportStore) Fetch(ctx context.Context, objectKey string) ([]byte, error) {
	obj, err := s.client.api.GetObject(ctx, s.client.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "fetch report failed")
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" {
			return nil, errors.NotFound("report " + objectKey)
		}
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "read report failed")
	}
	return data, nil
}

// PresignedURL returns a time-limited download link for a stored report.
func (s *ReportStore) PresignedURL(ctx context.Context, objectKey string) (string, error) {
	if objectKey == "" {
		return "", errors.NewValidationError("object key must not be empty")
	}
	u, err := s.client.api.PresignedGetObject(ctx, s.client.bucket, objectKey, s.client.presignExpiry, nil)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeStorageError, "presign report url failed")
	}
	return u.String(), nil
}

// Delete removes a stored report.  Deleting a missing object is not an
// error.
func (s *ReportStore) Delete(ctx context.Context, objectKey string) error {
	err := s.client.api.RemoveObject(ctx, s.client.bucket, objectKey, minio.RemoveObjectOptions{})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "delete report failed")
	}
	return nil
}

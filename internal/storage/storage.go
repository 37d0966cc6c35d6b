package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"legalmind/internal/config"
)

const (
	StageUpload = "upload"
	StageSign   = "sign"

	ContentTypePDF = "application/pdf"
)

type UploadResult struct {
	ObjectName  string `json:"object_name"`
	PublicURL   string `json:"public_url"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// Uploader is an object storage bucket. Implementations also serve as the
// remote source of template definitions through ReadObject.
type Uploader interface {
	Upload(ctx context.Context, data []byte, objectName, contentType string) (*UploadResult, error)
	SignedURL(ctx context.Context, objectName string, ttl time.Duration) (string, error)
	ReadObject(ctx context.Context, objectName string) ([]byte, error)
	Delete(ctx context.Context, objectName string) error
	Close() error
}

// StageError reports which step of an upload-and-sign failed.
type StageError struct {
	Stage      string
	ObjectName string
	Err        error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("storage %s failed for %s: %v", e.Stage, e.ObjectName, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// UploadAndSign stores data as a PDF and returns a signed download URL.
func UploadAndSign(ctx context.Context, u Uploader, data []byte, objectName string, ttl time.Duration) (string, *UploadResult, error) {
	res, err := u.Upload(ctx, data, objectName, ContentTypePDF)
	if err != nil {
		return "", nil, &StageError{Stage: StageUpload, ObjectName: objectName, Err: err}
	}
	url, err := u.SignedURL(ctx, objectName, ttl)
	if err != nil {
		return "", res, &StageError{Stage: StageSign, ObjectName: objectName, Err: err}
	}
	logrus.WithFields(logrus.Fields{
		"object": objectName,
		"size":   res.Size,
		"ttl":    ttl.String(),
	}).Info("Document uploaded")
	return url, res, nil
}

// GenerateDocumentObjectName builds documents/{type}_{requestID}_{unixMillis}.pdf.
func GenerateDocumentObjectName(documentType, requestID string, at time.Time) string {
	return fmt.Sprintf("documents/%s_%s_%d.pdf", documentType, requestID, at.UnixMilli())
}

// New opens the bucket selected by cfg.Provider.
func New(ctx context.Context, cfg config.StorageConfig) (Uploader, error) {
	var (
		u   Uploader
		err error
	)
	switch strings.ToLower(cfg.Provider) {
	case "gcs", "":
		u, err = NewGCSClient(ctx, cfg.Bucket, cfg.ProjectID, cfg.CredentialsPath)
	case "s3":
		u, err = NewS3Client(ctx, cfg)
	case "minio":
		var m *MinioClient
		if m, err = NewMinioClient(cfg); err == nil {
			u = m
			err = m.EnsureBucket(ctx)
		}
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

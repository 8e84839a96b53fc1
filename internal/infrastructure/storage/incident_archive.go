package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"fibermap/internal/domain"
	"fibermap/internal/ports"
)

// objectClient - підмножина minio.Client, яку використовує архів
type objectClient interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
}

// IncidentArchive зберігає звіт про кожну подію обриву в MinIO
type IncidentArchive struct {
	client     objectClient
	bucketName string
}

// IncidentReport - вміст одного об'єкта архіву
type IncidentReport struct {
	Event   ports.FaultEvent `json:"event"`
	Feature *geojson.Feature `json:"feature,omitempty"`
}

var _ ports.IncidentArchive = (*IncidentArchive)(nil)

// NewIncidentArchive створює новий екземпляр IncidentArchive
func NewIncidentArchive(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool) (*IncidentArchive, error) {
	// Ініціалізація MinIO клієнта
	minioClient, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}

	// Перевірка наявності бакета і створення його, якщо не існує
	exists, err := minioClient.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check if bucket exists: %w", err)
	}

	if !exists {
		err = minioClient.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &IncidentArchive{
		client:     minioClient,
		bucketName: bucket,
	}, nil
}

func (a *IncidentArchive) Name() string { return "incident_archive" }

// Deliver записує подію як JSON під префіксом лінії
func (a *IncidentArchive) Deliver(ctx context.Context, event ports.FaultEvent) error {
	report := IncidentReport{Event: event, Feature: incidentFeature(event)}
	body, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal incident report: %w", err)
	}

	objectKey := reportKey(event)
	_, err = a.client.PutObject(ctx, a.bucketName, objectKey, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "application/json",
		UserMetadata: map[string]string{
			"liaison-id":   event.Liaison.ID.String(),
			"fault-id":     event.Fault.ID.String(),
			"event-type":   string(event.Type),
			"fault-status": string(event.Fault.Status),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to save incident report %s: %w", objectKey, err)
	}
	return nil
}

// GetReport отримує звіт з MinIO
func (a *IncidentArchive) GetReport(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	obj, err := a.client.GetObject(ctx, a.bucketName, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get incident report: %w", err)
	}
	// GetObject лінивий: відсутній ключ видно лише після Stat
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("incident report %s: %w", objectKey, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to stat incident report: %w", err)
	}
	return obj, nil
}

// ListReportKeys повертає ключі звітів лінії в хронологічному порядку
func (a *IncidentArchive) ListReportKeys(ctx context.Context, liaisonID uuid.UUID) ([]string, error) {
	objectCh := a.client.ListObjects(ctx, a.bucketName, minio.ListObjectsOptions{
		Prefix:    liaisonID.String() + "/",
		Recursive: true,
	})

	var keys []string
	for object := range objectCh {
		if object.Err != nil {
			return nil, fmt.Errorf("error listing objects: %w", object.Err)
		}
		keys = append(keys, object.Key)
	}
	sort.Strings(keys)
	return keys, nil
}

// reportKey: <liaison>/<час події>-<fault>-<тип>.json, сортується за часом
func reportKey(event ports.FaultEvent) string {
	at := event.OccurredAt
	if at.IsZero() {
		at = time.Now()
	}
	return fmt.Sprintf("%s/%s-%s-%s.json",
		event.Liaison.ID, at.UTC().Format("20060102T150405.000Z"), event.Fault.ID, event.Type)
}

func incidentFeature(event ports.FaultEvent) *geojson.Feature {
	loc := event.Fault.EstimatedLocation
	if loc == nil {
		return nil
	}
	f := geojson.NewFeature(orb.Point{loc.Longitude, loc.Latitude})
	f.ID = event.Fault.ID.String()
	f.Properties["kind"] = "fault"
	f.Properties["liaison"] = event.Liaison.Name
	f.Properties["status"] = string(event.Fault.Status)
	f.Properties["precision"] = string(event.Fault.Precision)
	f.Properties["absolute_distance_km"] = event.Fault.AbsoluteDistanceKm
	return f
}

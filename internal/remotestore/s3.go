package remotestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/edvin/dochub/internal/model"
)

// Store implements the backup destination over any S3-compatible endpoint
// (AWS, Ceph RGW, MinIO). Folders are modeled as key prefixes: creating a
// folder writes a zero-byte marker object at "<prefix>/" so listings can
// report creation time.
type Store struct {
	logger     zerolog.Logger
	client     s3API
	bucket     string
	parentName string

	sf singleflight.Group

	mu     sync.RWMutex
	parent *model.RemoteFolder
}

// s3API is the subset of the S3 client the store uses.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

type Config struct {
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	ParentFolder string
}

func New(logger zerolog.Logger, cfg Config) *Store {
	opts := s3.Options{
		Region:      cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}
	return &Store{
		logger:     logger.With().Str("component", "remote-store").Logger(),
		client:     s3.New(opts),
		bucket:     cfg.Bucket,
		parentName: cfg.ParentFolder,
	}
}

// Init resolves the parent backup folder, creating it if absent. It is
// idempotent and safe to call concurrently: singleflight collapses racing
// callers onto one lookup-then-create.
func (s *Store) Init(ctx context.Context) error {
	_, err, _ := s.sf.Do("parent", func() (any, error) {
		s.mu.RLock()
		ready := s.parent != nil
		s.mu.RUnlock()
		if ready {
			return nil, nil
		}

		folder, err := s.ensureFolder(ctx, s.parentName+"/", s.parentName)
		if err != nil {
			return nil, fmt.Errorf("initialize parent backup folder: %w", err)
		}

		s.mu.Lock()
		s.parent = &folder
		s.mu.Unlock()
		s.logger.Info().Str("folder", folder.ID).Msg("parent backup folder ready")
		return nil, nil
	})
	return err
}

// Ready reports whether Init has completed.
func (s *Store) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.parent != nil
}

// CreateBackupFolder creates a per-job folder under the parent. Names are
// namespaced by trigger timestamp and therefore unique per job, so this
// always creates.
func (s *Store) CreateBackupFolder(ctx context.Context, name string) (model.RemoteFolder, error) {
	parent, err := s.parentFolder()
	if err != nil {
		return model.RemoteFolder{}, err
	}

	prefix := parent.ID + name + "/"
	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(prefix),
	}); err != nil {
		return model.RemoteFolder{}, fmt.Errorf("create folder %s: %w", prefix, err)
	}

	s.logger.Debug().Str("folder", prefix).Msg("created backup folder")
	return model.RemoteFolder{ID: prefix, Name: name, CreatedAt: time.Now()}, nil
}

// Upload streams one artifact into the folder. Cleanup of any local temp
// file stays with the caller.
func (s *Store) Upload(ctx context.Context, folder model.RemoteFolder, name, contentType string, r io.Reader) error {
	key := folder.ID + name
	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String(contentType),
	}); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	s.logger.Debug().Str("key", key).Msg("uploaded artifact")
	return nil
}

// ListBackupFolders returns the per-job folders under the parent, newest
// first by marker creation time.
func (s *Store) ListBackupFolders(ctx context.Context) ([]model.RemoteFolder, error) {
	parent, err := s.parentFolder()
	if err != nil {
		return nil, err
	}

	var folders []model.RemoteFolder
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(parent.ID),
	}
	for {
		page, err := s.client.ListObjectsV2(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("list backup folders: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			name, ok := folderName(parent.ID, *obj.Key)
			if !ok {
				continue
			}
			folder := model.RemoteFolder{ID: *obj.Key, Name: name}
			if obj.LastModified != nil {
				folder.CreatedAt = *obj.LastModified
			}
			folders = append(folders, folder)
		}
		if page.IsTruncated == nil || !*page.IsTruncated {
			break
		}
		input.ContinuationToken = page.NextContinuationToken
	}

	sort.Slice(folders, func(i, j int) bool {
		return folders[i].CreatedAt.After(folders[j].CreatedAt)
	})
	return folders, nil
}

func (s *Store) parentFolder() (model.RemoteFolder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.parent == nil {
		return model.RemoteFolder{}, errors.New("remote store not initialized")
	}
	return *s.parent, nil
}

// ensureFolder looks a folder marker up by key and creates it only if
// absent.
func (s *Store) ensureFolder(ctx context.Context, key, name string) (model.RemoteFolder, error) {
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		folder := model.RemoteFolder{ID: key, Name: name}
		if head.LastModified != nil {
			folder.CreatedAt = *head.LastModified
		}
		return folder, nil
	}
	if !isNotFound(err) {
		return model.RemoteFolder{}, fmt.Errorf("look up folder %s: %w", key, err)
	}

	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return model.RemoteFolder{}, fmt.Errorf("create folder %s: %w", key, err)
	}
	return model.RemoteFolder{ID: key, Name: name, CreatedAt: time.Now()}, nil
}

func isNotFound(err error) bool {
	var nf *s3types.NotFound
	return errors.As(err, &nf)
}

// folderName extracts the folder name from a marker key directly under the
// parent prefix. Artifact keys and nested markers are rejected.
func folderName(parentPrefix, key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, parentPrefix)
	if !ok || rest == "" || !strings.HasSuffix(rest, "/") {
		return "", false
	}
	name := strings.TrimSuffix(rest, "/")
	if name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}

package dbmanager

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"querypilot-ai/pkg/redis"
	"time"
)

const schemaKeyPrefix = "querypilot:schema:"

// ErrSchemaNotStored means the shared cache holds no schema for the key.
var ErrSchemaNotStored = errors.New("schema not stored")

// SchemaStorageService keeps the structured schema in Redis so that several
// replicas introspect the target database once per TTL. Payloads are
// zlib-compressed and, when a key is configured, AES-GCM encrypted.
type SchemaStorageService struct {
	redisRepo  redis.IRedisRepositories
	encryption *SchemaEncryption
	ttl        time.Duration
	logger     *slog.Logger
}

func NewSchemaStorageService(redisRepo redis.IRedisRepositories, encryptionKey string, ttl time.Duration, logger *slog.Logger) (*SchemaStorageService, error) {
	var encryption *SchemaEncryption
	if encryptionKey != "" {
		var err error
		encryption, err = NewSchemaEncryption(encryptionKey)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize schema encryption: %w", err)
		}
	}

	return &SchemaStorageService{
		redisRepo:  redisRepo,
		encryption: encryption,
		ttl:        ttl,
		logger:     logger,
	}, nil
}

func (s *SchemaStorageService) Store(ctx context.Context, name string, schema *SchemaInfo) error {
	data, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}

	payload, err := s.compress(data)
	if err != nil {
		return fmt.Errorf("failed to compress schema: %w", err)
	}

	if s.encryption != nil {
		encrypted, err := s.encryption.Encrypt(payload)
		if err != nil {
			return fmt.Errorf("failed to encrypt schema: %w", err)
		}
		payload = []byte(encrypted)
	}

	if err := s.redisRepo.Set(schemaKeyPrefix+name, payload, s.ttl, ctx); err != nil {
		return fmt.Errorf("failed to store schema in Redis: %w", err)
	}

	s.logger.Debug("SchemaStorageService -> Store -> stored schema",
		slog.String("name", name),
		slog.Int("bytes", len(payload)),
	)
	return nil
}

func (s *SchemaStorageService) Retrieve(ctx context.Context, name string) (*SchemaInfo, error) {
	raw, err := s.redisRepo.Get(schemaKeyPrefix+name, ctx)
	if err != nil {
		if errors.Is(err, redis.ErrKeyNotFound) {
			return nil, ErrSchemaNotStored
		}
		return nil, fmt.Errorf("failed to get schema from Redis: %w", err)
	}

	payload := []byte(raw)
	if s.encryption != nil {
		payload, err = s.encryption.Decrypt(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt schema: %w", err)
		}
	}

	decompressed, err := s.decompress(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress schema: %w", err)
	}

	var schema SchemaInfo
	if err := json.Unmarshal(decompressed, &schema); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema: %w", err)
	}
	return &schema, nil
}

func (s *SchemaStorageService) Delete(ctx context.Context, name string) error {
	return s.redisRepo.Del(schemaKeyPrefix+name, ctx)
}

func (s *SchemaStorageService) compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)

	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write compressed data: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close compressor: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *SchemaStorageService) decompress(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create decompressor: %w", err)
	}
	defer r.Close()

	return io.ReadAll(r)
}

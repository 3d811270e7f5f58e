// Package backend selects and builds the remote.Store the coordinator pushes to.
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ledger/internal/config"
	"ledger/internal/remote"
	"ledger/internal/remote/firestore"
	"ledger/internal/remote/memory"
)

// BackendType names a remote store implementation.
type BackendType string

const (
	MemoryBackend    BackendType = "memory"
	FirestoreBackend BackendType = "firestore"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, FirestoreBackend:
		return true
	default:
		return false
	}
}

// GetBackendTypes returns all valid backend types.
func GetBackendTypes() []BackendType {
	return []BackendType{MemoryBackend, FirestoreBackend}
}

// Config holds what the factory needs to build a remote store.
type Config struct {
	Type BackendType

	FirestoreProjectID  string
	FirestoreDatabaseID string
	CredentialsJSON     []byte
	Timeout             time.Duration
}

// FromAppConfig converts the application config to backend config. The
// credentials are resolved from the environment only for firestore.
func FromAppConfig(ctx context.Context, appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.RemoteBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.RemoteBackend)
	}

	cfg := Config{
		Type:                backendType,
		FirestoreProjectID:  appConfig.FirestoreProjectID,
		FirestoreDatabaseID: appConfig.FirestoreDatabaseID,
		Timeout:             appConfig.RemoteTimeout,
	}
	if backendType == FirestoreBackend {
		creds, err := firestore.CredentialsFromEnv(ctx)
		if err != nil {
			return Config{}, err
		}
		cfg.CredentialsJSON = creds
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	if c.Type == FirestoreBackend {
		if strings.TrimSpace(c.FirestoreProjectID) == "" {
			return fmt.Errorf("Firestore project ID is required for firestore backend")
		}
		if len(c.CredentialsJSON) == 0 {
			return fmt.Errorf("service account credentials are required for firestore backend")
		}
	}
	return nil
}

// Factory builds remote stores from configuration.
type Factory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{logger: logger}
}

func (f *Factory) CreateRemote(ctx context.Context, cfg Config) (remote.Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case FirestoreBackend:
		client, err := firestore.New(ctx, firestore.Config{
			ProjectID:       cfg.FirestoreProjectID,
			DatabaseID:      cfg.FirestoreDatabaseID,
			Timeout:         cfg.Timeout,
			CredentialsJSON: cfg.CredentialsJSON,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Firestore client: %w", err)
		}
		f.logger.Info("Initialized firestore remote backend", "project_id", cfg.FirestoreProjectID)
		return client, nil
	case MemoryBackend:
		f.logger.Info("Initialized memory remote backend")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", cfg.Type)
	}
}

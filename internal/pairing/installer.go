package pairing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"serpcompanion/internal/config"
	"serpcompanion/internal/fileutil"
	"serpcompanion/internal/logging"
)

// ErrMissingExtensionID is returned when no extension id was supplied.
var ErrMissingExtensionID = errors.New("missing_extId")

const lockRetryDelay = 100 * time.Millisecond

// Installer writes and registers the native messaging manifest.
type Installer struct {
	cfg       *config.Config
	registrar Registrar
	logger    *slog.Logger
}

// NewInstaller constructs an installer. A nil registrar selects the platform
// default.
func NewInstaller(cfg *config.Config, registrar Registrar, logger *slog.Logger) *Installer {
	if registrar == nil {
		registrar = DefaultRegistrar()
	}
	return &Installer{
		cfg:       cfg,
		registrar: registrar,
		logger:    logging.NewComponentLogger(logger, "pairing"),
	}
}

// Install writes the manifest allowing extIDs and registers it. The returned
// path is set whenever the manifest file was written, even if registration
// failed afterwards.
func (i *Installer) Install(ctx context.Context, extIDs ...string) (string, error) {
	manifest, err := NewManifest(i.cfg.Pairing.HostName, i.cfg.Pairing.Description, i.cfg.Pairing.ExecutablePath, extIDs)
	if err != nil {
		return "", err
	}
	data, err := manifest.Encode()
	if err != nil {
		return "", err
	}

	lockPath := i.cfg.ManifestLockPath()
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return "", fmt.Errorf("create lock directory: %w", err)
	}
	lock := flock.New(lockPath)
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return "", fmt.Errorf("acquire manifest lock: %w", err)
	}
	if !locked {
		return "", errors.New("manifest lock unavailable")
	}
	defer func() { _ = lock.Unlock() }()

	path := i.cfg.ManifestPath()
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	if err := i.registrar.Register(manifest.Name, path, data); err != nil {
		logging.WarnWithContext(i.logger, "manifest registration failed", "manifest_register",
			logging.String("manifest", path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check browser profile permissions"),
			logging.String(logging.FieldImpact, "browser cannot launch the host until pairing succeeds"),
		)
		return path, err
	}
	i.logger.Info("manifest registered",
		logging.String("manifest", path),
		logging.Any("allowed_origins", manifest.AllowedOrigins),
	)
	return path, nil
}

package loader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/roach88/deployer/internal/artifacts"
	"github.com/roach88/deployer/internal/deployerr"
	"github.com/roach88/deployer/internal/journal"
	"github.com/roach88/deployer/internal/store"
)

// Layout of a deployment directory.
const (
	ArtifactsDir          = "artifacts"
	BuildInfoDir          = "build-info"
	DeployedAddressesFile = "deployed_addresses.json"
)

// Backend selects the journal storage of a FileLoader.
type Backend string

const (
	BackendJSONL  Backend = "jsonl"
	BackendSQLite Backend = "sqlite"
)

// FileLoader stores a deployment in a directory.
type FileLoader struct {
	dir     string
	journal journal.Journal
	closer  func() error

	mu sync.Mutex
}

// Option configures a FileLoader.
type Option func(*fileOptions)

type fileOptions struct {
	backend Backend
}

// WithBackend selects the journal backend for a new deployment directory.
// An existing directory keeps whichever backend it was created with.
func WithBackend(b Backend) Option {
	return func(o *fileOptions) { o.backend = b }
}

// NewFileLoader opens dir, creating it if needed.
func NewFileLoader(dir string, opts ...Option) (*FileLoader, error) {
	o := fileOptions{backend: BackendJSONL}
	for _, opt := range opts {
		opt(&o)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create deployment dir: %w", err)
	}
	if existing, ok := detectBackend(dir); ok {
		o.backend = existing
	}
	return openBackend(dir, o.backend)
}

// OpenFileLoader opens an existing deployment directory.
func OpenFileLoader(dir string) (*FileLoader, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, deployerr.New(deployerr.CodeDeploymentDirNotFound, "deployment directory %s not found", dir)
	}
	backend, ok := detectBackend(dir)
	if !ok {
		backend = BackendJSONL
	}
	return openBackend(dir, backend)
}

func detectBackend(dir string) (Backend, bool) {
	if _, err := os.Stat(filepath.Join(dir, store.DefaultFileName)); err == nil {
		return BackendSQLite, true
	}
	if _, err := os.Stat(filepath.Join(dir, journal.FileName)); err == nil {
		return BackendJSONL, true
	}
	return "", false
}

func openBackend(dir string, backend Backend) (*FileLoader, error) {
	l := &FileLoader{dir: dir, closer: func() error { return nil }}
	switch backend {
	case BackendJSONL:
		l.journal = journal.NewFileJournal(filepath.Join(dir, journal.FileName))
	case BackendSQLite:
		s, err := store.Open(filepath.Join(dir, store.DefaultFileName))
		if err != nil {
			return nil, err
		}
		l.journal = s
		l.closer = s.Close
	default:
		return nil, fmt.Errorf("unknown journal backend %q", backend)
	}
	return l, nil
}

// Dir returns the deployment directory.
func (l *FileLoader) Dir() string { return l.dir }

func (l *FileLoader) RecordToJournal(ctx context.Context, m journal.Message) error {
	return l.journal.Record(ctx, m)
}

func (l *FileLoader) ReadFromJournal(ctx context.Context) ([]journal.Message, error) {
	return l.journal.Read(ctx)
}

// RecordDeployedAddress rewrites deployed_addresses.json with the new entry.
// The file is replaced atomically.
func (l *FileLoader) RecordDeployedAddress(ctx context.Context, futureID string, addr common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	current, err := l.readDeployedAddresses()
	if err != nil {
		return err
	}
	current[futureID] = addr
	data, err := json.MarshalIndent(current, "", "  ")
	if err != nil {
		return fmt.Errorf("encode deployed addresses: %w", err)
	}
	return writeFileAtomic(filepath.Join(l.dir, DeployedAddressesFile), append(data, '\n'))
}

func (l *FileLoader) DeployedAddresses(context.Context) (map[string]common.Address, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readDeployedAddresses()
}

func (l *FileLoader) readDeployedAddresses() (map[string]common.Address, error) {
	out := make(map[string]common.Address)
	data, err := os.ReadFile(filepath.Join(l.dir, DeployedAddressesFile))
	if errors.Is(err, os.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read deployed addresses: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode deployed addresses: %w", err)
	}
	return out, nil
}

// StoreNamedArtifact writes the artifact the future was executed with, so a
// later run reads the same bytecode even after recompilation.
func (l *FileLoader) StoreNamedArtifact(_ context.Context, futureID, contractName string, a *artifacts.Artifact) error {
	if a == nil {
		return fmt.Errorf("store artifact %s: no artifact for contract %s", futureID, contractName)
	}
	return l.writeArtifact(futureID, a)
}

func (l *FileLoader) StoreUserProvidedArtifact(_ context.Context, futureID string, a *artifacts.Artifact) error {
	return l.writeArtifact(futureID, a)
}

func (l *FileLoader) writeArtifact(futureID string, a *artifacts.Artifact) error {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("encode artifact %s: %w", futureID, err)
	}
	if err := os.MkdirAll(filepath.Join(l.dir, ArtifactsDir), 0o755); err != nil {
		return fmt.Errorf("create artifacts dir: %w", err)
	}
	return writeFileAtomic(l.artifactPath(futureID, ".json"), data)
}

// StoreBuildInfo writes build-info/<id>.json and a debug file next to the
// future's artifact pointing at it.
func (l *FileLoader) StoreBuildInfo(_ context.Context, futureID string, bi *artifacts.BuildInfo) error {
	if bi.ID == "" {
		return fmt.Errorf("store build info for %s: missing id", futureID)
	}
	data, err := json.MarshalIndent(bi, "", "  ")
	if err != nil {
		return fmt.Errorf("encode build info %s: %w", bi.ID, err)
	}
	if err := os.MkdirAll(filepath.Join(l.dir, BuildInfoDir), 0o755); err != nil {
		return fmt.Errorf("create build-info dir: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(l.dir, BuildInfoDir, bi.ID+".json"), data); err != nil {
		return err
	}
	dbg, err := json.MarshalIndent(map[string]string{
		"_format":   "hh-sol-dbg-1",
		"buildInfo": "../" + BuildInfoDir + "/" + bi.ID + ".json",
	}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(l.dir, ArtifactsDir), 0o755); err != nil {
		return fmt.Errorf("create artifacts dir: %w", err)
	}
	return writeFileAtomic(l.artifactPath(futureID, ".dbg.json"), dbg)
}

func (l *FileLoader) LoadArtifact(_ context.Context, artifactID string) (*artifacts.Artifact, error) {
	data, err := os.ReadFile(l.artifactPath(artifactID, ".json"))
	if err != nil {
		return nil, fmt.Errorf("load artifact %s: %w", artifactID, err)
	}
	return artifacts.Parse(data)
}

// Close releases the journal backend.
func (l *FileLoader) Close() error { return l.closer() }

// artifactFileName escapes ':' and '/' so that distinct future ids never
// share a file.
var artifactFileName = strings.NewReplacer("%", "%25", "#", "%23", "/", "%2F", ":", "#")

// artifactPath maps a future id to a file name: ':' becomes '#', and '%',
// '#' and '/' are percent-escaped.
func (l *FileLoader) artifactPath(futureID, ext string) string {
	return filepath.Join(l.dir, ArtifactsDir, artifactFileName.Replace(futureID)+ext)
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("sync %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return journal.SyncDir(filepath.Dir(path))
}

var _ Loader = (*FileLoader)(nil)

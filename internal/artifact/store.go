// Package artifact persists the trained classifier, its label codec and the
// class list as one unit. A manifest written last commits the set; readers
// never see a partially written run.
package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/haskel/foodia/internal/codec"
	"github.com/haskel/foodia/internal/logger"
	"github.com/haskel/foodia/internal/nn"
)

const (
	FormatVersion = 1

	ManifestFile = "manifest.json"
	lockFileName = ".train.lock"

	modelPrefix   = "food_model-"
	codecPrefix   = "label_codec-"
	classesPrefix = "classes-"
	fileSuffix    = ".json"
	tempSuffix    = ".tmp"

	lockRetryDelay = 100 * time.Millisecond
	loadAttempts   = 3
)

var (
	ErrArtifactMissing = errors.New("no trained model artifact")
	ErrInconsistent    = errors.New("inconsistent model artifact")
	ErrLocked          = errors.New("artifact directory is locked by another training run")
)

// Manifest names the files of one committed run.
type Manifest struct {
	FormatVersion int       `json:"format_version"`
	RunID         string    `json:"run_id"`
	CreatedAt     time.Time `json:"created_at"`
	ImageSize     int       `json:"image_size"`
	NumClasses    int       `json:"num_classes"`
	ModelFile     string    `json:"model_file"`
	CodecFile     string    `json:"codec_file"`
	ClassesFile   string    `json:"classes_file"`
	TestLoss      float64   `json:"test_loss"`
	TestAccuracy  float64   `json:"test_accuracy"`
}

// Artifact is the unit that is saved and loaded together.
type Artifact struct {
	Manifest Manifest
	Model    *nn.Classifier
	Codec    *codec.Codec
	Classes  []string
}

type modelEnvelope struct {
	RunID string          `json:"run_id"`
	Model json.RawMessage `json:"model"`
}

type codecEnvelope struct {
	RunID string       `json:"run_id"`
	Codec *codec.Codec `json:"codec"`
}

type classesEnvelope struct {
	RunID   string   `json:"run_id"`
	Classes []string `json:"classes"`
}

// Store keeps artifacts in a single directory.
type Store struct {
	dir    string
	logger *slog.Logger
}

// NewStore returns a store rooted at dir. The directory is created on the
// first Save. A nil logger discards output.
func NewStore(dir string, log *slog.Logger) *Store {
	if log == nil {
		log = logger.Discard()
	}
	return &Store{dir: dir, logger: log}
}

func (s *Store) Dir() string {
	return s.dir
}

// Save writes a under a fresh run ID and commits it by renaming the manifest
// into place. The run committed before it stays on disk so readers that
// picked up the old manifest can finish; anything older is removed. Only one Save
// may run against a directory at a time; a concurrent caller waits until ctx
// is done and then fails with ErrLocked.
func (s *Store) Save(ctx context.Context, a *Artifact) (*Manifest, error) {
	if err := validate(a); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	lock := flock.New(filepath.Join(s.dir, lockFileName))
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLocked, err)
	}
	if !locked {
		return nil, ErrLocked
	}
	defer lock.Unlock()

	m := a.Manifest
	m.FormatVersion = FormatVersion
	m.RunID = uuid.NewString()
	m.CreatedAt = time.Now().UTC()
	m.NumClasses = a.Codec.Len()
	m.ModelFile = modelPrefix + m.RunID + fileSuffix
	m.CodecFile = codecPrefix + m.RunID + fileSuffix
	m.ClassesFile = classesPrefix + m.RunID + fileSuffix

	written := []string{m.ModelFile, m.CodecFile, m.ClassesFile}
	abort := func(err error) (*Manifest, error) {
		for _, name := range written {
			os.Remove(filepath.Join(s.dir, name))
		}
		return nil, err
	}

	err = s.writeAtomic(m.ModelFile, func(w io.Writer) error {
		var raw bytes.Buffer
		if err := a.Model.Save(&raw); err != nil {
			return err
		}
		return json.NewEncoder(w).Encode(modelEnvelope{RunID: m.RunID, Model: bytes.TrimSpace(raw.Bytes())})
	})
	if err != nil {
		return abort(fmt.Errorf("failed to save model: %w", err))
	}

	if err := s.writeJSON(m.CodecFile, codecEnvelope{RunID: m.RunID, Codec: a.Codec}); err != nil {
		return abort(fmt.Errorf("failed to save label codec: %w", err))
	}
	if err := s.writeJSON(m.ClassesFile, classesEnvelope{RunID: m.RunID, Classes: a.Classes}); err != nil {
		return abort(fmt.Errorf("failed to save class list: %w", err))
	}

	if err := ctx.Err(); err != nil {
		return abort(err)
	}

	var previous string
	if prev, err := s.ReadManifest(); err == nil {
		previous = prev.RunID
	}

	if err := s.writeJSON(ManifestFile, m); err != nil {
		return abort(fmt.Errorf("failed to commit manifest: %w", err))
	}

	s.logger.Info("saved model artifact",
		"dir", s.dir,
		"run_id", m.RunID,
		"classes", m.NumClasses,
	)
	s.removeStale(m.RunID, previous)
	return &m, nil
}

func validate(a *Artifact) error {
	if a == nil || a.Model == nil || a.Codec == nil {
		return fmt.Errorf("%w: model, codec and classes are required", ErrInconsistent)
	}
	if !a.Codec.Equal(a.Classes) {
		return fmt.Errorf("%w: class list does not match codec order", ErrInconsistent)
	}
	if a.Model.NumClasses() != a.Codec.Len() {
		return fmt.Errorf("%w: model has %d outputs for %d classes", ErrInconsistent, a.Model.NumClasses(), a.Codec.Len())
	}
	return nil
}

func (s *Store) writeJSON(name string, v any) error {
	return s.writeAtomic(name, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	})
}

// writeAtomic writes to a temp file and renames it over name.
func (s *Store) writeAtomic(name string, write func(io.Writer) error) error {
	filePath := filepath.Join(s.dir, name)
	tempPath := filePath + tempSuffix

	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if err := write(file); err != nil {
		file.Close()
		os.Remove(tempPath)
		return err
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tempPath, filePath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	s.logger.Debug("wrote artifact file", "path", filePath)
	return nil
}

// removeStale deletes run files that belong to none of the keep runs, plus
// leftover temp files.
func (s *Store) removeStale(keep ...string) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !isRunFile(name) && !strings.HasSuffix(name, tempSuffix) {
			continue
		}
		if !strings.HasSuffix(name, tempSuffix) && belongsTo(name, keep) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			s.logger.Warn("failed to remove stale artifact file", "file", name, "error", err)
			continue
		}
		s.logger.Debug("removed stale artifact file", "file", name)
	}
}

func belongsTo(name string, runs []string) bool {
	for _, id := range runs {
		if id != "" && strings.Contains(name, id) {
			return true
		}
	}
	return false
}

func isRunFile(name string) bool {
	if !strings.HasSuffix(name, fileSuffix) {
		return false
	}
	for _, p := range []string{modelPrefix, codecPrefix, classesPrefix} {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// ReadManifest returns the committed manifest or ErrArtifactMissing.
func (s *Store) ReadManifest() (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, ManifestFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w in %s", ErrArtifactMissing, s.dir)
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: manifest: %v", ErrInconsistent, err)
	}
	if m.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("%w: format version %d, want %d", ErrInconsistent, m.FormatVersion, FormatVersion)
	}
	return &m, nil
}

// Load reads the committed artifact and checks that its parts belong
// together. A Save that commits while the parts are being read makes Load
// start over from the new manifest.
func (s *Store) Load() (*Artifact, error) {
	m, err := s.ReadManifest()
	if err != nil {
		return nil, err
	}
	for attempt := 1; ; attempt++ {
		a, err := s.loadRun(m)
		if err == nil || attempt == loadAttempts {
			return a, err
		}
		current, merr := s.ReadManifest()
		if merr != nil || current.RunID == m.RunID {
			return nil, err
		}
		s.logger.Debug("manifest changed while loading, retrying",
			"run_id", m.RunID,
			"new_run_id", current.RunID,
			"error", err,
		)
		m = current
	}
}

func (s *Store) loadRun(m *Manifest) (*Artifact, error) {
	var classes classesEnvelope
	if err := s.readJSON(m.ClassesFile, &classes); err != nil {
		return nil, err
	}
	var cod codecEnvelope
	if err := s.readJSON(m.CodecFile, &cod); err != nil {
		return nil, err
	}
	var model modelEnvelope
	if err := s.readJSON(m.ModelFile, &model); err != nil {
		return nil, err
	}

	for file, id := range map[string]string{
		m.ClassesFile: classes.RunID,
		m.CodecFile:   cod.RunID,
		m.ModelFile:   model.RunID,
	} {
		if id != m.RunID {
			return nil, fmt.Errorf("%w: %s belongs to run %q, manifest is %q", ErrInconsistent, file, id, m.RunID)
		}
	}

	if cod.Codec == nil {
		return nil, fmt.Errorf("%w: empty codec", ErrInconsistent)
	}
	if !cod.Codec.Equal(classes.Classes) {
		return nil, fmt.Errorf("%w: class list does not match codec", ErrInconsistent)
	}
	if cod.Codec.Len() != m.NumClasses {
		return nil, fmt.Errorf("%w: manifest lists %d classes, codec has %d", ErrInconsistent, m.NumClasses, cod.Codec.Len())
	}

	clf := &nn.Classifier{}
	if err := clf.Load(bytes.NewReader(model.Model)); err != nil {
		return nil, fmt.Errorf("%w: model: %v", ErrInconsistent, err)
	}
	if clf.NumClasses() != cod.Codec.Len() {
		return nil, fmt.Errorf("%w: model has %d outputs for %d classes", ErrInconsistent, clf.NumClasses(), cod.Codec.Len())
	}

	s.logger.Info("loaded model artifact", "dir", s.dir, "run_id", m.RunID, "classes", m.NumClasses)
	return &Artifact{
		Manifest: *m,
		Model:    clf,
		Codec:    cod.Codec,
		Classes:  classes.Classes,
	}, nil
}

func (s *Store) readJSON(name string, v any) error {
	if name == "" || filepath.Base(name) != name {
		return fmt.Errorf("%w: invalid file name %q", ErrInconsistent, name)
	}
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInconsistent, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInconsistent, name, err)
	}
	return nil
}

// Exists reports whether a manifest has been committed.
func (s *Store) Exists() bool {
	_, err := os.Stat(filepath.Join(s.dir, ManifestFile))
	return err == nil
}

type FileInfo struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Info struct {
	Exists   bool       `json:"exists"`
	Dir      string     `json:"dir"`
	Manifest *Manifest  `json:"manifest,omitempty"`
	Files    []FileInfo `json:"files,omitempty"`
	Error    string     `json:"error,omitempty"`
}

// Info describes the committed artifact without loading the model.
func (s *Store) Info() Info {
	info := Info{Dir: s.dir}

	m, err := s.ReadManifest()
	if err != nil {
		if !errors.Is(err, ErrArtifactMissing) {
			info.Error = err.Error()
		}
		return info
	}

	info.Exists = true
	info.Manifest = m
	for _, name := range []string{ManifestFile, m.ModelFile, m.CodecFile, m.ClassesFile} {
		stat, err := os.Stat(filepath.Join(s.dir, name))
		if err != nil {
			info.Error = fmt.Sprintf("missing %s", name)
			continue
		}
		info.Files = append(info.Files, FileInfo{Name: name, Size: stat.Size(), UpdatedAt: stat.ModTime()})
	}
	return info
}

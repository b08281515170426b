// Package modelstore loads the vocabulary, knowledge base and classifier
// ensemble from a model directory.
package modelstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Skufu/lifeline/internal/ensemble"
	"github.com/Skufu/lifeline/internal/knowledge"
	"github.com/Skufu/lifeline/internal/refine"
	"github.com/Skufu/lifeline/internal/symptom"
)

// ManifestFile is looked up in the model directory.
const ManifestFile = "manifest.json"

// Artifact formats.
const (
	FormatJSON = "json"
	FormatONNX = "onnx"
)

// ClassifierSpec names one ensemble member and its artifact.
type ClassifierSpec struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Format string `json:"format,omitempty"`
}

// Manifest lists the artifacts of a model directory. Paths are relative to
// the directory.
type Manifest struct {
	Vocabulary    string           `json:"vocabulary"`
	KnowledgeBase string           `json:"knowledge_base"`
	LabelEncoder  string           `json:"label_encoder"`
	Classifiers   []ClassifierSpec `json:"classifiers"`
}

// DefaultManifest is used when the directory has no manifest.json.
func DefaultManifest() Manifest {
	return Manifest{
		Vocabulary:    "symptoms.json",
		KnowledgeBase: "disease_symptom_map.json",
		LabelEncoder:  "encoder.json",
		Classifiers: []ClassifierSpec{
			{Name: "svm", Path: "svm_model.json", Format: FormatJSON},
			{Name: "nb", Path: "nb_model.json", Format: FormatJSON},
			{Name: "rf", Path: "rf_model.json", Format: FormatJSON},
		},
	}
}

// withDefaults fills empty fields from DefaultManifest.
func (m Manifest) withDefaults() Manifest {
	d := DefaultManifest()
	if m.Vocabulary == "" {
		m.Vocabulary = d.Vocabulary
	}
	if m.KnowledgeBase == "" {
		m.KnowledgeBase = d.KnowledgeBase
	}
	if m.LabelEncoder == "" {
		m.LabelEncoder = d.LabelEncoder
	}
	if len(m.Classifiers) == 0 {
		m.Classifiers = d.Classifiers
	}
	cs := make([]ClassifierSpec, len(m.Classifiers))
	for i, c := range m.Classifiers {
		if c.Format == "" {
			c.Format = FormatJSON
		}
		if c.Name == "" {
			c.Name = fmt.Sprintf("classifier-%d", i)
		}
		cs[i] = c
	}
	m.Classifiers = cs
	return m
}

// ReadManifest reads dir/manifest.json, falling back to DefaultManifest when
// the file does not exist.
func ReadManifest(dir string) (Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultManifest(), nil
	}
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	return m.withDefaults(), nil
}

// Options configures loading.
type Options struct {
	// ONNXLibPath is the onnxruntime shared library. Required for onnx
	// classifiers.
	ONNXLibPath string
	Logger      *logrus.Logger
}

// Store resolves artifacts in one model directory.
type Store struct {
	dir      string
	manifest Manifest
	opts     Options
	log      *logrus.Logger
}

// New reads the manifest of dir.
func New(dir string, opts Options) (*Store, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("model dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("model dir: %s is not a directory", dir)
	}

	m, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}
	return &Store{dir: dir, manifest: m, opts: opts, log: log}, nil
}

// Manifest returns the resolved manifest.
func (s *Store) Manifest() Manifest { return s.manifest }

func (s *Store) path(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(s.dir, rel)
}

// LoadVocabulary loads the symptom vocabulary.
func (s *Store) LoadVocabulary() (*symptom.Vocabulary, error) {
	v, err := symptom.LoadVocabulary(s.path(s.manifest.Vocabulary))
	if err != nil {
		return nil, fmt.Errorf("load vocabulary: %w", err)
	}
	return v, nil
}

// LoadKnowledgeBase loads the disease to symptom map.
func (s *Store) LoadKnowledgeBase() (*knowledge.Base, error) {
	kb, err := knowledge.Load(s.path(s.manifest.KnowledgeBase))
	if err != nil {
		return nil, fmt.Errorf("load knowledge base: %w", err)
	}
	return kb, nil
}

// LoadLabelEncoder loads the class list shared by all classifiers.
func (s *Store) LoadLabelEncoder() (*ensemble.LabelEncoder, error) {
	enc, err := ensemble.LoadLabelEncoder(s.path(s.manifest.LabelEncoder))
	if err != nil {
		return nil, fmt.Errorf("load label encoder: %w", err)
	}
	return enc, nil
}

// LoadClassifiers loads exactly three classifiers and checks their shape
// against nFeatures. The returned closers release native resources.
func (s *Store) LoadClassifiers(nFeatures int) ([]ensemble.Member, []io.Closer, error) {
	specs := s.manifest.Classifiers
	if len(specs) != 3 {
		return nil, nil, fmt.Errorf("load classifiers: need exactly 3, manifest lists %d", len(specs))
	}

	members := make([]ensemble.Member, 0, len(specs))
	var closers []io.Closer
	fail := func(err error) ([]ensemble.Member, []io.Closer, error) {
		closeAll(closers)
		return nil, nil, err
	}

	for _, spec := range specs {
		path := s.path(spec.Path)
		var c ensemble.Classifier

		switch spec.Format {
		case FormatJSON:
			m, err := ensemble.LoadJSONModel(path)
			if err != nil {
				return fail(fmt.Errorf("load classifier %q: %w", spec.Name, err))
			}
			if v, ok := m.(ensemble.Validator); ok {
				if err := v.Validate(nFeatures); err != nil {
					return fail(fmt.Errorf("load classifier %q: %w", spec.Name, err))
				}
			}
			c = m
		case FormatONNX:
			if s.opts.ONNXLibPath == "" {
				return fail(fmt.Errorf("load classifier %q: onnx format needs ONNXRUNTIME_LIB", spec.Name))
			}
			if err := ensemble.InitONNX(s.opts.ONNXLibPath); err != nil {
				return fail(fmt.Errorf("load classifier %q: %w", spec.Name, err))
			}
			m, err := ensemble.LoadONNXModel(path, nFeatures)
			if err != nil {
				return fail(fmt.Errorf("load classifier %q: %w", spec.Name, err))
			}
			closers = append(closers, m)
			c = m
		default:
			return fail(fmt.Errorf("load classifier %q: unknown format %q", spec.Name, spec.Format))
		}

		s.log.WithFields(logrus.Fields{"name": spec.Name, "format": spec.Format, "path": path}).Debug("classifier loaded")
		members = append(members, ensemble.Member{Name: spec.Name, Classifier: c})
	}
	return members, closers, nil
}

// Bundle holds every read-only resource the engine needs.
type Bundle struct {
	Vocabulary    *symptom.Vocabulary
	KnowledgeBase *knowledge.Base
	Ensemble      *ensemble.Ensemble
	Classes       []string
	LoadedAt      time.Time

	closers []io.Closer
}

// Load reads every artifact in dir. The knowledge base is restricted to the
// vocabulary so every distinguishing symptom can be asked.
func Load(dir string, opts Options) (*Bundle, error) {
	s, err := New(dir, opts)
	if err != nil {
		return nil, err
	}
	return s.Load()
}

// Load reads every artifact listed in the manifest.
func (s *Store) Load() (*Bundle, error) {
	vocab, err := s.LoadVocabulary()
	if err != nil {
		return nil, err
	}
	kb, err := s.LoadKnowledgeBase()
	if err != nil {
		return nil, err
	}
	enc, err := s.LoadLabelEncoder()
	if err != nil {
		return nil, err
	}
	members, closers, err := s.LoadClassifiers(vocab.Len())
	if err != nil {
		return nil, err
	}

	ens, err := ensemble.New(vocab, enc, members)
	if err != nil {
		closeAll(closers)
		return nil, err
	}

	restricted := kb.Restrict(vocab)
	s.checkConsistency(restricted, enc.Classes())

	s.log.WithFields(logrus.Fields{
		"dir":         s.dir,
		"symptoms":    vocab.Len(),
		"diseases":    restricted.Len(),
		"classes":     len(enc.Classes()),
		"classifiers": ens.Members(),
	}).Info("models loaded")

	return &Bundle{
		Vocabulary:    vocab,
		KnowledgeBase: restricted,
		Ensemble:      ens,
		Classes:       enc.Classes(),
		LoadedAt:      time.Now(),
		closers:       closers,
	}, nil
}

func (s *Store) checkConsistency(kb *knowledge.Base, classes []string) {
	known := make(map[string]bool, len(classes))
	for _, c := range classes {
		known[c] = true
		if !kb.Has(c) {
			s.log.WithField("disease", c).Warn("classifier label has no knowledge base entry")
		}
	}
	for _, d := range kb.Diseases() {
		if !known[d] {
			s.log.WithField("disease", d).Warn("knowledge base disease is not a classifier label")
		}
		if len(kb.SymptomsOf(d)) == 0 {
			s.log.WithField("disease", d).Warn("knowledge base disease has no vocabulary symptoms")
		}
	}
}

// Engine builds a refinement engine over the bundle.
func (b *Bundle) Engine(opts ...refine.Option) (*refine.Engine, error) {
	if b == nil {
		return nil, refine.ErrResourceUnavailable
	}
	return refine.New(b.Vocabulary, b.KnowledgeBase, b.Ensemble, opts...)
}

// Close releases native classifier sessions.
func (b *Bundle) Close() error {
	if b == nil {
		return nil
	}
	err := closeAll(b.closers)
	b.closers = nil
	return err
}

func closeAll(closers []io.Closer) error {
	var errs []error
	for _, c := range closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

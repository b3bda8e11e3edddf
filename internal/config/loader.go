package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format is a configuration file syntax.
type Format string

// Supported formats.
const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// FormatOf picks the format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
}

// FileSystem is an abstraction for file system operations.
// This allows for easy testing with in-memory file systems.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
}

// OSFS implements FileSystem using the real OS file system.
type OSFS struct{}

// ReadFile reads the entire file at path.
func (OSFS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Loader reads configuration files and applies environment overrides.
type Loader struct {
	fs     FileSystem
	env    *EnvLoader
	strict bool
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithFS sets the file system files are read from.
func WithFS(fsys FileSystem) LoaderOption {
	return func(l *Loader) {
		l.fs = fsys
	}
}

// WithEnv sets the environment override loader. Nil disables overrides.
func WithEnv(env *EnvLoader) LoaderOption {
	return func(l *Loader) {
		l.env = env
	}
}

// WithStrict rejects unknown keys when enabled (the default).
func WithStrict(strict bool) LoaderOption {
	return func(l *Loader) {
		l.strict = strict
	}
}

// NewLoader creates a loader reading from the OS with PLUGHOST_ overrides.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		fs:     OSFS{},
		env:    NewEnvLoader(EnvPrefix),
		strict: true,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads, overrides and validates the file at path. Relative ./ and
// ../ plugin targets and search paths are anchored at the file's directory.
func Load(path string) (*File, error) {
	return NewLoader().Load(path)
}

// Load reads, overrides and validates the file at path.
func (l *Loader) Load(path string) (*File, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}

	data, err := l.fs.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return l.parse(path, abs, format, data)
}

// Parse decodes data, applies environment overrides and validates the
// result. source names the data in errors.
func (l *Loader) Parse(source string, format Format, data []byte) (*File, error) {
	return l.parse(source, "", format, data)
}

func (l *Loader) parse(source, path string, format Format, data []byte) (*File, error) {
	f := Default()
	var err error
	switch format {
	case FormatTOML:
		err = l.decodeTOML(source, data, f)
	case FormatYAML:
		err = l.decodeYAML(source, data, f)
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}
	f.path = path
	f.resolvePaths()

	if l.env != nil {
		if err := l.env.Apply(f); err != nil {
			return nil, err
		}
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

func (l *Loader) decodeTOML(source string, data []byte, f *File) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	if l.strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(f); err != nil {
		perr := &ParseError{Path: source, Message: err.Error(), Err: err}

		var derr *toml.DecodeError
		var serr *toml.StrictMissingError
		switch {
		case errors.As(err, &derr):
			perr.Line, perr.Column = derr.Position()
		case errors.As(err, &serr) && len(serr.Errors) > 0:
			perr.Line, perr.Column = serr.Errors[0].Position()
			perr.Message = "unknown key " + strings.Join(serr.Errors[0].Key(), ".")
		}
		return perr
	}
	return nil
}

func (l *Loader) decodeYAML(source string, data []byte, f *File) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(l.strict)
	if err := dec.Decode(f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		perr := &ParseError{Path: source, Message: err.Error(), Err: err}
		var line int
		var terr *yaml.TypeError
		switch {
		case errors.As(err, &terr) && len(terr.Errors) > 0:
			perr.Message = strings.TrimSpace(terr.Errors[0])
			if _, scanErr := fmt.Sscanf(perr.Message, "line %d:", &line); scanErr == nil {
				perr.Line = line
			}
		default:
			if _, scanErr := fmt.Sscanf(err.Error(), "yaml: line %d:", &line); scanErr == nil {
				perr.Line = line
			}
		}
		return perr
	}
	return nil
}

// Package ingest validates uploaded files and turns them into SourceFiles.
package ingest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/joescharf/codereview/internal/models"
)

// DefaultMaxFileBytes is the default per-file size ceiling (1 MiB).
const DefaultMaxFileBytes = 1 << 20

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// RawFile is an uploaded file before validation.
type RawFile struct {
	Name string
	Data []byte
}

// Config controls ingestion limits.
type Config struct {
	MaxFileBytes int64
	// Encoding is the declared IANA charset name of uploaded files.
	Encoding string
}

// Ingestor validates and decodes raw files.
type Ingestor struct {
	maxBytes int64
	charset  string
	decoder  encoding.Encoding // nil means strict UTF-8
}

// New creates an Ingestor. It fails when the declared encoding is unknown.
func New(cfg Config) (*Ingestor, error) {
	maxBytes := cfg.MaxFileBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFileBytes
	}
	charset := strings.TrimSpace(cfg.Encoding)
	if charset == "" {
		charset = "utf-8"
	}

	in := &Ingestor{maxBytes: maxBytes, charset: charset}
	if isUTF8Name(charset) {
		return in, nil
	}

	enc, err := ianaindex.IANA.Encoding(charset)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("unsupported encoding: %s", charset)
	}
	in.decoder = enc
	return in, nil
}

func isUTF8Name(name string) bool {
	switch strings.ToLower(strings.ReplaceAll(name, "-", "")) {
	case "utf8":
		return true
	}
	return false
}

// Ingest validates every file and returns them in the caller's order.
// The first invalid file aborts the batch.
func (in *Ingestor) Ingest(raw []RawFile) ([]models.SourceFile, error) {
	if len(raw) == 0 {
		return nil, &ValidationError{Kind: KindEmptyBatch, Msg: "no files provided"}
	}

	seen := make(map[string]bool, len(raw))
	out := make([]models.SourceFile, 0, len(raw))
	for _, rf := range raw {
		name := filepath.Base(strings.TrimSpace(rf.Name))
		if seen[name] {
			return nil, &ValidationError{Kind: KindDuplicateName, File: name, Msg: "file submitted more than once"}
		}
		seen[name] = true

		sf, err := in.ingestOne(name, rf.Data)
		if err != nil {
			return nil, err
		}
		out = append(out, sf)
	}
	return out, nil
}

// badNameRune reports characters that cannot appear in a stored file name.
// Reports keep the file list comma separated.
func badNameRune(r rune) bool {
	return r == ',' || r < 0x20 || r == 0x7f
}

func (in *Ingestor) ingestOne(name string, data []byte) (models.SourceFile, error) {
	if strings.ContainsFunc(name, badNameRune) {
		return models.SourceFile{}, &ValidationError{
			Kind: KindInvalidName,
			File: name,
			Msg:  "file name must not contain commas or control characters",
		}
	}
	lang := models.LanguageForName(name)
	if lang == models.LanguageUnknown {
		return models.SourceFile{}, &ValidationError{
			Kind: KindUnsupportedExtension,
			File: name,
			Msg:  fmt.Sprintf("extension %q is not supported (supported: %s)", filepath.Ext(name), strings.Join(models.SupportedExtensions(), " ")),
		}
	}
	if len(data) == 0 {
		return models.SourceFile{}, &ValidationError{Kind: KindEmptyFile, File: name, Msg: "file is empty"}
	}
	if int64(len(data)) > in.maxBytes {
		return models.SourceFile{}, &ValidationError{
			Kind: KindTooLarge,
			File: name,
			Msg:  fmt.Sprintf("%d bytes exceeds the %d byte limit", len(data), in.maxBytes),
		}
	}

	content, err := in.decode(data)
	if err != nil {
		return models.SourceFile{}, &ValidationError{Kind: KindEncoding, File: name, Msg: err.Error()}
	}

	return models.SourceFile{
		Name:      name,
		Language:  lang,
		Content:   content,
		SizeBytes: len(data),
	}, nil
}

func (in *Ingestor) decode(data []byte) (string, error) {
	if in.decoder == nil {
		data = bytes.TrimPrefix(data, utf8BOM)
		if !utf8.Valid(data) {
			return "", fmt.Errorf("content is not valid %s", in.charset)
		}
		return string(data), nil
	}

	decoded, _, err := transform.Bytes(unicode.BOMOverride(in.decoder.NewDecoder()), data)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", in.charset, err)
	}
	if bytes.ContainsRune(decoded, utf8.RuneError) {
		return "", fmt.Errorf("content contains bytes that are not valid %s", in.charset)
	}
	return string(decoded), nil
}

// ReadPaths loads local files into RawFiles, keeping argument order.
func ReadPaths(paths []string) ([]RawFile, error) {
	raw := make([]RawFile, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		raw = append(raw, RawFile{Name: filepath.Base(p), Data: data})
	}
	return raw, nil
}

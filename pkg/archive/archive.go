// Package archive expands uploaded submissions into Python source files.
package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/nwaples/rardecode/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

var (
	// ErrCorruptArchive indicates the archive could not be read.
	ErrCorruptArchive = errors.New("corrupt archive")
	// ErrArchiveTooLarge indicates the expanded content exceeds the configured limit.
	ErrArchiveTooLarge = errors.New("archive expands beyond size limit")
	// ErrNoSourceFiles indicates the upload contained no usable Python source.
	ErrNoSourceFiles = errors.New("no python source files found")
	// ErrUnsupportedType indicates the upload is neither Python source nor a supported archive.
	ErrUnsupportedType = errors.New("unsupported file type")
)

// Kind classifies an upload by extension.
type Kind string

const (
	KindPython Kind = "python"
	KindZip    Kind = "zip"
	KindRar    Kind = "rar"
)

// SourceFile is one expanded Python file.
type SourceFile struct {
	Name    string
	Content string
}

// Expander unpacks uploads with a bound on total expanded bytes.
type Expander struct {
	MaxExpandedBytes int64
}

// NewExpander builds an expander. A non-positive limit defaults to 50MB.
func NewExpander(maxExpandedBytes int64) *Expander {
	if maxExpandedBytes <= 0 {
		maxExpandedBytes = 50 * 1024 * 1024
	}
	return &Expander{MaxExpandedBytes: maxExpandedBytes}
}

// KindOf returns the upload kind for a filename, or false when the extension is not allowed.
func KindOf(filename string) (Kind, bool) {
	lower := strings.ToLower(strings.TrimSpace(filename))
	switch {
	case strings.HasSuffix(lower, ".py"):
		return KindPython, true
	case strings.HasSuffix(lower, ".zip"):
		return KindZip, true
	case strings.HasSuffix(lower, ".rar"):
		return KindRar, true
	default:
		return "", false
	}
}

// Expand turns one upload into its Python source files. Archive members are
// named "<archive>/<base name>".
func (e *Expander) Expand(filename string, data []byte) ([]SourceFile, error) {
	kind, ok := KindOf(filename)
	if !ok {
		return nil, fmt.Errorf("%s: %w", filename, ErrUnsupportedType)
	}

	var (
		files []SourceFile
		err   error
	)

	switch kind {
	case KindPython:
		text := Decode(data)
		if strings.TrimSpace(text) != "" {
			files = []SourceFile{{Name: filename, Content: text}}
		}
	case KindZip:
		if err := expectMime(data, "application/zip"); err != nil {
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
		files, err = e.expandZip(filename, data)
	case KindRar:
		if err := expectMime(data, "application/x-rar-compressed"); err != nil {
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
		files, err = e.expandRar(filename, data)
	}

	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%s: %w", filename, ErrNoSourceFiles)
	}

	return files, nil
}

func expectMime(data []byte, want string) error {
	detected := mimetype.Detect(data)
	for m := detected; m != nil; m = m.Parent() {
		if m.Is(want) {
			return nil
		}
	}
	return fmt.Errorf("detected %s: %w", detected.String(), ErrCorruptArchive)
}

func (e *Expander) expandZip(parent string, data []byte) ([]SourceFile, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", parent, err, ErrCorruptArchive)
	}

	var total uint64
	for _, f := range reader.File {
		total += f.UncompressedSize64
		if total > uint64(e.MaxExpandedBytes) {
			return nil, fmt.Errorf("%s: %w", parent, ErrArchiveTooLarge)
		}
	}

	files := make([]SourceFile, 0, len(reader.File))
	for _, f := range reader.File {
		if f.FileInfo().IsDir() || !isSourceMember(f.Name) {
			continue
		}
		handle, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("%s: open %s: %v: %w", parent, f.Name, err, ErrCorruptArchive)
		}
		raw, err := io.ReadAll(io.LimitReader(handle, e.MaxExpandedBytes+1))
		handle.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: read %s: %v: %w", parent, f.Name, err, ErrCorruptArchive)
		}
		if text := Decode(raw); strings.TrimSpace(text) != "" {
			files = append(files, SourceFile{Name: memberName(parent, f.Name), Content: text})
		}
	}

	return files, nil
}

func (e *Expander) expandRar(parent string, data []byte) ([]SourceFile, error) {
	reader, err := rardecode.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %v: %w", parent, err, ErrCorruptArchive)
	}

	var (
		files []SourceFile
		total int64
	)
	for {
		header, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %v: %w", parent, err, ErrCorruptArchive)
		}
		if header.IsDir || !isSourceMember(header.Name) {
			continue
		}

		remaining := e.MaxExpandedBytes - total
		raw, err := io.ReadAll(io.LimitReader(reader, remaining+1))
		if err != nil {
			return nil, fmt.Errorf("%s: read %s: %v: %w", parent, header.Name, err, ErrCorruptArchive)
		}
		total += int64(len(raw))
		if total > e.MaxExpandedBytes {
			return nil, fmt.Errorf("%s: %w", parent, ErrArchiveTooLarge)
		}
		if text := Decode(raw); strings.TrimSpace(text) != "" {
			files = append(files, SourceFile{Name: memberName(parent, header.Name), Content: text})
		}
	}

	return files, nil
}

func memberName(parent, member string) string {
	return parent + "/" + path.Base(strings.ReplaceAll(member, "\\", "/"))
}

// isSourceMember skips hidden files, __pycache__ style entries and macOS metadata.
func isSourceMember(member string) bool {
	normalized := strings.ReplaceAll(member, "\\", "/")
	if strings.Contains(normalized, "__MACOSX") {
		return false
	}
	name := path.Base(normalized)
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "__") || strings.EqualFold(name, "thumbs.db") {
		return false
	}
	return strings.HasSuffix(strings.ToLower(name), ".py")
}

// Decode converts raw bytes into text, trying UTF-8 (with or without BOM)
// before the Windows-1252 and ISO-8859-1 code pages. CRLF is normalised to LF.
func Decode(data []byte) string {
	var text string
	switch {
	case utf8.Valid(data):
		decoded, err := unicode.UTF8BOM.NewDecoder().Bytes(data)
		if err != nil {
			decoded = data
		}
		text = string(decoded)
	default:
		if decoded, err := charmap.Windows1252.NewDecoder().Bytes(data); err == nil {
			text = string(decoded)
		} else if decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data); err == nil {
			text = string(decoded)
		} else {
			text = strings.ToValidUTF8(string(data), "")
		}
	}
	return strings.ReplaceAll(text, "\r\n", "\n")
}

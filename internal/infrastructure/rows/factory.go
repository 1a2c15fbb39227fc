package rows

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Opener opens a row source for one file on disk.
type Opener func(filePath string) (Source, error)

// SourceFactory selects the appropriate row source based on file
// extension.
type SourceFactory struct {
	openers map[string]Opener
}

// NewSourceFactory creates a factory with the built-in CSV and XLSX
// sources registered.
func NewSourceFactory() *SourceFactory {
	factory := &SourceFactory{
		openers: make(map[string]Opener),
	}

	factory.Register(".csv", func(filePath string) (Source, error) {
		return OpenCSV(filePath)
	})
	factory.Register(".xlsx", func(filePath string) (Source, error) {
		return OpenXLSX(filePath)
	})

	return factory
}

// Register registers an opener for a file extension.
func (f *SourceFactory) Register(ext string, opener Opener) {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	f.openers[ext] = opener
}

// Open opens a row source for the given file path.
func (f *SourceFactory) Open(filePath string) (Source, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	opener, exists := f.openers[ext]
	if !exists {
		return nil, fmt.Errorf("no row source for extension: %s", ext)
	}
	return opener(filePath)
}

// IsSupported checks if a file extension is supported.
func (f *SourceFactory) IsSupported(fileExt string) bool {
	ext := strings.ToLower(fileExt)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	_, exists := f.openers[ext]
	return exists
}

// SupportedFormats returns all supported file extensions.
func (f *SourceFactory) SupportedFormats() []string {
	formats := make([]string, 0, len(f.openers))
	for ext := range f.openers {
		formats = append(formats, ext)
	}
	return formats
}

package runner

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"banana3d/internal/services"
)

// maxSourceBytes bounds what is read from disk for a single source image.
const maxSourceBytes = 64 << 20

var acceptedSourceTypes = map[string]struct{}{
	"image/png":  {},
	"image/jpeg": {},
}

// Source is a validated source image read from disk.
type Source struct {
	Name      string
	Path      string
	MediaType string
	Data      []byte
}

// LoadSource reads path and checks that it holds a PNG or JPEG image.
func LoadSource(path string) (Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Source{}, services.Wrap(services.ErrValidation, "", "load source", path, err)
	}
	if info.IsDir() {
		return Source{}, services.Wrap(services.ErrValidation, "", "load source", path+" is a directory", nil)
	}
	if info.Size() > maxSourceBytes {
		return Source{}, services.Wrap(services.ErrValidation, "", "load source", fmt.Sprintf("%s is larger than %d MiB", path, maxSourceBytes>>20), nil)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Source{}, services.Wrap(services.ErrValidation, "", "load source", path, err)
	}
	if len(data) == 0 {
		return Source{}, services.Wrap(services.ErrValidation, "", "load source", path+" is empty", nil)
	}
	mediaType := http.DetectContentType(data)
	if _, ok := acceptedSourceTypes[mediaType]; !ok {
		return Source{}, services.Wrap(services.ErrValidation, "", "load source", fmt.Sprintf("%s is %s, expected PNG or JPEG", path, mediaType), nil)
	}
	return Source{Name: filepath.Base(path), Path: path, MediaType: mediaType, Data: data}, nil
}

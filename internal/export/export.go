package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"banana3d/internal/fileutil"
	"banana3d/internal/resources"
	"banana3d/internal/services/generator"
	"banana3d/internal/workflow"
)

// ErrNothingToExport is returned for snapshots that hold no views or model.
var ErrNothingToExport = errors.New("snapshot holds no generated assets")

// File is one exported artifact.
type File struct {
	Kind string
	Name string
	Path string
	Size int64
}

// Result lists what Write produced.
type Result struct {
	Dir   string
	Files []File
}

// Model returns the exported model file, if any.
func (r Result) Model() (File, bool) {
	for _, f := range r.Files {
		if f.Kind == "model" {
			return f, true
		}
	}
	return File{}, false
}

// Write copies the views and model held by snap into root/<run>. Existing
// files are replaced atomically. Blobs are read through res, preferring the
// spool file when one backs the handle.
func Write(root string, snap workflow.Snapshot, res *resources.Manager) (Result, error) {
	if len(snap.Views) == 0 && snap.Model == nil {
		return Result{}, ErrNothingToExport
	}
	dir := filepath.Join(root, DirName(snap))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create output directory: %w", err)
	}

	result := Result{Dir: dir}
	for _, id := range generator.ViewIDs() {
		view, ok := snap.View(id)
		if !ok {
			continue
		}
		file, err := writeAsset(dir, "view", string(id)+extensionFor(view.MediaType, ".png"), view.Handle, res)
		if err != nil {
			return result, fmt.Errorf("export %s view: %w", id, err)
		}
		result.Files = append(result.Files, file)
	}
	if snap.Model != nil {
		file, err := writeAsset(dir, "model", "model"+extensionFor(snap.Model.MediaType, ".glb"), snap.Model.Handle, res)
		if err != nil {
			return result, fmt.Errorf("export model: %w", err)
		}
		result.Files = append(result.Files, file)
	}
	return result, nil
}

func writeAsset(dir, kind, name string, handle resources.Handle, res *resources.Manager) (File, error) {
	dst := filepath.Join(dir, name)
	if src := handle.Path(); src != "" {
		if err := fileutil.CopyFileVerified(src, dst); err != nil {
			return File{}, err
		}
	} else {
		blob, ok := res.Open(handle)
		if !ok {
			return File{}, fmt.Errorf("handle %s already released", handle)
		}
		if err := fileutil.WriteFileAtomic(dst, blob.Data, 0o644); err != nil {
			return File{}, err
		}
	}
	info, err := os.Stat(dst)
	if err != nil {
		return File{}, err
	}
	return File{Kind: kind, Name: name, Path: dst, Size: info.Size()}, nil
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// DirName is the per-run directory: the source stem plus the run ID.
func DirName(snap workflow.Snapshot) string {
	stem := "run"
	if snap.Source != nil {
		base := filepath.Base(snap.Source.Name)
		base = strings.TrimSuffix(base, filepath.Ext(base))
		if cleaned := strings.Trim(unsafeName.ReplaceAllString(base, "-"), "-."); cleaned != "" {
			stem = cleaned
		}
	}
	runID := strings.TrimSpace(snap.RunID)
	if runID == "" {
		return stem
	}
	if len(runID) > 8 {
		runID = runID[:8]
	}
	return stem + "-" + runID
}

func extensionFor(mediaType, fallback string) string {
	switch strings.ToLower(strings.TrimSpace(strings.SplitN(mediaType, ";", 2)[0])) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "model/gltf-binary":
		return ".glb"
	case "model/gltf+json":
		return ".gltf"
	case "model/obj":
		return ".obj"
	}
	return fallback
}

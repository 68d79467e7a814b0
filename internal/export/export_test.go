package export_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"banana3d/internal/export"
	"banana3d/internal/resources"
	"banana3d/internal/services/generator"
	"banana3d/internal/workflow"
)

func readySnapshot(t *testing.T, res *resources.Manager) workflow.Snapshot {
	t.Helper()
	alloc := func(name, mediaType, data string) workflow.Asset {
		h, err := res.Allocate(resources.Blob{Name: name, MediaType: mediaType, Data: []byte(data)})
		if err != nil {
			t.Fatalf("Allocate: %v", err)
		}
		return workflow.Asset{Name: name, MediaType: mediaType, Size: len(data), Handle: h}
	}
	source := alloc("My Hero!.png", "image/png", "source")
	model := alloc("mesh.glb", "model/gltf-binary", "glTF-model")
	return workflow.Snapshot{
		RunID:  "0123456789abcdef",
		Stage:  workflow.StageModelReady,
		Source: &source,
		Views: map[generator.ViewID]workflow.Asset{
			generator.ViewFront: alloc("front", "image/png", "front-bytes"),
			generator.ViewBack:  alloc("back", "image/jpeg", "back-bytes"),
		},
		Model: &model,
	}
}

func TestWriteExportsViewsAndModel(t *testing.T) {
	tests := []struct {
		name string
		res  *resources.Manager
	}{
		{"memory", resources.NewManager()},
		{"spooled", resources.NewManager(resources.WithSpoolDir(t.TempDir()))},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			root := t.TempDir()
			snap := readySnapshot(t, tc.res)

			result, err := export.Write(root, snap, tc.res)
			if err != nil {
				t.Fatalf("Write: %v", err)
			}
			if result.Dir != filepath.Join(root, "My-Hero-01234567") {
				t.Fatalf("unexpected dir %s", result.Dir)
			}
			want := map[string]string{
				"front.png": "front-bytes",
				"back.jpg":  "back-bytes",
				"model.glb": "glTF-model",
			}
			if len(result.Files) != len(want) {
				t.Fatalf("expected %d files, got %+v", len(want), result.Files)
			}
			for _, f := range result.Files {
				content, err := os.ReadFile(f.Path)
				if err != nil {
					t.Fatalf("read %s: %v", f.Name, err)
				}
				if string(content) != want[f.Name] {
					t.Fatalf("unexpected %s content %q", f.Name, content)
				}
				if f.Size != int64(len(content)) {
					t.Fatalf("unexpected %s size %d", f.Name, f.Size)
				}
			}
			model, ok := result.Model()
			if !ok || model.Name != "model.glb" {
				t.Fatalf("expected model file, got %+v", model)
			}

			if _, err := export.Write(root, snap, tc.res); err != nil {
				t.Fatalf("expected re-export to replace files: %v", err)
			}
		})
	}
}

func TestWriteRejectsEmptySnapshot(t *testing.T) {
	_, err := export.Write(t.TempDir(), workflow.Snapshot{Stage: workflow.StageIdle}, resources.NewManager())
	if !errors.Is(err, export.ErrNothingToExport) {
		t.Fatalf("expected ErrNothingToExport, got %v", err)
	}
}

func TestWriteFailsForReleasedHandle(t *testing.T) {
	res := resources.NewManager()
	snap := readySnapshot(t, res)
	res.Release(snap.Model.Handle)
	if _, err := export.Write(t.TempDir(), snap, res); err == nil {
		t.Fatal("expected error for released model handle")
	}
}

func TestDirName(t *testing.T) {
	tests := []struct {
		name string
		snap workflow.Snapshot
		want string
	}{
		{"no source", workflow.Snapshot{}, "run"},
		{"short run id", workflow.Snapshot{RunID: "abc", Source: &workflow.Asset{Name: "/tmp/cat.jpeg"}}, "cat-abc"},
		{"unsafe only", workflow.Snapshot{RunID: "run", Source: &workflow.Asset{Name: "???.png"}}, "run-run"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := export.DirName(tc.snap); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

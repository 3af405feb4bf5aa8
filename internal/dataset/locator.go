package dataset

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Paths is a resolved dataset layout.
type Paths struct {
	BaseDir   string `json:"base_dir"`
	TableFile string `json:"table_file"`
	ImagesDir string `json:"images_dir"`
	// ImagesStrategy names the resolver that found ImagesDir.
	ImagesStrategy string `json:"images_strategy"`
	// IgnoredTables lists extra CSV files passed over by the first-match rule.
	IgnoredTables []string `json:"ignored_tables,omitempty"`
}

// KnownImageDirs are tried first, in order.
var KnownImageDirs = []string{"Food Images", "images", "Images", "food_images"}

var imageExtensions = []string{".jpg", ".jpeg", ".png"}

type dirResolver struct {
	name    string
	resolve func(base string) (string, bool)
}

var imageDirResolvers = []dirResolver{
	{name: "known_subfolder", resolve: knownSubfolder},
	{name: "subfolder_with_images", resolve: subfolderWithImages},
	{name: "base_dir", resolve: func(base string) (string, bool) { return base, true }},
}

// Locate finds the label table and the image directory under base.
func Locate(base string) (*Paths, error) {
	info, err := os.Stat(base)
	if err != nil {
		return nil, configErrorf("dataset path %q: %v", base, err)
	}
	if !info.IsDir() {
		return nil, configErrorf("dataset path %q is not a directory", base)
	}

	tables, err := filepath.Glob(filepath.Join(base, "*.csv"))
	if err != nil {
		return nil, configErrorf("scan %q for csv files: %v", base, err)
	}
	tables = regularFiles(tables)
	if len(tables) == 0 {
		return nil, configErrorf("no CSV file found in %q", base)
	}
	sort.Strings(tables)

	paths := &Paths{
		BaseDir:   base,
		TableFile: tables[0],
	}
	if len(tables) > 1 {
		paths.IgnoredTables = tables[1:]
	}

	for _, r := range imageDirResolvers {
		if dir, ok := r.resolve(base); ok {
			paths.ImagesDir = dir
			paths.ImagesStrategy = r.name
			return paths, nil
		}
	}

	return nil, configErrorf("no image directory found under %q", base)
}

func knownSubfolder(base string) (string, bool) {
	for _, name := range KnownImageDirs {
		dir := filepath.Join(base, name)
		if isDir(dir) {
			return dir, true
		}
	}
	return "", false
}

func subfolderWithImages(base string) (string, bool) {
	entries, err := os.ReadDir(base)
	if err != nil {
		return "", false
	}
	// ReadDir returns entries sorted by name
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(base, e.Name())
		if containsImages(dir) {
			return dir, true
		}
	}
	return "", false
}

func containsImages(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.Type().IsRegular() && HasImageExtension(e.Name()) {
			return true
		}
	}
	return false
}

// HasImageExtension reports whether name ends in .jpg, .jpeg or .png, in any case.
func HasImageExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, want := range imageExtensions {
		if ext == want {
			return true
		}
	}
	return false
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func regularFiles(paths []string) []string {
	out := paths[:0]
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			out = append(out, p)
		}
	}
	return out
}

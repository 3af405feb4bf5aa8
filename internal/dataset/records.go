package dataset

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/haskel/foodia/internal/nutrition"
)

const DefaultMinImagesPerClass = 5

// Record is one labelled photo that exists on disk.
type Record struct {
	ImagePath   string  `json:"image_path"`
	Label       string  `json:"label"`
	Calories    float64 `json:"calories,omitempty"`
	HasCalories bool    `json:"has_calories"`
}

// Summary holds diagnostic counts gathered while building records.
type Summary struct {
	Rows          int `json:"rows"`
	Incomplete    int `json:"incomplete"`
	Duplicates    int `json:"duplicates"`
	Valid         int `json:"valid"`
	Missing       int `json:"missing"`
	ClassesBefore int `json:"classes_before"`
	ClassesAfter  int `json:"classes_after"`
	FilteredOut   int `json:"filtered_out"`
}

// RecordSet is the outcome of joining the table to the image directory.
type RecordSet struct {
	Records   []Record
	Nutrition *nutrition.Table
	// ClassCounts is the per-class image count after filtering.
	ClassCounts map[string]int
	Summary     Summary
}

// Classes returns the retained class names in lexical order.
func (s *RecordSet) Classes() []string {
	out := make([]string, 0, len(s.ClassCounts))
	for c := range s.ClassCounts {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// BuildRecords joins table rows to image files under imagesDir. Rows with a
// missing title or image reference are dropped, the first row for an image
// reference wins, and classes with fewer than minPerClass existing images are
// removed. Missing files are counted, not reported as errors.
func BuildRecords(t *Table, cols Columns, imagesDir string, minPerClass int) (*RecordSet, error) {
	if minPerClass <= 0 {
		minPerClass = DefaultMinImagesPerClass
	}

	set := &RecordSet{
		Nutrition:   nutrition.NewTable(),
		ClassCounts: make(map[string]int),
	}
	set.Summary.Rows = len(t.Rows)

	seen := make(map[string]struct{}, len(t.Rows))
	var joined []Record
	counts := make(map[string]int)

	for i := range t.Rows {
		title := t.Cell(i, cols.Title)
		ref := t.Cell(i, cols.Image)
		if title == "" || ref == "" {
			set.Summary.Incomplete++
			continue
		}
		if _, dup := seen[ref]; dup {
			set.Summary.Duplicates++
			continue
		}
		seen[ref] = struct{}{}

		cal, known := ParseCalories(t.Cell(i, cols.Calories))
		set.Nutrition.Add(title, cal, known)

		name := WithImageExtension(ref)
		if !filepath.IsLocal(name) {
			set.Summary.Missing++
			continue
		}
		path := filepath.Join(imagesDir, name)
		if !isRegularFile(path) {
			set.Summary.Missing++
			continue
		}

		joined = append(joined, Record{
			ImagePath:   path,
			Label:       title,
			Calories:    cal,
			HasCalories: known,
		})
		counts[title]++
	}

	set.Summary.ClassesBefore = len(counts)

	for _, r := range joined {
		if counts[r.Label] < minPerClass {
			set.Summary.FilteredOut++
			continue
		}
		set.Records = append(set.Records, r)
		set.ClassCounts[r.Label]++
	}

	set.Summary.Valid = len(set.Records)
	set.Summary.ClassesAfter = len(set.ClassCounts)

	if len(set.Records) == 0 {
		return set, ErrNoValidData
	}
	return set, nil
}

// WithImageExtension appends .jpg when ref has no recognised image extension.
func WithImageExtension(ref string) string {
	if HasImageExtension(ref) {
		return ref
	}
	return ref + ".jpg"
}

func isRegularFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

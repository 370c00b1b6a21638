// Package staging holds the files a user picked for the current form until
// the form is submitted.
package staging

import (
	"strings"
	"unicode/utf8"

	"github.com/qmmcmx/problemtrack/internal/errors"
)

const displayNameMaxChars = 20

// File is one staged attachment.
type File struct {
	Name        string
	Size        int64
	ContentType string
	Data        []byte
}

// IconKind is the coarse file category shown next to a staged file.
type IconKind string

const (
	IconImage    IconKind = "image"
	IconPDF      IconKind = "pdf"
	IconWord     IconKind = "word"
	IconExcel    IconKind = "excel"
	IconDocument IconKind = "document"
)

var glyphs = map[IconKind]string{
	IconImage:    "🖼️",
	IconPDF:      "📕",
	IconWord:     "📘",
	IconExcel:    "📗",
	IconDocument: "📄",
}

// Glyph returns the emoji used for k.
func (k IconKind) Glyph() string {
	if g, ok := glyphs[k]; ok {
		return g
	}
	return glyphs[IconDocument]
}

// PreviewItem is one row of the staged-file preview list.
type PreviewItem struct {
	Index       int      `json:"index"`
	Icon        IconKind `json:"icon"`
	Glyph       string   `json:"glyph"`
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	Size        int64    `json:"size"`
}

// Area is the ordered, de-duplicated set of staged files. It is not safe for
// concurrent use; the owning form session serializes access.
type Area struct {
	files []File
}

// NewArea creates an empty staging area.
func NewArea() *Area {
	return &Area{}
}

// Add appends files, skipping any whose (name, size) is already staged.
// Returns how many were added.
func (a *Area) Add(files ...File) int {
	added := 0
	for _, f := range files {
		if a.contains(f.Name, f.Size) {
			continue
		}
		a.files = append(a.files, f)
		added++
	}
	return added
}

func (a *Area) contains(name string, size int64) bool {
	for _, f := range a.files {
		if f.Name == name && f.Size == size {
			return true
		}
	}
	return false
}

// Remove drops the file at index. Later files shift down by one, so callers
// must re-read indices after every mutation.
func (a *Area) Remove(index int) error {
	if index < 0 || index >= len(a.files) {
		return errors.NewInvalidRequest("attachment index out of range")
	}
	a.files = append(a.files[:index], a.files[index+1:]...)
	return nil
}

// Discard drops every staged file whose (name, size) matches one of sent.
// Files staged after sent was taken stay in place.
func (a *Area) Discard(sent []File) {
	kept := a.files[:0]
	for _, f := range a.files {
		if !matches(sent, f) {
			kept = append(kept, f)
		}
	}
	clear(a.files[len(kept):])
	a.files = kept
}

func matches(files []File, f File) bool {
	for _, s := range files {
		if s.Name == f.Name && s.Size == f.Size {
			return true
		}
	}
	return false
}

// Clear empties the area.
func (a *Area) Clear() {
	a.files = nil
}

// Len returns the number of staged files.
func (a *Area) Len() int {
	return len(a.files)
}

// Files returns a snapshot of the staged files in order.
func (a *Area) Files() []File {
	out := make([]File, len(a.files))
	copy(out, a.files)
	return out
}

// Names returns the staged file names in order.
func (a *Area) Names() []string {
	names := make([]string, len(a.files))
	for i, f := range a.files {
		names[i] = f.Name
	}
	return names
}

// TotalSize returns the summed size of the staged files.
func (a *Area) TotalSize() int64 {
	var total int64
	for _, f := range a.files {
		total += f.Size
	}
	return total
}

// Render builds the preview list.
func (a *Area) Render() []PreviewItem {
	items := make([]PreviewItem, len(a.files))
	for i, f := range a.files {
		kind := Classify(f.Name, f.ContentType)
		items[i] = PreviewItem{
			Index:       i,
			Icon:        kind,
			Glyph:       kind.Glyph(),
			Name:        f.Name,
			DisplayName: DisplayName(f.Name),
			Size:        f.Size,
		}
	}
	return items
}

// Classify picks an icon from the content type, falling back to the extension.
func Classify(name, contentType string) IconKind {
	ct := strings.ToLower(contentType)
	lower := strings.ToLower(name)
	switch {
	case strings.HasPrefix(ct, "image/"):
		return IconImage
	case strings.Contains(ct, "pdf"):
		return IconPDF
	case strings.Contains(ct, "word") || strings.HasSuffix(lower, ".doc") || strings.HasSuffix(lower, ".docx"):
		return IconWord
	case strings.Contains(ct, "excel") || strings.HasSuffix(lower, ".xls") || strings.HasSuffix(lower, ".xlsx"):
		return IconExcel
	default:
		return IconDocument
	}
}

// DisplayName shortens name with an ellipsis past 20 characters.
func DisplayName(name string) string {
	if utf8.RuneCountInString(name) <= displayNameMaxChars {
		return name
	}
	runes := []rune(name)
	return string(runes[:displayNameMaxChars-3]) + "..."
}

// Package export writes the feedback log to a file as JSON Lines or as an
// Excel workbook.
package export

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/qmmcmx/problemtrack/internal/config"
	"github.com/qmmcmx/problemtrack/internal/errors"
	"github.com/qmmcmx/problemtrack/internal/feedback"
)

// Format is an export file format.
type Format string

const (
	FormatJSONL Format = "jsonl"
	FormatXLSX  Format = "xlsx"
)

// SheetName is the worksheet holding the feedback rows.
const SheetName = "Feedback"

// FormatFor picks the format from path's extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl":
		return FormatJSONL, nil
	case ".xlsx":
		return FormatXLSX, nil
	default:
		return "", errors.NewInvalidRequest("path must have .jsonl or .xlsx extension")
	}
}

// Header is the first line of a JSONL export.
type Header struct {
	FeedbackExport bool   `json:"_problemtrack_feedback_export"`
	SchemaVersion  string `json:"schema_version"`
	ExportedAt     int64  `json:"exported_at"`
}

// Input describes an export.
type Input struct {
	// Path is the destination. Empty means <ExportsDir>/feedback-<timestamp>.<Format>.
	Path string
	// Format is used only when Path is empty. Defaults to JSONL.
	Format Format
	// ExportsDir is the default destination directory.
	ExportsDir string
}

// Output describes a finished export.
type Output struct {
	Path       string `json:"path"`
	Format     Format `json:"format"`
	Count      int    `json:"count"`
	ExportedAt int64  `json:"exported_at"`
}

// Feedback writes entries to a new file. The file is written to a temporary
// name and renamed into place, so an existing file survives a failed export.
func Feedback(ctx context.Context, entries []feedback.Entry, cfg *config.Config, input Input) (*Output, error) {
	now := time.Now()

	path := input.Path
	if path == "" {
		format := input.Format
		if format == "" {
			format = FormatJSONL
		}
		path = filepath.Join(input.ExportsDir, fmt.Sprintf("feedback-%s.%s", now.Format("2006-01-02T150405"), format))
	}
	if err := ValidatePath(path, input.ExportsDir, cfg); err != nil {
		return nil, err
	}
	format, _ := FormatFor(path)

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := path + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	switch format {
	case FormatXLSX:
		err = WriteXLSX(ctx, file, entries)
	default:
		err = WriteJSONL(ctx, file, entries, now)
	}
	if err != nil {
		return nil, err
	}

	if err := file.Sync(); err != nil {
		return nil, errors.NewInternal(err)
	}
	if err := file.Close(); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return nil, errors.NewInternal(fmt.Errorf("export path is a symlink"))
	}
	if err := os.Rename(tempPath, path); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(path); statErr == nil {
				return nil, errors.NewInvalidRequest("export destination already exists; choose a new path")
			}
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	return &Output{
		Path:       path,
		Format:     format,
		Count:      len(entries),
		ExportedAt: now.Unix(),
	}, nil
}

// WriteJSONL writes a header line followed by one entry per line.
func WriteJSONL(ctx context.Context, w io.Writer, entries []feedback.Entry, now time.Time) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(Header{FeedbackExport: true, SchemaVersion: "1.0", ExportedAt: now.Unix()}); err != nil {
		return errors.NewInternal(err)
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return errors.NewInternal(err)
		}
		if err := enc.Encode(e); err != nil {
			return errors.NewInternal(err)
		}
	}
	return nil
}

var xlsxColumns = []any{"ID", "Timestamp", "Type", "Name", "Email", "Message", "Client"}

// WriteXLSX writes a workbook with one header row and one row per entry.
func WriteXLSX(ctx context.Context, w io.Writer, entries []feedback.Entry) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return errors.NewInternal(err)
	}
	if err := f.SetSheetRow(SheetName, "A1", &xlsxColumns); err != nil {
		return errors.NewInternal(err)
	}

	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return errors.NewInternal(err)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return errors.NewInternal(err)
		}
		row := []any{
			e.ID,
			e.Timestamp.UTC().Format(time.RFC3339),
			e.Type.Label(),
			e.Name,
			e.Email,
			e.Message,
			e.ClientInfo,
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return errors.NewInternal(err)
		}
	}

	if err := f.SetColWidth(SheetName, "A", "E", 22); err != nil {
		return errors.NewInternal(err)
	}
	if err := f.SetColWidth(SheetName, "F", "F", 60); err != nil {
		return errors.NewInternal(err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

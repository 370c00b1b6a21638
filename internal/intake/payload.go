package intake

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/qmmcmx/problemtrack/internal/staging"
)

// Payload is an encoded multipart/form-data body.
type Payload struct {
	Body        *bytes.Buffer
	ContentType string
	Fields      int
	Files       int
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// BuildPayload encodes every snapshot field except the raw file picker, one
// evidence_file_{n} part per staged file, and evidence_files_list when at
// least one file is staged.
func BuildPayload(snapshot Snapshot, files []staging.File) (*Payload, error) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	p := &Payload{Body: body}

	for _, f := range snapshot {
		if f.Name == FieldEvidenceFiles || f.Name == FieldEvidenceList || strings.HasPrefix(f.Name, EvidenceFilePrefix) {
			continue
		}
		if err := w.WriteField(f.Name, f.Value); err != nil {
			return nil, fmt.Errorf("write field %s: %w", f.Name, err)
		}
		p.Fields++
	}

	names := make([]string, 0, len(files))
	for i, file := range files {
		contentType := file.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
			EvidenceFilePrefix+strconv.Itoa(i), quoteEscaper.Replace(file.Name)))
		h.Set("Content-Type", contentType)

		part, err := w.CreatePart(h)
		if err != nil {
			return nil, fmt.Errorf("create part for %s: %w", file.Name, err)
		}
		if _, err := part.Write(file.Data); err != nil {
			return nil, fmt.Errorf("write part for %s: %w", file.Name, err)
		}
		names = append(names, file.Name)
		p.Files++
	}

	if len(names) > 0 {
		if err := w.WriteField(FieldEvidenceList, strings.Join(names, ", ")); err != nil {
			return nil, fmt.Errorf("write field %s: %w", FieldEvidenceList, err)
		}
		p.Fields++
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}
	p.ContentType = w.FormDataContentType()
	return p, nil
}

package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime"
	"path"
	"strings"
	"unicode"

	"github.com/google/cel-go/cel"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/text/unicode/norm"

	"github.com/Mindburn-Labs/custody/pkg/contracts"
)

// DefaultRecordType is used when an upload names none.
const DefaultRecordType = "general"

// AdmissionPolicy decides which uploads are accepted.
type AdmissionPolicy struct {
	AllowedExtensions []string `yaml:"allowed_extensions"`
	MaxSize           int64    `yaml:"max_size"`
	// Rule is a CEL expression over `upload` that must evaluate to true.
	Rule string `yaml:"rule"`
	// MetadataSchema is a JSON Schema the metadata object must satisfy.
	MetadataSchema string `yaml:"metadata_schema"`
}

// DefaultAdmissionPolicy accepts common clinical document formats up to 50 MiB.
var DefaultAdmissionPolicy = AdmissionPolicy{
	AllowedExtensions: []string{"pdf", "jpg", "jpeg", "png", "doc", "docx", "dcm", "txt"},
	MaxSize:           50 << 20,
	Rule:              `upload.record_type.matches("^[a-z0-9_-]{1,64}$")`,
	MetadataSchema:    `{"type": "object", "maxProperties": 64}`,
}

var mimeByExtension = map[string]string{
	"pdf":  "application/pdf",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"doc":  "application/msword",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"dcm":  "application/dicom",
	"txt":  "text/plain",
}

// Admission validates and normalizes upload requests.
type Admission struct {
	allowed map[string]bool
	maxSize int64
	rule    cel.Program
	schema  *jsonschema.Schema
}

// NewAdmission compiles p. Zero fields take their defaults.
func NewAdmission(p AdmissionPolicy) (*Admission, error) {
	def := DefaultAdmissionPolicy
	if len(p.AllowedExtensions) == 0 {
		p.AllowedExtensions = def.AllowedExtensions
	}
	if p.MaxSize <= 0 {
		p.MaxSize = def.MaxSize
	}
	if p.MetadataSchema == "" {
		p.MetadataSchema = def.MetadataSchema
	}

	a := &Admission{allowed: make(map[string]bool), maxSize: p.MaxSize}
	for _, ext := range p.AllowedExtensions {
		a.allowed[strings.ToLower(strings.TrimPrefix(ext, "."))] = true
	}

	if p.Rule != "" {
		env, err := cel.NewEnv(cel.Variable("upload", cel.MapType(cel.StringType, cel.DynType)))
		if err != nil {
			return nil, fmt.Errorf("failed to create CEL environment: %w", err)
		}
		ast, issues := env.Compile(p.Rule)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("compile admission rule: %w", issues.Err())
		}
		if t := ast.OutputType(); !t.IsExactType(cel.BoolType) && !t.IsExactType(cel.DynType) {
			return nil, fmt.Errorf("admission rule must return bool, got %s", t)
		}
		prg, err := env.Program(ast, cel.InterruptCheckFrequency(100), cel.CostLimit(10000))
		if err != nil {
			return nil, fmt.Errorf("admission rule program: %w", err)
		}
		a.rule = prg
	}

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	const schemaURL = "https://custody.schemas.local/record-metadata.schema.json"
	if err := c.AddResource(schemaURL, strings.NewReader(p.MetadataSchema)); err != nil {
		return nil, fmt.Errorf("metadata schema load failed: %w", err)
	}
	schema, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("metadata schema compile failed: %w", err)
	}
	a.schema = schema
	return a, nil
}

// Admit checks an upload of size bytes and returns the normalized request.
func (a *Admission) Admit(ownerID string, size int64, req UploadRequest) (UploadRequest, error) {
	if ownerID == "" {
		return req, fmt.Errorf("%w: owner is required", ErrValidation)
	}
	if size == 0 {
		return req, fmt.Errorf("%w: file is empty", ErrValidation)
	}
	if size > a.maxSize {
		return req, fmt.Errorf("%w: file exceeds %d bytes", ErrValidation, a.maxSize)
	}

	name := SecureFileName(req.FileName)
	if name == "" {
		return req, fmt.Errorf("%w: file name is required", ErrValidation)
	}
	ext := extension(name)
	if !a.allowed[ext] {
		return req, fmt.Errorf("%w: file type %q not allowed", ErrValidation, ext)
	}
	req.FileName = name

	if req.MimeType == "" {
		req.MimeType = GuessMimeType(name)
	}
	req.RecordType = strings.TrimSpace(req.RecordType)
	if req.RecordType == "" {
		req.RecordType = DefaultRecordType
	}
	if req.AccessLevel == "" {
		req.AccessLevel = contracts.AccessLevelPrivate
	}

	metadata, decoded, err := a.metadata(req.Metadata)
	if err != nil {
		return req, err
	}
	req.Metadata = metadata

	if a.rule != nil {
		out, _, err := a.rule.Eval(map[string]any{
			"upload": map[string]any{
				"owner_id":     ownerID,
				"file_name":    name,
				"extension":    ext,
				"size":         size,
				"mime_type":    req.MimeType,
				"record_type":  req.RecordType,
				"access_level": req.AccessLevel,
				"metadata":     decoded,
			},
		})
		if err != nil {
			return req, fmt.Errorf("%w: admission rule: %v", ErrValidation, err)
		}
		if allowed, ok := out.Value().(bool); !ok || !allowed {
			return req, fmt.Errorf("%w: upload rejected by admission rule", ErrValidation)
		}
	}
	return req, nil
}

// metadata requires a JSON object, defaulting to {}.
func (a *Admission) metadata(raw json.RawMessage) (json.RawMessage, map[string]any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = json.RawMessage(`{}`)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, nil, fmt.Errorf("%w: metadata is not valid JSON: %v", ErrValidation, err)
	}
	if dec.More() {
		return nil, nil, fmt.Errorf("%w: metadata has trailing data", ErrValidation)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, nil, fmt.Errorf("%w: metadata must be a JSON object", ErrValidation)
	}
	if err := a.schema.Validate(v); err != nil {
		return nil, nil, fmt.Errorf("%w: metadata: %v", ErrValidation, err)
	}
	compact := new(bytes.Buffer)
	if err := json.Compact(compact, raw); err != nil {
		return nil, nil, fmt.Errorf("%w: metadata: %v", ErrValidation, err)
	}
	return json.RawMessage(compact.Bytes()), obj, nil
}

// SecureFileName reduces a client-supplied name to a safe base name.
// Path components are dropped, the name is NFC-normalized, spaces become
// underscores and anything but letters, digits, '.', '-' and '_' is removed.
func SecureFileName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = path.Base(norm.NFC.String(name))

	var b strings.Builder
	for _, r := range name {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "._")
}

func extension(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}

// GuessMimeType maps a file name to a MIME type, defaulting to application/octet-stream.
func GuessMimeType(name string) string {
	ext := extension(name)
	if t, ok := mimeByExtension[ext]; ok {
		return t
	}
	if ext != "" {
		if t := mime.TypeByExtension("." + ext); t != "" {
			return t
		}
	}
	return "application/octet-stream"
}

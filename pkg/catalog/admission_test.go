package catalog

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecureFileName(t *testing.T) {
	cases := map[string]string{
		"report.pdf":              "report.pdf",
		"../../etc/passwd":        "passwd",
		`C:\Users\alice\scan.png`: "scan.png",
		"blood panel 2026.pdf":    "blood_panel_2026.pdf",
		"résumé.docx":             "résumé.docx",
		"re\u0301sume\u0301.txt":  "résumé.txt",
		"<script>x.txt":           "scriptx.txt",
		".hidden.pdf":             "hidden.pdf",
		"..":                      "",
	}
	for in, want := range cases {
		assert.Equal(t, want, SecureFileName(in), "input %q", in)
	}
}

func TestGuessMimeType(t *testing.T) {
	assert.Equal(t, "application/pdf", GuessMimeType("a.PDF"))
	assert.Equal(t, "application/dicom", GuessMimeType("scan.dcm"))
	assert.Equal(t, "image/jpeg", GuessMimeType("x.jpeg"))
	assert.Equal(t, "application/octet-stream", GuessMimeType("noext"))
}

func TestAdmit_Normalizes(t *testing.T) {
	a, err := NewAdmission(DefaultAdmissionPolicy)
	require.NoError(t, err)

	req, err := a.Admit("alice", 10, UploadRequest{
		FileName: "Lab Results.PDF",
		Metadata: json.RawMessage(`{ "clinic" : "north" }`),
	})
	require.NoError(t, err)
	assert.Equal(t, "Lab_Results.PDF", req.FileName)
	assert.Equal(t, "application/pdf", req.MimeType)
	assert.Equal(t, DefaultRecordType, req.RecordType)
	assert.Equal(t, "private", req.AccessLevel)
	assert.Equal(t, `{"clinic":"north"}`, string(req.Metadata))

	req, err = a.Admit("alice", 10, UploadRequest{FileName: "a.txt", MimeType: "text/markdown"})
	require.NoError(t, err)
	assert.Equal(t, "text/markdown", req.MimeType)
	assert.Equal(t, "{}", string(req.Metadata))
}

func TestAdmit_Rejects(t *testing.T) {
	a, err := NewAdmission(AdmissionPolicy{
		AllowedExtensions: []string{"pdf"},
		MaxSize:           100,
		Rule:              `upload.size < 50 && !("secret" in upload.metadata)`,
		MetadataSchema:    `{"type": "object", "properties": {"clinic": {"type": "string"}}}`,
	})
	require.NoError(t, err)

	cases := map[string]struct {
		size int64
		req  UploadRequest
	}{
		"too large":       {101, UploadRequest{FileName: "a.pdf"}},
		"rule size":       {60, UploadRequest{FileName: "a.pdf"}},
		"rule metadata":   {10, UploadRequest{FileName: "a.pdf", Metadata: json.RawMessage(`{"secret": true}`)}},
		"schema":          {10, UploadRequest{FileName: "a.pdf", Metadata: json.RawMessage(`{"clinic": 7}`)}},
		"extension":       {10, UploadRequest{FileName: "a.png"}},
		"trailing json":   {10, UploadRequest{FileName: "a.pdf", Metadata: json.RawMessage(`{} {}`)}},
		"metadata string": {10, UploadRequest{FileName: "a.pdf", Metadata: json.RawMessage(`"x"`)}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := a.Admit("alice", tc.size, tc.req)
			require.ErrorIs(t, err, ErrValidation)
		})
	}

	_, err = a.Admit("alice", 10, UploadRequest{FileName: "a.pdf", Metadata: json.RawMessage(`{"clinic": "north"}`)})
	require.NoError(t, err)
}

func TestNewAdmission_InvalidPolicy(t *testing.T) {
	_, err := NewAdmission(AdmissionPolicy{Rule: `upload.size +`})
	require.Error(t, err)

	_, err = NewAdmission(AdmissionPolicy{Rule: `upload.file_name + "!"`})
	require.Error(t, err, "a non-boolean rule must be rejected")

	_, err = NewAdmission(AdmissionPolicy{MetadataSchema: `{"type": 12}`})
	require.Error(t, err)
}

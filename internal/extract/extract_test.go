package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrplatform/docingest/internal/domain"
)

func buildDOCX(t *testing.T, body string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` + body + `</w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestExtract_PlainText(t *testing.T) {
	e := New()

	text, err := e.Extract(context.Background(), domain.FileTypeText, []byte("  Annual leave is 25 days.\n"))
	require.NoError(t, err)
	assert.Equal(t, "Annual leave is 25 days.", text)
}

func TestExtract_DropsInvalidUTF8(t *testing.T) {
	e := New()

	data := []byte("name,days\xff\xfe\nalice,3")
	text, err := e.Extract(context.Background(), domain.FileTypeCSV, data)
	require.NoError(t, err)
	assert.Equal(t, "name,days\nalice,3", text)
}

func TestExtract_Markdown(t *testing.T) {
	text, err := New().Extract(context.Background(), domain.FileTypeMarkdown, []byte("# Policy\n\nRemote work allowed."))
	require.NoError(t, err)
	assert.Contains(t, text, "Remote work allowed.")
}

func TestExtract_DOCX(t *testing.T) {
	data := buildDOCX(t,
		`<w:p><w:r><w:t>Code of Conduct</w:t></w:r></w:p>`+
			`<w:p><w:r><w:t>Be</w:t></w:r><w:r><w:tab/><w:t xml:space="preserve">kind.</w:t></w:r></w:p>`)

	text, err := New().Extract(context.Background(), domain.FileTypeDOCX, data)
	require.NoError(t, err)
	assert.Equal(t, "Code of Conduct\nBe\tkind.", text)
}

func TestExtract_DOCXMissingBody(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, err := zw.Create("word/styles.xml")
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = New().Extract(context.Background(), domain.FileTypeDOCX, buf.Bytes())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrExtractionFailed))
}

func TestExtract_HTML(t *testing.T) {
	html := `<html><head><title>x</title><style>p{}</style></head>
<body><h1>Benefits</h1><script>alert(1)</script>
<p>Health   insurance
is provided.</p></body></html>`

	text, err := New().Extract(context.Background(), domain.FileTypeHTML, []byte(html))
	require.NoError(t, err)
	assert.Equal(t, "Benefits Health insurance is provided.", text)
}

func TestExtract_CorruptPDF(t *testing.T) {
	_, err := New().Extract(context.Background(), domain.FileTypePDF, []byte("this is not a pdf"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrExtractionFailed))
}

func TestExtract_CorruptDOCX(t *testing.T) {
	_, err := New().Extract(context.Background(), domain.FileTypeDOCX, []byte("PK nope"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrExtractionFailed))
}

func TestExtract_UnsupportedType(t *testing.T) {
	_, err := New().Extract(context.Background(), domain.FileType(".exe"), []byte("MZ"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnsupportedFileType))
	assert.Contains(t, err.Error(), ".pdf")
}

func TestExtract_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().Extract(ctx, domain.FileTypeText, []byte("hello"))
	assert.ErrorIs(t, err, context.Canceled)
}

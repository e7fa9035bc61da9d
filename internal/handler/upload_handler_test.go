package handler

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/quocanhngo/edumsg/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type part struct {
	name        string
	contentType string
	data        string
}

func multipartForm(t *testing.T, parts ...part) *multipart.Form {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("body", "Voir pièce jointe"))
	for _, p := range parts {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="files"; filename="`+p.name+`"`)
		if p.contentType != "" {
			h.Set("Content-Type", p.contentType)
		}
		fw, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = fw.Write([]byte(p.data))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(1<<20))
	return req.MultipartForm
}

func TestReadAttachments(t *testing.T) {
	form := multipartForm(t,
		part{name: "autorisation.pdf", contentType: "application/pdf", data: "%PDF-1.7"},
		part{name: "photo.JPG", contentType: "application/octet-stream", data: "jpeg"},
	)

	inputs, err := readAttachments(form)

	require.NoError(t, err)
	require.Len(t, inputs, 2)
	assert.Equal(t, "autorisation.pdf", inputs[0].FileName)
	assert.Equal(t, "application/pdf", inputs[0].MimeType)
	assert.Equal(t, []byte("%PDF-1.7"), inputs[0].Data)
	assert.Equal(t, "image/jpeg", inputs[1].MimeType)
}

func TestReadAttachments_RejectsUnsupportedType(t *testing.T) {
	form := multipartForm(t, part{name: "run.exe", contentType: "application/x-msdownload", data: "MZ"})

	_, err := readAttachments(form)

	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestReadAttachments_TooManyFiles(t *testing.T) {
	parts := make([]part, maxFilesPerMessage+1)
	for i := range parts {
		parts[i] = part{name: "note.txt", contentType: "text/plain", data: "x"}
	}

	_, err := readAttachments(multipartForm(t, parts...))

	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestIsAllowedType(t *testing.T) {
	assert.True(t, isAllowedType("image/png"))
	assert.True(t, isAllowedType("text/plain; charset=utf-8"))
	assert.False(t, isAllowedType("application/x-sh"))
}

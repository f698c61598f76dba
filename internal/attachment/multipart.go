package attachment

import (
	"errors"
	"net/http"
	"net/url"

	dErrors "correspondence/pkg/domain-errors"
)

// FilePart is the multipart field that carries the attachment.
const FilePart = "file"

// multipartMemory is how much of a form is buffered before parts spill to
// temporary files.
const multipartMemory = 4 << 20

// Form is a parsed multipart request. Close releases the open file and any
// temporary files.
type Form struct {
	Values url.Values
	Upload *Upload
	close  func()
}

func (f *Form) Close() {
	if f != nil && f.close != nil {
		f.close()
	}
}

// ReadForm parses a multipart/form-data body of at most maxBytes. The file
// part is optional; Upload is nil when it was not sent.
func ReadForm(w http.ResponseWriter, r *http.Request, maxBytes int64) (*Form, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, dErrors.Newf(dErrors.CodeBadRequest, "request body exceeds %d bytes", maxBytes).WithField(FilePart)
		}
		return nil, dErrors.New(dErrors.CodeBadRequest, "expected a multipart/form-data body")
	}
	form := &Form{
		Values: url.Values(r.MultipartForm.Value),
		close:  func() { _ = r.MultipartForm.RemoveAll() },
	}

	file, header, err := r.FormFile(FilePart)
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return form, nil
	case err != nil:
		form.Close()
		return nil, dErrors.New(dErrors.CodeBadRequest, "unreadable file part").WithField(FilePart)
	}
	form.Upload = &Upload{Filename: header.Filename, Size: header.Size, Content: file}
	form.close = func() {
		_ = file.Close()
		_ = r.MultipartForm.RemoveAll()
	}
	return form, nil
}

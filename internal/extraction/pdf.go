package extraction

import (
	"fmt"
	"io"
	"os"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFDecoder counts pages with pdfcpu before handing the file to the text reader,
// so oversized documents are refused without decoding any content stream.
type PDFDecoder struct {
	conf *model.Configuration
}

func NewPDFDecoder() *PDFDecoder {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	return &PDFDecoder{conf: conf}
}

func (d *PDFDecoder) Decode(path string, maxPages int) (Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	count, err := api.PageCount(f, d.conf)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("counting pages: %w", err)
	}

	if maxPages > 0 && count > maxPages {
		f.Close()
		return nil, fmt.Errorf("%w: %d pages, limit is %d", ErrTooManyPages, count, maxPages)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	reader, err := pdf.NewReader(f, info.Size())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("opening pdf reader: %w", err)
	}

	return &pdfDocument{file: f, reader: reader}, nil
}

type pdfDocument struct {
	file   *os.File
	reader *pdf.Reader
}

func (d *pdfDocument) PageCount() int {
	return d.reader.NumPage()
}

func (d *pdfDocument) PageText(n int) (string, error) {
	page := d.reader.Page(n)
	if page.V.IsNull() {
		return "", nil
	}

	return page.GetPlainText(nil)
}

func (d *pdfDocument) Close() error {
	return d.file.Close()
}

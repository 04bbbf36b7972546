package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/cvgram/internal/core/domain"
	"github.com/kirillkom/cvgram/internal/core/ports"
	"github.com/kirillkom/cvgram/internal/infrastructure/extractor/plaintext"
)

var pdfMagic = []byte("%PDF-")

// Extractor reads a stored CV and returns its text. PDF documents are parsed,
// anything else is treated as UTF-8 plain text.
type Extractor struct {
	storage  ports.ObjectStorage
	maxBytes int64
}

func NewExtractor(storage ports.ObjectStorage, maxBytes int64) *Extractor {
	return &Extractor{storage: storage, maxBytes: maxBytes}
}

func (e *Extractor) Extract(ctx context.Context, storageKey string) (string, error) {
	reader, err := e.storage.Open(ctx, storageKey)
	if err != nil {
		return "", fmt.Errorf("open source document: %w", err)
	}
	defer reader.Close()

	var src io.Reader = reader
	if e.maxBytes > 0 {
		src = io.LimitReader(reader, e.maxBytes+1)
	}
	raw, err := io.ReadAll(src)
	if err != nil {
		return "", domain.WrapError(domain.ErrUpstream, "read source document", err)
	}
	if e.maxBytes > 0 && int64(len(raw)) > e.maxBytes {
		return "", domain.WrapError(domain.ErrInvalidInput, "read source document",
			fmt.Errorf("document exceeds %d bytes", e.maxBytes))
	}

	if !bytes.HasPrefix(raw, pdfMagic) {
		return plaintext.Decode(storageKey, raw)
	}
	return PlainText(raw)
}

// PlainText returns the text layer of a PDF document.
func PlainText(raw []byte) (text string, err error) {
	// the parser panics on some malformed cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			err = domain.WrapError(domain.ErrInvalidInput, "parse pdf", fmt.Errorf("malformed document: %v", r))
		}
	}()

	doc, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "parse pdf", err)
	}
	plain, err := doc.GetPlainText()
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract pdf text", err)
	}
	var b strings.Builder
	if _, err := io.Copy(&b, plain); err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "extract pdf text", err)
	}
	return strings.TrimSpace(b.String()), nil
}

package pagesource

import (
	"context"
	"errors"
	"testing"

	"github.com/jackzampolin/tagflow/internal/retry"
)

func TestSplitImagePassthrough(t *testing.T) {
	s := NewPDFSplitter(Config{})
	content := []byte{0xff, 0xd8, 0xff, 0xe0}

	pages, err := s.Split(context.Background(), content, "image/jpeg")
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(pages) != 1 {
		t.Fatalf("expected 1 page, got %d", len(pages))
	}
	if pages[0].Index != 0 {
		t.Errorf("expected index 0, got %d", pages[0].Index)
	}
	if pages[0].MIME != "image/jpeg" {
		t.Errorf("expected image/jpeg, got %s", pages[0].MIME)
	}
	if string(pages[0].Data) != string(content) {
		t.Error("expected content passed through unchanged")
	}
}

func TestSplitUnsupportedType(t *testing.T) {
	s := NewPDFSplitter(Config{})

	_, err := s.Split(context.Background(), []byte("hello"), "text/plain")
	if err == nil {
		t.Fatal("expected error for unsupported content type")
	}
	if !retry.IsPermanent(err) {
		t.Error("expected a permanent error")
	}
}

func TestSplitCorruptPDF(t *testing.T) {
	s := NewPDFSplitter(Config{})

	_, err := s.Split(context.Background(), []byte("not a pdf"), "application/pdf")
	if err == nil {
		t.Fatal("expected error for corrupt PDF")
	}
	if !retry.IsPermanent(err) {
		t.Error("expected a permanent error")
	}
	if errors.Is(err, context.Canceled) {
		t.Error("unexpected cancellation error")
	}
}

func TestNormalizeContentType(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"application/pdf", "application/pdf"},
		{"Application/PDF; charset=binary", "application/pdf"},
		{"  image/png ", "image/png"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := normalizeContentType(tt.in); got != tt.want {
			t.Errorf("normalizeContentType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

package fsutil

import (
	"bytes"
	"io"
	"testing"
)

func TestBuffer_WriteAtGrows(t *testing.T) {
	b := NewBuffer(nil)

	n, err := b.WriteAt([]byte("abc"), 2)
	if err != nil {
		t.Fatalf("WriteAt failed: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 bytes written, got %d", n)
	}
	if !bytes.Equal(b.Bytes(), []byte{0, 0, 'a', 'b', 'c'}) {
		t.Errorf("unexpected contents %v", b.Bytes())
	}

	if _, err := b.WriteAt([]byte("Z"), 0); err != nil {
		t.Fatalf("WriteAt failed: %v", err)
	}
	if b.Bytes()[0] != 'Z' || len(b.Bytes()) != 5 {
		t.Errorf("overwrite changed length or missed: %v", b.Bytes())
	}
}

func TestBuffer_ReadAt(t *testing.T) {
	b := NewBuffer([]byte("hello"))

	p := make([]byte, 3)
	n, err := b.ReadAt(p, 1)
	if err != nil || n != 3 || string(p) != "ell" {
		t.Errorf("ReadAt = %d %q %v", n, p, err)
	}

	n, err = b.ReadAt(p, 3)
	if err != io.EOF || n != 2 {
		t.Errorf("short read = %d %v, want 2 EOF", n, err)
	}

	if _, err := b.ReadAt(p, 10); err != io.EOF {
		t.Errorf("read past end = %v, want EOF", err)
	}
	if _, err := b.ReadAt(p, -1); err == nil {
		t.Error("expected error for negative offset")
	}
	if _, err := b.WriteAt(p, -1); err == nil {
		t.Error("expected error for negative offset")
	}
}

package kbin

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestWriterReaderPrimitivesRoundTrip(t *testing.T) {
	w := NewWriter(nil)
	w.Int8(-7)
	w.Bool(true)
	w.Int16(-1234)
	w.Int32(-123456)
	w.Uint32(123456)
	w.Int64(-123456789012)

	r := NewReader(w.Bytes())
	if got := r.Int8(); got != -7 {
		t.Errorf("Int8 = %d, want -7", got)
	}
	if got := r.Bool(); got != true {
		t.Errorf("Bool = %v, want true", got)
	}
	if got := r.Int16(); got != -1234 {
		t.Errorf("Int16 = %d, want -1234", got)
	}
	if got := r.Int32(); got != -123456 {
		t.Errorf("Int32 = %d, want -123456", got)
	}
	if got := r.Uint32(); got != 123456 {
		t.Errorf("Uint32 = %d, want 123456", got)
	}
	if got := r.Int64(); got != -123456789012 {
		t.Errorf("Int64 = %d, want -123456789012", got)
	}
	if err := r.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.Done() {
		t.Error("reader should be exhausted")
	}
}

func TestStringNullable(t *testing.T) {
	w := NewWriter(nil)
	if err := w.String(nil); err != nil {
		t.Fatal(err)
	}
	s := "hello"
	if err := w.String(&s); err != nil {
		t.Fatal(err)
	}

	r := NewReader(w.Bytes())
	if got := r.String(); got != nil {
		t.Errorf("first string = %v, want nil", got)
	}
	if got := r.String(); got == nil || *got != "hello" {
		t.Errorf("second string = %v, want hello", got)
	}
}

func TestBytesPreservesAbsentVsEmpty(t *testing.T) {
	w := NewWriter(nil)
	w.NullableBytes(nil)
	w.NullableBytes([]byte{})
	w.NullableBytes([]byte{1, 2, 3})

	r := NewReader(w.Bytes())
	if got := r.Bytes(); got != nil {
		t.Errorf("absent bytes = %v, want nil", got)
	}
	if got := r.Bytes(); got == nil || len(got) != 0 {
		t.Errorf("empty bytes = %v, want non-nil empty slice", got)
	}
	if got := r.Bytes(); !cmp.Equal(got, []byte{1, 2, 3}) {
		t.Errorf("bytes = %v, want [1 2 3]", got)
	}
}

func TestVarintRoundTrip(t *testing.T) {
	values := []int32{0, 1, -1, 63, -64, 64, -65, 1 << 20, -(1 << 20), 1<<31 - 1, -(1 << 31)}
	w := NewWriter(nil)
	for _, v := range values {
		w.Varint(v)
	}
	r := NewReader(w.Bytes())
	for _, want := range values {
		if got := r.Varint(); got != want {
			t.Errorf("Varint roundtrip = %d, want %d", got, want)
		}
	}
	if err := r.Err(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestVarintLenMatchesWrittenLength(t *testing.T) {
	for _, v := range []int32{0, 1, -1, 300, -300, 1 << 20} {
		w := NewWriter(nil)
		w.Varint(v)
		if got, want := len(w.Bytes()), VarintLen(v); got != want {
			t.Errorf("VarintLen(%d) = %d, actual write was %d bytes", v, want, got)
		}
	}
}

func TestStringTooLong(t *testing.T) {
	huge := make([]byte, MaxStringLen+1)
	s := string(huge)
	w := NewWriter(nil)
	if err := w.String(&s); err == nil {
		t.Fatal("expected an error for an over-long string")
	}
}

func TestReaderTruncatedFrame(t *testing.T) {
	r := NewReader([]byte{0, 1}) // claims an int32 is coming but only 2 bytes exist
	r.Int32()
	if r.Err() == nil {
		t.Fatal("expected a truncated-frame error")
	}
}

package codec

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"image/png"
)

func encodePlain(w *bytes.Buffer, img image.Image) error {
	return png.Encode(w, img)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	data := []byte("hello pixel rts")
	img, meta, err := Encode(data, KindText, 8, EncodingRGBADense)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if meta.Kind != KindText {
		t.Fatalf("expected kind %q, got %q", KindText, meta.Kind)
	}
	got, err := Decode(img, meta)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("round trip mismatch: got %q want %q", got, data)
	}
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	data := make([]byte, 1000)
	if _, _, err := Encode(data, KindText, 2, EncodingRGBADense); err == nil {
		t.Fatalf("expected error for payload exceeding grid capacity")
	}
}

func TestEncodeRejectsNonPowerOfTwoGrid(t *testing.T) {
	if _, _, err := Encode([]byte("x"), KindText, 3, EncodingRGBADense); err != ErrBadGridSize {
		t.Fatalf("expected ErrBadGridSize, got %v", err)
	}
}

func TestDecodeDetectsHashMismatch(t *testing.T) {
	data := []byte("tamper me")
	img, meta, err := Encode(data, KindText, 8, EncodingRGBADense)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	meta.ContentHash = "deadbeef"
	if _, err := Decode(img, meta); err != ErrHashMismatch {
		t.Fatalf("expected ErrHashMismatch, got %v", err)
	}
}

func TestDecodeRejectsNonPowerOfTwoGridSize(t *testing.T) {
	img, meta, err := Encode([]byte("x"), KindText, 8, EncodingRGBADense)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	meta.GridSize = 10
	if _, err := Decode(img, meta); err != ErrBadGridSize {
		t.Fatalf("expected ErrBadGridSize, got %v", err)
	}
}

func TestDecodeRejectsTruncatedPayload(t *testing.T) {
	img, meta, err := Encode([]byte("x"), KindText, 8, EncodingRGBADense)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	meta.SizeBytes = int(meta.GridSize)*int(meta.GridSize)*4 + 1
	if _, err := Decode(img, meta); err != ErrTruncatedPayload {
		t.Fatalf("expected ErrTruncatedPayload, got %v", err)
	}
}

func TestWriteReadPNGRoundTrip(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	var buf bytes.Buffer
	meta, err := WritePNG(&buf, data, KindText, 8, EncodingRGBADense, "")
	if err != nil {
		t.Fatalf("WritePNG: %v", err)
	}
	if meta.GridSize != 8 {
		t.Fatalf("expected grid size 8, got %d", meta.GridSize)
	}
	if meta.Kind != KindText {
		t.Fatalf("expected kind %q, got %q", KindText, meta.Kind)
	}

	got, readMeta, err := ReadPNG(bytes.NewReader(buf.Bytes()), "")
	if err != nil {
		t.Fatalf("ReadPNG: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("round trip mismatch: got %q want %q", got, data)
	}
	if readMeta.ContentHash != meta.ContentHash {
		t.Fatalf("metadata hash mismatch")
	}
}

func TestReadPNGRejectsNonPixelRTS(t *testing.T) {
	var buf bytes.Buffer
	img, _, _ := Encode([]byte("x"), KindText, 4, EncodingRGBADense)
	// Encode a plain PNG without the metadata chunk.
	if err := encodePlain(&buf, img); err != nil {
		t.Fatalf("plain encode: %v", err)
	}
	if _, _, err := ReadPNG(bytes.NewReader(buf.Bytes()), ""); err != ErrNotACarrier {
		t.Fatalf("expected ErrNotACarrier, got %v", err)
	}
}

func TestRGBOpaqueEncodingForcesFullAlpha(t *testing.T) {
	data := []byte("rgb only")
	img, meta, err := Encode(data, KindText, 8, EncodingRGBOpaque)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	_, _, _, a := img.At(0, 0).RGBA()
	if uint8(a>>8) != 255 {
		t.Fatalf("expected opaque alpha, got %d", a>>8)
	}
	got, err := Decode(img, meta)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("round trip mismatch: got %q", got)
	}
}

func TestRecognizeFindsPixelRTSCarrier(t *testing.T) {
	data := []byte("kernel bytes")
	var buf bytes.Buffer
	if _, err := WritePNG(&buf, data, KindKernel, 8, EncodingRGBADense, ""); err != nil {
		t.Fatalf("WritePNG: %v", err)
	}
	rec, err := Recognize(buf.Bytes(), "")
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if !rec.IsCarrier {
		t.Fatalf("expected IsCarrier true")
	}
	if rec.Metadata.Kind != KindKernel {
		t.Fatalf("expected kind %q, got %q", KindKernel, rec.Metadata.Kind)
	}
	if !bytes.Equal(rec.Data, data) {
		t.Fatalf("recognized data mismatch: got %q want %q", rec.Data, data)
	}
}

func TestRecognizeFallsBackToShaderHeuristic(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.SetRGBA(0, 0, color.RGBA{R: 10, G: 20, B: 200, A: 255})
	var buf bytes.Buffer
	if err := encodePlain(&buf, img); err != nil {
		t.Fatalf("plain encode: %v", err)
	}
	rec, err := Recognize(buf.Bytes(), "")
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if rec.IsCarrier {
		t.Fatalf("expected IsCarrier false for a plain image")
	}
	if !rec.IsShader {
		t.Fatalf("expected IsShader true for a dark-red/bright-blue first pixel")
	}
}

func TestRecognizeDisplayOnlyForOrdinaryImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.SetRGBA(0, 0, color.RGBA{R: 200, G: 200, B: 10, A: 255})
	var buf bytes.Buffer
	if err := encodePlain(&buf, img); err != nil {
		t.Fatalf("plain encode: %v", err)
	}
	rec, err := Recognize(buf.Bytes(), "")
	if err != nil {
		t.Fatalf("Recognize: %v", err)
	}
	if rec.IsCarrier || rec.IsShader {
		t.Fatalf("expected a plain bright-red/low-blue image to be display-only")
	}
}

func TestRecognizeRejectsNonImage(t *testing.T) {
	if _, err := Recognize([]byte("not a png at all"), ""); err != ErrNotACarrier {
		t.Fatalf("expected ErrNotACarrier, got %v", err)
	}
}

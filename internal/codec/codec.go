// Package codec implements the PixelRTS v2 artifact codec: encoding
// arbitrary binary payloads as RGBA carrier images addressed by a Hilbert
// curve, and recovering the payload and its metadata from such an image.
//
// Carrier images are ordinary PNGs (via the standard library's image/png)
// carrying a PixelRTS metadata block in a
// tEXt chunk, with an optional JSON sidecar file for tools that strip PNG
// ancillary chunks.
package codec

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"os"

	"image/png"

	"github.com/geometryos/substrate/internal/hilbert"
)

// Magic is the fixed marker identifying a PixelRTS metadata block.
const Magic = "PixelRTS"

// FormatVersion is the metadata schema version written by this package.
const FormatVersion = 2

// Encoding names the pixel-to-payload packing scheme.
type Encoding string

const (
	// EncodingRGBADense packs 4 payload bytes per pixel, using the alpha
	// channel as real data. This is the format this package writes;
	// chosen to resolve the open question left by the original codec
	// (see DESIGN.md) in favor of maximum density over an end-of-data
	// sentinel.
	EncodingRGBADense Encoding = "RGBA-dense"

	// EncodingRGBOpaque packs 3 payload bytes per pixel and forces alpha
	// to 255, trading 25% density for carrier images that tolerate
	// alpha-stripping intermediaries (e.g. naive clipboard managers).
	// Still decodable by this package for interoperability with
	// artifacts produced elsewhere.
	EncodingRGBOpaque Encoding = "RGB-opaque"
)

// Kind tags what an artifact's payload actually is, recorded in its
// metadata and used by the substrate to route a decoded artifact onward:
// kernel/initrd go to the VM Supervisor, wasm to the module loader,
// anything else is display-only.
type Kind string

const (
	KindText   Kind = "text"
	KindKernel Kind = "kernel"
	KindInitrd Kind = "initrd"
	KindWasm   Kind = "wasm"
	KindShader Kind = "shader"
)

var (
	// ErrHashMismatch indicates the decoded payload's content hash does
	// not match the metadata's recorded hash.
	ErrHashMismatch = errors.New("codec: content hash mismatch")
	// ErrNotACarrier indicates the input is not a recognizable PixelRTS
	// carrier image at all (no image container magic, or no PixelRTS
	// metadata could be located in it or its sidecar).
	ErrNotACarrier = errors.New("codec: not a PixelRTS carrier")
	// ErrUnsupportedVersion indicates a format_version this package
	// cannot decode.
	ErrUnsupportedVersion = errors.New("codec: unsupported format version")
	// ErrBadGridSize indicates metadata.GridSize is zero or not a power
	// of two, so no Hilbert traversal over it is well defined.
	ErrBadGridSize = errors.New("codec: grid_size is not a power of two")
	// ErrTruncatedPayload indicates the carrier holds fewer bytes than
	// metadata.SizeBytes claims.
	ErrTruncatedPayload = errors.New("codec: payload shorter than declared size")
)

// Metadata describes a PixelRTS artifact, embedded alongside the carrier
// image and optionally mirrored to a sidecar file.
type Metadata struct {
	Magic         string   `json:"magic"`
	FormatVersion int      `json:"format_version"`
	GridSize      uint32   `json:"grid_size"`
	Encoding      Encoding `json:"encoding"`
	Kind          Kind     `json:"kind"`
	SizeBytes     int      `json:"size_bytes"`
	ContentHash   string   `json:"content_hash"` // hex sha256 of the raw payload
}

// isPowerOfTwo reports whether n is a nonzero power of two.
func isPowerOfTwo(n uint32) bool {
	return n != 0 && n&(n-1) == 0
}

// Encode packs data into an n x n RGBA carrier image addressed by Hilbert
// distance, in encoding mode enc, tagged with kind for downstream routing.
// n must be a power of two large enough to hold len(data) bytes at the
// mode's bytes-per-pixel ratio.
func Encode(data []byte, kind Kind, n uint32, enc Encoding) (*image.RGBA, Metadata, error) {
	if !isPowerOfTwo(n) {
		return nil, Metadata{}, ErrBadGridSize
	}
	bpp := bytesPerPixel(enc)
	capacity := int(n) * int(n) * bpp
	if len(data) > capacity {
		return nil, Metadata{}, fmt.Errorf("codec: payload of %d bytes exceeds grid capacity %d", len(data), capacity)
	}

	img := image.NewRGBA(image.Rect(0, 0, int(n), int(n)))
	for d := uint32(0); d < n*n; d++ {
		x, y := hilbert.DToXY(n, d)
		off := int(d) * bpp
		var px color.RGBA
		switch enc {
		case EncodingRGBADense:
			px = color.RGBA{
				R: byteAt(data, off),
				G: byteAt(data, off+1),
				B: byteAt(data, off+2),
				A: byteAt(data, off+3),
			}
		default: // EncodingRGBOpaque
			px = color.RGBA{
				R: byteAt(data, off),
				G: byteAt(data, off+1),
				B: byteAt(data, off+2),
				A: 255,
			}
		}
		img.SetRGBA(int(x), int(y), px)
	}

	sum := sha256.Sum256(data)
	meta := Metadata{
		Magic:         Magic,
		FormatVersion: FormatVersion,
		GridSize:      n,
		Encoding:      enc,
		Kind:          kind,
		SizeBytes:     len(data),
		ContentHash:   hex.EncodeToString(sum[:]),
	}
	return img, meta, nil
}

// byteAt returns data[i] or 0 past the end, so the final pixel may be
// zero-padded.
func byteAt(data []byte, i int) uint8 {
	if i < 0 || i >= len(data) {
		return 0
	}
	return data[i]
}

func bytesPerPixel(enc Encoding) int {
	if enc == EncodingRGBOpaque {
		return 3
	}
	return 4
}

// Decode recovers the payload bytes from a carrier image given its metadata
// (grid size and encoding), verifying against the recorded content hash.
func Decode(img image.Image, meta Metadata) ([]byte, error) {
	if meta.Magic != Magic {
		return nil, ErrNotACarrier
	}
	if meta.FormatVersion != FormatVersion {
		return nil, ErrUnsupportedVersion
	}
	n := meta.GridSize
	if !isPowerOfTwo(n) {
		return nil, ErrBadGridSize
	}
	bpp := bytesPerPixel(meta.Encoding)
	data := make([]byte, n*n*uint32(bpp))
	for d := uint32(0); d < n*n; d++ {
		x, y := hilbert.DToXY(n, d)
		r, g, b, a := img.At(int(x), int(y)).RGBA()
		off := int(d) * bpp
		data[off] = uint8(r >> 8)
		data[off+1] = uint8(g >> 8)
		data[off+2] = uint8(b >> 8)
		if bpp == 4 {
			data[off+3] = uint8(a >> 8)
		}
	}
	if meta.SizeBytes > len(data) {
		return nil, ErrTruncatedPayload
	}
	if meta.SizeBytes >= 0 {
		data = data[:meta.SizeBytes]
	}
	sum := sha256.Sum256(data)
	if hex.EncodeToString(sum[:]) != meta.ContentHash {
		return nil, ErrHashMismatch
	}
	return data, nil
}

// pixelRTSChunkKeyword is the PNG tEXt keyword this package writes metadata
// under.
const pixelRTSChunkKeyword = "PixelRTS"

// WritePNG encodes data as a PixelRTS carrier image and writes it as PNG to
// w, embedding metadata as a tEXt chunk. sidecarPath, if non-empty, also
// receives a JSON copy of the metadata (in-container metadata wins on
// conflict when both are present at decode time, per the recognition order
// below).
func WritePNG(w io.Writer, data []byte, kind Kind, n uint32, enc Encoding, sidecarPath string) (Metadata, error) {
	img, meta, err := Encode(data, kind, n, enc)
	if err != nil {
		return Metadata{}, err
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return Metadata{}, fmt.Errorf("codec: marshal metadata: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Metadata{}, fmt.Errorf("codec: encode png: %w", err)
	}
	out, err := embedTextChunk(buf.Bytes(), pixelRTSChunkKeyword, string(metaJSON))
	if err != nil {
		return Metadata{}, err
	}
	if _, err := w.Write(out); err != nil {
		return Metadata{}, fmt.Errorf("codec: write png: %w", err)
	}

	if sidecarPath != "" {
		if err := os.WriteFile(sidecarPath, metaJSON, 0o644); err != nil {
			return Metadata{}, fmt.Errorf("codec: write sidecar: %w", err)
		}
	}
	return meta, nil
}

// ReadPNG decodes a PixelRTS carrier image from r, preferring in-container
// metadata over sidecarPath if both are present.
func ReadPNG(r io.Reader, sidecarPath string) ([]byte, Metadata, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("codec: read png: %w", err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("codec: decode png: %w", err)
	}

	var meta Metadata
	if text, ok := extractTextChunk(raw, pixelRTSChunkKeyword); ok {
		if err := json.Unmarshal([]byte(text), &meta); err != nil {
			return nil, Metadata{}, fmt.Errorf("codec: unmarshal embedded metadata: %w", err)
		}
	} else if sidecarPath != "" {
		sc, err := os.ReadFile(sidecarPath)
		if err != nil {
			return nil, Metadata{}, ErrNotACarrier
		}
		if err := json.Unmarshal(sc, &meta); err != nil {
			return nil, Metadata{}, fmt.Errorf("codec: unmarshal sidecar metadata: %w", err)
		}
	} else {
		return nil, Metadata{}, ErrNotACarrier
	}

	data, err := Decode(img, meta)
	if err != nil {
		return nil, Metadata{}, err
	}
	return data, meta, nil
}

// Recognition is the outcome of running the drop-target recognition chain
// over an arbitrary dropped file's bytes.
type Recognition struct {
	// IsCarrier is true when the input decoded as a PixelRTS v2 artifact;
	// Metadata and Data are then populated and Metadata.Kind selects
	// downstream routing (kernel/initrd -> VM Supervisor, wasm -> module
	// loader, otherwise display-only).
	IsCarrier bool
	// IsShader is true when no PixelRTS metadata was found but the
	// image's first pixel matched the WGSL shader-tile heuristic. Only
	// meaningful when IsCarrier is false.
	IsShader bool
	Metadata Metadata
	Data     []byte
}

// Recognize runs the drop-target file-recognition chain from spec §4.2/§6,
// in order: image container magic, then embedded/sidecar PixelRTS metadata,
// then (only absent any metadata) the shader-tile color heuristic. Returns
// ErrNotACarrier if raw isn't even a recognizable image container.
func Recognize(raw []byte, sidecarPath string) (Recognition, error) {
	if !bytes.HasPrefix(raw, pngSignature) {
		return Recognition{}, ErrNotACarrier
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return Recognition{}, fmt.Errorf("codec: decode png: %w", err)
	}

	meta, ok := scanMetadata(raw, sidecarPath)
	if ok && meta.Magic == Magic {
		data, err := Decode(img, meta)
		if err != nil {
			return Recognition{}, err
		}
		return Recognition{IsCarrier: true, Metadata: meta, Data: data}, nil
	}

	if LooksLikeShaderTile(img) {
		return Recognition{IsShader: true}, nil
	}
	return Recognition{}, nil
}

// scanMetadata looks for PixelRTS metadata embedded in raw's tEXt chunk,
// falling back to sidecarPath. It never returns an error: malformed or
// absent metadata simply yields ok=false so Recognize can fall through to
// the shader heuristic.
func scanMetadata(raw []byte, sidecarPath string) (Metadata, bool) {
	var meta Metadata
	if text, ok := extractTextChunk(raw, pixelRTSChunkKeyword); ok {
		if err := json.Unmarshal([]byte(text), &meta); err == nil {
			return meta, true
		}
		return Metadata{}, false
	}
	if sidecarPath == "" {
		return Metadata{}, false
	}
	sc, err := os.ReadFile(sidecarPath)
	if err != nil {
		return Metadata{}, false
	}
	if err := json.Unmarshal(sc, &meta); err != nil {
		return Metadata{}, false
	}
	return meta, true
}

// shaderHeuristicRedMax and shaderHeuristicBlueMin are the spec's WGSL
// tile-detection thresholds: a carrier's first pixel having R < 100 and
// B > 150 is treated as a shader tile when no explicit metadata is found.
const (
	shaderHeuristicRedMax  = 100
	shaderHeuristicBlueMin = 150
)

// LooksLikeShaderTile applies the WGSL shader-tile color heuristic to img's
// first pixel. This is a lower-priority signal, only consulted when no
// PixelRTS metadata is present (see Recognize).
func LooksLikeShaderTile(img image.Image) bool {
	b := img.Bounds()
	r, _, bl, _ := img.At(b.Min.X, b.Min.Y).RGBA()
	r8, b8 := uint8(r>>8), uint8(bl>>8)
	return r8 < shaderHeuristicRedMax && b8 > shaderHeuristicBlueMin
}

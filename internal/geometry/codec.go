package geometry

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
)

// Encoding is the geometry blob format identifier recorded in the store
// metadata header. Readers must refuse blobs written with an encoding they
// do not know.
const Encoding = "wkb+zstd"

// Codec encodes simplified district geometries into the opaque blobs the
// store persists, and decodes them back into orb values for containment
// tests. Blobs are WKB compressed with zstd; WKB is self-describing enough
// to round-trip Polygon vs MultiPolygon, and zstd roughly halves the store
// file at negligible decode cost.
type Codec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func NewCodec() (*Codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &Codec{enc: enc, dec: dec}, nil
}

func (c *Codec) Encode(g orb.Geometry) ([]byte, error) {
	switch g.(type) {
	case orb.Polygon, orb.MultiPolygon:
	default:
		return nil, fmt.Errorf("unsupported geometry type %q", g.GeoJSONType())
	}
	raw, err := wkb.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal wkb: %w", err)
	}
	return c.enc.EncodeAll(raw, nil), nil
}

func (c *Codec) Decode(blob []byte) (orb.Geometry, error) {
	if len(blob) == 0 {
		return nil, errors.New("empty geometry blob")
	}
	raw, err := c.dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress geometry blob: %w", err)
	}
	g, err := wkb.Unmarshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal wkb: %w", err)
	}
	switch g.(type) {
	case orb.Polygon, orb.MultiPolygon:
		return g, nil
	default:
		return nil, fmt.Errorf("unexpected geometry type %q in blob", g.GeoJSONType())
	}
}

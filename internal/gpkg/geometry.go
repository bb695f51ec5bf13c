package gpkg

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
)

// GeoPackage 1.2 §2.1.3: geometry columns hold a "GeoPackageBinary" blob,
// a small header followed by standard WKB.
//
// Header layout:
//
//	magic    2 bytes  "GP"
//	version  1 byte   0 = version 1
//	flags    1 byte   bit 0 byte order (1=little endian)
//	                  bits 1-3 envelope contents indicator
//	                  bit 4 empty geometry, bit 5 extended type
//	srs_id   4 bytes  int32 in the byte order of bit 0
//	envelope 0/32/48/64 bytes of float64
const (
	magic0 = 'G'
	magic1 = 'P'

	flagLittleEndian = 0x01
	flagEmpty        = 0x10
	flagExtended     = 0x20

	envelopeNone = 0
	envelopeXY   = 1
)

// EncodeGeometry encodes g as a GeoPackageBinary blob with an XY envelope.
// A nil geometry encodes as an empty geometry.
func EncodeGeometry(g orb.Geometry, srsID int32) ([]byte, error) {
	if g == nil {
		header := make([]byte, 8)
		header[0], header[1] = magic0, magic1
		header[3] = flagLittleEndian | flagEmpty
		binary.LittleEndian.PutUint32(header[4:8], uint32(srsID))
		return header, nil
	}

	body, err := wkb.Marshal(g, binary.LittleEndian)
	if err != nil {
		return nil, fmt.Errorf("encode wkb: %w", err)
	}

	b := g.Bound()
	buf := make([]byte, 8+32, 8+32+len(body))
	buf[0], buf[1] = magic0, magic1
	buf[2] = 0
	buf[3] = flagLittleEndian | envelopeXY<<1
	binary.LittleEndian.PutUint32(buf[4:8], uint32(srsID))

	// Envelope order is minx, maxx, miny, maxy.
	binary.LittleEndian.PutUint64(buf[8:16], math.Float64bits(b.Min[0]))
	binary.LittleEndian.PutUint64(buf[16:24], math.Float64bits(b.Max[0]))
	binary.LittleEndian.PutUint64(buf[24:32], math.Float64bits(b.Min[1]))
	binary.LittleEndian.PutUint64(buf[32:40], math.Float64bits(b.Max[1]))

	return append(buf, body...), nil
}

// DecodeGeometry decodes a GeoPackageBinary blob. Empty geometries decode
// to a nil geometry without error.
func DecodeGeometry(data []byte) (orb.Geometry, int32, error) {
	if len(data) < 8 {
		return nil, 0, &ErrInvalidBlob{Reason: fmt.Sprintf("blob too short: %d bytes", len(data))}
	}
	if data[0] != magic0 || data[1] != magic1 {
		return nil, 0, &ErrInvalidBlob{Reason: "missing GP magic"}
	}
	if data[2] != 0 {
		return nil, 0, &ErrInvalidBlob{Reason: fmt.Sprintf("unsupported version %d", data[2])}
	}

	flags := data[3]
	if flags&flagExtended != 0 {
		return nil, 0, &ErrInvalidBlob{Reason: "extended geometry types are not supported"}
	}

	var order binary.ByteOrder = binary.BigEndian
	if flags&flagLittleEndian != 0 {
		order = binary.LittleEndian
	}
	srsID := int32(order.Uint32(data[4:8]))

	var envelopeSize int
	switch (flags >> 1) & 0x07 {
	case envelopeNone:
		envelopeSize = 0
	case envelopeXY:
		envelopeSize = 32
	case 2, 3:
		envelopeSize = 48
	case 4:
		envelopeSize = 64
	default:
		return nil, 0, &ErrInvalidBlob{Reason: fmt.Sprintf("invalid envelope indicator in flags 0x%02x", flags)}
	}

	offset := 8 + envelopeSize
	if len(data) < offset {
		return nil, 0, &ErrInvalidBlob{Reason: "blob truncated inside envelope"}
	}
	if flags&flagEmpty != 0 || len(data) == offset {
		return nil, srsID, nil
	}

	g, err := wkb.Unmarshal(data[offset:])
	if err != nil {
		return nil, srsID, fmt.Errorf("decode wkb: %w", err)
	}
	return g, srsID, nil
}

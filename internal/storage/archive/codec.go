package archive

import (
	"encoding/binary"
	"fmt"

	"github.com/ugorji/go/codec"

	"github.com/LeJamon/ackchain-sim/internal/report"
	"github.com/LeJamon/ackchain-sim/internal/storage/archive/compression"
)

// Record layout: compressor id (1 byte), uvarint uncompressed length,
// compressed msgpack body.

// maxRecordBytes bounds the uncompressed size a record may claim.
const maxRecordBytes = 16 << 20

// Codec encodes reports to stored records.
type Codec struct {
	handle     *codec.MsgpackHandle
	compressor compression.Compressor
}

// NewCodec creates a codec writing with the named compressor. Records are
// readable regardless of the compressor they were written with.
func NewCodec(compressor string) (*Codec, error) {
	if compressor == "" {
		compressor = "none"
	}
	c, err := compression.Get(compressor)
	if err != nil {
		return nil, err
	}
	h := &codec.MsgpackHandle{}
	h.WriteExt = true
	return &Codec{handle: h, compressor: c}, nil
}

// Encode serializes r.
func (c *Codec) Encode(r *report.Report) ([]byte, error) {
	var body []byte
	if err := codec.NewEncoderBytes(&body, c.handle).Encode(r); err != nil {
		return nil, fmt.Errorf("encode report %s: %w", r.Name, err)
	}

	packed, err := c.compressor.Compress(body)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 1+binary.MaxVarintLen64, 1+binary.MaxVarintLen64+len(packed))
	out[0] = c.compressor.ID()
	n := binary.PutUvarint(out[1:], uint64(len(body)))
	out = append(out[:1+n], packed...)
	return out, nil
}

// Decode restores a report from a record.
func (c *Codec) Decode(data []byte) (*report.Report, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("%w: record too short", ErrCorrupt)
	}
	comp, err := compression.ByID(data[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	size, n := binary.Uvarint(data[1:])
	if n <= 0 {
		return nil, fmt.Errorf("%w: bad length prefix", ErrCorrupt)
	}
	if size > maxRecordBytes {
		return nil, fmt.Errorf("%w: record claims %d bytes", ErrCorrupt, size)
	}

	body, err := comp.Decompress(data[1+n:], int(size))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	var r report.Report
	if err := codec.NewDecoderBytes(body, c.handle).Decode(&r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return &r, nil
}

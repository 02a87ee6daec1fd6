package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/golang/snappy"
	"github.com/pierrec/lz4/v4"
	"github.com/sandertv/gophertunnel/minecraft/nbt"
)

// codec selects how encoded snapshot frames are compressed.
type codec int

const (
	codecNone codec = iota
	codecSnappy
	codecLZ4
)

func parseCodec(s string) (codec, error) {
	switch s {
	case "none":
		return codecNone, nil
	case "snappy":
		return codecSnappy, nil
	case "lz4":
		return codecLZ4, nil
	}
	return 0, fmt.Errorf("unknown codec %q", s)
}

func (c codec) String() string {
	switch c {
	case codecSnappy:
		return "snappy"
	case codecLZ4:
		return "lz4"
	}
	return "none"
}

// attachment pairs a cell's flat index with its entity payload for the NBT
// section of a frame.
type attachment struct {
	Index  int32
	Owner  string
	Energy int32
}

// Frame encoding buffers are pooled; snapshots run on every drain tick.
var bufPool = sync.Pool{
	New: func() any {
		return bytes.NewBuffer(make([]byte, 0, 64*1024))
	},
}

// encodeFrame serialises one snapshot:
//
//	[flags:1][id payload length:4][id payload][attachment NBT compounds...]
//
// The id payload is run-length encoded when that is smaller and flat
// little-endian otherwise; bit 0 of the flags says which.
func encodeFrame(ids []uint16, attachments []attachment) []byte {
	buf := bufPool.Get().(*bytes.Buffer)
	defer bufPool.Put(buf)
	buf.Reset()

	flags := byte(0)
	payload := rleEncode(ids)
	if payload == nil {
		payload = flatEncode(ids)
	} else {
		flags |= 1
	}
	buf.WriteByte(flags)
	binary.Write(buf, binary.LittleEndian, uint32(len(payload)))
	buf.Write(payload)

	enc := nbt.NewEncoderWithEncoding(buf, nbt.LittleEndian)
	for _, a := range attachments {
		enc.Encode(a)
	}

	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out
}

// flatEncode writes ids as little-endian uint16s.
func flatEncode(ids []uint16) []byte {
	out := make([]byte, len(ids)*2)
	for i, id := range ids {
		binary.LittleEndian.PutUint16(out[i*2:], id)
	}
	return out
}

// rleEncode run-length encodes ids as [id:2][count:2] runs. Chunk grids are
// mostly air and long same-block runs, which this collapses well. Returns
// nil if RLE would not be smaller than the flat form.
func rleEncode(ids []uint16) []byte {
	if len(ids) == 0 {
		return nil
	}

	result := make([]byte, 0, len(ids))
	current := ids[0]
	count := uint16(1)

	for i := 1; i < len(ids); i++ {
		if ids[i] == current && count < 65535 {
			count++
			continue
		}
		result = append(result, byte(current), byte(current>>8), byte(count), byte(count>>8))
		current = ids[i]
		count = 1
	}
	result = append(result, byte(current), byte(current>>8), byte(count), byte(count>>8))

	if len(result) >= len(ids)*2 {
		return nil
	}
	return result
}

// compressFrame compresses an encoded frame with the selected codec.
func compressFrame(frame []byte, c codec) []byte {
	switch c {
	case codecSnappy:
		return snappy.Encode(nil, frame)
	case codecLZ4:
		return compressLZ4(frame)
	}
	return frame
}

// compressLZ4 compresses a frame as [uncompressed size:4][lz4 block].
// Incompressible frames are stored raw behind the same size prefix.
func compressLZ4(data []byte) []byte {
	dst := make([]byte, 4+lz4.CompressBlockBound(len(data)))
	binary.LittleEndian.PutUint32(dst, uint32(len(data)))

	n, err := lz4.CompressBlock(data, dst[4:], nil)
	if err != nil || n == 0 {
		result := make([]byte, 4+len(data))
		binary.LittleEndian.PutUint32(result, uint32(len(data)))
		copy(result[4:], data)
		return result
	}
	return dst[:4+n]
}

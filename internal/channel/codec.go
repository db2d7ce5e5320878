package channel

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/klauspost/compress/zstd"
)

const (
	// Version is the current payload layout version.
	Version uint16 = 1

	// DefaultLevel is the zstd compression level used unless overridden.
	DefaultLevel = 3

	// maxDecodedSize bounds decompression of hostile payloads.
	maxDecodedSize = 1 << 30
)

var magic = [4]byte{'R', 'C', 'P', 'C'}

// Encoded is a compressed channel blob along with the summary the package
// assembler needs to build the index without decoding it again.
type Encoded struct {
	Name    string
	Data    []byte
	Samples int
	FirstT  int64
	LastT   int64
}

// Filename returns the package-relative path of the channel file.
func (e *Encoded) Filename() string {
	return "channels/" + e.Name + ".pbz"
}

type encodeOptions struct {
	level int
}

// EncodeOption configures Encode.
type EncodeOption func(*encodeOptions)

// WithLevel sets the zstd compression level (1-22, as understood by zstd).
func WithLevel(level int) EncodeOption {
	return func(o *encodeOptions) {
		o.level = level
	}
}

// Encode serializes a channel into the versioned column-major layout and
// compresses the whole payload.
func Encode(c *Channel, opts ...EncodeOption) (*Encoded, error) {
	o := encodeOptions{level: DefaultLevel}
	for _, opt := range opts {
		opt(&o)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	raw, err := marshal(c)
	if err != nil {
		return nil, err
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(o.level)))
	if err != nil {
		return nil, wrapEncodingError(err, "creating compressor")
	}
	defer enc.Close()

	first, last := c.Span()
	return &Encoded{
		Name:    c.Name,
		Data:    enc.EncodeAll(raw, make([]byte, 0, len(raw)/2)),
		Samples: c.Len(),
		FirstT:  first,
		LastT:   last,
	}, nil
}

// Decode decompresses and parses a payload produced by Encode.
func Decode(data []byte) (*Channel, error) {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1), zstd.WithDecoderMaxMemory(maxDecodedSize))
	if err != nil {
		return nil, wrapEncodingError(err, "creating decompressor")
	}
	defer dec.Close()

	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, wrapEncodingError(err, "decompressing payload")
	}

	return unmarshal(raw)
}

func marshal(c *Channel) ([]byte, error) {
	var buf bytes.Buffer

	size := 4 + 2 + 1 + len(c.Name) + 1 + 4
	for _, f := range c.Schema.Fields {
		size += 2 + len(f.Name) + c.Len()*f.Type.Width()
	}
	buf.Grow(size)

	buf.Write(magic[:])
	buf.Write(binary.LittleEndian.AppendUint16(nil, Version))
	writeString(&buf, c.Name)

	buf.WriteByte(byte(len(c.Schema.Fields)))
	for _, f := range c.Schema.Fields {
		writeString(&buf, f.Name)
		buf.WriteByte(byte(f.Type))
	}
	buf.Write(binary.LittleEndian.AppendUint32(nil, uint32(c.Len())))

	scratch := make([]byte, 8)
	for _, t := range c.T {
		binary.LittleEndian.PutUint64(scratch, uint64(t))
		buf.Write(scratch)
	}
	for i, col := range c.Values {
		switch c.Schema.Fields[i+1].Type {
		case Float32:
			for _, v := range col {
				binary.LittleEndian.PutUint32(scratch, math.Float32bits(float32(v)))
				buf.Write(scratch[:4])
			}
		case Float64:
			for _, v := range col {
				binary.LittleEndian.PutUint64(scratch, math.Float64bits(v))
				buf.Write(scratch)
			}
		default:
			return nil, NewEncodingError("field %q: unsupported type %s", c.Schema.Fields[i+1].Name, c.Schema.Fields[i+1].Type)
		}
	}

	return buf.Bytes(), nil
}

func writeString(buf *bytes.Buffer, s string) {
	buf.WriteByte(byte(len(s)))
	buf.WriteString(s)
}

// reader is a bounds-checked cursor over the decompressed payload.
type reader struct {
	b   []byte
	pos int
}

func (r *reader) next(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.b) {
		return nil, NewEncodingError("truncated payload: need %d bytes at offset %d, have %d", n, r.pos, len(r.b)-r.pos)
	}
	p := r.b[r.pos : r.pos+n]
	r.pos += n
	return p, nil
}

func (r *reader) u8() (byte, error) {
	p, err := r.next(1)
	if err != nil {
		return 0, err
	}
	return p[0], nil
}

func (r *reader) str() (string, error) {
	n, err := r.u8()
	if err != nil {
		return "", err
	}
	p, err := r.next(int(n))
	if err != nil {
		return "", err
	}
	return string(p), nil
}

func unmarshal(raw []byte) (*Channel, error) {
	r := &reader{b: raw}

	head, err := r.next(len(magic))
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(head, magic[:]) {
		return nil, NewEncodingError("bad magic %q", head)
	}

	p, err := r.next(2)
	if err != nil {
		return nil, err
	}
	if v := binary.LittleEndian.Uint16(p); v != Version {
		return nil, NewEncodingError("unsupported schema version %d", v)
	}

	name, err := r.str()
	if err != nil {
		return nil, err
	}

	nfields, err := r.u8()
	if err != nil {
		return nil, err
	}
	schema := Schema{Fields: make([]Field, 0, nfields)}
	for i := 0; i < int(nfields); i++ {
		fname, err := r.str()
		if err != nil {
			return nil, err
		}
		typ, err := r.u8()
		if err != nil {
			return nil, err
		}
		if FieldType(typ).Width() == 0 {
			return nil, NewEncodingError("field %q: unknown type %d", fname, typ)
		}
		schema.Fields = append(schema.Fields, Field{Name: fname, Type: FieldType(typ)})
	}
	if err = schema.Validate(); err != nil {
		return nil, err
	}

	p, err = r.next(4)
	if err != nil {
		return nil, err
	}
	count := int(binary.LittleEndian.Uint32(p))

	expected := 0
	for _, f := range schema.Fields {
		expected += count * f.Type.Width()
	}
	if remaining := len(raw) - r.pos; remaining != expected {
		return nil, NewEncodingError("declared %d samples need %d column bytes, payload has %d", count, expected, remaining)
	}

	c := &Channel{
		Name:   name,
		Schema: schema,
		T:      make([]int64, count),
		Values: make([][]float64, len(schema.Fields)-1),
	}

	// Lengths were checked above, the slicing below cannot run short.
	col, _ := r.next(count * 8)
	for i := range c.T {
		c.T[i] = int64(binary.LittleEndian.Uint64(col[i*8:]))
	}
	for i := range c.Values {
		typ := schema.Fields[i+1].Type
		col, _ = r.next(count * typ.Width())
		values := make([]float64, count)
		for j := range values {
			if typ == Float32 {
				values[j] = float64(math.Float32frombits(binary.LittleEndian.Uint32(col[j*4:])))
			} else {
				values[j] = math.Float64frombits(binary.LittleEndian.Uint64(col[j*8:]))
			}
		}
		c.Values[i] = values
	}

	if err = c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

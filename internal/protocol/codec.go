package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fxamacker/cbor/v2"
	json "github.com/goccy/go-json"
)

// MaxFrameSize bounds one encoded message on the wire
const MaxFrameSize = 64 << 10

// ErrFrameTooLarge is returned by decoders for a message over MaxFrameSize
var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// Encoder writes one framed message per call
type Encoder interface {
	Encode(v any) error
}

// Decoder reads one framed message per call
type Decoder interface {
	Decode(v any) error
}

// Codec frames messages on a byte stream. Both ends must use the same codec.
type Codec interface {
	Name() string
	NewEncoder(w io.Writer) Encoder
	NewDecoder(r io.Reader) Decoder
}

// NewCodec returns the codec registered under name: "json" or "cbor"
func NewCodec(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", "json":
		return JSONCodec{}, nil
	case "cbor":
		return NewCBORCodec()
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

// JSONCodec writes newline-delimited JSON
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) NewEncoder(w io.Writer) Encoder {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc
}

func (JSONCodec) NewDecoder(r io.Reader) Decoder {
	return &lineDecoder{r: bufio.NewReaderSize(r, MaxFrameSize+1)}
}

// lineDecoder reads one JSON document per line and never buffers more than
// one frame
type lineDecoder struct {
	r *bufio.Reader
}

func (d *lineDecoder) Decode(v any) error {
	for {
		line, err := d.r.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			return fmt.Errorf("json line: %w", ErrFrameTooLarge)
		}
		if err != nil && (!errors.Is(err, io.EOF) || len(line) == 0) {
			return err
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			if err != nil {
				return err
			}
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(line))
		dec.DisallowUnknownFields()
		return dec.Decode(v)
	}
}

// CBORCodec writes a sequence of CBOR data items; CBOR is self-delimiting
type CBORCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// NewCBORCodec builds a CBOR codec with RFC 3339 timestamps
func NewCBORCodec() (*CBORCodec, error) {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		return nil, fmt.Errorf("cbor enc mode: %w", err)
	}
	dm, err := cbor.DecOptions{
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
		MaxNestedLevels:   8,
		MaxArrayElements:  64,
		MaxMapPairs:       64,
	}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("cbor dec mode: %w", err)
	}
	return &CBORCodec{enc: em, dec: dm}, nil
}

func (c *CBORCodec) Name() string { return "cbor" }

func (c *CBORCodec) NewEncoder(w io.Writer) Encoder {
	return c.enc.NewEncoder(w)
}

func (c *CBORCodec) NewDecoder(r io.Reader) Decoder {
	fr := &frameReader{r: r}
	return &cborDecoder{dec: c.dec.NewDecoder(fr), fr: fr}
}

// cborDecoder resets the read budget before every item
type cborDecoder struct {
	dec *cbor.Decoder
	fr  *frameReader
}

func (d *cborDecoder) Decode(v any) error {
	d.fr.remaining = MaxFrameSize
	return d.dec.Decode(v)
}

// frameReader fails once a single Decode has read more than its budget
type frameReader struct {
	r         io.Reader
	remaining int
}

func (f *frameReader) Read(p []byte) (int, error) {
	if f.remaining <= 0 {
		return 0, fmt.Errorf("cbor item: %w", ErrFrameTooLarge)
	}
	if len(p) > f.remaining {
		p = p[:f.remaining]
	}
	n, err := f.r.Read(p)
	f.remaining -= n
	return n, err
}

package workerproto

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Encoder writes messages as newline-delimited JSON. It is safe for
// concurrent use.
type Encoder struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &Encoder{enc: enc}
}

// Encode writes v followed by a newline.
func (e *Encoder) Encode(v any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enc.Encode(v); err != nil {
		return fmt.Errorf("workerproto: encode: %w", err)
	}
	return nil
}

// Decoder reads newline-delimited JSON messages. Messages have no size
// limit; blank lines between them are skipped.
type Decoder struct {
	dec *json.Decoder
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: json.NewDecoder(r)}
}

// DecodeRequest reads the next request. Blank lines are skipped. io.EOF is
// returned at end of stream.
func (d *Decoder) DecodeRequest() (Request, error) {
	var req Request
	if err := d.next(&req); err != nil {
		return Request{}, err
	}
	return req, nil
}

// DecodeResponse reads the next response.
func (d *Decoder) DecodeResponse() (Response, error) {
	var resp Response
	if err := d.next(&resp); err != nil {
		return Response{}, err
	}
	return resp, nil
}

func (d *Decoder) next(v any) error {
	if err := d.dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		return fmt.Errorf("workerproto: decode: %w", err)
	}
	return nil
}

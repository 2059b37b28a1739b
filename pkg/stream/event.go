package stream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/xhad/ragcore/internal/models"
)

// Kind tags a stream event.
type Kind int

const (
	KindDelta Kind = iota
	KindSources
	KindError
	KindDone
)

func (k Kind) String() string {
	switch k {
	case KindDelta:
		return "delta"
	case KindSources:
		return "sources"
	case KindError:
		return "error"
	case KindDone:
		return "done"
	}
	return "unknown"
}

// Event is one item of a stream session. SessionID is set by the consumer
// side transport and never travels on the wire.
type Event struct {
	Kind      Kind
	SessionID string
	Content   string
	Sources   []models.Source
	Error     string
}

func Delta(text string) Event { return Event{Kind: KindDelta, Content: text} }

func Sources(sources []models.Source) Event { return Event{Kind: KindSources, Sources: sources} }

func Failure(msg string) Event { return Event{Kind: KindError, Error: msg} }

func Done() Event { return Event{Kind: KindDone} }

// Terminal reports whether the event ends its session.
func (e Event) Terminal() bool {
	return e.Kind == KindDone || e.Kind == KindError
}

// DoneSentinel is the non-JSON frame that marks normal completion.
const DoneSentinel = "[DONE]"

const dataPrefix = "data: "

type frame struct {
	Content string          `json:"content,omitempty"`
	Sources []models.Source `json:"sources,omitempty"`
	Error   string          `json:"error,omitempty"`
}

var ErrMalformedFrame = errors.New("malformed stream frame")

// EncodeFrame returns the frame payload for e, without the "data: " prefix.
func EncodeFrame(e Event) ([]byte, error) {
	var f frame
	switch e.Kind {
	case KindDone:
		return []byte(DoneSentinel), nil
	case KindDelta:
		f.Content = e.Content
	case KindSources:
		f.Sources = e.Sources
		if f.Sources == nil {
			f.Sources = []models.Source{}
		}
	case KindError:
		f.Error = e.Error
	default:
		return nil, fmt.Errorf("unknown event kind %d", e.Kind)
	}
	return json.Marshal(f)
}

// DecodeFrame parses a frame payload. A JSON frame carrying more than one
// field decodes as the first of error, sources, content.
func DecodeFrame(payload []byte) (Event, error) {
	payload = bytes.TrimSpace(payload)
	if string(payload) == DoneSentinel {
		return Done(), nil
	}

	var f frame
	if err := json.Unmarshal(payload, &f); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch {
	case f.Error != "":
		return Failure(f.Error), nil
	case f.Sources != nil:
		return Sources(f.Sources), nil
	case f.Content != "":
		return Delta(f.Content), nil
	}
	return Event{}, fmt.Errorf("%w: empty frame", ErrMalformedFrame)
}

// WriteFrame writes e as one "data: <payload>\n\n" frame.
func WriteFrame(w io.Writer, e Event) error {
	payload, err := EncodeFrame(e)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s%s\n\n", dataPrefix, payload)
	return err
}

// Reader decodes frames from an event stream body. Lines that do not carry
// the data prefix are skipped.
type Reader struct {
	scanner *bufio.Scanner
}

func NewReader(r io.Reader) *Reader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Reader{scanner: s}
}

// Next returns the next event, or io.EOF once the body is exhausted.
// Malformed frames are returned as errors wrapping ErrMalformedFrame and
// the reader stays usable.
func (r *Reader) Next() (Event, error) {
	for r.scanner.Scan() {
		line := r.scanner.Bytes()
		if !bytes.HasPrefix(line, []byte(dataPrefix)) {
			continue
		}
		return DecodeFrame(line[len(dataPrefix):])
	}
	if err := r.scanner.Err(); err != nil {
		return Event{}, err
	}
	return Event{}, io.EOF
}

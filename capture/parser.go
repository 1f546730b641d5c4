package capture

import (
	"bufio"
	"io"
	"iter"
	"strconv"
	"strings"
	"time"

	"braces.dev/errtrace"

	"github.com/ghettovoice/sipflow/internal/errorutil"
	"github.com/ghettovoice/sipflow/internal/grammar"
)

// TimeLayout is a layout of the capture header timestamp.
const TimeLayout = "02/01/06 15:04:05.000000"

const maxLineSize = 1 << 20

// Header is a parsed capture block header line.
type Header struct {
	Dir  string
	Time time.Time
	Src  Endpoint
	Dst  Endpoint
}

// ParseHeader parses the capture block header line.
// Timestamps are interpreted in the local time zone, the capture tool prints them so.
func ParseHeader(line string) (Header, error) {
	flds, err := grammar.ParseCaptureHeader(line)
	if err != nil {
		return Header{}, errtrace.Wrap(&ParseError{errorutil.NewWrapperError(ErrMalformedHeader, err), line})
	}

	var hdr Header
	hdr.Dir = flds.Dir
	if hdr.Time, err = time.ParseInLocation(TimeLayout, flds.Date+" "+flds.Time, time.Local); err != nil {
		return Header{}, errtrace.Wrap(&ParseError{errorutil.NewWrapperError(ErrMalformedHeader, err), line})
	}
	if hdr.Src, err = ParseEndpoint(flds.Src); err != nil {
		return Header{}, errtrace.Wrap(&ParseError{errorutil.NewWrapperError(ErrMalformedHeader, err), line})
	}
	if hdr.Dst, err = ParseEndpoint(flds.Dst); err != nil {
		return Header{}, errtrace.Wrap(&ParseError{errorutil.NewWrapperError(ErrMalformedHeader, err), line})
	}
	return hdr, nil
}

// ParseBlock builds a [Record] from the block header and the payload lines.
//
// The capture tool prints CR as a trailing dot in line mode. If the first payload line ends
// with a dot, one trailing dot is stripped from every payload line.
// Only the start line and the header fields needed to correlate and draw messages are extracted.
func ParseBlock(hdr Header, lines []string) (*Record, error) {
	if len(lines) == 0 {
		return nil, errtrace.Wrap(&ParseError{ErrNotSIP, ""})
	}

	payload := make([]string, len(lines))
	copy(payload, lines)
	if strings.HasSuffix(payload[0], ".") {
		for i, l := range payload {
			payload[i] = strings.TrimSuffix(l, ".")
		}
	}

	rec := &Record{
		Dir:     hdr.Dir,
		Time:    hdr.Time,
		Src:     hdr.Src,
		Dst:     hdr.Dst,
		Payload: payload,
	}
	if err := parseStartLine(rec, payload[0]); err != nil {
		return nil, errtrace.Wrap(err)
	}

	for _, l := range payload[1:] {
		if l == "" {
			// end of the message headers
			break
		}
		name, val, ok := strings.Cut(l, ":")
		if !ok {
			continue
		}
		val = strings.TrimSpace(val)
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "call-id", "i":
			setOnce(&rec.CallID, val)
		case "x-call-id", "x-cid":
			setOnce(&rec.XCallID, val)
		case "from", "f":
			setOnce(&rec.From, val)
		case "to", "t":
			setOnce(&rec.To, val)
		case "cseq":
			setOnce(&rec.CSeq, val)
		}
	}
	if rec.CallID == "" {
		return nil, errtrace.Wrap(&ParseError{ErrNoCallID, payload[0]})
	}
	return rec, nil
}

func setOnce(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func parseStartLine(rec *Record, line string) error {
	if rest, ok := strings.CutPrefix(line, "SIP/2.0 "); ok {
		code, reason, _ := strings.Cut(rest, " ")
		status, err := strconv.Atoi(code)
		if err != nil || len(code) != 3 {
			return errtrace.Wrap(&ParseError{ErrNotSIP, line})
		}
		rec.Status = status
		rec.Method = strings.TrimSpace(code + " " + reason)
		return nil
	}

	flds := strings.Fields(line)
	if len(flds) != 3 || !strings.HasPrefix(flds[2], "SIP/") {
		return errtrace.Wrap(&ParseError{ErrNotSIP, line})
	}
	rec.Method = flds[0]
	rec.Request = true
	return nil
}

// looksLikeHeader reports whether the line starts as a capture header: a letter, a space and a digit.
// Such lines are never valid payload of a SIP message.
func looksLikeHeader(line string) bool {
	if len(line) < 3 || line[1] != ' ' || line[2] < '0' || line[2] > '9' {
		return false
	}
	c := line[0] | 0x20
	return c >= 'a' && c <= 'z'
}

// StreamParser parses a stream of capture blocks.
//
// It holds no state between blocks except the block being assembled.
type StreamParser struct {
	rdr io.Reader
}

// ParseStream creates a new [StreamParser] reading from r.
func ParseStream(r io.Reader) *StreamParser {
	return &StreamParser{rdr: r}
}

type streamState int

const (
	stateIdle  streamState = iota // waiting for a header
	stateBlock                    // collecting payload lines
	stateSkip                     // skipping the payload of a malformed block
)

// Records returns an iterator that yields each parsed [Record] and an error, if any.
//
// Broken blocks are yielded as a nil record and a [*ParseError]; the consumer may continue
// the loop, parsing resumes at the next header.
// Any other error is a read failure and ends the sequence.
// The stream is consumed as the iterator advances and cannot be rewound.
//
// Example:
//
//	for rec, err := range p.Records() {
//		if err != nil {
//			var perr *capture.ParseError
//			if errors.As(err, &perr) {
//				continue
//			}
//			break
//		}
//		// use rec
//	}
func (p *StreamParser) Records() iter.Seq2[*Record, error] {
	return func(yield func(*Record, error) bool) {
		sc := bufio.NewScanner(p.rdr)
		sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

		var (
			state streamState
			hdr   Header
			lines []string
		)
		flush := func() bool {
			if state != stateBlock {
				state = stateIdle
				return true
			}
			rec, err := ParseBlock(hdr, lines)
			state, lines = stateIdle, nil
			return yield(rec, err)
		}

		for sc.Scan() {
			line := strings.TrimSuffix(sc.Text(), "\r")
			switch {
			case line == "":
				if !flush() {
					return
				}
			case looksLikeHeader(line):
				if !flush() {
					return
				}
				h, err := ParseHeader(line)
				if err != nil {
					state = stateSkip
					if !yield(nil, err) {
						return
					}
					continue
				}
				hdr, state = h, stateBlock
			case state == stateBlock:
				lines = append(lines, line)
			}
		}
		if !flush() {
			return
		}
		if err := sc.Err(); err != nil {
			yield(nil, errtrace.Wrap(err))
		}
	}
}

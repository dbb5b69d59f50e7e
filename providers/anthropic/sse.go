package anthropic

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"

	"github.com/calebwray/relay"
	"github.com/tidwall/gjson"
)

// frame is one parsed SSE record. kind is the event name; data holds
// the decoded payload when the frame carried one. The event name is
// authoritative and wins over any type field inside the payload.
type frame struct {
	kind string
	data gjson.Result
	raw  string
}

func (f *frame) hasData() bool { return f.raw != "" }

// frameReader reconstructs typed frames from the raw bytes of a
// streamed response body.
type frameReader struct {
	r *bufio.Reader
}

func newFrameReader(r io.Reader) *frameReader {
	return &frameReader{r: bufio.NewReader(r)}
}

// readLine reads up to the next newline. It returns whatever bytes
// were accumulated, without the line terminator, and io.EOF alongside
// any partial final line. It never blocks past an available newline.
func (fr *frameReader) readLine() (string, error) {
	line, err := fr.r.ReadString('\n')
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")
	return line, err
}

// next returns the next frame, skipping blank lines, comments and
// [DONE] sentinels. It returns io.EOF when the body is exhausted.
func (fr *frameReader) next() (frame, error) {
	for {
		line, err := fr.readLine()
		if line == "" && err != nil {
			return frame{}, io.EOF
		}

		f, ok, perr := fr.parseLine(line)
		if perr != nil {
			return frame{}, perr
		}
		if ok {
			return f, nil
		}
		if err != nil {
			return frame{}, io.EOF
		}
	}
}

// parseLine handles one line. The second return is false when the line
// produced no frame and reading should continue.
func (fr *frameReader) parseLine(line string) (frame, bool, error) {
	if name, found := strings.CutPrefix(line, "event:"); found {
		name = strings.TrimSpace(name)
		// Pings carry no data worth waiting for.
		if name == "ping" {
			return frame{kind: "ping"}, true, nil
		}

		dataLine, _ := fr.readLine()
		payload, found := strings.CutPrefix(dataLine, "data:")
		if !found {
			return frame{kind: name}, true, nil
		}
		payload = strings.TrimSpace(payload)
		if payload == "" {
			return frame{kind: name}, true, nil
		}
		if err := validJSON(payload); err != nil {
			return frame{}, false, &relay.ChunkDecodeError{Provider: "Anthropic", Err: err}
		}
		return frame{kind: name, data: gjson.Parse(payload), raw: payload}, true, nil
	}

	// Standalone data lines are tolerated for OpenAI-style streams.
	if payload, found := strings.CutPrefix(line, "data:"); found {
		payload = strings.TrimSpace(payload)
		if payload == "" || strings.Contains(payload, "DONE") {
			return frame{}, false, nil
		}
		if err := validJSON(payload); err != nil {
			return frame{}, false, &relay.ChunkDecodeError{Provider: "Anthropic", Err: err}
		}
		data := gjson.Parse(payload)
		return frame{kind: data.Get("type").String(), data: data, raw: payload}, true, nil
	}

	return frame{}, false, nil
}

func validJSON(payload string) error {
	var v json.RawMessage
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		return err
	}
	return nil
}

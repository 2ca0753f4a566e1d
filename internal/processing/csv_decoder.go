package processing

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"ssw-access-monitor/pkg/errors"
	"ssw-access-monitor/pkg/types"
)

// Column names of the access log CSV, in their default positional order.
var Columns = []string{"remotehost", "rfc931", "authuser", "date", "request", "status", "bytes"}

// CSVDecoder turns raw CSV rows into LogLines.
//
// A row whose first field is "remotehost" is taken as a header: it is not
// returned and its column order replaces the positional default. Rows are
// decoded one at a time so the decoder can sit behind a tailing reader.
//
// CSVDecoder is not safe for concurrent use.
type CSVDecoder struct {
	index      map[string]int
	headerSeen bool
	rows       int64
}

// NewCSVDecoder creates a decoder using the positional column order.
func NewCSVDecoder() *CSVDecoder {
	index := make(map[string]int, len(Columns))
	for i, name := range Columns {
		index[name] = i
	}
	return &CSVDecoder{index: index}
}

// Decode parses one raw row. It returns (nil, nil) for blank rows and the
// header row, and a PROCESSING_INVALID_DATA error for malformed rows.
func (d *CSVDecoder) Decode(raw string) (*types.LogLine, error) {
	d.rows++

	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	reader := csv.NewReader(strings.NewReader(raw))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	fields, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, d.rowError("malformed csv", raw).Wrap(err)
	}

	if len(fields) > 0 && strings.EqualFold(strings.TrimSpace(fields[0]), Columns[0]) {
		d.useHeader(fields)
		return nil, nil
	}

	return d.decodeFields(fields, raw)
}

// HeaderSeen reports whether a header row has been consumed.
func (d *CSVDecoder) HeaderSeen() bool {
	return d.headerSeen
}

func (d *CSVDecoder) useHeader(fields []string) {
	index := make(map[string]int, len(fields))
	for i, name := range fields {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}
	// a header missing a known column keeps the positional default
	for _, name := range Columns {
		if _, ok := index[name]; !ok {
			d.headerSeen = true
			return
		}
	}
	d.index = index
	d.headerSeen = true
}

func (d *CSVDecoder) decodeFields(fields []string, raw string) (*types.LogLine, error) {
	get := func(name string) (string, bool) {
		i := d.index[name]
		if i >= len(fields) {
			return "", false
		}
		return strings.TrimSpace(fields[i]), true
	}

	for _, name := range Columns {
		if _, ok := get(name); !ok {
			return nil, d.rowError(fmt.Sprintf("missing column %q", name), raw)
		}
	}

	remoteHost, _ := get("remotehost")
	rfc931, _ := get("rfc931")
	authUser, _ := get("authuser")
	request, _ := get("request")

	date, _ := get("date")
	timestamp, err := strconv.ParseInt(date, 10, 64)
	if err != nil {
		return nil, d.rowError("date is not an integer epoch", raw).Wrap(err)
	}

	statusField, _ := get("status")
	status, err := strconv.Atoi(statusField)
	if err != nil {
		return nil, d.rowError("status is not an integer", raw).Wrap(err)
	}

	bytesField, _ := get("bytes")
	size, err := strconv.Atoi(bytesField)
	if err != nil {
		return nil, d.rowError("bytes is not an integer", raw).Wrap(err)
	}

	return &types.LogLine{
		RemoteHost: remoteHost,
		RFC931:     rfc931,
		AuthUser:   authUser,
		Timestamp:  timestamp,
		Request:    request,
		StatusCode: status,
		Bytes:      size,
	}, nil
}

func (d *CSVDecoder) rowError(message, raw string) *errors.AppError {
	return errors.ProcessingError("DecodeRow", message).
		WithMetadata("row", d.rows).
		WithMetadata("raw", raw)
}

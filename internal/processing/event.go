package processing

import (
	"ssw-access-monitor/pkg/types"
)

// ToEvent derives the aggregator input from a decoded row.
func ToEvent(line types.LogLine) (types.Event, error) {
	parsed, err := ParseRequest(line.Request)
	if err != nil {
		return types.Event{}, err
	}

	return types.Event{
		Timestamp:  line.Timestamp,
		StatusCode: line.StatusCode,
		Section:    parsed.Section,
	}, nil
}

package dst

import (
	"errors"
	"io"

	"example.com/dstkit/internal/common"
)

// EventAssembler groups the bank sequence into events bounded by the
// configured start and stop marker bank identifiers.
type EventAssembler struct {
	banks       *BankAssembler
	startID     uint32
	stopID      uint32
	keepMarkers bool

	inEvent bool
	buf     []Bank
	done    bool
	metrics *common.Metrics
}

func NewEventAssembler(banks *BankAssembler, startID, stopID uint32, keepMarkers bool) *EventAssembler {
	return &EventAssembler{banks: banks, startID: startID, stopID: stopID, keepMarkers: keepMarkers}
}

// SetMetrics attaches a metrics recorder counting emitted events.
func (ea *EventAssembler) SetMetrics(m *common.Metrics) {
	ea.metrics = m
}

// Next returns the next complete event. Banks outside any start/stop span are
// dropped. An event still open when the stream ends is discarded, matching
// the original producer's stop-marker-absent policy.
func (ea *EventAssembler) Next() (Event, error) {
	if ea.done {
		return Event{}, io.EOF
	}
	for {
		bank, err := ea.banks.Next()
		if err != nil {
			ea.done = true
			if errors.Is(err, io.EOF) {
				if ea.inEvent && len(ea.buf) > 0 {
					common.Logf("dropping open event with %d banks: no stop marker before end of stream", len(ea.buf))
				}
				return Event{}, io.EOF
			}
			return Event{}, err
		}

		switch {
		case bank.ID == ea.startID:
			var interrupted *Event
			if ea.inEvent && len(ea.buf) > 0 {
				// missing stop marker; emit what accumulated before reopening
				common.Logf("start marker interrupted an open event, emitting %d buffered banks", len(ea.buf))
				interrupted = &Event{Banks: ea.buf}
			}
			ea.inEvent = true
			ea.buf = nil
			if ea.keepMarkers {
				ea.buf = append(ea.buf, bank)
			}
			if interrupted != nil {
				if ea.metrics != nil {
					ea.metrics.IncEvent()
				}
				return *interrupted, nil
			}
		case bank.ID == ea.stopID:
			if !ea.inEvent {
				continue
			}
			if ea.keepMarkers {
				ea.buf = append(ea.buf, bank)
			}
			ev := Event{Banks: ea.buf}
			ea.inEvent = false
			ea.buf = nil
			if ea.metrics != nil {
				ea.metrics.IncEvent()
			}
			return ev, nil
		case ea.inEvent:
			ea.buf = append(ea.buf, bank)
		}
	}
}

package ir

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// EventRecord is the wire form of an Event, one JSON object per line.
//
// Region carries the requested region for every variant that has one; for
// realloc it is the newly granted region and Free is the released one.
// Failed variants carry no region.
type EventRecord struct {
	Kind        Kind      `json:"kind"`
	Region      *Region   `json:"region,omitempty"`
	Free        *Region   `json:"free,omitempty"`
	IsZeroed    Tristate  `json:"is_zeroed,omitempty"`
	IsRelocated Tristate  `json:"is_relocated,omitempty"`
	Backtrace   Backtrace `json:"backtrace,omitempty"`
}

// ToRecord converts an event into its wire form.
func ToRecord(e Event) EventRecord {
	rec := EventRecord{Kind: e.Kind()}
	switch ev := e.(type) {
	case Alloc:
		rec.setRequest(ev.Request)
	case Free:
		rec.setRequest(ev.Request)
	case AllocZeroed:
		rec.setRequest(ev.Request)
		rec.IsZeroed = ev.IsZeroed
	case Realloc:
		rec.setRequest(ev.Alloc)
		free := ev.Free
		rec.Free = &free
		rec.IsRelocated = ev.IsRelocated
	case ReallocNull:
		rec.setRequest(ev.Request)
	}
	return rec
}

func (r *EventRecord) setRequest(req Request) {
	region := req.Region
	r.Region = &region
	r.Backtrace = req.Backtrace
}

func (r EventRecord) request() (Request, error) {
	if r.Region == nil {
		return Request{}, fmt.Errorf("%s: missing region", r.Kind)
	}
	return Request{Region: *r.Region, Backtrace: r.Backtrace}, nil
}

// Event converts the record back into an Event.
func (r EventRecord) Event() (Event, error) {
	switch r.Kind {
	case KindAlloc:
		req, err := r.request()
		if err != nil {
			return nil, err
		}
		return Alloc{Request: req}, nil
	case KindFree:
		req, err := r.request()
		if err != nil {
			return nil, err
		}
		return Free{Request: req}, nil
	case KindAllocZeroed:
		req, err := r.request()
		if err != nil {
			return nil, err
		}
		return AllocZeroed{IsZeroed: r.IsZeroed, Request: req}, nil
	case KindRealloc:
		req, err := r.request()
		if err != nil {
			return nil, err
		}
		if r.Free == nil {
			return nil, fmt.Errorf("%s: missing free region", r.Kind)
		}
		return Realloc{IsRelocated: r.IsRelocated, Free: *r.Free, Alloc: req}, nil
	case KindReallocNull:
		req, err := r.request()
		if err != nil {
			return nil, err
		}
		return ReallocNull{Request: req}, nil
	case KindAllocFailed:
		return AllocFailed{}, nil
	case KindAllocZeroedFailed:
		return AllocZeroedFailed{}, nil
	case KindReallocFailed:
		return ReallocFailed{}, nil
	case "":
		return nil, fmt.Errorf("missing event kind")
	default:
		return nil, fmt.Errorf("unknown event kind %q", r.Kind)
	}
}

// canonicalValue returns the record as plain values for MarshalCanonical.
// Unknown tri-states and empty backtraces are omitted so the digest matches
// the JSON wire form.
func (r EventRecord) canonicalValue() map[string]any {
	obj := map[string]any{"kind": string(r.Kind)}
	if r.Region != nil {
		obj["region"] = r.Region.canonicalValue()
	}
	if r.Free != nil {
		obj["free"] = r.Free.canonicalValue()
	}
	if r.IsZeroed != Unknown {
		obj["is_zeroed"] = r.IsZeroed.String()
	}
	if r.IsRelocated != Unknown {
		obj["is_relocated"] = r.IsRelocated.String()
	}
	if len(r.Backtrace) > 0 {
		frames := make([]any, len(r.Backtrace))
		for i, f := range r.Backtrace {
			frames[i] = f
		}
		obj["backtrace"] = frames
	}
	return obj
}

func (r Region) canonicalValue() map[string]any {
	return map[string]any{
		"address": r.Address.String(),
		"size":    r.Size,
		"align":   r.Align,
	}
}

// DecodeEvents reads newline-delimited event records until EOF.
// Unknown fields are rejected.
func DecodeEvents(r io.Reader) ([]Event, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var events []Event
	for {
		var rec EventRecord
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return events, nil
			}
			return nil, fmt.Errorf("event %d: %w", len(events), err)
		}
		e, err := rec.Event()
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", len(events), err)
		}
		events = append(events, e)
	}
}

// EncodeEvents writes one event record per line.
func EncodeEvents(w io.Writer, events []Event) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i, e := range events {
		if err := enc.Encode(ToRecord(e)); err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
	}
	return nil
}

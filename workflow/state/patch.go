package state

import (
	"time"

	"github.com/queryloom/queryloom/core/protocol"
)

// Patch is the partial update a step returns: only the fields the step
// changes are set. Pointer fields replace the prior value entirely -
// counters inside DataQuery/Code arrive already incremented, never as
// deltas. Slice fields are appended, never substituted.
type Patch struct {
	Query         *string
	Route         *Route
	Messages      []protocol.Message
	SchemaContext []string
	DataQuery     *DataQueryState
	Code          *CodeState
	Generation    *string
	Error         *string
}

// IsZero reports whether the patch changes nothing.
func (p Patch) IsZero() bool {
	return p.Query == nil &&
		p.Route == nil &&
		len(p.Messages) == 0 &&
		len(p.SchemaContext) == 0 &&
		p.DataQuery == nil &&
		p.Code == nil &&
		p.Generation == nil &&
		p.Error == nil
}

// Merge applies a patch and returns the next State. The input State is never
// modified. Policy per field:
//
//   - MessageLog, SchemaContext: append, preserving order.
//   - Everything else: replace with the patch value verbatim.
func (s State) Merge(p Patch) State {
	next := s.Clone()

	if p.Query != nil {
		next.Query = *p.Query
	}
	if p.Route != nil {
		next.Route = *p.Route
	}

	next.MessageLog = append(next.MessageLog, cloneMessages(p.Messages)...)
	next.SchemaContext = append(next.SchemaContext, p.SchemaContext...)

	if p.DataQuery != nil {
		next.DataQuery = p.DataQuery.clone()
	}
	if p.Code != nil {
		next.Code = *p.Code
	}
	if p.Generation != nil {
		next.Generation = *p.Generation
	}
	if p.Error != nil {
		next.Error = *p.Error
	}

	next.Timestamp = time.Now()
	return next
}

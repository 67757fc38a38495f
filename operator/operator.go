// Package operator constructs producers for operator-kind nodes: stock
// single-input transforms applied to one resolved upstream, and dual-input
// transforms consuming a (primary, secondary) pair. Like sources, every
// operator producer is cold. Counts, gates and queues live per
// subscription, which is what makes take's counter restart for every new
// consumer and switchMapTo's inner producer come back fresh on every
// switch.
package operator

import (
	"fmt"
	"log/slog"

	"github.com/langhuihui/rxcraft/errors"
	"github.com/langhuihui/rxcraft/graph"
	"github.com/langhuihui/rxcraft/stream"
)

// Operator node subtypes
const (
	SubtypeMap       = "map"
	SubtypeFilter    = "filter"
	SubtypeTake      = "take"
	SubtypeSkip      = "skip"
	SubtypeStartWith = "startWith"
	SubtypeRetry     = "retry"
	SubtypeTimeout   = "timeout"

	SubtypeTakeUntil   = "takeUntil"
	SubtypeSkipUntil   = "skipUntil"
	SubtypeZip         = "zip"
	SubtypeBuffer      = "buffer"
	SubtypeSwitchMapTo = "switchMapTo"
)

// Factory builds producers for operator-kind nodes
type Factory struct {
	loop   *stream.Loop
	logger *slog.Logger
}

// NewFactory creates an operator factory bound to one run's loop
func NewFactory(loop *stream.Loop, logger *slog.Logger) *Factory {
	return &Factory{loop: loop, logger: logger}
}

// Build constructs the producer for one operator node from its resolved
// upstream producers (primary first, secondary second for dual-input
// subtypes). Configuration errors degrade the node rather than failing the
// build; a non-nil error means the node has no producer at all.
func (f *Factory) Build(node graph.Node, upstreams []stream.Producer) (stream.Producer, error) {
	dual := isDual(node.Subtype)

	need := 1
	if dual {
		need = 2
	}
	if len(upstreams) < need {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: operator %q needs %d, has %d",
				errors.ErrMissingUpstream, node.ID, need, len(upstreams)),
			"operator", "Build", "construct producer")
	}

	if dual {
		primary, secondary := upstreams[0], upstreams[1]
		switch node.Subtype {
		case SubtypeTakeUntil:
			return f.takeUntil(primary, secondary), nil
		case SubtypeSkipUntil:
			return f.skipUntil(primary, secondary), nil
		case SubtypeZip:
			return f.zip(primary, secondary), nil
		case SubtypeBuffer:
			return f.buffer(primary, secondary), nil
		case SubtypeSwitchMapTo:
			return f.switchMapTo(primary, secondary), nil
		}
	}

	up := upstreams[0]
	switch node.Subtype {
	case SubtypeMap:
		return f.mapOp(node, up), nil
	case SubtypeFilter:
		return f.filterOp(node, up), nil
	case SubtypeTake:
		return f.take(node, up), nil
	case SubtypeSkip:
		return f.skip(node, up), nil
	case SubtypeStartWith:
		return f.startWith(node, up), nil
	case SubtypeRetry:
		return f.retryOp(node, up), nil
	case SubtypeTimeout:
		return f.timeout(node, up), nil
	default:
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: operator %q", errors.ErrUnknownSubtype, node.Subtype),
			"operator", "Build", "construct producer")
	}
}

func isDual(subtype string) bool {
	switch subtype {
	case SubtypeTakeUntil, SubtypeSkipUntil, SubtypeZip, SubtypeBuffer, SubtypeSwitchMapTo:
		return true
	}
	return false
}

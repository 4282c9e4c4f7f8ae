package binlog

type SinkKind int

const (
	SingleStream SinkKind = iota
	CoordinatedGroup
)

func (k SinkKind) String() string {
	switch k {
	case SingleStream:
		return "single-stream"
	case CoordinatedGroup:
		return "coordinated-group"
	}
	return "unknown"
}

// SinkTopology is the sink an engine instance is assembled with.
type SinkTopology struct {
	Kind      SinkKind
	GroupSize int
}

// AssembleSink coordinates sources only when there are several of them and
// coordination is requested; several sources without coordination still
// share one stream.
func AssembleSink(groupSize int, mode GroupSinkMode) SinkTopology {
	if groupSize > 1 && mode == GroupSinkCoordinate {
		return SinkTopology{Kind: CoordinatedGroup, GroupSize: groupSize}
	}
	return SinkTopology{Kind: SingleStream, GroupSize: max(groupSize, 1)}
}

package binlog

import (
	"fmt"
	"log/slog"

	"cdcreader/capture"
	"cdcreader/capture/embedded"
)

// InstanceFactory builds the engine instance of one task.
type InstanceFactory struct {
	TaskID      string
	Param       Parameter
	Identity    capture.Identity
	Checkpoints CheckpointStore
	Alarm       capture.AlarmHandler
	Handlers    []embedded.Handler
	Log         *slog.Logger
}

// Generate is the embedded.InstanceGenerator of the task's engine.
func (f *InstanceFactory) Generate(destination string) (*embedded.Instance, error) {
	slaveID, err := DeriveSlaveID(f.Param.SlaveID, f.TaskID)
	if err != nil {
		return nil, err
	}

	srcs, err := f.sources(slaveID)
	if err != nil {
		return nil, err
	}

	topo := AssembleSink(f.Param.GroupSize(), f.Param.GroupSinkMode)
	var sink embedded.EventSink
	switch topo.Kind {
	case CoordinatedGroup:
		sink = embedded.NewGroupSink(topo.GroupSize, embedded.WithTransactionFilter(false))
	default:
		sink = embedded.NewEntrySink(embedded.WithTransactionFilter(false))
	}
	f.Log.Info("assembling engine instance",
		"destination", destination,
		"slave_id", slaveID,
		"sink", topo.Kind.String(),
		"group_size", topo.GroupSize,
		"sources", len(srcs),
	)

	inst, err := embedded.NewBuilder(destination).
		WithStoreCapacity(f.Param.Store.Capacity).
		WithPositionStrategy(NewTaskPositionStrategy(f.Identity, f.Checkpoints, f.Log)).
		WithSink(sink).
		WithAlarmHandler(f.Alarm).
		WithSources(srcs...).
		WithHandlers(f.Handlers...).
		WithRestartDelay(f.Param.SourceRestartDelay).
		WithLogger(f.Log).
		Build()
	if err != nil {
		closeSources(srcs)
		return nil, err
	}
	return inst, nil
}

// sources builds the first group; later groups are standbys and unused.
func (f *InstanceFactory) sources(slaveID int64) ([]embedded.Source, error) {
	if len(f.Param.Groups) == 0 {
		return nil, nil
	}
	var out []embedded.Source
	for i, ds := range f.Param.Groups[0] {
		name := ds.Name
		if name == "" {
			name = fmt.Sprintf("source-%d", i)
		}
		src, err := embedded.NewSource(ds.Driver, embedded.SourceOptions{
			Name:             name,
			SlaveID:          slaveID,
			FilterTableError: f.Param.FilterTableError,
			Options:          ds.Options,
		})
		if err != nil {
			closeSources(out)
			return nil, fmt.Errorf("binlog: source %s: %w", name, err)
		}
		out = append(out, src)
	}
	return out, nil
}

func closeSources(srcs []embedded.Source) {
	for _, s := range srcs {
		_ = s.Close()
	}
}

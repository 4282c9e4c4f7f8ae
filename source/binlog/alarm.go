package binlog

import (
	"log/slog"

	"cdcreader/internal/telemetry"
)

// AlarmFunc forwards an alarm to whatever pages an operator.
type AlarmFunc func(taskID, msg string)

// TaskAlarm attributes engine alarms to one task.
type TaskAlarm struct {
	taskID  string
	notify  AlarmFunc
	metrics *telemetry.Reader
	log     *slog.Logger
}

func NewTaskAlarm(taskID string, notify AlarmFunc, metrics *telemetry.Reader, log *slog.Logger) *TaskAlarm {
	return &TaskAlarm{taskID: taskID, notify: notify, metrics: metrics, log: log}
}

func (a *TaskAlarm) SendAlarm(destination, msg string) {
	a.log.Error("engine alarm", "destination", destination, "msg", msg)
	if a.metrics != nil {
		a.metrics.Alarm()
	}
	if a.notify != nil {
		a.notify(a.taskID, msg)
	}
}

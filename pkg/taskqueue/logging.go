package taskqueue

import (
	"io"

	"github.com/sirupsen/logrus"
)

func logrusNop() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}

func taskFields(t Task) logrus.Fields {
	return logrus.Fields{
		"task_id": t.ID.String(),
		"topic":   t.Topic,
		"attempt": t.Attempt,
	}
}

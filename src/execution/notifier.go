package execution

import (
	logger "github.com/sirupsen/logrus"
)

// logNotifier writes execution notices to the structured log. It is the
// default Notifier when no messaging integration is wired in.
type logNotifier struct{}

func (logNotifier) Notify(title string, fields map[string]interface{}) {
	logger.WithFields(fields).Info(title)
}

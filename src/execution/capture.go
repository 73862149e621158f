package execution

import (
	"context"
	"encoding/json"
	"runtime/debug"

	logger "github.com/sirupsen/logrus"

	"tradeexecutor/src/model"
	"tradeexecutor/src/repository"
)

// Capture persists an exception record for an execution fault. Persistence
// failures are logged and swallowed so capture never masks the original error.
func (e *Engine) Capture(ctx context.Context, method string, err error, extra map[string]interface{}) {
	if err == nil {
		return
	}

	contextJSON := ""
	if len(extra) > 0 {
		if b, mErr := json.Marshal(extra); mErr == nil {
			contextJSON = string(b)
		}
	}

	exc := &model.Exception{
		Service: "trade_executor",
		Module:  "execution",
		Method:  method,
		Message: err.Error(),
		Stack:   string(debug.Stack()),
		Level:   "error",
		Context: contextJSON,
	}

	if cErr := repository.NewExceptionRepository().WithDB(e.db).Create(ctx, exc); cErr != nil {
		logger.WithFields(map[string]interface{}{
			"module": "execution",
			"method": method,
		}).WithError(cErr).Error("Failed to persist exception")
	}
}

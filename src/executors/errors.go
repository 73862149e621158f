package executors

import "errors"

var errBrokerUnhealthy = errors.New("broker health check critical")

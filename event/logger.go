package event

import "github.com/klaytn/kale-pool/internal/log"

var logger = log.NewModuleLogger(log.EventBus)

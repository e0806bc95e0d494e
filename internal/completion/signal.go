package completion

import "github.com/cuongbtq/market-bridge/internal/domain"

// NewSignal builds a CompletionSignal. The legacy "ip" field stands in for the
// client key and a missing status means the job finished.
func NewSignal(requestID, clientKey, ip, marketplace, status, errMsg string) domain.CompletionSignal {
	if clientKey == "" {
		clientKey = ip
	}
	if status == "" {
		status = domain.CompletionDone
	}
	return domain.CompletionSignal{
		RequestID:   requestID,
		ClientKey:   clientKey,
		Marketplace: marketplace,
		Status:      status,
		Error:       errMsg,
	}
}

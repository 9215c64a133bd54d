package contract

import (
	"errors"
	"strings"

	"github.com/line-yield/loan-service/internal/chain"
)

// LoanCreatedEvent is the notification emitted by the contract when a loan
// is created.
const LoanCreatedEvent = "LoanCreated"

// ErrEventNotFound is returned when an expected notification is absent from
// an application log.
var ErrEventNotFound = errors.New("event not found in application log")

// ExtractLoanCreatedID scans a transaction's application log for the
// LoanCreated notification and returns the new loan's id. The id is the
// first state item of the event payload.
func ExtractLoanCreatedID(appLog *chain.ApplicationLog, contractHash string) (int64, error) {
	if appLog == nil {
		return 0, ErrEventNotFound
	}

	for _, exec := range appLog.Executions {
		for _, n := range exec.Notifications {
			if n.EventName != LoanCreatedEvent {
				continue
			}
			if contractHash != "" && !strings.EqualFold(n.Contract, contractHash) {
				continue
			}

			items, err := chain.ParseArray(n.State)
			if err != nil || len(items) == 0 {
				continue
			}
			id, err := chain.ParseInteger(items[0])
			if err != nil {
				continue
			}
			return id.Int64(), nil
		}
	}
	return 0, ErrEventNotFound
}

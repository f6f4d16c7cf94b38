package engine

import (
	"github.com/roach88/deployer/internal/journal"
	"github.com/roach88/deployer/internal/state"
)

// EventType distinguishes execution events.
type EventType string

const (
	EventRunStart               EventType = "RUN_START"
	EventBatch                  EventType = "BATCH"
	EventFutureStart            EventType = "FUTURE_START"
	EventNetworkInteraction     EventType = "NETWORK_INTERACTION_REQUEST"
	EventTransactionPrepareSend EventType = "TRANSACTION_PREPARE_SEND"
	EventTransactionSend        EventType = "TRANSACTION_SEND"
	EventTransactionConfirm     EventType = "TRANSACTION_CONFIRM"
	EventStaticCallComplete     EventType = "STATIC_CALL_COMPLETE"
	EventBumpFees               EventType = "ONCHAIN_INTERACTION_BUMP_FEES"
	EventDropped                EventType = "ONCHAIN_INTERACTION_DROPPED"
	EventReplacedByUser         EventType = "ONCHAIN_INTERACTION_REPLACED_BY_USER"
	EventTimeout                EventType = "ONCHAIN_INTERACTION_TIMEOUT"
	EventFutureComplete         EventType = "FUTURE_COMPLETE"
	EventWipe                   EventType = "WIPE_APPLY"
	EventDeploymentComplete     EventType = "DEPLOYMENT_COMPLETE"
)

// Event is one execution event. Message is the journal message that caused
// it, if any; Status is the future's status after the message was applied.
type Event struct {
	Seq      int64
	Type     EventType
	FutureID string
	Status   state.Status
	Message  journal.Message
	Batch    []string
	Result   *Result
}

// Listener receives execution events. Events arrive in journal order on a
// single goroutine, after the corresponding message has been recorded. The
// engine never waits on listener logic except to drain the queue when a run
// ends.
type Listener interface {
	HandleEvent(Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event)

// HandleEvent implements Listener.
func (f ListenerFunc) HandleEvent(e Event) { f(e) }

// Listeners fans events out to several listeners in order.
type Listeners []Listener

// HandleEvent implements Listener.
func (ls Listeners) HandleEvent(e Event) {
	for _, l := range ls {
		l.HandleEvent(e)
	}
}

// eventFor maps a journal message to the event it produces.
func eventFor(m journal.Message) EventType {
	switch m.(type) {
	case journal.RunStart:
		return EventRunStart
	case journal.WipeApply:
		return EventWipe
	case journal.DeploymentInitialize, journal.CallInitialize, journal.StaticCallInitialize,
		journal.SendDataInitialize:
		return EventFutureStart
	case journal.ContractAtInitialize, journal.ReadEventArgumentInitialize,
		journal.EncodeFunctionCallInitialize, journal.ExecutionComplete:
		return EventFutureComplete
	case journal.NetworkInteractionRequest:
		return EventNetworkInteraction
	case journal.TransactionPrepareSend:
		return EventTransactionPrepareSend
	case journal.TransactionSend:
		return EventTransactionSend
	case journal.TransactionConfirm:
		return EventTransactionConfirm
	case journal.StaticCallComplete:
		return EventStaticCallComplete
	case journal.OnchainInteractionBumpFees:
		return EventBumpFees
	case journal.OnchainInteractionDropped:
		return EventDropped
	case journal.OnchainInteractionReplacedByUser:
		return EventReplacedByUser
	case journal.OnchainInteractionTimeout:
		return EventTimeout
	default:
		return ""
	}
}

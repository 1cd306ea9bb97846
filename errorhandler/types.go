package errorhandler

import (
	"context"
)

type ActionType int

const (
	ActionTypeContinue  ActionType = iota // Drop record, advance its offset
	ActionTypeRetry                       // Retry this record
	ActionTypeFail                        // Halt the partition and don't advance
	ActionTypeSendToDLQ                   // Dead-letter, then advance
)

func (a ActionType) String() string {
	switch a {
	case ActionTypeContinue:
		return "Continue"
	case ActionTypeRetry:
		return "Retry"
	case ActionTypeFail:
		return "Fail"
	case ActionTypeSendToDLQ:
		return "SendToDLQ"
	default:
		return "Unknown"
	}
}

var _ Action = ActionContinue{}
var _ Action = ActionRetry{}
var _ Action = ActionFail{}
var _ Action = ActionSendToDLQ{}

type Action interface {
	Type() ActionType
}

type ActionContinue struct{}

func (a ActionContinue) Type() ActionType {
	return ActionTypeContinue
}

type ActionRetry struct{}

func (a ActionRetry) Type() ActionType {
	return ActionTypeRetry
}

type ActionFail struct{}

func (a ActionFail) Type() ActionType {
	return ActionTypeFail
}

type ActionSendToDLQ struct{}

func (a ActionSendToDLQ) Type() ActionType {
	return ActionTypeSendToDLQ
}

type Handler interface {
	Handle(ctx context.Context, ec ErrorContext) Action
}

type HandlerFunc func(ctx context.Context, ec ErrorContext) Action

func (f HandlerFunc) Handle(ctx context.Context, ec ErrorContext) Action {
	return f(ctx, ec)
}

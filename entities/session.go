package entities

import (
	"fmt"
	"strings"
)

// SessionKey identifies one user's conversation in one chat.
type SessionKey struct {
	UserID int64 `json:"user_id" db:"user_id"`
	ChatID int64 `json:"chat_id" db:"chat_id"`
}

func (k SessionKey) String() string {
	return fmt.Sprintf("%d:%d", k.ChatID, k.UserID)
}

type InputKind string

const (
	InputStart        InputKind = "start"
	InputText         InputKind = "text"
	InputImage        InputKind = "image"
	InputSelection    InputKind = "selection"
	InputBack         InputKind = "back"
	InputCancel       InputKind = "cancel"
	InputAdminApprove InputKind = "admin_approve"
	InputAdminReject  InputKind = "admin_reject"
	InputTimeout      InputKind = "timeout"
)

// InputKinds lists every kind the state machine must decide on.
var InputKinds = []InputKind{
	InputStart,
	InputText,
	InputImage,
	InputSelection,
	InputBack,
	InputCancel,
	InputAdminApprove,
	InputAdminReject,
	InputTimeout,
}

func (k InputKind) IsAdmin() bool {
	return k == InputAdminApprove || k == InputAdminReject
}

type InboundEvent struct {
	Header EventHeader `json:"header"`

	Session   SessionKey `json:"session"`
	Kind      InputKind  `json:"kind"`
	Text      string     `json:"text,omitempty"`
	Selection string     `json:"selection,omitempty"`
	ImageRef  string     `json:"image_ref,omitempty"`
	UserName  string     `json:"user_name,omitempty"`

	TicketID string `json:"ticket_id,omitempty"`
	AdminID  int64  `json:"admin_id,omitempty"`
}

// Button payloads shared by the notification router and chat transports.
const (
	CallbackBack    = "back"
	CallbackCancel  = "cancel"
	callbackApprove = "approve:"
	callbackReject  = "reject:"
)

func ApproveCallback(ticketID string) string {
	return callbackApprove + ticketID
}

func RejectCallback(ticketID string) string {
	return callbackReject + ticketID
}

// ParseCallback maps raw button data to an input kind. For admin buttons the
// second value is the ticket id, otherwise it is the selection value.
func ParseCallback(data string) (InputKind, string) {
	switch {
	case data == CallbackBack:
		return InputBack, ""
	case data == CallbackCancel:
		return InputCancel, ""
	case strings.HasPrefix(data, callbackApprove):
		return InputAdminApprove, strings.TrimPrefix(data, callbackApprove)
	case strings.HasPrefix(data, callbackReject):
		return InputAdminReject, strings.TrimPrefix(data, callbackReject)
	default:
		return InputSelection, data
	}
}

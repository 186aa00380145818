package notification

import (
	"context"
	"sync"

	"reservations/entities"
)

// SinkMock records every message; Err makes Send fail.
type SinkMock struct {
	mu       sync.Mutex
	Messages []entities.OutboundMessage
	Err      error
}

func (s *SinkMock) Send(ctx context.Context, msg entities.OutboundMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return s.Err
	}

	s.Messages = append(s.Messages, msg)
	return nil
}

func (s *SinkMock) Sent() []entities.OutboundMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := make([]entities.OutboundMessage, len(s.Messages))
	copy(msgs, s.Messages)
	return msgs
}

func (s *SinkMock) SentTo(chatID int64) []entities.OutboundMessage {
	var msgs []entities.OutboundMessage
	for _, msg := range s.Sent() {
		if msg.ChatID == chatID {
			msgs = append(msgs, msg)
		}
	}
	return msgs
}

func (s *SinkMock) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Err = err
}

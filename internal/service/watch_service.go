package service

import "context"

// CommandSink is implemented by Controller.
type CommandSink interface {
	Submit(cmd Command) error
}

type WatchService struct {
	sink CommandSink
}

func NewWatchService(sink CommandSink) *WatchService {
	return &WatchService{sink: sink}
}

// Submit validates kind and queues it. The change is applied on the next
// loop tick, so callers only learn that it was accepted.
func (s *WatchService) Submit(ctx context.Context, kind, source string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	k, err := ParseCommandKind(kind)
	if err != nil {
		return err
	}
	return s.sink.Submit(Command{Kind: k, Source: source})
}

package mqtt

import "github.com/sweeney/cec-dpms/internal/logic"

// NopPublisher discards everything. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishAction(logic.Action) error { return nil }
func (NopPublisher) PublishSystem(SystemEvent) error  { return nil }
func (NopPublisher) Close() error                     { return nil }
func (NopPublisher) IsConnected() bool                { return false }

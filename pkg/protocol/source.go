package protocol

import "context"

// SubmitFunc hands a playbook-run request to the scheduler. It returns the
// execution id synchronously; the run starts once capacity exists.
type SubmitFunc func(ctx context.Context, playbookID string, parameters map[string]any, priority int) (string, error)

// Source is a long-running intake of playbook-run requests (message queue,
// schedule). Sources call the SubmitFunc they were started with.
type Source interface {
	Start(ctx context.Context, submit SubmitFunc) error
	Stop(ctx context.Context) error
	Validate() error
}

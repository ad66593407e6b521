package system

import "context"

// Service is a background component with a start/stop lifecycle, such as the
// cron scheduler.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

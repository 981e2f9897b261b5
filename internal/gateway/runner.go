package gateway

import (
	"context"

	"github.com/mattjoyce/sqlbridge/internal/bridge"
)

//go:generate mockgen -destination=mocks/mock_runner.go -package=mocks github.com/mattjoyce/sqlbridge/internal/gateway QueryRunner

// QueryRunner is the slice of the bridge the gateway depends on.
type QueryRunner interface {
	SubmitQuerySync(ctx context.Context, sql string) (any, error)
	State() bridge.State
	Faulted() bool
	Pending() int
	ConnID() string
}

package actors

import (
	stdctx "context"
	"errors"
	"fmt"
	"time"

	"thoth/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
)

// DefaultOperationTimeout bounds the store work done for one message.
const DefaultOperationTimeout = 5 * time.Second

// GetCountsMsg asks an actor for the size of the collection it owns.
type GetCountsMsg struct{}

// Ack is the reply to commands that return nothing.
type Ack struct{}

// respond answers with result, or with err as an *utils.AppError.
func respond(context actor.Context, result interface{}, err error) {
	if err != nil {
		context.Respond(asAppError(err))
		return
	}
	context.Respond(result)
}

func asAppError(err error) *utils.AppError {
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, stdctx.DeadlineExceeded) {
		return utils.NewAppError(utils.ErrTimeout, "operation timed out", err)
	}
	return utils.NewAppError(utils.ErrDatabase, "operation failed", err)
}

func operationContext(timeout time.Duration) (stdctx.Context, stdctx.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultOperationTimeout
	}
	return stdctx.WithTimeout(stdctx.Background(), timeout)
}

func typeName(msg interface{}) string {
	return fmt.Sprintf("%T", msg)
}

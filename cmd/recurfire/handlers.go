package main

import (
	"context"
	"fmt"
	"time"

	"github.com/RezaEskandarii/recurfire/internal/logger"
	"github.com/RezaEskandarii/recurfire/types/config"
)

// builtinHandlers are the targets a standalone server can run.
// Embedding programs register their own through config.Config.
func builtinHandlers() []config.MethodHandler {
	return []config.MethodHandler{
		{JobName: "log", Func: logHandler},
		{JobName: "sleep", Func: sleepHandler},
	}
}

func logHandler(ctx context.Context, args map[string]any) error {
	taskID, _ := config.TaskIDFromContext(ctx)
	logger.Logger.Infow("log target", "task_id", taskID, "args", args)
	return nil
}

// sleepHandler waits args["ms"] milliseconds, or until ctx is done.
func sleepHandler(ctx context.Context, args map[string]any) error {
	ms, err := intArg(args, "ms")
	if err != nil {
		return err
	}
	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func intArg(args map[string]any, key string) (int64, error) {
	switch v := args[key].(type) {
	case float64:
		return int64(v), nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case nil:
		return 0, fmt.Errorf("argument %q is required", key)
	default:
		return 0, fmt.Errorf("argument %q must be a number, got %T", key, v)
	}
}

package main

import (
	"context"
	"fmt"

	"github.com/go-kettle/kettle/store"
	"github.com/go-kettle/kettle/task"
)

// stageTaskType is the leaf task type kettlectl generates one of per
// configured deployment stage. It has no real side effect; kettlectl is a
// control-surface demonstration, not a deployment tool.
const stageTaskType = "kettlectl.stage"

func registerBuiltinTaskTypes() {
	task.RegisterType(stageTaskType, task.RunnerFunc{
		RunFn:    runStage,
		RevertFn: revertStage,
	})
}

func runStage(ctx context.Context, rc task.RunContext) (string, error) {
	name, _ := rc.State["name"].(string)
	return fmt.Sprintf("stage %q applied", name), nil
}

func revertStage(ctx context.Context, rc task.RunContext) (string, error) {
	name, _ := rc.State["name"].(string)
	return fmt.Sprintf("stage %q reverted", name), nil
}

// generateStageTree builds a SequentialExec over rollout.Stages, one
// stageTaskType leaf per stage, in order. This is kettlectl's default
// generator, the user-provided generator generate_tasks calls for.
func generateStageTree(s store.Store, rolloutID string, stages []string) error {
	builders := make([]task.ChildBuilder, len(stages))
	for i, stage := range stages {
		stage := stage
		builders[i] = func(parentID string) (*store.Task, error) {
			return task.NewTask(s, rolloutID, parentID, stageTaskType, map[string]any{"name": stage})
		}
	}

	_, err := task.NewSequentialExec(s, rolloutID, "", builders)
	return err
}

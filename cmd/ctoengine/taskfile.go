package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"ctoengine/pkg/tasks"
)

// taskFile is the on-disk submission format: a YAML document with a list of
// coding tasks.
type taskFile struct {
	Tasks []*tasks.CodingTask `yaml:"tasks"`
}

// singleTask builds a one-off task from command line arguments.
func singleTask(description, repository string) ([]*tasks.CodingTask, error) {
	task := &tasks.CodingTask{
		TaskID:      uuid.New().String(),
		Description: description,
		Repository:  repository,
	}
	task.ApplyDefaults()
	if err := task.Validate(); err != nil {
		return nil, fmt.Errorf("invalid task: %w", err)
	}
	return []*tasks.CodingTask{task}, nil
}

// loadTasks reads a task file and assigns IDs to tasks that lack one.
func loadTasks(path string) ([]*tasks.CodingTask, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read task file: %w", err)
	}

	var file taskFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse task file %s: %w", path, err)
	}
	if len(file.Tasks) == 0 {
		return nil, fmt.Errorf("task file %s contains no tasks", path)
	}

	for _, task := range file.Tasks {
		if task.TaskID == "" {
			task.TaskID = uuid.New().String()
		}
		task.ApplyDefaults()
		if err := task.Validate(); err != nil {
			return nil, fmt.Errorf("invalid task %s: %w", task.TaskID, err)
		}
	}
	return file.Tasks, nil
}

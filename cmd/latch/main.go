// cmd/latch/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"latch/internal/connectivity"
	"latch/internal/logging"
	"latch/internal/optimistic"
	"latch/internal/remote"
	"latch/internal/store"
	"latch/internal/syncqueue"
	"latch/internal/task"
	shared "latch/shared/types"
	"latch/shared/utils"

	"github.com/dgraph-io/badger/v4"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

const dataDir = ".latch"

var offline bool

var rootCmd = &cobra.Command{
	Use:   "latch",
	Short: "Latch is an offline-first task tracker",
	Long: `Latch applies every change locally before the remote confirms it.
Changes made offline queue up and replay when connectivity returns;
changes the remote rejects roll back.`,
}

// app bundles the embedded engine for one CLI invocation.
type app struct {
	db      *badger.DB
	store   *store.Store
	queue   *syncqueue.Queue
	monitor *connectivity.Monitor
	coord   *optimistic.Coordinator
	factory remote.Factory
}

func initApp() (*app, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolving home directory: %w", err)
	}

	path := filepath.Join(home, dataDir)
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	logger := logging.NewNop()

	st, err := store.New(db, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing store: %w", err)
	}

	queue, err := syncqueue.New(db, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing queue: %w", err)
	}

	monitor := connectivity.NewMonitor(!offline)

	return &app{
		db:      db,
		store:   st,
		queue:   queue,
		monitor: monitor,
		coord:   optimistic.New(st, queue, monitor, logger),
		factory: remote.Loopback(),
	}, nil
}

func (a *app) close() {
	a.queue.Close()
	a.db.Close()
}

// apply runs one mutation through the coordinator and waits for it to
// settle so the CLI reports the reconciled outcome, not the optimistic one.
func (a *app) apply(op shared.Op, kind shared.EntityKind, id string, payload []byte) error {
	intent := shared.Intent{
		Op:          op,
		Kind:        kind,
		EntityID:    id,
		Payload:     payload,
		SubmittedAt: time.Now(),
	}

	pending, err := a.coord.Apply(context.Background(), intent, a.factory(intent), optimistic.Options{})
	if err != nil {
		return err
	}

	_, err = pending.Wait(context.Background())
	return err
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&offline, "offline", false, "queue changes instead of syncing them")

	taskCmd := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
	}

	taskAddCmd := &cobra.Command{
		Use:   "add [title]",
		Short: "Add a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := initApp()
			if err != nil {
				return err
			}
			defer a.close()

			projectID, _ := cmd.Flags().GetString("project")
			priority, _ := cmd.Flags().GetInt("priority")

			t := task.Task{
				Title:     args[0],
				ProjectID: projectID,
				Priority:  priority,
			}
			payload, err := json.Marshal(t)
			if err != nil {
				return err
			}

			id := utils.NewID()
			if err := a.apply(shared.OpCreate, shared.KindTask, id, payload); err != nil {
				return fmt.Errorf("adding task: %w", err)
			}

			green := color.New(color.FgGreen).SprintFunc()
			fmt.Printf("%s %s (%s)\n", green("added"), args[0], id)
			return nil
		},
	}
	taskAddCmd.Flags().String("project", "", "project to file the task under")
	taskAddCmd.Flags().Int("priority", 0, "task priority")

	taskListCmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := initApp()
			if err != nil {
				return err
			}
			defer a.close()

			raws, err := a.store.List(shared.KindTask)
			if err != nil {
				return fmt.Errorf("listing tasks: %w", err)
			}

			green := color.New(color.FgGreen).SprintFunc()
			yellow := color.New(color.FgYellow).SprintFunc()

			if len(raws) == 0 {
				fmt.Println("no tasks")
				return nil
			}

			for _, raw := range raws {
				var t task.Task
				if err := json.Unmarshal(raw, &t); err != nil {
					continue
				}

				marker := " "
				switch t.Status {
				case task.StatusDone:
					marker = green("x")
				case task.StatusInProgress:
					marker = yellow(">")
				}
				fmt.Printf("[%s] %s  %s\n", marker, t.ID, t.Title)
			}
			return nil
		},
	}

	taskDoneCmd := &cobra.Command{
		Use:   "done [id]",
		Short: "Mark a task done",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := initApp()
			if err != nil {
				return err
			}
			defer a.close()

			patch := []byte(fmt.Sprintf(`{"status":%q}`, task.StatusDone))
			if err := a.apply(shared.OpUpdate, shared.KindTask, args[0], patch); err != nil {
				return fmt.Errorf("completing task: %w", err)
			}

			green := color.New(color.FgGreen).SprintFunc()
			fmt.Printf("%s %s\n", green("done"), args[0])
			return nil
		},
	}

	taskRmCmd := &cobra.Command{
		Use:   "rm [id]",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := initApp()
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.apply(shared.OpDelete, shared.KindTask, args[0], nil); err != nil {
				return fmt.Errorf("deleting task: %w", err)
			}

			red := color.New(color.FgRed).SprintFunc()
			fmt.Printf("%s %s\n", red("removed"), args[0])
			return nil
		},
	}

	taskCmd.AddCommand(taskAddCmd, taskListCmd, taskDoneCmd, taskRmCmd)

	projectCmd := &cobra.Command{
		Use:   "project",
		Short: "Manage projects",
	}

	projectAddCmd := &cobra.Command{
		Use:   "add [name]",
		Short: "Add a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := initApp()
			if err != nil {
				return err
			}
			defer a.close()

			payload := []byte(fmt.Sprintf(`{"name":%q}`, args[0]))
			id := utils.NewID()
			if err := a.apply(shared.OpCreate, shared.KindProject, id, payload); err != nil {
				return fmt.Errorf("adding project: %w", err)
			}

			green := color.New(color.FgGreen).SprintFunc()
			fmt.Printf("%s %s (%s)\n", green("added"), args[0], id)
			return nil
		},
	}

	projectListCmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := initApp()
			if err != nil {
				return err
			}
			defer a.close()

			raws, err := a.store.List(shared.KindProject)
			if err != nil {
				return fmt.Errorf("listing projects: %w", err)
			}

			if len(raws) == 0 {
				fmt.Println("no projects")
				return nil
			}

			for _, raw := range raws {
				var p struct {
					ID       string `json:"id"`
					Name     string `json:"name"`
					Archived bool   `json:"archived"`
				}
				if err := json.Unmarshal(raw, &p); err != nil {
					continue
				}

				suffix := ""
				if p.Archived {
					suffix = " (archived)"
				}
				fmt.Printf("%s  %s%s\n", p.ID, p.Name, suffix)
			}
			return nil
		},
	}

	projectCmd.AddCommand(projectAddCmd, projectListCmd)

	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and drain the sync queue",
	}

	queueListCmd := &cobra.Command{
		Use:   "list",
		Short: "List queued changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := initApp()
			if err != nil {
				return err
			}
			defer a.close()

			entries, err := a.queue.List()
			if err != nil {
				return fmt.Errorf("listing queue: %w", err)
			}

			if len(entries) == 0 {
				fmt.Println("queue is empty")
				return nil
			}

			yellow := color.New(color.FgYellow).SprintFunc()
			red := color.New(color.FgRed).SprintFunc()

			for _, e := range entries {
				status := string(e.Status)
				switch e.Status {
				case syncqueue.StatusPending:
					status = yellow(status)
				case syncqueue.StatusFailed:
					status = red(status)
				}
				fmt.Printf("%s  %-8s %s %s/%s (attempts %d)\n",
					e.ID, status, e.Op, e.Kind, e.EntityID, e.Attempts)
			}
			return nil
		},
	}

	queueFlushCmd := &cobra.Command{
		Use:   "flush",
		Short: "Replay queued changes against the remote",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := initApp()
			if err != nil {
				return err
			}
			defer a.close()

			processor := syncqueue.NewProcessor(a.queue, remote.NewFlusher(a.factory), a.store, logging.NewNop())

			result, err := processor.Process(context.Background())
			if err != nil {
				return fmt.Errorf("flushing queue: %w", err)
			}

			fmt.Printf("flushed %d, retried %d, abandoned %d in %s\n",
				result.Flushed, result.Retried, result.Abandoned, result.Duration.Round(time.Millisecond))
			return nil
		},
	}

	queueClearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop all queued changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := initApp()
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.queue.Clear(); err != nil {
				return fmt.Errorf("clearing queue: %w", err)
			}
			fmt.Println("queue cleared")
			return nil
		},
	}

	queueCmd.AddCommand(queueListCmd, queueFlushCmd, queueClearCmd)

	rootCmd.AddCommand(taskCmd, projectCmd, queueCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		red := color.New(color.FgRed).SprintFunc()
		fmt.Fprintln(os.Stderr, red("error:"), err)
		os.Exit(1)
	}
}

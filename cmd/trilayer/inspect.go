package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// trilayer keys
func keysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List the isolation keys present in the history database",
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := store.IsolationKeys()
			if err != nil {
				return err
			}
			printStrings(keys, "No conversations recorded yet")
			return nil
		},
	}
}

// trilayer clients
func clientsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clients",
		Short: "List the AI client applications seen so far",
		RunE: func(cmd *cobra.Command, args []string) error {
			clients, err := manager.AvailableClients()
			if err != nil {
				return err
			}
			printStrings(clients, "No clients recorded yet")
			return nil
		},
	}
}

// trilayer workers
func workersCmd() *cobra.Command {
	var client string
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "List worker labels, optionally for one client",
		RunE: func(cmd *cobra.Command, args []string) error {
			workers, err := manager.AvailableWorkers(client)
			if err != nil {
				return err
			}
			printStrings(workers, "No workers recorded yet")
			return nil
		},
	}
	cmd.Flags().StringVar(&client, "client", "", "Narrow to one AI client")
	return cmd
}

// trilayer projects
func projectsCmd() *cobra.Command {
	var client, worker string
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "List project names, optionally for one client and worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			projects, err := manager.AvailableProjects(client, worker)
			if err != nil {
				return err
			}
			printStrings(projects, "No projects recorded yet")
			return nil
		},
	}
	cmd.Flags().StringVar(&client, "client", "", "Narrow to one AI client")
	cmd.Flags().StringVar(&worker, "worker", "", "Narrow to one worker")
	return cmd
}

func printStrings(values []string, emptyMsg string) {
	if len(values) == 0 {
		fmt.Println(emptyMsg)
		return
	}
	for _, v := range values {
		fmt.Println(v)
	}
}

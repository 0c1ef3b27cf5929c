package main

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/trilayer/trilayer/internal/history"
	"github.com/trilayer/trilayer/internal/isolation"
	"github.com/trilayer/trilayer/internal/settings"
)

// trilayer config — per-isolation preferences, namespaced by the same
// key that partitions the history database.
func configCmd() *cobra.Command {
	var (
		client     string
		worker     string
		projectDir string
	)

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Per-isolation preferences (get/set/unset/list)",
	}
	cmd.PersistentFlags().StringVar(&client, "client", "", "AI client application name")
	cmd.PersistentFlags().StringVar(&worker, "worker", "", "Worker environment label")
	cmd.PersistentFlags().StringVar(&projectDir, "project-dir", "", "Project directory")
	_ = cmd.MarkPersistentFlagRequired("client")
	_ = cmd.MarkPersistentFlagRequired("worker")
	_ = cmd.MarkPersistentFlagRequired("project-dir")

	openSettings := func() (*settings.Store, string, error) {
		cfg := history.DefaultConfig()
		if dataDir != "" {
			cfg.DataDir = dataDir
		}
		s, err := settings.Open(filepath.Join(cfg.DataDir, "settings.db"))
		if err != nil {
			return nil, "", err
		}
		return s, isolation.Key(client, worker, projectDir), nil
	}

	getCmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Read one preference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, key, err := openSettings()
			if err != nil {
				return err
			}
			defer s.Close()

			value, err := s.Get(key, args[0], "")
			if err != nil {
				return err
			}
			fmt.Println(value)
			return nil
		},
	}

	setCmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store one preference",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, key, err := openSettings()
			if err != nil {
				return err
			}
			defer s.Close()
			return s.Set(key, args[0], args[1])
		},
	}

	unsetCmd := &cobra.Command{
		Use:   "unset <key>",
		Short: "Remove one preference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, key, err := openSettings()
			if err != nil {
				return err
			}
			defer s.Close()
			return s.Remove(key, args[0])
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List every preference in this isolation",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, key, err := openSettings()
			if err != nil {
				return err
			}
			defer s.Close()

			values, err := s.GetAll(key)
			if err != nil {
				return err
			}
			names := make([]string, 0, len(values))
			for k := range values {
				names = append(names, k)
			}
			sort.Strings(names)
			for _, k := range names {
				fmt.Printf("%s=%s\n", k, values[k])
			}
			return nil
		},
	}

	cmd.AddCommand(getCmd, setCmd, unsetCmd, listCmd)
	return cmd
}

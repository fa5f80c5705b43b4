package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/zabbix-problems/zabbix-problems/internal/monitor"
	"github.com/zabbix-problems/zabbix-problems/internal/problem"
	"github.com/zabbix-problems/zabbix-problems/internal/sensor"
	"github.com/zabbix-problems/zabbix-problems/internal/zabbix"
)

var (
	pollSource  sourceFlags
	pollTimeout time.Duration
	pollLogin   bool
)

var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Fetch problems once and print every configured sensor",
	Long: `Run a single poll against the configured source and print the value
and matching problems of every configured sensor. Exits non-zero when the
fetch fails.`,
	RunE: runPoll,
}

func init() {
	pollSource.register(pollCmd)
	pollCmd.Flags().DurationVar(&pollTimeout, "timeout", 30*time.Second, "Deadline for the poll")
	pollCmd.Flags().BoolVar(&pollLogin, "check-login", false, "Only verify the Zabbix credentials")
}

func runPoll(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadRuntime()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(cmd.Context(), pollTimeout)
	defer cancel()

	src := pollSource.build(cfg, log)
	if pollLogin {
		zc, ok := src.(*zabbix.Client)
		if !ok {
			return errors.New("--check-login needs a zabbix source")
		}
		if err := zc.CheckLogin(ctx); err != nil {
			return fmt.Errorf("login to %s failed (%s): %w", zc.Endpoint(), monitor.ErrorKind(err), err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "login to %s ok\n", zc.Endpoint())
		return nil
	}

	events, err := src.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("poll %s failed (%s): %w", src.Name(), monitor.ErrorKind(err), err)
	}
	idx := problem.BuildIndex(events)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%d problems, %d tags, %d untagged\n\n", idx.EventCount(), idx.Len(), idx.Untagged())

	states := make([]sensor.State, 0, len(cfg.Sensors))
	for _, sc := range cfg.Sensors {
		states = append(states, sensor.New(sc.Name, sc.TagList()).Refresh(idx))
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SENSOR\tVALUE\tTAGS\tMATCHING")
	for _, st := range states {
		matching := 0
		for _, labels := range st.Detail {
			matching += len(labels)
		}
		fmt.Fprintf(tw, "%s\t%d (%s)\t%s\t%d\n", st.Name, st.Value, st.Value, strings.Join(st.Monitor, ","), matching)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, st := range states {
		for _, tag := range st.Monitor {
			for _, label := range st.Detail[tag] {
				fmt.Fprintf(out, "  %s  %s  %s\n", st.Name, tag, label)
			}
		}
	}
	return nil
}

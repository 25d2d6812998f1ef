package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/DrC0ns0le/net-alto/internal/alto"
	"github.com/DrC0ns0le/net-alto/internal/route/cost"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	var (
		serverURL string
		timeout   time.Duration
	)
	root := &cobra.Command{
		Use:           "client",
		Short:         "Query an ALTO server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:5000", "ALTO server base URL")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")

	c := func() *client { return newClient(serverURL, timeout) }

	root.AddCommand(
		newCostCmd(out, c),
		newPropertiesCmd(out, c),
		newNetworkMapCmd(out, c),
		newReloadCmd(out, c),
	)
	return root
}

func newCostCmd(out io.Writer, c func() *client) *cobra.Command {
	var (
		metric string
		mode   string
		srcs   []string
		dsts   []string
	)
	cmd := &cobra.Command{
		Use:   "cost",
		Short: "Look up endpoint costs",
		Example: `  client cost --metric pathhops --src ipv4:10.0.1.2 --dst ipv4:10.0.2.2
  client cost --metric residual-pathbandwidth --mode ordinal --src ipv4:10.0.1.2 --dst ipv4:10.0.2.2,ipv4:10.0.3.2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := c().endpointCost(cmd.Context(), alto.EndpointCostRequest{
				CostType:  &alto.CostType{Mode: cost.Mode(mode), Metric: metric},
				Endpoints: &alto.EndpointFilter{Srcs: srcs, Dsts: dsts},
			})
			if err != nil {
				return err
			}
			printCosts(out, resp)
			return nil
		},
	}
	cmd.Flags().StringVar(&metric, "metric", cost.MetricPathHops, "cost metric")
	cmd.Flags().StringVar(&mode, "mode", string(cost.ModeNumerical), "cost mode, numerical or ordinal")
	cmd.Flags().StringSliceVar(&srcs, "src", nil, "source endpoints")
	cmd.Flags().StringSliceVar(&dsts, "dst", nil, "destination endpoints")
	cmd.MarkFlagRequired("src")
	cmd.MarkFlagRequired("dst")
	return cmd
}

func newPropertiesCmd(out io.Writer, c func() *client) *cobra.Command {
	var (
		props     []string
		endpoints []string
	)
	cmd := &cobra.Command{
		Use:   "properties",
		Short: "Look up endpoint properties",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := c().endpointProperties(cmd.Context(), alto.EndpointPropertyRequest{
				Properties: props,
				Endpoints:  endpoints,
			})
			if err != nil {
				return err
			}
			printProperties(out, resp)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&props, "prop", []string{alto.NetworkMapResourceID + ".pid", "hostname"}, "properties")
	cmd.Flags().StringSliceVar(&endpoints, "endpoint", nil, "endpoints")
	cmd.MarkFlagRequired("endpoint")
	return cmd
}

func newNetworkMapCmd(out io.Writer, c func() *client) *cobra.Command {
	return &cobra.Command{
		Use:   "networkmap",
		Short: "Show the network map",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := c().networkMap(cmd.Context())
			if err != nil {
				return err
			}
			printNetworkMap(out, resp)
			return nil
		},
	}
}

func newReloadCmd(out io.Writer, c func() *client) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Make the server reload its topology description",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := c().reload(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "topology reloaded: %d devices, %d links\n", resp.Devices, resp.Links)
			return nil
		},
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func printCosts(out io.Writer, resp *alto.EndpointCostResponse) {
	fmt.Fprintf(out, "%s (%s)\n", resp.Meta.CostType.Metric, resp.Meta.CostType.Mode)

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Source", "Destination", "Cost"})
	for _, src := range sortedKeys(resp.EndpointCostMap) {
		dsts := resp.EndpointCostMap[src]
		for _, dst := range sortedKeys(dsts) {
			table.Append([]string{src, dst, strconv.FormatFloat(dsts[dst], 'f', -1, 64)})
		}
	}
	table.Render()
}

func printProperties(out io.Writer, resp *alto.EndpointPropertyResponse) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Endpoint", "Property", "Value"})
	for _, ep := range sortedKeys(resp.Properties) {
		props := resp.Properties[ep]
		for _, p := range sortedKeys(props) {
			table.Append([]string{ep, p, props[p]})
		}
	}
	table.Render()
}

func printNetworkMap(out io.Writer, resp *alto.NetworkMapResponse) {
	fmt.Fprintf(out, "%s vtag %s\n", resp.Meta.VTag.ResourceID, resp.Meta.VTag.Tag)

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"PID", "Family", "Prefix"})
	for _, pid := range sortedKeys(resp.NetworkMap) {
		group := resp.NetworkMap[pid]
		for _, family := range sortedKeys(group) {
			for _, prefix := range group[family] {
				table.Append([]string{pid, family, prefix})
			}
		}
	}
	table.Render()
}

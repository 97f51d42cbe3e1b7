package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/insectcam/internal/ui"
)

var remoteCmd = &cobra.Command{
	Use:     "remote",
	Short:   "Manage named appliance remotes",
	GroupID: "system",
	// All remote subcommands are local file operations.
	PersistentPreRunE: offline,
}

var remoteAddCmd = &cobra.Command{
	Use:   "add <name> <url>",
	Short: "Add or update a named remote",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		natsURL, _ := cmd.Flags().GetString("nats")
		return updateProfiles(func(p *Profiles) error {
			if err := p.Set(args[0], Remote{URL: args[1], NATSURL: natsURL}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "remote %q added (%s)\n", args[0], args[1])
			return nil
		})
	},
}

var remoteRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a named remote",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateProfiles(func(p *Profiles) error {
			if err := p.Remove(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "remote %q removed\n", args[0])
			return nil
		})
	},
}

var remoteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all remotes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProfiles()
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(cmd.OutOrStdout(), p)
			return nil
		}
		names := p.Names()
		if len(names) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), ui.RenderMuted("no remotes configured"))
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "  NAME\tGATEWAY\tNATS")
		for _, name := range names {
			r := p.Remotes[name]
			marker := "  "
			if name == p.Active {
				marker = "* "
			}
			fmt.Fprintf(w, "%s%s\t%s\t%s\n", marker, name, r.URL, orDash(r.NATSURL))
		}
		return w.Flush()
	},
}

var remoteUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Set the active remote",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return updateProfiles(func(p *Profiles) error {
			if err := p.Use(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "active remote set to %q\n", args[0])
			return nil
		})
	},
}

var remoteShowCmd = &cobra.Command{
	Use:   "show [<name>]",
	Short: "Show details for a remote (defaults to active)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProfiles()
		if err != nil {
			return err
		}
		var want string
		if len(args) == 1 {
			want = args[0]
		}
		name, r, err := p.Lookup(want)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(cmd.OutOrStdout(), r)
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		active := ""
		if name == p.Active {
			active = " (active)"
		}
		fmt.Fprintf(w, "name:\t%s%s\n", name, active)
		fmt.Fprintf(w, "gateway:\t%s\n", r.URL)
		fmt.Fprintf(w, "nats:\t%s\n", orDash(r.NATSURL))
		return w.Flush()
	},
}

// updateProfiles loads remotes.toml, applies fn and saves only if fn
// succeeded.
func updateProfiles(fn func(p *Profiles) error) error {
	p, err := loadProfiles()
	if err != nil {
		return err
	}
	if err := fn(p); err != nil {
		return err
	}
	return p.save()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	remoteAddCmd.Flags().String("nats", "", "NATS URL the appliance mirrors events to")

	remoteCmd.AddCommand(remoteAddCmd)
	remoteCmd.AddCommand(remoteRemoveCmd)
	remoteCmd.AddCommand(remoteListCmd)
	remoteCmd.AddCommand(remoteUseCmd)
	remoteCmd.AddCommand(remoteShowCmd)
}

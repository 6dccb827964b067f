// Package inspect prints what the navigation makes of a track definition.
package inspect

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mpapenbr/racenav/pkg/eligibility"
	"github.com/mpapenbr/racenav/pkg/scene"
	"github.com/mpapenbr/racenav/pkg/track"
)

var (
	world      string
	level      string
	difficulty string
)

func NewInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "commands to inspect track definitions",
	}
	cmd.PersistentFlags().StringVar(&world, "world", "",
		"only consider actors eligible for this world")
	cmd.PersistentFlags().StringVar(&level, "level", "",
		"only consider actors eligible for this level")
	cmd.PersistentFlags().StringVar(&difficulty, "difficulty", "",
		"only consider actors eligible for this difficulty")

	cmd.AddCommand(&cobra.Command{
		Use:   "links <track.yaml>",
		Short: "prints the pursuit splines with their links and route choices",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return Links(cmd.OutOrStdout(), t)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "checkpoints <track.yaml>",
		Short: "prints the checkpoints bound to the master spline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return Checkpoints(cmd.OutOrStdout(), t)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "query <track.yaml> <jsonpath>",
		Short: "evaluates a JSONPath expression on the track definition",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return Query(cmd.OutOrStdout(), args[0], args[1])
		},
	})
	return cmd
}

func load(ctx context.Context, path string) (*track.Track, error) {
	var opts []track.Option
	if world != "" || level != "" || difficulty != "" {
		p, err := eligibility.New(ctx, eligibility.WithContext(eligibility.Context{
			World: world, Level: level, Difficulty: difficulty,
		}))
		if err != nil {
			return nil, err
		}
		opts = append(opts, track.WithFilter(p))
	}
	return track.NewCache(0, opts...).Get(ctx, path)
}

func splineName(t *track.Track, h scene.Handle) string {
	if e, ok := t.Scene.Spline(h); ok {
		return e.Name
	}
	return fmt.Sprintf("#%d", h)
}

// Links prints one row per pursuit spline followed by its links.
func Links(out io.Writer, t *track.Track) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	master, _ := t.Network.Master()
	fmt.Fprintln(w, "SPLINE\tLENGTH (m)\tCLOSED\tMASTER\tCLASS\tDEAD START\tDEAD END\tCHOICES")
	for _, s := range t.Network.Splines() {
		fmt.Fprintf(w, "%s\t%.1f\t%t\t%t\t%d\t%t\t%t\t%d\n",
			s.Name(), s.Length()/100, s.IsClosedLoop(), master != nil && master.Handle == s.Handle,
			s.MasterClass(), s.DeadStart, s.DeadEnd, len(s.RouteChoices))
		for _, l := range s.Links {
			dir := "->"
			if !l.Forward {
				dir = "<-"
			}
			fmt.Fprintf(w, "  %.1f\t%s %s\t%.1f\t\t\t\t\t\n",
				l.ThisDistance/100, dir, splineName(t, l.Spline), l.NextDistance/100)
		}
	}
	return w.Flush()
}

// Checkpoints prints the checkpoints in race order.
func Checkpoints(out io.Writer, t *track.Track) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tNAME\tORDER\tDISTANCE (m)\tWINDOW (m)")
	for i, c := range t.Checkpoints.Checkpoints() {
		window := "-"
		if win, ok := c.Window.Get(); ok {
			window = fmt.Sprintf("%gx%g", win.Width, win.Height)
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%.1f\t%s\n", i, c.Name, c.Order, c.Distance/100, window)
	}
	fmt.Fprintf(w, "\nlap length %.1f m\n", t.Checkpoints.MasterLength()/100)
	return w.Flush()
}

// Query prints one JSON document per match.
func Query(out io.Writer, path, expr string) error {
	res, err := track.QueryFile(path, expr)
	if err != nil {
		return err
	}
	for _, r := range res {
		fmt.Fprintln(out, track.ToJSON(r))
	}
	return nil
}

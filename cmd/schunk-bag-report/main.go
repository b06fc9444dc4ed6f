// Package main summarizes the joint telemetry recorded in a rosbag.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	goutils "go.viam.com/utils"

	"github.com/uu-controllers/schunkgui/logging"
	"github.com/uu-controllers/schunkgui/referenceframe"
	"github.com/uu-controllers/schunkgui/ros"
	"github.com/uu-controllers/schunkgui/telemetry"
	"github.com/uu-controllers/schunkgui/utils"
)

var logger = logging.NewLogger("schunk-bag-report")

func main() {
	goutils.ContextualMain(mainWithArgs, logger)
}

func mainWithArgs(ctx context.Context, args []string, logger logging.Logger) error {
	app := &cli.App{
		Name:      "schunk-bag-report",
		Usage:     "summarize joint states and device status recorded in a bag",
		ArgsUsage: "<bag>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "description",
				Usage:    "robot description (URDF) file",
				Required: true,
			},
			&cli.StringSliceFlag{
				Name:  "dependent",
				Usage: "joints driven by other joints, excluded from the report",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return errors.New("need to specify a rosbag file path")
			}
			path, err := utils.ExpandHomeDir(c.String("description"))
			if err != nil {
				return err
			}
			//nolint:gosec
			xml, err := os.ReadFile(path)
			if err != nil {
				return errors.Wrap(err, "reading robot description")
			}
			registry, err := referenceframe.LoadRegistry(xml, c.StringSlice("dependent"))
			if err != nil {
				return err
			}
			rb, err := ros.ReadBag(c.Args().First())
			if err != nil {
				return err
			}
			msgs, err := ros.BagMessages(rb, []string{ros.JointStatesTopic, ros.SchunkStatusTopic})
			if err != nil {
				return err
			}
			return writeReport(c.App.Writer, telemetry.Summarize(registry, msgs, logger))
		},
	}
	return app.RunContext(ctx, args)
}

func writeReport(w io.Writer, s *telemetry.Summary) error {
	topics := lo.Keys(s.Messages)
	sort.Strings(topics)
	if _, err := fmt.Fprintf(w, "%d topics over %v\n", len(topics), s.Duration()); err != nil {
		return err
	}
	for _, topic := range topics {
		if _, err := fmt.Fprintf(w, "  %s: %d messages\n", topic, s.Messages[topic]); err != nil {
			return err
		}
	}

	t := table.NewWriter()
	t.AppendHeader(table.Row{"Joint", "Samples", "Min (deg)", "Max (deg)", "Status", "Errors", "Last error code"})
	for _, j := range s.Joints {
		lo, hi := ".", "."
		if j.Samples > 0 {
			lo = fmt.Sprintf("%.2f", utils.RadToDeg(j.MinPosition))
			hi = fmt.Sprintf("%.2f", utils.RadToDeg(j.MaxPosition))
		}
		t.AppendRow(table.Row{j.Name, j.Samples, lo, hi, j.StatusReports, j.ErrorReports, j.LastStatus.ErrorCode})
	}
	if _, err := fmt.Fprintln(w, t.Render()); err != nil {
		return err
	}
	if s.Anomalies > 0 {
		_, err := fmt.Fprintf(w, "%d status entries named joints missing from the description\n", s.Anomalies)
		return err
	}
	return nil
}

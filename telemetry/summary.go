package telemetry

import (
	"math"
	"time"

	"go.uber.org/multierr"

	"github.com/uu-controllers/schunkgui/logging"
	"github.com/uu-controllers/schunkgui/referenceframe"
	"github.com/uu-controllers/schunkgui/ros"
)

// JointSummary is what a recording shows about one joint.
type JointSummary struct {
	Name          string
	Samples       int
	MinPosition   float64
	MaxPosition   float64
	StatusReports int
	ErrorReports  int
	LastStatus    ros.JointStatus
}

// Summary aggregates a recording of joint states and device status.
type Summary struct {
	Start    time.Time
	End      time.Time
	Messages map[string]int
	Joints   []JointSummary
	// Anomalies counts status entries for joints the registry does not know.
	Anomalies int
}

// Summarize replays msgs through a reconciler, in order, and collects per joint statistics.
func Summarize(registry *referenceframe.Registry, msgs []ros.BagMessage, logger logging.Logger) *Summary {
	s := &Summary{Messages: map[string]int{}}
	for _, name := range registry.Names() {
		s.Joints = append(s.Joints, JointSummary{Name: name, MinPosition: math.Inf(1), MaxPosition: math.Inf(-1)})
	}
	r := NewReconciler(registry, nil, logger)

	for i, msg := range msgs {
		if i == 0 || msg.Time.Before(s.Start) {
			s.Start = msg.Time
		}
		if msg.Time.After(s.End) {
			s.End = msg.Time
		}
		s.Messages[msg.Topic]++

		switch m := msg.Msg.(type) {
		case ros.JointState:
			r.UpdateJointState(m)
			for j := range s.Joints {
				pos, ok := r.Position(j)
				if !ok {
					continue
				}
				js := &s.Joints[j]
				js.Samples++
				js.MinPosition = math.Min(js.MinPosition, pos)
				js.MaxPosition = math.Max(js.MaxPosition, pos)
			}
		case ros.SchunkStatus:
			if err := r.UpdateStatus(m); err != nil {
				s.Anomalies += len(multierr.Errors(err))
			}
			for j := range s.Joints {
				st, ok := r.JointStatus(j)
				if !ok {
					continue
				}
				js := &s.Joints[j]
				js.StatusReports++
				if st.Error {
					js.ErrorReports++
				}
				js.LastStatus = st
			}
		}
	}
	return s
}

// Duration is the time the recording spans.
func (s *Summary) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

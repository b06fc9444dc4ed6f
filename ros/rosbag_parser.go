// Package ros holds the ROS message types the console exchanges with the Schunk driver, the topic
// table, and recorded bag reading for offline replay.
package ros

import (
	"encoding/json"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/edaniels/gobag/rosbag"
	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// BagMessage is one decoded message from a recorded bag.
type BagMessage struct {
	Topic string
	Time  time.Time
	Msg   Message
}

type bagRecord struct {
	Meta Time                   `json:"meta"`
	Data map[string]interface{} `json:"data"`
}

// ReadBag reads the contents of a rosbag into a gobag data structure.
func ReadBag(filename string) (*rosbag.RosBag, error) {
	//nolint:gosec
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open input file")
	}
	defer utils.UncheckedErrorFunc(f.Close)

	rb := rosbag.NewRosBag()
	if err := rb.Read(f); err != nil {
		return nil, errors.Wrapf(err, "unable to read ros bag")
	}
	return rb, nil
}

// bagTopicKey is how gobag keys parsed topics: no leading slash, slashes to underscores, lower case.
func bagTopicKey(topic string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(topic, "/"), "/", "_"))
}

// BagMessages decodes every message on the given topics, ordered by record time. Topics with no
// messages are skipped.
func BagMessages(rb *rosbag.RosBag, topics []string) ([]BagMessage, error) {
	wanted := make(map[string]string, len(topics))
	for _, topic := range topics {
		if _, err := TypeOf(topic); err != nil {
			return nil, err
		}
		wanted[topic] = bagTopicKey(topic)
	}

	if err := rb.ParseTopicsToJSON(
		"",
		func(int64) bool { return true },
		func(t string) bool { _, ok := wanted[t]; return ok },
		false,
	); err != nil {
		return nil, errors.Wrapf(err, "error while parsing bag to JSON")
	}

	var all []BagMessage
	for topic, key := range wanted {
		msgs := rb.TopicsAsJSON[key]
		if msgs == nil {
			continue
		}
		for {
			line, err := msgs.ReadBytes('\n')
			if err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return nil, err
			}
			var record bagRecord
			if err := json.Unmarshal(line, &record); err != nil {
				return nil, errors.Wrapf(err, "bad record on %s", topic)
			}
			msg, err := DecodeMap(topic, record.Data)
			if err != nil {
				return nil, err
			}
			all = append(all, BagMessage{Topic: topic, Time: record.Meta.AsTime(), Msg: msg})
		}
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].Time.Before(all[j].Time) })
	return all, nil
}

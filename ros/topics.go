package ros

import (
	"encoding/json"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
)

// Topics the console publishes and subscribes to. Names match the Schunk driver.
const (
	MoveAllPositionTopic  = "/schunk/move_all_position"
	MoveAllVelocityTopic  = "/schunk/move_all_velocity"
	AckTopic              = "/schunk/ack"
	RefTopic              = "/schunk/ref"
	AckAllTopic           = "/schunk/ack_all"
	RefAllTopic           = "/schunk/ref_all"
	SetCurrentMaxAllTopic = "/schunk/set_current_max_all"
	EmergencyStopTopic    = "/schunk/emergency_stop"
	JointStatesTopic      = "/joint_states"
	SchunkStatusTopic     = "/schunk/status"
	TFTopic               = "/tf"
	TFStaticTopic         = "/tf_static"
)

var topicTypes = map[string]string{
	MoveAllPositionTopic:  JointStateType,
	MoveAllVelocityTopic:  JointStateType,
	AckTopic:              Int8Type,
	RefTopic:              Int8Type,
	AckAllTopic:           EmptyType,
	RefAllTopic:           EmptyType,
	SetCurrentMaxAllTopic: EmptyType,
	EmergencyStopTopic:    EmptyType,
	JointStatesTopic:      JointStateType,
	SchunkStatusTopic:     SchunkStatusType,
	TFTopic:               TFMessageType,
	TFStaticTopic:         TFMessageType,
}

// ErrUnknownTopic is returned for a topic without a registered message type.
var ErrUnknownTopic = errors.New("unknown topic")

// TypeOf returns the ROS message type carried on a known topic.
func TypeOf(topic string) (string, error) {
	msgType, ok := topicTypes[topic]
	if !ok {
		return "", errors.Wrap(ErrUnknownTopic, topic)
	}
	return msgType, nil
}

func newMessage(msgType string) (Message, error) {
	switch msgType {
	case JointStateType:
		return &JointState{}, nil
	case SchunkStatusType:
		return &SchunkStatus{}, nil
	case Int8Type:
		return &Int8{}, nil
	case EmptyType:
		return &Empty{}, nil
	case TFMessageType:
		return &TFMessage{}, nil
	}
	return nil, errors.Errorf("unsupported message type %q", msgType)
}

// deref returns the value behind the pointer newMessage created, so receivers always see values.
func deref(msg Message) Message {
	switch m := msg.(type) {
	case *JointState:
		return *m
	case *SchunkStatus:
		return *m
	case *Int8:
		return *m
	case *Empty:
		return *m
	case *TFMessage:
		return *m
	}
	return msg
}

// DecodeJSON decodes the JSON body of a message received on topic into its typed value.
func DecodeJSON(topic string, data []byte) (Message, error) {
	msgType, err := TypeOf(topic)
	if err != nil {
		return nil, err
	}
	msg, err := newMessage(msgType)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return nil, errors.Wrapf(err, "decoding %s on %s", msgType, topic)
	}
	return deref(msg), nil
}

// DecodeMap decodes an already unmarshalled generic message, as produced by the bag reader, into
// its typed value. Field names follow the json tags.
func DecodeMap(topic string, raw map[string]interface{}) (Message, error) {
	msgType, err := TypeOf(topic)
	if err != nil {
		return nil, err
	}
	msg, err := newMessage(msgType)
	if err != nil {
		return nil, err
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           msg,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, errors.Wrapf(err, "decoding %s on %s", msgType, topic)
	}
	return deref(msg), nil
}

package ros

import (
	"time"
)

// Message is any ROS message the console sends or receives. MessageType is the ROS type name
// rosbridge expects when a topic is advertised.
type Message interface {
	MessageType() string
}

// ROS message type names.
const (
	JointStateType   = "sensor_msgs/JointState"
	SchunkStatusType = "metralabs_msgs/SchunkStatus"
	Int8Type         = "std_msgs/Int8"
	EmptyType        = "std_msgs/Empty"
	TFMessageType    = "tf2_msgs/TFMessage"
)

// Time is a ROS timestamp.
type Time struct {
	Secs  uint32 `json:"secs"`
	Nsecs uint32 `json:"nsecs"`
}

// NewTime converts a wall clock time.
func NewTime(t time.Time) Time {
	return Time{Secs: uint32(t.Unix()), Nsecs: uint32(t.Nanosecond())}
}

// AsTime converts back to a wall clock time.
func (t Time) AsTime() time.Time {
	return time.Unix(int64(t.Secs), int64(t.Nsecs))
}

// Header is std_msgs/Header.
type Header struct {
	Seq     uint32 `json:"seq"`
	Stamp   Time   `json:"stamp"`
	FrameID string `json:"frame_id"`
}

// JointState is sensor_msgs/JointState. Position, Velocity and Effort are parallel to Name but any
// of them may be shorter, or empty, on the wire.
type JointState struct {
	Header   Header    `json:"header"`
	Name     []string  `json:"name"`
	Position []float64 `json:"position"`
	Velocity []float64 `json:"velocity"`
	Effort   []float64 `json:"effort"`
}

// MessageType implements Message.
func (JointState) MessageType() string { return JointStateType }

// JointStatus is one module's entry in a SchunkStatus message.
type JointStatus struct {
	JointName  string  `json:"jointName"`
	Referenced bool    `json:"referenced"`
	MoveEnd    bool    `json:"moveEnd"`
	Brake      bool    `json:"brake"`
	Warning    bool    `json:"warning"`
	Current    float64 `json:"current"`
	Moving     bool    `json:"moving"`
	PosReached bool    `json:"posReached"`
	Error      bool    `json:"error"`
	ErrorCode  uint8   `json:"errorCode"`
}

// SchunkStatus is the device status of every module.
type SchunkStatus struct {
	Joints []JointStatus `json:"joints"`
}

// MessageType implements Message.
func (SchunkStatus) MessageType() string { return SchunkStatusType }

// Int8 is std_msgs/Int8, used to address one module by index.
type Int8 struct {
	Data int8 `json:"data"`
}

// MessageType implements Message.
func (Int8) MessageType() string { return Int8Type }

// Empty is std_msgs/Empty, used for the "all modules" signals.
type Empty struct{}

// MessageType implements Message.
func (Empty) MessageType() string { return EmptyType }

// Vector3 is geometry_msgs/Vector3.
type Vector3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Quaternion is geometry_msgs/Quaternion.
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// Transform is geometry_msgs/Transform.
type Transform struct {
	Translation Vector3    `json:"translation"`
	Rotation    Quaternion `json:"rotation"`
}

// TransformStamped is geometry_msgs/TransformStamped: Header.FrameID is the parent frame.
type TransformStamped struct {
	Header       Header    `json:"header"`
	ChildFrameID string    `json:"child_frame_id"`
	Transform    Transform `json:"transform"`
}

// TFMessage is tf2_msgs/TFMessage.
type TFMessage struct {
	Transforms []TransformStamped `json:"transforms"`
}

// MessageType implements Message.
func (TFMessage) MessageType() string { return TFMessageType }

// Package framesystem keeps the latest transform tree published on /tf and /tf_static and answers
// root to tip queries against it.
package framesystem

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/golang/geo/r3"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"gonum.org/v1/gonum/num/quat"

	"github.com/uu-controllers/schunkgui/logging"
	"github.com/uu-controllers/schunkgui/ros"
	"github.com/uu-controllers/schunkgui/spatialmath"
	"github.com/uu-controllers/schunkgui/transport"
)

// ErrTransformUnavailable is returned when no chain connects the two frames before the deadline.
var ErrTransformUnavailable = errors.New("transform unavailable")

// link is the transform from Parent to a child frame.
type link struct {
	Parent    string
	Transform spatialmath.Transform
	Static    bool
	Stamp     ros.Time
}

// Buffer holds one link per child frame. Readers work on an immutable snapshot; every update copies
// the map and swaps it in.
type Buffer struct {
	mu      sync.Mutex
	links   atomic.Pointer[map[string]link]
	updated chan struct{}
	logger  logging.Logger
}

// NewBuffer returns an empty buffer.
func NewBuffer(logger logging.Logger) *Buffer {
	b := &Buffer{updated: make(chan struct{}), logger: logger}
	empty := map[string]link{}
	b.links.Store(&empty)
	return b
}

// Update records every transform in msg and wakes waiting lookups. A transform that would make a
// frame its own ancestor is dropped.
func (b *Buffer) Update(msg ros.TFMessage, static bool) {
	if len(msg.Transforms) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	current := *b.links.Load()
	next := make(map[string]link, len(current)+len(msg.Transforms))
	for k, v := range current {
		next[k] = v
	}
	for _, tf := range msg.Transforms {
		parent, child := tf.Header.FrameID, tf.ChildFrameID
		if parent == "" || child == "" || parent == child {
			b.logger.Debugw("ignoring transform with missing frame", "parent", parent, "child", child)
			continue
		}
		if createsCycle(next, parent, child) {
			b.logger.Warnw("ignoring transform that would create a cycle", "parent", parent, "child", child)
			continue
		}
		next[child] = link{
			Parent:    parent,
			Transform: fromMsg(tf.Transform),
			Static:    static,
			Stamp:     tf.Header.Stamp,
		}
	}
	b.links.Store(&next)
	close(b.updated)
	b.updated = make(chan struct{})
}

func createsCycle(links map[string]link, parent, child string) bool {
	for frame := parent; ; {
		if frame == child {
			return true
		}
		l, ok := links[frame]
		if !ok {
			return false
		}
		frame = l.Parent
	}
}

func fromMsg(tf ros.Transform) spatialmath.Transform {
	return spatialmath.NewTransform(
		r3.Vector{X: tf.Translation.X, Y: tf.Translation.Y, Z: tf.Translation.Z},
		quat.Number{Real: tf.Rotation.W, Imag: tf.Rotation.X, Jmag: tf.Rotation.Y, Kmag: tf.Rotation.Z},
	)
}

// ToMsg converts a transform for publishing.
func ToMsg(t spatialmath.Transform) ros.Transform {
	return ros.Transform{
		Translation: ros.Vector3{X: t.Translation.X, Y: t.Translation.Y, Z: t.Translation.Z},
		Rotation:    ros.Quaternion{X: t.Rotation.Imag, Y: t.Rotation.Jmag, Z: t.Rotation.Kmag, W: t.Rotation.Real},
	}
}

// traceback lists frame and its ancestors up to the tree root, nearest first.
func traceback(links map[string]link, frame string) []string {
	chain := []string{frame}
	for {
		l, ok := links[frame]
		if !ok {
			return chain
		}
		frame = l.Parent
		chain = append(chain, frame)
	}
}

// toAncestor composes the transforms from ancestor down to frame. ancestor must be on frame's chain.
func toAncestor(links map[string]link, frame, ancestor string) spatialmath.Transform {
	t := spatialmath.NewZeroTransform()
	for frame != ancestor {
		l := links[frame]
		// add new transforms to the left
		t = l.Transform.Compose(t)
		frame = l.Parent
	}
	return t
}

// lookup returns the pose of tip in root, or false when the frames are not connected.
func lookup(links map[string]link, root, tip string) (spatialmath.Transform, bool) {
	if root == tip {
		_, known := links[root]
		return spatialmath.NewZeroTransform(), known || hasChild(links, root)
	}
	rootChain := traceback(links, root)
	onRootChain := make(map[string]bool, len(rootChain))
	for _, f := range rootChain {
		onRootChain[f] = true
	}
	for _, common := range traceback(links, tip) {
		if !onRootChain[common] {
			continue
		}
		rootInCommon := toAncestor(links, root, common)
		tipInCommon := toAncestor(links, tip, common)
		return rootInCommon.Inverse().Compose(tipInCommon), true
	}
	return spatialmath.Transform{}, false
}

func hasChild(links map[string]link, frame string) bool {
	for _, l := range links {
		if l.Parent == frame {
			return true
		}
	}
	return false
}

// LookupTransform returns the pose of tip expressed in root. It waits for updates until the frames
// are connected or ctx is done, then fails with ErrTransformUnavailable.
func (b *Buffer) LookupTransform(ctx context.Context, root, tip string) (spatialmath.Transform, error) {
	for {
		b.mu.Lock()
		links := *b.links.Load()
		updated := b.updated
		b.mu.Unlock()

		if t, ok := lookup(links, root, tip); ok {
			return t, nil
		}
		select {
		case <-ctx.Done():
			return spatialmath.Transform{}, errors.Wrapf(ErrTransformUnavailable, "%s -> %s: %v", root, tip, ctx.Err())
		case <-updated:
		}
	}
}

// CanTransform reports whether root and tip are connected right now.
func (b *Buffer) CanTransform(root, tip string) bool {
	_, ok := lookup(*b.links.Load(), root, tip)
	return ok
}

// Frames returns every known frame name, sorted.
func (b *Buffer) Frames() []string {
	links := *b.links.Load()
	seen := map[string]struct{}{}
	for child, l := range links {
		seen[child] = struct{}{}
		seen[l.Parent] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// String prints a table of each child frame with its parent, translation and orientation.
func (b *Buffer) String() string {
	links := *b.links.Load()
	children := make([]string, 0, len(links))
	for child := range links {
		children = append(children, child)
	}
	sort.Strings(children)

	t := table.NewWriter()
	t.AppendHeader(table.Row{"#", "Name", "Parent", "Translation", "Orientation", "Static"})
	for i, child := range children {
		l := links[child]
		rpy := spatialmath.QuatToEulerAngles(l.Transform.Rotation).Degrees()
		t.AppendRow([]interface{}{
			fmt.Sprintf("%d", i+1),
			child,
			l.Parent,
			fmt.Sprintf("(%.3f, %.3f, %.3f)", l.Transform.Translation.X, l.Transform.Translation.Y, l.Transform.Translation.Z),
			fmt.Sprintf("(%.1f°, %.1f°, %.1f°)", rpy[0], rpy[1], rpy[2]),
			l.Static,
		})
	}
	return t.Render()
}

// Run feeds the buffer from /tf and /tf_static until ctx is done or both subscriptions close.
func (b *Buffer) Run(ctx context.Context, sub transport.Subscriber) error {
	dynamic, cancelDynamic, err := sub.Subscribe(ros.TFTopic)
	if err != nil {
		return err
	}
	defer cancelDynamic()
	static, cancelStatic, err := sub.Subscribe(ros.TFStaticTopic)
	if err != nil {
		return err
	}
	defer cancelStatic()

	for dynamic != nil || static != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-dynamic:
			if !ok {
				dynamic = nil
				continue
			}
			if tf, isTF := msg.(ros.TFMessage); isTF {
				b.Update(tf, false)
			}
		case msg, ok := <-static:
			if !ok {
				static = nil
				continue
			}
			if tf, isTF := msg.(ros.TFMessage); isTF {
				b.Update(tf, true)
			}
		}
	}
	return nil
}

// Package segment describes the contract between parcel tiles and the
// binary-segmentation network that consumes them.
//
// The network itself is built elsewhere. This package validates the input
// shape, exposes a Builder for the external implementation and computes the
// layer layout of the fully convolutional reference network so callers can
// check that rendered tile masks line up with the model output.
package segment

import (
	"fmt"
	"math"
	"strings"

	"github.com/beetlebugorg/cantons/pkg/cantons"
)

// Default input: 488x488 pixels with four bands (RGB + near infrared).
const (
	DefaultHeight   = 488
	DefaultWidth    = 488
	DefaultChannels = 4
)

// InputShape is the (height, width, channels) shape of one network input.
type InputShape struct {
	Height   int `json:"height"`
	Width    int `json:"width"`
	Channels int `json:"channels"`
}

// DefaultInputShape returns 488x488x4.
func DefaultInputShape() InputShape {
	return InputShape{Height: DefaultHeight, Width: DefaultWidth, Channels: DefaultChannels}
}

// NewInputShape builds a shape from exactly three positive dimensions in
// (height, width, channels) order.
func NewInputShape(dims ...int) (InputShape, error) {
	if len(dims) != 3 {
		return InputShape{}, &cantons.ConfigError{
			Field:  "input_shape",
			Reason: fmt.Sprintf("must have 3 dimensions (H, W, C), got %d", len(dims)),
		}
	}
	for i, d := range dims {
		if d <= 0 {
			return InputShape{}, &cantons.ConfigError{
				Field:  "input_shape",
				Reason: fmt.Sprintf("dimension %d must be positive, got %d", i, d),
			}
		}
	}
	return InputShape{Height: dims[0], Width: dims[1], Channels: dims[2]}, nil
}

// TileShape returns the input shape of a mask rendered from a square cell
// of cellSize units at pixelSize units per pixel.
func TileShape(cellSize, pixelSize float64, channels int) (InputShape, error) {
	if pixelSize <= 0 || math.IsNaN(pixelSize) {
		return InputShape{}, &cantons.ConfigError{Field: "mask_pixel_size", Reason: fmt.Sprintf("must be positive, got %v", pixelSize)}
	}
	side := int(math.Ceil(cellSize / pixelSize))
	return NewInputShape(side, side, channels)
}

func (s InputShape) String() string {
	return fmt.Sprintf("(%d, %d, %d)", s.Height, s.Width, s.Channels)
}

// Model is a built segmentation network.
type Model interface {
	InputShape() InputShape
	OutputShape() InputShape
}

// Builder constructs a binary-segmentation network for an input shape.
type Builder interface {
	Build(shape InputShape) (Model, error)
}

// LayerKind names the operation of a layer.
type LayerKind string

const (
	Conv2D          LayerKind = "Conv2D"
	Conv2DTranspose LayerKind = "Conv2DTranspose"
)

// Layer is one convolution with its optional batch normalisation and
// activation. All layers use "same" padding.
type Layer struct {
	Name       string     `json:"name"`
	Kind       LayerKind  `json:"kind"`
	Filters    int        `json:"filters"`
	Kernel     int        `json:"kernel"`
	Stride     int        `json:"stride"`
	BatchNorm  bool       `json:"batch_norm"`
	Activation string     `json:"activation"`
	Output     InputShape `json:"output"`
}

// Params returns the trainable and non-trainable parameter count of l for
// an input with inChannels channels.
func (l Layer) Params(inChannels int) int {
	n := l.Kernel*l.Kernel*inChannels*l.Filters + l.Filters
	if l.BatchNorm {
		n += 4 * l.Filters
	}
	return n
}

// Layout is the layer stack of the reference fully convolutional network.
type Layout struct {
	Input  InputShape `json:"input"`
	Layers []Layer    `json:"layers"`
}

func (l *Layout) InputShape() InputShape { return l.Input }

// OutputShape returns the shape of the last layer.
func (l *Layout) OutputShape() InputShape {
	if len(l.Layers) == 0 {
		return l.Input
	}
	return l.Layers[len(l.Layers)-1].Output
}

// Params returns the total parameter count.
func (l *Layout) Params() int {
	total := 0
	in := l.Input.Channels
	for _, layer := range l.Layers {
		total += layer.Params(in)
		in = layer.Filters
	}
	return total
}

// String renders the layout as a summary table.
func (l *Layout) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-14s %-16s %-18s %s\n", "layer", "kind", "output", "params")
	fmt.Fprintf(&b, "%-14s %-16s %-18s %d\n", "input", "Input", l.Input, 0)
	in := l.Input.Channels
	for _, layer := range l.Layers {
		fmt.Fprintf(&b, "%-14s %-16s %-18s %d\n", layer.Name, layer.Kind, layer.Output, layer.Params(in))
		in = layer.Filters
	}
	fmt.Fprintf(&b, "total params: %d\n", l.Params())
	return b.String()
}

// FCNLayout computes the layout of the reference network for shape:
//
//	encoder  3x3 conv 64/s1, 128/s2, 256/s2, each batch-normalised + relu
//	decoder  3x3 transposed conv 128/s2, 64/s2, batch-normalised + relu
//	head     1x1 conv 1/s1, sigmoid
//
// Height and width must survive two stride-2 reductions, so the output
// matches the input when both are divisible by 4.
func FCNLayout(shape InputShape) (*Layout, error) {
	if _, err := NewInputShape(shape.Height, shape.Width, shape.Channels); err != nil {
		return nil, err
	}

	l := &Layout{Input: shape}
	cur := shape
	add := func(name string, kind LayerKind, filters, kernel, stride int, bn bool, act string) {
		switch kind {
		case Conv2D:
			cur = InputShape{Height: ceilDiv(cur.Height, stride), Width: ceilDiv(cur.Width, stride), Channels: filters}
		case Conv2DTranspose:
			cur = InputShape{Height: cur.Height * stride, Width: cur.Width * stride, Channels: filters}
		}
		l.Layers = append(l.Layers, Layer{
			Name:       name,
			Kind:       kind,
			Filters:    filters,
			Kernel:     kernel,
			Stride:     stride,
			BatchNorm:  bn,
			Activation: act,
			Output:     cur,
		})
	}

	add("encoder_1", Conv2D, 64, 3, 1, true, "relu")
	add("encoder_2", Conv2D, 128, 3, 2, true, "relu")
	add("encoder_3", Conv2D, 256, 3, 2, true, "relu")
	add("decoder_1", Conv2DTranspose, 128, 3, 2, true, "relu")
	add("decoder_2", Conv2DTranspose, 64, 3, 2, true, "relu")
	add("head", Conv2D, 1, 1, 1, false, "sigmoid")
	return l, nil
}

// LayoutBuilder is a Builder that returns the computed layout instead of a
// trainable network. It lets callers validate shapes without the network
// runtime.
type LayoutBuilder struct{}

// Build returns FCNLayout(shape).
func (LayoutBuilder) Build(shape InputShape) (Model, error) {
	return FCNLayout(shape)
}

// CheckMask reports an error if a mask of w x h pixels cannot be compared
// pixel for pixel with the output of m.
func CheckMask(m Model, w, h int) error {
	out := m.OutputShape()
	if out.Width != w || out.Height != h {
		return &cantons.ConfigError{
			Field:  "input_shape",
			Reason: fmt.Sprintf("model output %dx%d does not match mask %dx%d", out.Width, out.Height, w, h),
		}
	}
	return nil
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

var _ Builder = LayoutBuilder{}

package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/beetlebugorg/cantons/pkg/segment"
)

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Show the segmentation network layout for a tile shape",
	Long: `Print the layer layout of the segmentation network. The input shape
is --shape, or derived from the cell size and mask pixel size.

Examples:
  cantons model
  cantons model --shape 256,256,3
  cantons model --cell-size 1500 --mask-pixel-size 3 --channels 4 --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := cmd.Flags()
		dims, _ := f.GetIntSlice("shape")
		channels, _ := f.GetInt("channels")

		var shape segment.InputShape
		var err error
		switch {
		case f.Changed("shape"):
			shape, err = segment.NewInputShape(dims...)
		case f.Changed("cell-size") || f.Changed("mask-pixel-size"):
			shape, err = segment.TileShape(cfg.CellSize, cfg.MaskPixelSize, channels)
		default:
			shape = segment.DefaultInputShape()
		}
		if err != nil {
			return err
		}

		m, err := segment.LayoutBuilder{}.Build(shape)
		if err != nil {
			return err
		}
		layout := m.(*segment.Layout)

		if asJSON, _ := f.GetBool("json"); asJSON {
			data, err := json.MarshalIndent(layout, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}
		fmt.Print(layout)
		if out := layout.OutputShape(); out.Height != shape.Height || out.Width != shape.Width {
			fmt.Printf("warning: output %v does not match input %v\n", out, shape)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelCmd)
	modelCmd.Flags().IntSlice("shape", nil, "input shape as height,width,channels")
	modelCmd.Flags().Int("channels", segment.DefaultChannels, "bands when deriving the shape from the cell")
	modelCmd.Flags().Bool("json", false, "print the layout as JSON")
}

package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Brownie44l1/plant-api/internal/capture"
	"github.com/Brownie44l1/plant-api/internal/style"
)

func newCamerasCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "cameras",
		Short: "List video capture devices",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			devices, err := capture.ListDevices()
			if err != nil {
				return err
			}
			if len(devices) == 0 {
				fmt.Fprintln(stdout, style.Dim.Render("no video devices found"))
				return nil
			}
			for _, d := range devices {
				status := style.Success.Render(style.IconPass)
				if err := capture.CheckDevice(d); err != nil {
					status = style.Error.Render(style.IconFail) + " " + err.Error()
				}
				fmt.Fprintf(stdout, "%s %s\n", d, status)
			}
			return nil
		},
	}
}

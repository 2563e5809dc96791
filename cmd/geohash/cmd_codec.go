package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/geohash-udf/internal/geohash"
)

func newEncodeCmd() *cobra.Command {
	var precision int
	cmd := &cobra.Command{
		Use:   "encode LAT LON",
		Short: "Encode a coordinate as a geohash",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lat, err := strconv.ParseFloat(strings.TrimSpace(args[0]), 64)
			if err != nil {
				return fmt.Errorf("latitude %q: %w", args[0], err)
			}
			lon, err := strconv.ParseFloat(strings.TrimSpace(args[1]), 64)
			if err != nil {
				return fmt.Errorf("longitude %q: %w", args[1], err)
			}
			hash, err := geohash.Encode(lat, lon, precision)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return err
		},
	}
	cmd.Flags().IntVarP(&precision, "precision", "p", 12, "number of geohash characters (1-12)")
	return cmd
}

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode HASH",
		Short: "Decode a geohash into its bounding box and centre",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			box, err := geohash.Decode(args[0])
			if err != nil {
				return err
			}
			lat, lon := box.Center()
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "center %s %s\nbox %s\n",
				strconv.FormatFloat(lat, 'f', -1, 64), strconv.FormatFloat(lon, 'f', -1, 64), box)
			return err
		},
	}
}

func newNeighborsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "neighbors HASH",
		Short: "List the cells surrounding a geohash (N, NE, E, SE, S, SW, W, NW)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, err := geohash.Neighbors(strings.ToLower(args[0]))
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), strings.Join(ns, " "))
			return err
		},
	}
}

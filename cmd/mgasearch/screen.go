package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ChristopherRabotin/mga"
	"github.com/ChristopherRabotin/mga/search"
)

var screenCmd = &cobra.Command{
	Use:   "screen",
	Short: "Porkchop screening of the direct transfers between two bodies",
	Long: `Sweep the direct Lambert transfers between two bodies over a grid of departure and
arrival dates, and report the cheapest one.

Example:
  mgasearch screen --departure Earth --arrival Mars \
    --departure-from 2026-06-01 --departure-until 2027-01-01 \
    --arrival-from 2027-01-01 --arrival-until 2028-01-01 --points 100
`,
	RunE: runScreen,
}

func init() {
	screenCmd.Flags().String("departure", "Earth", "departure body")
	screenCmd.Flags().String("arrival", "Mars", "arrival body")
	screenCmd.Flags().String("departure-from", "", "first departure date")
	screenCmd.Flags().String("departure-until", "", "last departure date")
	screenCmd.Flags().String("arrival-from", "", "first arrival date")
	screenCmd.Flags().String("arrival-until", "", "last arrival date")
	screenCmd.Flags().Int("points", 100, "number of dates of each window")
	for _, name := range []string{"departure", "arrival", "departure-from", "departure-until", "arrival-from", "arrival-until", "points"} {
		viper.BindPFlag("screen."+name, screenCmd.Flags().Lookup(name))
	}
}

func runScreen(cmd *cobra.Command, args []string) error {
	catalog := mga.SolarSystem()
	from, err := readBody(catalog, "screen.departure")
	if err != nil {
		return err
	}
	to, err := readBody(catalog, "screen.arrival")
	if err != nil {
		return err
	}
	points := viper.GetInt("screen.points")
	var dates [4]float64
	for i, key := range []string{"screen.departure-from", "screen.departure-until", "screen.arrival-from", "screen.arrival-until"} {
		if dates[i], err = readDate(key); err != nil {
			return err
		}
	}

	coord, err := newCoordinator()
	if err != nil {
		return err
	}
	defer coord.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	result, err := coord.Screen(ctx, search.ScreenInput{
		From:      from.ID,
		To:        to.ID,
		Departure: mga.Window{From: dates[0], Until: dates[1], Points: points},
		Arrival:   mga.Window{From: dates[2], Until: dates[3], Points: points},
	}, func(progress float64) {
		level.Debug(logger).Log("subsys", "cli", "progress", progress)
	})
	if err != nil {
		return err
	}
	if !result.Found {
		level.Warn(logger).Log("subsys", "cli", "status", "no feasible transfer", "cells", len(result.Cells))
		return nil
	}
	best := result.Best
	level.Info(logger).Log("subsys", "cli", "departure", mga.FormatDate(best.Departure), "arrival", mga.FormatDate(best.Arrival),
		"c3(km2/s2)", best.C3, "vInfArrival(km/s)", best.VInfArrival, "Δv(km/s)", best.DeltaV)
	return nil
}

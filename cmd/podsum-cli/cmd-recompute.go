package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/podsum/podsum/podsumdb/recompute"
)

type recomputeCmd struct {
	backendOptions

	Show  string `arg:"" help:"show uuid"`
	Month string `arg:"" help:"month to recompute (YYYY-MM)"`

	Phases     string `help:"comma separated phases to run (dailies, aggregates, audience, audience-NofM)"`
	StartDay   int    `name:"start-day" help:"first day of month to recompute"`
	MaxDays    int    `name:"max-days" help:"max number of days to recompute" default:"-1"`
	Sequential bool   `help:"recompute days strictly in order"`
}

func (cmd *recomputeCmd) Run(g *globalOptions) error {
	_, recomputer, err := loadBackend(&cmd.backendOptions, g)
	if err != nil {
		return err
	}

	params := map[string]string{
		"show":  cmd.Show,
		"month": cmd.Month,
		"flags": "log",
	}
	if cmd.Phases != "" {
		params["phases"] = cmd.Phases
	}
	if cmd.StartDay != 0 {
		params["startDay"] = strconv.Itoa(cmd.StartDay)
	}
	if cmd.MaxDays >= 0 {
		params["maxDays"] = strconv.Itoa(cmd.MaxDays)
	}
	if cmd.Sequential {
		params["flags"] += ",sequential"
	}

	req, err := recompute.ParseJob(recompute.OperationKindUpdate, recompute.RecomputeTargetPath, params)
	if err != nil {
		return err
	}

	res, err := recomputer.RecomputeShowSummaries(context.Background(), req)
	if err != nil {
		return err
	}

	var steps []string
	for step, ms := range res.Times {
		steps = append(steps, fmt.Sprintf("%s=%dms", step, ms))
	}
	fmt.Printf("recomputed %s %s: %d dailies (%s)\n", cmd.Show, cmd.Month, res.Dailies, strings.Join(steps, " "))
	if res.Audience != nil {
		fmt.Printf("audience part %s: %d distinct ids, %d bytes\n",
			res.Audience.Part, res.Audience.Audience, res.Audience.ContentLength)
	}
	return nil
}

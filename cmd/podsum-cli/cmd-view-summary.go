package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/podsum/podsum/podsumdb/backend"
	"github.com/podsum/podsum/podsumdb/summary"
)

type viewSummaryCmd struct {
	backendOptions

	Show   string `arg:"" help:"show uuid"`
	Period string `arg:"" help:"summary period (YYYY-MM-DD, YYYY-MM or overall)"`
}

func (cmd *viewSummaryCmd) Run(g *globalOptions) error {
	show, err := uuid.Parse(cmd.Show)
	if err != nil {
		return errors.Wrapf(err, "bad show uuid %q", cmd.Show)
	}

	reader, _, err := loadBackend(&cmd.backendOptions, g)
	if err != nil {
		return err
	}

	s := &summary.ShowSummary{}
	_, err = reader.ReadJSON(context.Background(), backend.SummaryFileName(show, cmd.Period), backend.SummaryKeyPath(show), s)
	if err != nil {
		return err
	}

	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

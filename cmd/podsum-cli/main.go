package main

import (
	"github.com/alecthomas/kong"
	dslog "github.com/grafana/dskit/log"

	"github.com/podsum/podsum/pkg/util/log"
)

var cli struct {
	globalOptions

	Recompute recomputeCmd `cmd:"" help:"Recompute daily, monthly and overall summaries for a show."`
	List      listCmd      `cmd:"" help:"List objects in the summary store."`
	View      viewCmd      `cmd:"" help:"View objects in the summary store."`
}

type globalOptions struct {
	ConfigFile string `help:"path to a yaml config file" short:"c" type:"path"`
	LogLevel   string `help:"log level (debug, info, warn, error)" default:"info"`
}

type listCmd struct {
	Summaries listSummariesCmd `cmd:"" help:"List stored summaries for a show."`
}

type viewCmd struct {
	Summary viewSummaryCmd `cmd:"" help:"Print one stored summary as JSON."`
}

func main() {
	ctx := kong.Parse(&cli, kong.UsageOnError())

	var level dslog.Level
	if err := level.Set(cli.LogLevel); err != nil {
		ctx.FatalIfErrorf(err)
	}
	log.InitLogger("logfmt", level)

	err := ctx.Run(&cli.globalOptions)
	ctx.FatalIfErrorf(err)
}

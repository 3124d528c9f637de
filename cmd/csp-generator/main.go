package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/projectdiscovery/gologger"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/secinto/csp-generator/generate"
	"github.com/secinto/csp-generator/server"
)

func main() {
	app := &cli.App{
		Name:    "csp-generator",
		Usage:   "generate a Content-Security-Policy from the resources a page loads",
		Version: generate.VERSION,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Value: "warn", Usage: "trace, debug, info, warn or error"},
			&cli.StringFlag{Name: "log-format", Value: "pretty", Usage: "pretty, text or json"},
		},
		Commands: []*cli.Command{
			{
				Name:      "generate",
				Usage:     "analyze a page and print its policy",
				ArgsUsage: "<url>",
				Flags: append(policyFlags(),
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Value:   generate.FormatHeader,
						Usage:   "header, json or raw",
					},
				),
				Action: generateAction,
			},
			{
				Name:  "serve",
				Usage: "serve policies over HTTP",
				Flags: append(policyFlags(),
					&cli.StringFlag{
						Name:  "listen",
						Value: ":8080",
						Usage: "listen address",
					},
				),
				Action: serveAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		gologger.Fatal().Msgf("Could not run csp-generator: %s\n", err)
	}
}

func newLogger(ctx *cli.Context) (*logrus.Logger, error) {
	logger := logrus.New()
	level, err := logrus.ParseLevel(ctx.String("log-level"))
	if err != nil {
		return nil, err
	}
	logger.SetLevel(level)
	switch ctx.String("log-format") {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
	default:
		logger.SetFormatter(&prefixed.TextFormatter{FullTimestamp: true, ForceFormatting: true})
	}
	return logger, nil
}

func generateAction(ctx *cli.Context) error {
	logger, err := newLogger(ctx)
	if err != nil {
		return err
	}
	settings, err := loadSettings(ctx)
	if err != nil {
		return err
	}
	if ctx.NArg() != 1 {
		return cli.Exit("exactly one url is required", 2)
	}

	g, err := generate.NewGenerator(ctx.Args().First(), settings.Options(logger))
	if err != nil {
		return err
	}
	result, err := g.Generate(ctx.Context)
	if err != nil {
		return err
	}
	out, err := result.Format(ctx.String("format"))
	if err != nil {
		return err
	}
	fmt.Fprintln(ctx.App.Writer, out)
	return nil
}

func serveAction(ctx *cli.Context) error {
	logger, err := newLogger(ctx)
	if err != nil {
		return err
	}
	settings, err := loadSettings(ctx)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ctx.String("listen"),
		Handler:           server.NewRouter(settings.Options(logger), logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Infof("listening on %s", srv.Addr)
	return srv.ListenAndServe()
}

package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/noah-isme/dsa-autograder/internal/dto"
	"github.com/noah-isme/dsa-autograder/internal/models"
	"github.com/noah-isme/dsa-autograder/internal/render"
	"github.com/noah-isme/dsa-autograder/pkg/client"
)

type cli struct {
	Server     string        `help:"Base URL of the grading server." default:"http://localhost:8000" env:"GRADER_URL"`
	Student    string        `help:"Student name, e.g. '2151001 - Nguyen Van A'."`
	Assignment string        `help:"Assignment code used to look up the rubric."`
	Topic      string        `help:"Free-form topic label."`
	Callback   string        `help:"Webhook URL notified when the job finishes."`
	Status     string        `help:"Only print results with this status (PASS, FAIL, FLAG, PENDING)."`
	Search     string        `help:"Only print results whose filename or algorithms contain this keyword."`
	Timeout    time.Duration `help:"Give up waiting after this long." default:"10m"`
	Verbose    bool          `help:"Log every poll." short:"v"`
	Files      []string      `arg:"" help:"Python sources or .zip/.rar archives to grade." type:"existingfile"`
}

var args cli

func main() {
	kong.Parse(&args, kong.Description("Submit Python assignments to the DSA autograder and print the graded results."))

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if args.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	files := make([]client.File, 0, len(args.Files))
	for _, path := range args.Files {
		data, err := os.ReadFile(path)
		if err != nil {
			log.Fatal().Err(err).Str("file", path).Msg("failed to read file")
		}
		files = append(files, client.File{Name: filepath.Base(path), Data: data})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, args.Timeout)
	defer cancel()

	c := client.New(args.Server)
	accepted, err := c.Submit(ctx, files, client.SubmitOptions{
		StudentName:    args.Student,
		Topic:          args.Topic,
		AssignmentCode: args.Assignment,
		CallbackURL:    args.Callback,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("submission rejected")
	}
	log.Info().Str("job_id", accepted.JobID).Msg(accepted.Message)

	status, err := c.Poll(ctx, accepted.JobID, func(s dto.JobStatusResponse) {
		log.Debug().Str("job_id", accepted.JobID).Str("status", s.Status).Msg("polled job")
	})
	if err != nil {
		log.Fatal().Err(err).Str("job_id", accepted.JobID).Msg("failed waiting for job")
	}

	if status.Status != models.JobStatusCompleted || status.Summary == nil {
		log.Error().Str("job_id", accepted.JobID).Str("error", status.Error).Msg("grading failed")
		os.Exit(1)
	}

	results := render.Filter(status.Results, render.State{StatusFilter: args.Status, SearchKeyword: args.Search})
	if err := render.WriteText(os.Stdout, *status.Summary, render.BuildCards(results)); err != nil {
		log.Fatal().Err(err).Msg("failed to print results")
	}
}

// Command practice is a terminal client for attempting a paper. It
// drives the same session engine a full frontend would: guest sessions
// persist locally and reconcile to the server after login; token
// sessions persist remotely from the start.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/prepwise/prepwise-backend/internal/attemptapi"
	"github.com/prepwise/prepwise-backend/internal/localstore"
	"github.com/prepwise/prepwise-backend/internal/logger"
	"github.com/prepwise/prepwise-backend/internal/model"
	"github.com/prepwise/prepwise-backend/internal/session"
	"github.com/prepwise/prepwise-backend/internal/timeutil"
	"github.com/rs/zerolog"
	"golang.org/x/term"
)

func main() {
	var (
		serverURL = flag.String("server", "http://localhost:8080", "Attempt service base URL")
		paperID   = flag.String("paper", "", "Paper ID to attempt (required)")
		token     = flag.String("token", "", "Bearer token; empty runs as guest")
		storePath = flag.String("store", "practice.db", "Local store path")
		logLevel  = flag.String("log-level", "warn", "Log level")
	)
	flag.Parse()

	log := logger.Setup(*logLevel, "pretty")

	if *paperID == "" {
		fmt.Fprintln(os.Stderr, "usage: practice -paper <paper-id> [-token <jwt>]")
		os.Exit(1)
	}
	pid, err := uuid.Parse(*paperID)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid paper id:", err)
		os.Exit(1)
	}

	ctx := context.Background()

	client := attemptapi.NewClient(*serverURL, log)
	if *token != "" {
		client.SetToken(*token)
	}

	store, err := localstore.Open(ctx, *storePath, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open local store")
	}
	defer store.Close()

	payload, err := client.GetPaper(ctx, pid)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load paper")
	}

	app := &app{client: client, store: store, payload: payload, log: log}
	if err := app.mount(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start session")
	}
	defer app.ctrl.Close()

	fmt.Printf("%s (%s, %d): %d questions\n",
		payload.Paper.Title, payload.Paper.Subject, payload.Paper.Year, len(payload.Questions))
	app.printQuestion()
	app.repl(ctx)
}

type app struct {
	client  *attemptapi.Client
	store   *localstore.Store
	payload *model.PaperPayload
	ctrl    *session.Controller
	log     zerolog.Logger
}

// mount builds the controller for the current auth state: snapshot
// hydration first, then (authenticated only) fire attempt creation and
// hand any pending guest progress to the reconciler once the id exists.
func (a *app) mount(ctx context.Context) error {
	snap, err := a.store.LoadSession(ctx)
	if err != nil {
		return err
	}

	var backend session.Backend
	var tracker session.Tracker = session.NopTracker{}

	if a.client.Authenticated() {
		remote := session.NewRemoteBackend(a.client, a.log)
		tracker = session.NewRemoteTracker(a.client, remote, session.SystemClock(), a.log)
		backend = remote

		paperID := a.payload.Paper.ID
		pending := snap != nil && snap.PendingSync
		go func() {
			attemptID, err := remote.CreateAttempt(context.Background(), paperID)
			if err != nil {
				a.log.Error().Err(err).Msg("Attempt creation failed")
				return
			}
			if pending {
				reconciler := session.NewReconciler(a.client, a.store, a.log)
				if _, err := reconciler.ReconcilePending(context.Background(), attemptID, paperID); err != nil {
					a.log.Error().Err(err).Msg("Reconciliation failed; will retry on next mount")
				}
			}
			// Held answer saves go out only after the bulk sync, so a
			// fresh edit can never be overwritten by the old snapshot.
			remote.Flush()
		}()
	} else {
		backend = session.NewLocalBackend(a.store, a.log)
	}

	ctrl, err := session.New(session.Config{
		Payload:  a.payload,
		Backend:  backend,
		Tracker:  tracker,
		Snapshot: snap,
		Log:      a.log,
	})
	if err != nil {
		return err
	}
	ctrl.Start(ctx)
	a.ctrl = ctrl
	return nil
}

func (a *app) repl(ctx context.Context) {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println(`commands: answer <text> | option <key> | next | prev | goto <n> | pdf <page> | pause | resume | login <email> | time | submit | quit`)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		cmd, arg, _ := strings.Cut(line, " ")

		var err error
		switch cmd {
		case "":
		case "answer":
			err = a.ctrl.SetAnswer(arg)
		case "option":
			err = a.ctrl.SelectOption(strings.ToUpper(strings.TrimSpace(arg)))
		case "next":
			err = a.ctrl.Navigate(a.ctrl.CurrentIndex() + 1)
			a.printQuestion()
		case "prev":
			err = a.ctrl.Navigate(a.ctrl.CurrentIndex() - 1)
			a.printQuestion()
		case "goto":
			var n int
			if n, err = strconv.Atoi(strings.TrimSpace(arg)); err == nil {
				err = a.ctrl.Navigate(n - 1)
				a.printQuestion()
			}
		case "pdf":
			var page int
			if page, err = strconv.Atoi(strings.TrimSpace(arg)); err == nil {
				a.ctrl.ViewPDF(page)
			}
		case "pause":
			err = a.ctrl.Pause()
		case "resume":
			err = a.ctrl.Resume()
		case "login":
			err = a.login(ctx, strings.TrimSpace(arg))
		case "time":
			fmt.Printf("total %s, on this question %ds\n",
				timeutil.FormatSeconds(a.ctrl.TotalSeconds()), a.ctrl.CurrentQuestionSeconds())
		case "submit":
			a.submit(ctx)
			return
		case "quit", "exit":
			fmt.Println("progress saved, bye")
			return
		default:
			fmt.Println("unknown command:", cmd)
		}
		if err != nil {
			fmt.Println("error:", err)
		}
	}
}

// login authenticates mid-session. The guest snapshot is flagged for
// sync, then the session re-mounts as authenticated, which creates the
// server attempt and replays the local progress into it.
func (a *app) login(ctx context.Context, email string) error {
	if a.client.Authenticated() {
		return fmt.Errorf("already signed in")
	}
	if email == "" {
		return fmt.Errorf("usage: login <email>")
	}

	fmt.Print("Password: ")
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return err
	}

	token, err := a.client.Login(ctx, email, string(raw))
	if err != nil {
		return err
	}

	if err := a.ctrl.MarkPendingSync(); err != nil {
		return err
	}
	a.ctrl.Close()

	a.client.SetToken(token)
	if err := a.mount(ctx); err != nil {
		return err
	}
	fmt.Println("signed in, syncing your progress")
	return nil
}

func (a *app) submit(ctx context.Context) {
	wasGuest := !a.client.Authenticated()
	preview := a.ctrl.PreviewScore()

	if err := a.ctrl.Submit(ctx); err != nil {
		fmt.Println("submit failed (you can retry):", err)
		return
	}

	fmt.Printf("submitted, %s total\n", timeutil.FormatSeconds(a.ctrl.TotalSeconds()))
	if wasGuest {
		fmt.Printf("preview (multiple choice only): %d/%d correct, %d/%d marks. sign in to get full marking\n",
			preview.MCQCorrect, preview.MCQTotal, preview.MarksAwarded, preview.MarksAvailable)
	} else {
		fmt.Println("marking in progress, check results with your attempt id")
	}
}

func (a *app) printQuestion() {
	q := a.ctrl.CurrentQuestion()
	fmt.Printf("\nQ%d (%d marks): %s\n", q.Number, q.Marks, q.Text)
	for _, opt := range q.Options {
		fmt.Printf("  %s) %s\n", opt.Key, opt.Text)
	}
	if v, ok := a.ctrl.Answers()[q.ID.String()]; ok {
		if v.SelectedOption != "" {
			fmt.Printf("  [your option: %s]\n", v.SelectedOption)
		}
		if v.AnswerText != "" {
			fmt.Printf("  [your answer: %s]\n", v.AnswerText)
		}
	}
}
